package daemonctl

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestProcessInfoMissingPIDFile(t *testing.T) {
	running, pid, err := ProcessInfo(filepath.Join(t.TempDir(), "relay-watch.pid"))
	if err != nil || running || pid != 0 {
		t.Fatalf("expected not running, got running=%v pid=%d err=%v", running, pid, err)
	}
}

func TestProcessInfoRemovesStalePIDFile(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("true unavailable: %v", err)
	}
	path := filepath.Join(t.TempDir(), "relay-watch.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	running, _, err := ProcessInfo(path)
	if err != nil || running {
		t.Fatalf("expected exited process to be reported stopped, got running=%v err=%v", running, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected stale pid file to be removed")
	}
}

func TestStopAndTerminateSignalsProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	path := filepath.Join(t.TempDir(), "relay-watch.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	result, err := StopAndTerminate(path, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if result.PID != cmd.Process.Pid {
		t.Fatalf("expected pid %d, got %d", cmd.Process.Pid, result.PID)
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process still running")
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	_, err := StopAndTerminate(filepath.Join(t.TempDir(), "relay-watch.pid"), time.Second)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestInvalidPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay-watch.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, _, err := ProcessInfo(path); err == nil {
		t.Fatal("expected error for invalid pid file")
	}
}
