// Package daemonctl inspects and stops a running relay watch process through
// its pid file.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"relay/internal/config"
	"relay/internal/daemonrun"
)

// ErrNotRunning indicates no live watch process was found.
var ErrNotRunning = errors.New("relay watch not running")

// StopResult captures watch stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// PIDPath returns the watch pid file for cfg.
func PIDPath(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return filepath.Join(cfg.Paths.LogDir, daemonrun.PIDFileName)
}

// ProcessInfo reports whether the watch process recorded in the pid file is alive.
// A stale pid file is removed.
func ProcessInfo(pidPath string) (bool, int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if !alive(pid) {
		_ = os.Remove(pidPath)
		return false, pid, nil
	}
	return true, pid, nil
}

// StopAndTerminate sends SIGTERM to the watch process and force-kills it if it
// is still alive after gracePeriod.
func StopAndTerminate(pidPath string, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(pidPath)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal watch process %d: %w", pid, err)
	}
	if WaitForShutdown(pid, gracePeriod) {
		return result, nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill watch process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	result.ForcedKill = true
	return result, nil
}

// WaitForShutdown polls until pid exits or timeout elapses and reports
// whether the process is gone.
func WaitForShutdown(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return !alive(pid)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", path)
	}
	return pid, nil
}

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
