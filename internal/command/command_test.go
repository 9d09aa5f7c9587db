package command_test

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"relay/internal/command"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestSplitCollapsesWhitespace(t *testing.T) {
	got := command.Split("  /usr/bin/relay \t--config  a.toml run\nnext ")
	want := []string{"/usr/bin/relay", "--config", "a.toml", "run", "next"}
	if !slices.Equal(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestRunCapturesStdoutLines(t *testing.T) {
	script := writeScript(t, `echo "first $1"; echo second`)
	out, err := command.Run(context.Background(), script, []string{"item.job"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(out, []string{"first item.job", "second"}) {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestRunFeedsStdin(t *testing.T) {
	script := writeScript(t, "cat")
	out, err := command.Run(context.Background(), script, nil, strings.NewReader("a\nb\n"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(out, []string{"a", "b"}) {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestRunRejectsOversizedOutputLine(t *testing.T) {
	script := writeScript(t, "cat")
	long := strings.Repeat("x", 2*1024*1024) + "\n"
	_, err := command.Run(context.Background(), script, nil, strings.NewReader(long))
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected bufio.ErrTooLong, got %v", err)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	script := writeScript(t, "echo partial; echo bad >&2; exit 75")
	out, err := command.Run(context.Background(), script, nil, nil)
	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 75 {
		t.Fatalf("expected exit code 75, got %d", exitErr.Code)
	}
	if !slices.Equal(exitErr.Stderr, []string{"bad"}) {
		t.Fatalf("unexpected stderr %v", exitErr.Stderr)
	}
	if !slices.Equal(out, []string{"partial"}) {
		t.Fatalf("expected stdout alongside error, got %v", out)
	}
}

func TestRunTreatsStderrAsFailure(t *testing.T) {
	script := writeScript(t, "echo warning >&2")
	_, err := command.Run(context.Background(), script, nil, nil)
	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 0 {
		t.Fatalf("expected zero-code ExitError, got %v", err)
	}
	if !strings.Contains(err.Error(), "warning") {
		t.Fatalf("expected stderr in message, got %q", err.Error())
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := command.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var exitErr *command.ExitError
	if errors.As(err, &exitErr) {
		t.Fatalf("expected start failure, got ExitError %v", err)
	}
	if _, err := command.Run(context.Background(), "   ", []string{"x"}, nil); !errors.Is(err, command.ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestStartDetachesProcess(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	script := writeScript(t, "touch "+marker)

	if err := command.Start(script); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("detached process never ran")
}

func TestStartFailure(t *testing.T) {
	if err := command.Start(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected launch error")
	}
	if err := command.Start(""); !errors.Is(err, command.ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}
