// Package command runs external programs for stage behaviours, mail delivery,
// and downstream launches.
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// ErrEmptyCommand is returned when a command line has no tokens.
var ErrEmptyCommand = errors.New("command: empty command line")

// ExitError reports a command that exited non-zero or wrote to stderr.
type ExitError struct {
	Command string
	Code    int
	Stderr  []string
}

func (e *ExitError) Error() string {
	detail := strings.Join(e.Stderr, "; ")
	if detail == "" {
		return fmt.Sprintf("command %s: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("command %s: exit status %d: %s", e.Command, e.Code, detail)
}

// Split tokenises a command line on runs of whitespace. Quoting is not
// interpreted.
func Split(line string) []string {
	return strings.Fields(line)
}

// Run executes commandLine with extra arguments appended, feeding stdin when
// non-nil, and returns the lines written to stdout. Any non-zero exit or any
// output on stderr is reported as an *ExitError; stdout lines are returned
// alongside it.
func Run(ctx context.Context, commandLine string, args []string, stdin io.Reader) ([]string, error) {
	argv := Split(commandLine)
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", argv[0], err)
		}
		code = exitErr.ExitCode()
	}

	out, err := lines(&stdout)
	if err != nil {
		return nil, fmt.Errorf("read %s stdout: %w", argv[0], err)
	}
	errLines, err := lines(&stderr)
	if err != nil {
		return out, fmt.Errorf("read %s stderr: %w", argv[0], err)
	}
	if code != 0 || len(errLines) > 0 {
		return out, &ExitError{Command: argv[0], Code: code, Stderr: errLines}
	}
	return out, nil
}

// Start launches commandLine detached from the caller: no standard streams,
// its own process group, and no wait for completion.
func Start(commandLine string) error {
	argv := Split(commandLine)
	if len(argv) == 0 {
		return ErrEmptyCommand
	}
	proc := exec.Command(argv[0], argv[1:]...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", argv[0], err)
	}
	return proc.Process.Release()
}

// maxLine caps a single output line.
const maxLine = 1024 * 1024

func lines(buf *bytes.Buffer) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(buf)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	return out, scanner.Err()
}
