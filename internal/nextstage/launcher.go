package nextstage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"relay/internal/command"
	"relay/internal/logging"
)

// Launcher decides whether a downstream stage may be started and starts it.
type Launcher interface {
	// CanExecute reports whether the downstream stage is idle, judged by the
	// absence of its lock directory.
	CanExecute(lockDir string) bool
	// Execute starts commandLine detached and returns without waiting.
	Execute(commandLine string) error
}

// ExecLauncher starts the downstream command as a detached process.
type ExecLauncher struct {
	logger *slog.Logger
	start  func(string) error
}

// NewExecLauncher returns a launcher that spawns real processes.
func NewExecLauncher(logger *slog.Logger) *ExecLauncher {
	return &ExecLauncher{logger: logging.NewComponentLogger(logger, "launcher"), start: command.Start}
}

func (l *ExecLauncher) CanExecute(lockDir string) bool {
	_, err := os.Stat(lockDir)
	return errors.Is(err, os.ErrNotExist)
}

func (l *ExecLauncher) Execute(commandLine string) error {
	if strings.TrimSpace(commandLine) == "" {
		return command.ErrEmptyCommand
	}
	if err := l.start(commandLine); err != nil {
		return fmt.Errorf("start next stage: %w", err)
	}
	l.logger.Info("next stage launched",
		logging.String("command", commandLine),
		logging.String(logging.FieldEventType, "next_stage_launched"),
	)
	return nil
}

// LogLauncher never starts anything; it only records what would have run.
type LogLauncher struct {
	logger *slog.Logger
}

// NewLogLauncher returns a launcher for dry runs and tests.
func NewLogLauncher(logger *slog.Logger) *LogLauncher {
	return &LogLauncher{logger: logging.NewComponentLogger(logger, "launcher")}
}

func (l *LogLauncher) CanExecute(string) bool { return true }

func (l *LogLauncher) Execute(commandLine string) error {
	l.logger.Info("next stage launch skipped",
		logging.String("command", commandLine),
		logging.String(logging.FieldEventType, "next_stage_logged"),
	)
	return nil
}

// Factory builds a Launcher.
type Factory func(logger *slog.Logger) Launcher

var registry = map[string]Factory{
	"exec": func(logger *slog.Logger) Launcher { return NewExecLauncher(logger) },
	"log":  func(logger *slog.Logger) Launcher { return NewLogLauncher(logger) },
}

// Kinds lists the registered launcher names in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New resolves a launcher by its configured name. An empty name selects exec.
func New(kind string, logger *slog.Logger) (Launcher, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = "exec"
	}
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown next stage launcher %q (expected one of %s)", kind, strings.Join(Kinds(), ", "))
	}
	return factory(logger), nil
}

// Known reports whether kind names a registered launcher.
func Known(kind string) bool {
	return slices.Contains(Kinds(), strings.ToLower(strings.TrimSpace(kind)))
}
