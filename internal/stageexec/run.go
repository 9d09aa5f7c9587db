// Package stageexec builds a queue processor for one configured stage and
// runs it with the stage's collaborators wired in.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"relay/internal/config"
	"relay/internal/ledger"
	"relay/internal/logging"
	"relay/internal/nextstage"
	"relay/internal/notifications"
	"relay/internal/queueproc"
	"relay/internal/stages"
)

// ErrSetup marks failures that happen before the stage queue is touched:
// an unknown behaviour, launcher, or next stage, or a missing ledger.
var ErrSetup = errors.New("stage setup failed")

// Options wires one configured stage to its collaborators.
type Options struct {
	Config *config.Config
	Stage  config.Stage
	// Logger receives stage output while the stage lock is held.
	Logger *slog.Logger
	// ShellLogger receives messages emitted outside the lock.
	ShellLogger *slog.Logger
	Notifier    notifications.Service
	// Ledger is required when the stage uses the database.
	Ledger *ledger.Store
	// Launcher overrides the configured next-stage launcher.
	Launcher nextstage.Launcher
}

// Build resolves the stage behaviour, downstream, launcher, and transactor
// and returns a ready processor.
func Build(opts Options) (*queueproc.Processor, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	stage := opts.Stage

	impl, err := stages.New(stage, stages.Deps{Ledger: opts.Ledger, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	procOpts := queueproc.Options{
		Name:           stage.Name,
		QueueDir:       stage.QueueDir,
		LockDir:        stage.LockDir,
		MaxConcurrency: stage.MaxConcurrency,
		SpeedFile:      stage.SpeedFile,
		HaltFile:       opts.Config.Paths.HaltFile,
		Notifier:       opts.Notifier,
		Logger:         opts.Logger,
		ShellLogger:    opts.ShellLogger,
		Stage:          impl,
	}

	if stage.UsesDatabase {
		if opts.Ledger == nil {
			return nil, fmt.Errorf("stage %s uses the database but no ledger is open", stage.Name)
		}
		procOpts.Transactor = stages.LedgerTransactor(opts.Ledger)
	}

	if stage.HasNext() {
		next, ok := opts.Config.Stage(stage.Next)
		if !ok {
			return nil, fmt.Errorf("stage %s: unknown next stage %q", stage.Name, stage.Next)
		}
		procOpts.Next = &queueproc.Downstream{
			QueueDir: next.QueueDir,
			LockDir:  next.LockDir,
			Command:  stage.NextCommand,
		}
		launcher := opts.Launcher
		if launcher == nil {
			launcher, err = nextstage.New(opts.Config.LauncherKind(), opts.Logger)
			if err != nil {
				return nil, err
			}
		}
		procOpts.Launcher = launcher
	}

	return queueproc.New(procOpts)
}

// Run builds the stage processor and drains its queue once.
func Run(ctx context.Context, opts Options) error {
	shell := opts.ShellLogger
	if shell == nil {
		shell = logging.NewNop()
	}
	shell = logging.WithStage(shell, opts.Stage.Name)

	proc, err := Build(opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	start := time.Now()
	shell.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := proc.Run(ctx); err != nil {
		logging.ErrorWithContext(shell, "stage run failed", "stage_failed",
			logging.Error(err),
			logging.Duration("duration", time.Since(start)),
		)
		return err
	}
	report := proc.LastCycle()
	shell.Debug("stage finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("processed", report.Processed),
		logging.Int("failed", report.Failed),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}
