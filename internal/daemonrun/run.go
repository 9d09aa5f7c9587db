// Package daemonrun wires configuration, logging, the ledger, and the
// notifier into a running watch supervisor.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"relay/internal/config"
	"relay/internal/daemon"
	"relay/internal/ledger"
	"relay/internal/logging"
	"relay/internal/notifications"
	"relay/internal/services"
	"relay/internal/stageexec"
)

// PIDFileName is the watch pid file inside the log directory.
const PIDFileName = "relay-watch.pid"

// Options configures watch process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Ready, when set, is called once the supervisor has started.
	Ready func(*daemon.Daemon)
}

// Run starts the relay watch loop and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("relay-watch-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	sessionID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldRunID, sessionID))

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "relay-watch-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "relay-*.log"},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *ledger.Store
	if needsLedger(cfg) {
		store, err = ledger.Open(signalCtx, cfg.Database.Path)
		if err != nil {
			logger.Error("open ledger", logging.Error(err))
			return err
		}
		defer store.Close()
	}

	notifier := notifications.NewService(cfg)
	runner := newRunner(cfg, logger, store, notifier, sessionID)

	d, err := daemon.New(cfg, logger, runner)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()
	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("relay watch shutting down")
	return nil
}

func newRunner(cfg *config.Config, logger *slog.Logger, store *ledger.Store, notifier notifications.Service, sessionID string) daemon.Runner {
	return func(ctx context.Context, stage config.Stage) error {
		ctx = services.WithRunID(ctx, sessionID)
		stageLogger := logging.WithStage(logger, stage.Name)
		return stageexec.Run(ctx, stageexec.Options{
			Config:      cfg,
			Stage:       stage,
			Logger:      stageLogger,
			ShellLogger: stageLogger,
			Notifier:    notifier,
			Ledger:      store,
		})
	}
}

func needsLedger(cfg *config.Config) bool {
	for _, stage := range cfg.Stages {
		if stage.UsesDatabase {
			return true
		}
	}
	return false
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
