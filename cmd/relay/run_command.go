package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"relay/internal/config"
	"relay/internal/ledger"
	"relay/internal/logging"
	"relay/internal/notifications"
	"relay/internal/services"
	"relay/internal/stageexec"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <stage>",
		Short: "Drain one stage queue and exit",
		Long: "Drain one stage queue and exit.\n\n" +
			"Exits zero once the stage has started, even if the cycle reported errors; " +
			"those are logged and sent as notifications. Exits non-zero only when the " +
			"stage cannot be set up.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			shell, err := ctx.shellLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			notifier := notifications.NewService(cfg)

			stage, ok := cfg.Stage(args[0])
			if !ok {
				err := fmt.Errorf("unknown stage %q (configured: %v)", args[0], cfg.StageNames())
				return startupFailure(cmd.Context(), shell, notifier, args[0], err)
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			runCtx = services.WithRunID(runCtx, uuid.NewString())

			return runStage(runCtx, cmd, ctx, cfg, stage, shell, notifier)
		},
	}
}

func runStage(ctx context.Context, cmd *cobra.Command, cc *commandContext, cfg *config.Config, stage config.Stage, shell *slog.Logger, notifier notifications.Service) error {
	shell = logging.WithStage(shell, stage.Name)

	var store *ledger.Store
	if stage.UsesDatabase {
		var err error
		store, err = ledger.Open(ctx, cfg.Database.Path)
		if err != nil {
			return startupFailure(ctx, shell, notifier, stage.Name, fmt.Errorf("open ledger: %w", err))
		}
		defer store.Close()
	}

	logger, closer, err := cc.stageLogger(cfg, stage.Name, cmd.OutOrStdout())
	if err != nil {
		return startupFailure(ctx, shell, notifier, stage.Name, err)
	}
	defer closer.Close()

	err = stageexec.Run(ctx, stageexec.Options{
		Config:      cfg,
		Stage:       stage,
		Logger:      logger,
		ShellLogger: shell,
		Notifier:    notifier,
		Ledger:      store,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stageexec.ErrSetup):
		return startupFailure(ctx, shell, notifier, stage.Name, err)
	default:
		// Cycle errors were already logged and notified by the processor.
		return nil
	}
}

func startupFailure(ctx context.Context, logger *slog.Logger, notifier notifications.Service, stage string, err error) error {
	logging.ErrorWithContext(logger, "stage could not start", "stage_startup_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the stage configuration and database path"),
	)
	if notifyErr := notifier.NotifyError(context.WithoutCancel(ctx), err, "relay run "+stage); notifyErr != nil {
		logger.Warn("notification failed", logging.Error(notifyErr))
	}
	return err
}
