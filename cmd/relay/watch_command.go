package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/daemonctl"
	"relay/internal/daemonrun"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var development bool

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run every stage whenever its queue changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(cfg),
				Development: development,
			})
		},
	}
	watchCmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")

	watchCmd.AddCommand(newWatchStopCommand(ctx))
	return watchCmd
}

func newWatchStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running relay watch process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(daemonctl.PIDPath(cfg), grace)
			if errors.Is(err, daemonctl.ErrNotRunning) {
				fmt.Fprintln(out, "relay watch is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "relay watch (pid %d) did not stop in %s and was killed\n", result.PID, grace)
				return nil
			}
			fmt.Fprintf(out, "relay watch (pid %d) stopped\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait for in-flight cycles before killing the process")
	return cmd
}
