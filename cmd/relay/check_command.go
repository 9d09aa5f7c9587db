package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"relay/internal/deps"
	"relay/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, the database, notifications, and stage commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			commands := preflight.CheckCommands(cfg)
			if len(commands) > 0 {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Commands", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, status := range commands {
					fmt.Fprintln(out, dependencyStatusLine(status, colorize))
				}
			}

			failed := len(preflight.Failed(results)) + len(deps.Missing(commands))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func dependencyStatusLine(status deps.Status, colorize bool) string {
	switch {
	case status.Available:
		return renderStatusLine(status.Name, statusOK, status.Path, colorize)
	case status.Optional:
		return renderStatusLine(status.Name, statusWarn, status.Detail, colorize)
	default:
		return renderStatusLine(status.Name, statusError, status.Detail, colorize)
	}
}
