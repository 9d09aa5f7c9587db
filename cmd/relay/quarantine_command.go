package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/config"
	"relay/internal/queueproc"
)

func newQuarantineCommand(ctx *commandContext) *cobra.Command {
	quarantineCmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect items that failed processing",
	}
	quarantineCmd.AddCommand(newQuarantineListCommand(ctx))
	return quarantineCmd
}

func newQuarantineListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list [stage]",
		Short: "List quarantined items, optionally for one stage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stages := cfg.Stages
			if len(args) == 1 {
				stage, ok := cfg.Stage(args[0])
				if !ok {
					return fmt.Errorf("unknown stage %q", args[0])
				}
				stages = []config.Stage{stage}
			}

			rows, err := quarantineRows(stages)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No quarantined items")
				return nil
			}
			headers := []string{"Stage", "Item", "Quarantined At", "Size"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}
			fmt.Fprintln(out, renderTable(fmt.Sprintf("%d quarantined", len(rows)), headers, rows, aligns))
			return nil
		},
	}
}

func quarantineRows(stages []config.Stage) ([][]string, error) {
	var rows [][]string
	for _, stage := range stages {
		names, err := queueproc.Quarantined(stage.QueueDir)
		if err != nil {
			return nil, fmt.Errorf("list quarantine for %s: %w", stage.Name, err)
		}
		for _, name := range names {
			item, stamp := splitQuarantineName(name)
			size := "-"
			if info, err := os.Stat(filepath.Join(stage.QueueDir, name)); err == nil {
				size = fmt.Sprintf("%d", info.Size())
			}
			rows = append(rows, []string{stageLabel(stage.Name), item, stamp, size})
		}
	}
	return rows, nil
}

// splitQuarantineName returns the original item name and a readable
// timestamp for a quarantine file name.
func splitQuarantineName(name string) (string, string) {
	idx := strings.LastIndex(name, ".ERROR.")
	if idx < 0 {
		return name, "-"
	}
	item, raw := name[:idx], name[idx+len(".ERROR."):]
	at, err := time.ParseInLocation(queueproc.QuarantineLayout, raw, time.Local)
	if err != nil {
		return item, raw
	}
	return item, at.Format(time.DateTime)
}
