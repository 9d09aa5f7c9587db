package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ledger <stage>",
		Short: "Show the most recent ledger entries recorded by a database stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stage, ok := cfg.Stage(args[0])
			if !ok {
				return fmt.Errorf("unknown stage %q", args[0])
			}
			if !stage.UsesDatabase {
				return fmt.Errorf("stage %s does not use the database", stage.Name)
			}
			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfg.Database.Path); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "No ledger entries (database not created yet)")
				return nil
			}

			store, err := ledger.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			total, err := store.Count(cmd.Context(), stage.Name)
			if err != nil {
				return err
			}
			entries, err := store.Recent(cmd.Context(), stage.Name, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No ledger entries")
				return nil
			}

			headers := []string{"Recorded", "Item", "Size", "SHA-256"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.RecordedAt.Local().Format(time.DateTime),
					e.Name,
					strconv.FormatInt(e.Size, 10),
					shortDigest(e.SHA256),
				})
			}
			title := fmt.Sprintf("%s: %d of %d entries", stageLabel(stage.Name), len(entries), total)
			fmt.Fprintln(out, renderTable(title, headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func shortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}
