package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/config"
	"relay/internal/daemonctl"
	"relay/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth, quarantine, and throughput per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Pipeline", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, haltStatusLine(cfg, colorize))
			fmt.Fprintln(out, watchStatusLine(cfg, colorize))
			fmt.Fprintln(out)

			probes := make([]preflight.StageProbe, 0, len(cfg.Stages))
			for _, stage := range cfg.Stages {
				probes = append(probes, preflight.ProbeStage(stage))
			}
			fmt.Fprintln(out, renderStageTable(probes))
			return nil
		},
	}
}

func haltStatusLine(cfg *config.Config, colorize bool) string {
	if preflight.Halted(cfg) {
		return renderStatusLine("Halt", statusWarn, "Halted ("+cfg.Paths.HaltFile+" exists)", colorize)
	}
	return renderStatusLine("Halt", statusOK, "Not halted", colorize)
}

func watchStatusLine(cfg *config.Config, colorize bool) string {
	running, pid, err := daemonctl.ProcessInfo(daemonctl.PIDPath(cfg))
	switch {
	case err != nil:
		return renderStatusLine("Watch", statusWarn, err.Error(), colorize)
	case running:
		return renderStatusLine("Watch", statusOK, fmt.Sprintf("Running (pid %d)", pid), colorize)
	default:
		return renderStatusLine("Watch", statusInfo, "Not running", colorize)
	}
}

func renderStageTable(probes []preflight.StageProbe) string {
	headers := []string{"Stage", "Behavior", "Next", "Backlog", "Quarantined", "Running", "Last Cycle", "Rate"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight, alignRight}
	rows := make([][]string, 0, len(probes))
	for _, p := range probes {
		next := p.Next
		if next == "" {
			next = "-"
		}
		if p.Err != nil {
			rows = append(rows, []string{stageLabel(p.Name), p.Behavior, next, "?", "?", "?", "-", strings.TrimSpace(p.Err.Error())})
			continue
		}
		lastCycle, rate := "-", "-"
		if p.HasSpeed {
			lastCycle = fmt.Sprintf("%d in %s", p.Processed, p.Elapsed.Round(10*time.Millisecond))
			rate = strconv.FormatFloat(p.Rate(), 'f', 1, 64) + "/s"
		}
		rows = append(rows, []string{
			stageLabel(p.Name),
			p.Behavior,
			next,
			strconv.Itoa(p.Backlog),
			strconv.Itoa(p.Quarantined),
			yesNo(p.Running),
			lastCycle,
			rate,
		})
	}
	return renderTable("", headers, rows, aligns)
}
