package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"relay/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample pipeline configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath, overwrite)
			if err != nil {
				return err
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			// Read the sample back so a broken template never reaches the user.
			cfg, _, _, err := config.Load(target)
			if err != nil {
				return fmt.Errorf("sample config at %s does not load: %w", target, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintf(out, "Sample pipeline: %s\n", strings.Join(pipelineOrder(cfg), " -> "))
			fmt.Fprintln(out, "Edit the [[stages]] entries, then run `relay config validate` and `relay check`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

// initTarget resolves where init writes and refuses to clobber an existing
// file unless overwrite is set.
func initTarget(path string, overwrite bool) (string, error) {
	var target string
	var err error
	if path = strings.TrimSpace(path); path == "" {
		target, err = config.DefaultConfigPath()
	} else {
		target, err = config.ExpandPath(path)
	}
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if overwrite {
		return target, nil
	}
	switch _, err := os.Stat(target); {
	case err == nil:
		return "", fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("check config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration and show the resolved pipeline",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			writeResolvedPipeline(out, cfg)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func writeResolvedPipeline(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Pipeline: %s\n", strings.Join(pipelineOrder(cfg), " -> "))
	fmt.Fprintf(out, "Launcher: %s\n", cfg.LauncherKind())
	fmt.Fprintf(out, "Halt file: %s\n", cfg.Paths.HaltFile)
	if usesDatabase(cfg) {
		fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)
	}

	headers := []string{"Stage", "Behavior", "Workers", "Next", "Queue", "Lock"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}
	rows := make([][]string, 0, len(cfg.Stages))
	for _, stage := range cfg.Stages {
		next := stage.Next
		if next == "" {
			next = "-"
		}
		rows = append(rows, []string{
			stage.Name,
			stage.Behavior,
			strconv.Itoa(stage.MaxConcurrency),
			next,
			stage.QueueDir,
			stage.LockDir,
		})
	}
	fmt.Fprintln(out, renderTable(fmt.Sprintf("%d stages", len(rows)), headers, rows, aligns))
}

// pipelineOrder lists stages along their next links, starting from every
// stage nothing feeds. Stages only reachable through a cycle come last.
func pipelineOrder(cfg *config.Config) []string {
	fed := make(map[string]bool, len(cfg.Stages))
	for _, stage := range cfg.Stages {
		if stage.Next != "" {
			fed[stage.Next] = true
		}
	}

	seen := make(map[string]bool, len(cfg.Stages))
	var order []string
	walk := func(name string) {
		for name != "" && !seen[name] {
			stage, ok := cfg.Stage(name)
			if !ok {
				return
			}
			seen[name] = true
			order = append(order, name)
			name = stage.Next
		}
	}
	for _, stage := range cfg.Stages {
		if !fed[stage.Name] {
			walk(stage.Name)
		}
	}
	for _, stage := range cfg.Stages {
		walk(stage.Name)
	}
	return order
}

func usesDatabase(cfg *config.Config) bool {
	for _, stage := range cfg.Stages {
		if stage.UsesDatabase {
			return true
		}
	}
	return false
}
