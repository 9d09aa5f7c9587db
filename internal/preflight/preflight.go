package preflight

import (
	"context"

	"relay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Home directory", cfg.Paths.Home),
		CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir),
		CheckDirectoryAccess("Assessment directory", cfg.Paths.AssessmentDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	for _, stage := range cfg.Stages {
		results = append(results, CheckDirectoryAccess("Queue "+stage.Name, stage.QueueDir))
	}

	if usesDatabase(cfg) {
		results = append(results, CheckDatabaseDir(cfg.Database.Path))
	}

	if cfg.Notifications.SystemError && cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func usesDatabase(cfg *config.Config) bool {
	for _, stage := range cfg.Stages {
		if stage.UsesDatabase {
			return true
		}
	}
	return false
}
