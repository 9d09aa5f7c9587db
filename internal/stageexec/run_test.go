package stageexec_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"relay/internal/config"
	"relay/internal/stageexec"
	"relay/internal/testsupport"
)

type recordingLauncher struct {
	commands []string
}

func (l *recordingLauncher) CanExecute(string) bool { return true }

func (l *recordingLauncher) Execute(commandLine string) error {
	l.commands = append(l.commands, commandLine)
	return nil
}

func TestRunForwardsToNextStage(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStage("ingest", "publish"),
		testsupport.WithStage("publish", ""),
	)
	ingest, _ := cfg.Stage("ingest")
	publish, _ := cfg.Stage("publish")
	testsupport.WriteQueueItems(t, ingest.QueueDir, 4)

	launcher := &recordingLauncher{}
	err := stageexec.Run(context.Background(), stageexec.Options{
		Config:   cfg,
		Stage:    ingest,
		Launcher: launcher,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if left := testsupport.ListNames(t, ingest.QueueDir); len(left) != 0 {
		t.Fatalf("expected ingest queue drained, got %v", left)
	}
	if moved := testsupport.ListNames(t, publish.QueueDir); len(moved) != 4 {
		t.Fatalf("expected 4 items in publish queue, got %v", moved)
	}
	if len(launcher.commands) == 0 || launcher.commands[0] != "relay run publish" {
		t.Fatalf("expected publish to be launched, got %v", launcher.commands)
	}
}

func TestBuildUsesConfiguredLauncher(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithLauncher("log"),
		testsupport.WithStage("ingest", "publish"),
		testsupport.WithStage("publish", ""),
	)
	ingest, _ := cfg.Stage("ingest")
	if _, err := stageexec.Build(stageexec.Options{Config: cfg, Stage: ingest}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	cfg.NextStage.Launcher = "carrier-pigeon"
	_, err := stageexec.Build(stageexec.Options{Config: cfg, Stage: ingest})
	if err == nil || !strings.Contains(err.Error(), "launcher") {
		t.Fatalf("expected unknown launcher error, got %v", err)
	}
}

func TestBuildRequiresLedgerForDatabaseStages(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStage("dedupe", "", func(s *config.Stage) {
			s.Behavior = "ledger"
			s.UsesDatabase = true
		}),
	)
	dedupe, _ := cfg.Stage("dedupe")

	if _, err := stageexec.Build(stageexec.Options{Config: cfg, Stage: dedupe}); err == nil {
		t.Fatal("expected error without an open ledger")
	}

	store := testsupport.MustOpenLedger(t, cfg)
	if _, err := stageexec.Build(stageexec.Options{Config: cfg, Stage: dedupe, Ledger: store}); err != nil {
		t.Fatalf("Build with ledger: %v", err)
	}
}

func TestBuildRejectsUnknownNext(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStage("ingest", "nowhere"))
	ingest, _ := cfg.Stage("ingest")
	if _, err := stageexec.Build(stageexec.Options{Config: cfg, Stage: ingest}); err == nil {
		t.Fatal("expected unknown next stage error")
	}
}

func TestRunMarksSetupFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStage("ingest", "nowhere"))
	ingest, _ := cfg.Stage("ingest")
	testsupport.WriteQueueItems(t, ingest.QueueDir, 2)

	err := stageexec.Run(context.Background(), stageexec.Options{Config: cfg, Stage: ingest})
	if !errors.Is(err, stageexec.ErrSetup) {
		t.Fatalf("expected setup error, got %v", err)
	}
	if left := testsupport.ListNames(t, ingest.QueueDir); len(left) != 2 {
		t.Fatalf("expected queue untouched, got %v", left)
	}
}
