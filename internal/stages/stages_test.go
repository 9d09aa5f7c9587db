package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"relay/internal/config"
	"relay/internal/logging"
	"relay/internal/queueproc"
	"relay/internal/services"
	"relay/internal/stages"
	"relay/internal/testsupport"
)

func newJob(path string) *queueproc.Job {
	return &queueproc.Job{
		Path:   path,
		Name:   filepath.Base(path),
		Stage:  "ingest",
		Logger: logging.NewNop(),
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stage.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestNewResolvesBehaviors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	tests := []struct {
		name    string
		stage   config.Stage
		deps    stages.Deps
		wantErr bool
	}{
		{name: "passthrough", stage: config.Stage{Name: "a", Behavior: "passthrough"}},
		{name: "exec", stage: config.Stage{Name: "a", Behavior: "exec", Command: "true"}},
		{name: "exec without command", stage: config.Stage{Name: "a", Behavior: "exec"}, wantErr: true},
		{name: "ledger", stage: config.Stage{Name: "a", Behavior: "ledger"}, deps: stages.Deps{Ledger: store}},
		{name: "ledger without store", stage: config.Stage{Name: "a", Behavior: "ledger"}, wantErr: true},
		{name: "unknown", stage: config.Stage{Name: "a", Behavior: "teleport"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := stages.New(tt.stage, tt.deps)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil || stage == nil {
				t.Fatalf("New: stage=%v err=%v", stage, err)
			}
		})
	}

	if got := stages.Behaviors(); len(got) != 3 || got[0] != "exec" {
		t.Fatalf("unexpected behaviors %v", got)
	}
}

func TestPassthroughForwardsItem(t *testing.T) {
	job := newJob("/queue/ingest/item")
	result := stages.Passthrough{}.Process(context.Background(), job)
	if result.Outcome != queueproc.OutcomeProcessed || result.Next != job.Path {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestExecOutcomes(t *testing.T) {
	dir := t.TempDir()
	item := filepath.Join(dir, "item")
	if err := os.WriteFile(item, []byte("data"), 0o644); err != nil {
		t.Fatalf("write item: %v", err)
	}

	tests := []struct {
		name     string
		script   string
		outcome  queueproc.Outcome
		wantNext string
	}{
		{name: "forwards input", script: "exit 0", outcome: queueproc.OutcomeProcessed, wantNext: item},
		{name: "forwards printed path", script: `echo "$1.out"`, outcome: queueproc.OutcomeProcessed, wantNext: item + ".out"},
		{name: "relative output", script: "echo; echo converted", outcome: queueproc.OutcomeProcessed, wantNext: filepath.Join(dir, "converted")},
		{name: "temporary failure skips", script: "exit 75", outcome: queueproc.OutcomeSkipped},
		{name: "failure", script: "echo broken >&2; exit 3", outcome: queueproc.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := &stages.Exec{Command: writeScript(t, tt.script)}
			result := stage.Process(context.Background(), newJob(item))
			if result.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s (err=%v)", tt.outcome, result.Outcome, result.Err)
			}
			if result.Next != tt.wantNext {
				t.Fatalf("expected next %q, got %q", tt.wantNext, result.Next)
			}
			if tt.outcome == queueproc.OutcomeFailed && !errors.Is(result.Err, services.ErrExternalTool) {
				t.Fatalf("expected external tool error, got %v", result.Err)
			}
		})
	}
}

func TestLedgerForwardsFirstOccurrenceOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	dir := t.TempDir()

	ctx := context.Background()
	process := func(name, content string) queueproc.Result {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		tx, err := store.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		job := newJob(path)
		job.Tx = tx
		result := stages.Ledger{}.Process(ctx, job)
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return result
	}

	first := process("a", "same bytes")
	if first.Outcome != queueproc.OutcomeProcessed || filepath.Base(first.Next) != "a" {
		t.Fatalf("expected first occurrence to be forwarded, got %+v", first)
	}
	dup := process("b", "same bytes")
	if dup.Outcome != queueproc.OutcomeProcessed || dup.Next != "" {
		t.Fatalf("expected duplicate to be consumed, got %+v", dup)
	}
	other := process("c", "other bytes")
	if other.Next == "" {
		t.Fatal("expected distinct content to be forwarded")
	}

	count, err := store.Count(ctx, "ingest")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", count)
	}
}

func TestLedgerFailsWithoutTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	result := stages.Ledger{}.Process(context.Background(), newJob(path))
	if result.Outcome != queueproc.OutcomeFailed || !errors.Is(result.Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration failure, got %+v", result)
	}
}

func TestLedgerStageThroughProcessor(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStage("dedupe", "archive", func(s *config.Stage) {
			s.Behavior = "ledger"
			s.UsesDatabase = true
		}),
		testsupport.WithStage("archive", ""),
	)
	store := testsupport.MustOpenLedger(t, cfg)
	dedupe, _ := cfg.Stage("dedupe")
	archive, _ := cfg.Stage("archive")

	for name, content := range map[string]string{"one": "alpha", "two": "alpha", "three": "beta"} {
		if err := os.WriteFile(filepath.Join(dedupe.QueueDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	stage, err := stages.New(dedupe, stages.Deps{Ledger: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := queueproc.New(queueproc.Options{
		Name:           dedupe.Name,
		QueueDir:       dedupe.QueueDir,
		LockDir:        dedupe.LockDir,
		MaxConcurrency: dedupe.MaxConcurrency,
		SpeedFile:      dedupe.SpeedFile,
		Next:           &queueproc.Downstream{QueueDir: archive.QueueDir, LockDir: archive.LockDir},
		Launcher:       nopLauncher{},
		Transactor:     stages.LedgerTransactor(store),
		Stage:          stage,
	})
	if err != nil {
		t.Fatalf("queueproc.New: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if left := testsupport.ListNames(t, dedupe.QueueDir); len(left) != 0 {
		t.Fatalf("expected queue drained, got %v", left)
	}
	if moved := testsupport.ListNames(t, archive.QueueDir); len(moved) != 2 {
		t.Fatalf("expected 2 unique items forwarded, got %v", moved)
	}
	count, err := store.Count(context.Background(), "dedupe")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", count)
	}
}

func TestExecItemCompletesAfterCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStage("ingest", ""))
	ingest, _ := cfg.Stage("ingest")
	testsupport.WriteQueueItems(t, ingest.QueueDir, 1)
	marker := filepath.Join(t.TempDir(), "done")

	p, err := queueproc.New(queueproc.Options{
		Name:           ingest.Name,
		QueueDir:       ingest.QueueDir,
		LockDir:        ingest.LockDir,
		MaxConcurrency: 1,
		Stage:          &stages.Exec{Command: writeScript(t, "sleep 1; touch "+marker)},
	})
	if err != nil {
		t.Fatalf("queueproc.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected the command to run to completion: %v", err)
	}
	if report := p.LastCycle(); report.Processed != 1 || report.Skipped != 0 {
		t.Fatalf("unexpected cycle report %+v", report)
	}
	if left := testsupport.ListNames(t, ingest.QueueDir); len(left) != 0 {
		t.Fatalf("expected the item consumed, got %v", left)
	}
}

type nopLauncher struct{}

func (nopLauncher) CanExecute(string) bool { return false }
func (nopLauncher) Execute(string) error   { return nil }
