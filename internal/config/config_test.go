package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"relay/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("RELAY_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantHome := filepath.Join(tempHome, ".local", "share", "relay")
	if cfg.Paths.Home != wantHome {
		t.Fatalf("unexpected home: got %q want %q", cfg.Paths.Home, wantHome)
	}
	if cfg.Paths.QueueRoot != filepath.Join(wantHome, "queue") {
		t.Fatalf("unexpected queue root: %q", cfg.Paths.QueueRoot)
	}
	if cfg.Paths.HaltFile != filepath.Join(wantHome, "halt") {
		t.Fatalf("unexpected halt file: %q", cfg.Paths.HaltFile)
	}
	if cfg.Database.Path != filepath.Join(wantHome, "relay.db") {
		t.Fatalf("unexpected database path: %q", cfg.Database.Path)
	}
	if cfg.LauncherKind() != "exec" {
		t.Fatalf("expected exec launcher by default, got %q", cfg.LauncherKind())
	}
	if len(cfg.Stages) != 0 {
		t.Fatalf("expected no stages by default, got %d", len(cfg.Stages))
	}
}

func TestLoadDerivesStagePaths(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	path := filepath.Join(dir, "relay.toml")
	content := `
[paths]
home = "` + home + `"

[[stages]]
name = "ingest"
max_concurrency = 3
next = "publish"

[[stages]]
name = "publish"
queue_dir = "/srv/outbox"
speed_file = "pub.speed"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}

	ingest, ok := cfg.Stage("ingest")
	if !ok {
		t.Fatal("expected ingest stage")
	}
	if ingest.QueueDir != filepath.Join(home, "queue", "ingest") {
		t.Fatalf("unexpected queue dir: %q", ingest.QueueDir)
	}
	if ingest.LockDir != filepath.Join(home, "lock", "ingest") {
		t.Fatalf("unexpected lock dir: %q", ingest.LockDir)
	}
	if ingest.SpeedFile != filepath.Join(home, "assessment", "ingest.speed") {
		t.Fatalf("unexpected speed file: %q", ingest.SpeedFile)
	}
	if ingest.Behavior != "passthrough" {
		t.Fatalf("expected passthrough default behavior, got %q", ingest.Behavior)
	}
	if !strings.HasSuffix(ingest.NextCommand, "--config "+path+" run publish") {
		t.Fatalf("unexpected derived next command: %q", ingest.NextCommand)
	}

	publish, _ := cfg.Stage("publish")
	if publish.QueueDir != "/srv/outbox" {
		t.Fatalf("expected explicit queue dir, got %q", publish.QueueDir)
	}
	if publish.SpeedFile != filepath.Join(home, "assessment", "pub.speed") {
		t.Fatalf("unexpected speed file: %q", publish.SpeedFile)
	}
	if publish.MaxConcurrency != 4 {
		t.Fatalf("expected default max concurrency, got %d", publish.MaxConcurrency)
	}
	if publish.HasNext() {
		t.Fatal("expected publish to be the last stage")
	}
	if got := cfg.StageNames(); len(got) != 2 || got[0] != "ingest" || got[1] != "publish" {
		t.Fatalf("unexpected stage order: %v", got)
	}
}

func TestValidateRejectsInvalidStages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name: "duplicate name",
			mutate: func(c *config.Config) {
				c.Stages = append(c.Stages, c.Stages[0])
			},
			want: "duplicate stage name",
		},
		{
			name: "unknown next",
			mutate: func(c *config.Config) {
				c.Stages[0].Next = "missing"
			},
			want: "unknown stage",
		},
		{
			name: "zero concurrency",
			mutate: func(c *config.Config) {
				c.Stages[0].MaxConcurrency = 0
			},
			want: "max_concurrency",
		},
		{
			name: "exec without command",
			mutate: func(c *config.Config) {
				c.Stages[0].Behavior = "exec"
			},
			want: "command must be set",
		},
		{
			name: "ledger without database",
			mutate: func(c *config.Config) {
				c.Stages[0].Behavior = "ledger"
			},
			want: "uses_database",
		},
		{
			name: "unknown launcher",
			mutate: func(c *config.Config) {
				c.NextStage.Launcher = "rpc"
			},
			want: "next_stage.launcher",
		},
		{
			name: "mail without recipients",
			mutate: func(c *config.Config) {
				c.Notifications.SystemError = true
				c.Notifications.MailSendCommand = "sendmail"
				c.Notifications.MailFrom = "relay@example.com"
			},
			want: "mail_to",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Logging.Format = "console"
			cfg.Stages = []config.Stage{{
				Name:           "ingest",
				Behavior:       "passthrough",
				MaxConcurrency: 2,
				QueueDir:       "/q/ingest",
				LockDir:        "/l/ingest",
			}}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if len(cfg.Stages) != 3 {
		t.Fatalf("expected 3 sample stages, got %d", len(cfg.Stages))
	}
}

func TestResolvePathUsesHome(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Home = "/srv/relay"

	got, err := cfg.ResolvePath("assessment/x.speed")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if got != "/srv/relay/assessment/x.speed" {
		t.Fatalf("unexpected resolved path %q", got)
	}

	abs, err := cfg.ResolvePath("/tmp/halt")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if abs != "/tmp/halt" {
		t.Fatalf("expected absolute path untouched, got %q", abs)
	}
}
