package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"relay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp directory per test.
// Shared directories and stage queue directories are created before it
// returns; lock directories are not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		Home:          base,
		QueueRoot:     filepath.Join(base, "queue"),
		LockDir:       filepath.Join(base, "lock"),
		AssessmentDir: filepath.Join(base, "assessment"),
		HaltFile:      filepath.Join(base, "halt"),
		LogDir:        filepath.Join(base, "logs"),
	}
	cfgVal.Database.Path = filepath.Join(base, "relay.db")
	cfgVal.Logging.Format = "console"
	cfgVal.Logging.Level = "info"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStage appends a passthrough stage laid out under the test home.
// Modifiers run after the defaults are filled in.
func WithStage(name, next string, mods ...func(*config.Stage)) ConfigOption {
	return func(b *configBuilder) {
		stage := config.Stage{
			Name:           name,
			Behavior:       "passthrough",
			MaxConcurrency: 4,
			QueueDir:       filepath.Join(b.cfg.Paths.QueueRoot, name),
			LockDir:        filepath.Join(b.cfg.Paths.LockDir, name),
			SpeedFile:      filepath.Join(b.cfg.Paths.AssessmentDir, name+".speed"),
			Next:           next,
		}
		if next != "" {
			stage.NextCommand = "relay run " + next
		}
		for _, mod := range mods {
			mod(&stage)
		}
		b.cfg.Stages = append(b.cfg.Stages, stage)
	}
}

// WithLauncher selects the next-stage launcher kind.
func WithLauncher(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.NextStage.Launcher = kind
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.Home
}
