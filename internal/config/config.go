package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout shared by every stage.
type Paths struct {
	Home          string `toml:"home"`
	QueueRoot     string `toml:"queue_root"`
	LockDir       string `toml:"lock_dir"`
	AssessmentDir string `toml:"assessment_dir"`
	HaltFile      string `toml:"halt_file"`
	LogDir        string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for system error reporting.
type Notifications struct {
	SystemError     bool     `toml:"system_error"`
	ProjectName     string   `toml:"project_name"`
	NtfyTopic       string   `toml:"ntfy_topic"`
	RequestTimeout  int      `toml:"request_timeout"`
	MailSendCommand string   `toml:"mail_send_command"`
	MailFrom        string   `toml:"mail_from"`
	MailTo          []string `toml:"mail_to"`
}

// NextStage selects how downstream stages are launched.
type NextStage struct {
	Launcher string `toml:"launcher"`
}

// Database contains configuration for the transactional item ledger.
type Database struct {
	Path string `toml:"path"`
}

// Watch contains configuration for the long-running supervisor.
type Watch struct {
	PollInterval int `toml:"poll_interval"`
}

// Stage describes one directory-queue processor in the pipeline.
type Stage struct {
	Name           string `toml:"name"`
	Behavior       string `toml:"behavior"`
	Command        string `toml:"command"`
	MaxConcurrency int    `toml:"max_concurrency"`
	QueueDir       string `toml:"queue_dir"`
	LockDir        string `toml:"lock_dir"`
	SpeedFile      string `toml:"speed_file"`
	Next           string `toml:"next"`
	NextCommand    string `toml:"next_command"`
	UsesDatabase   bool   `toml:"uses_database"`
}

// HasNext reports whether the stage hands results to a downstream stage.
func (s Stage) HasNext() bool {
	return strings.TrimSpace(s.Next) != ""
}

// Config encapsulates all configuration values for relay.
//
// Configuration sections by subsystem:
//   - Paths: home directory and the shared queue/lock/assessment layout
//   - Logging: log format, level, and retention
//   - Notifications: system error mail and ntfy push settings
//   - NextStage: downstream launcher implementation
//   - Database: SQLite ledger used by transactional stages
//   - Watch: supervisor polling interval
//   - Stages: the pipeline stages, in declaration order
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	NextStage     NextStage     `toml:"next_stage"`
	Database      Database      `toml:"database"`
	Watch         Watch         `toml:"watch"`
	Stages        []Stage       `toml:"stages"`

	// SourcePath is the file the configuration was loaded from, if any.
	SourcePath string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/relay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		cfg.SourcePath = resolvedPath
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("RELAY_CONFIG"))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("relay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the shared directories plus every stage queue
// directory. Lock directories are deliberately not created: their existence
// is the lock.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.Home, c.Paths.QueueRoot, c.Paths.LockDir, c.Paths.AssessmentDir, c.Paths.LogDir}
	for _, stage := range c.Stages {
		dirs = append(dirs, stage.QueueDir, filepath.Dir(stage.LockDir))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ResolvePath resolves a relative path against the configured home directory.
// Absolute paths and "~" prefixed paths are expanded and returned as-is.
func (c *Config) ResolvePath(pathValue string) (string, error) {
	return resolveAgainst(c.Paths.Home, pathValue)
}

// Stage returns the stage configuration with the given name.
func (c *Config) Stage(name string) (Stage, bool) {
	name = strings.TrimSpace(name)
	for _, stage := range c.Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return Stage{}, false
}

// StageNames lists the configured stage names in declaration order.
func (c *Config) StageNames() []string {
	names := make([]string, 0, len(c.Stages))
	for _, stage := range c.Stages {
		names = append(names, stage.Name)
	}
	return names
}

// LauncherKind returns the configured next-stage launcher name.
func (c *Config) LauncherKind() string {
	return strings.ToLower(strings.TrimSpace(c.NextStage.Launcher))
}

func resolveAgainst(home, pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "~") || filepath.IsAbs(trimmed) || home == "" {
		return expandPath(trimmed)
	}
	return filepath.Clean(filepath.Join(home, trimmed)), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
