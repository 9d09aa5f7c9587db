package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"relay/internal/config"
	"relay/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil {
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			return level
		}
	}
	if cfg != nil {
		return cfg.Logging.Level
	}
	return ""
}

// shellLogger writes messages that are emitted outside any stage lock.
func (c *commandContext) shellLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	format := ""
	if cfg != nil {
		format = cfg.Logging.Format
	}
	return logging.New(logging.Options{
		Level:  c.logLevel(cfg),
		Format: format,
		Writer: w,
	})
}

// stageLogger writes to the stage's log file in the log directory and to w.
// The returned closer releases the file.
func (c *commandContext) stageLogger(cfg *config.Config, stage string, w io.Writer) (*slog.Logger, io.Closer, error) {
	path := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("relay-%s.log", stage))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open stage log %s: %w", path, err)
	}
	logger, err := logging.New(logging.Options{
		Level:  c.logLevel(cfg),
		Format: cfg.Logging.Format,
		Writer: io.MultiWriter(w, file),
	})
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return logging.WithStage(logger, stage), file, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
