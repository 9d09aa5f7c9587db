package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if c.Watch.PollInterval <= 0 {
		c.Watch.PollInterval = defaultWatchPollInterval
	}
	if strings.TrimSpace(c.NextStage.Launcher) == "" {
		c.NextStage.Launcher = defaultLauncher
	}
	return c.normalizeStages()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.Home) == "" {
		c.Paths.Home = defaultHome
	}
	if c.Paths.Home, err = expandPath(c.Paths.Home); err != nil {
		return fmt.Errorf("paths.home: %w", err)
	}
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.queue_root", &c.Paths.QueueRoot, defaultQueueRoot},
		{"paths.lock_dir", &c.Paths.LockDir, defaultLockDir},
		{"paths.assessment_dir", &c.Paths.AssessmentDir, defaultAssessmentDir},
		{"paths.halt_file", &c.Paths.HaltFile, defaultHaltFile},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		resolved, err := c.ResolvePath(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = resolved
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "text":
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	n := &c.Notifications
	n.ProjectName = strings.TrimSpace(n.ProjectName)
	if n.ProjectName == "" {
		n.ProjectName = defaultProjectName
	}
	n.NtfyTopic = strings.TrimSpace(n.NtfyTopic)
	if n.RequestTimeout <= 0 {
		n.RequestTimeout = defaultNotifyTimeout
	}
	n.MailSendCommand = strings.TrimSpace(n.MailSendCommand)
	n.MailFrom = strings.TrimSpace(n.MailFrom)
	recipients := make([]string, 0, len(n.MailTo))
	for _, entry := range n.MailTo {
		// Entries may themselves be comma separated lists.
		for _, addr := range strings.Split(entry, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				recipients = append(recipients, addr)
			}
		}
	}
	n.MailTo = recipients
}

func (c *Config) normalizeDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = defaultDatabasePath
	}
	resolved, err := c.ResolvePath(c.Database.Path)
	if err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	c.Database.Path = resolved
	return nil
}

func (c *Config) normalizeStages() error {
	for i := range c.Stages {
		stage := &c.Stages[i]
		stage.Name = strings.TrimSpace(stage.Name)
		stage.Next = strings.TrimSpace(stage.Next)
		stage.Command = strings.TrimSpace(stage.Command)
		stage.NextCommand = strings.TrimSpace(stage.NextCommand)
		stage.Behavior = strings.ToLower(strings.TrimSpace(stage.Behavior))
		if stage.Behavior == "" {
			stage.Behavior = defaultStageBehavior
		}
		if stage.MaxConcurrency == 0 {
			stage.MaxConcurrency = defaultStageMaxConcurrent
		}

		var err error
		if stage.QueueDir, err = c.resolveStagePath(stage.QueueDir, c.Paths.QueueRoot, stage.Name); err != nil {
			return fmt.Errorf("stages[%s].queue_dir: %w", stage.Name, err)
		}
		if stage.LockDir, err = c.resolveStagePath(stage.LockDir, c.Paths.LockDir, stage.Name); err != nil {
			return fmt.Errorf("stages[%s].lock_dir: %w", stage.Name, err)
		}
		if stage.SpeedFile, err = c.resolveStagePath(stage.SpeedFile, c.Paths.AssessmentDir, stage.Name+speedFileSuffix); err != nil {
			return fmt.Errorf("stages[%s].speed_file: %w", stage.Name, err)
		}
		if stage.HasNext() && stage.NextCommand == "" {
			stage.NextCommand = c.defaultNextCommand(stage.Next)
		}
	}
	return nil
}

// resolveStagePath resolves an explicit stage path against home, or derives
// base/leaf when the value is unset. Relative values without a directory
// component are placed under base.
func (c *Config) resolveStagePath(value, base, leaf string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return filepath.Join(base, leaf), nil
	}
	if !strings.HasPrefix(value, "~") && !filepath.IsAbs(value) && !strings.ContainsRune(value, filepath.Separator) {
		return filepath.Join(base, value), nil
	}
	return c.ResolvePath(value)
}

func (c *Config) defaultNextCommand(next string) string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		exe = "relay"
	}
	parts := []string{exe}
	if c.SourcePath != "" {
		parts = append(parts, "--config", c.SourcePath)
	}
	parts = append(parts, "run", next)
	return strings.Join(parts, " ")
}
