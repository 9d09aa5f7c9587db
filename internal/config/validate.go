package config

import (
	"errors"
	"fmt"
	"strings"
)

// Behaviors lists the stage behaviours relay knows how to build.
var Behaviors = []string{"passthrough", "exec", "ledger"}

// Launchers lists the supported next-stage launcher implementations.
var Launchers = []string{"exec", "log"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if !contains(Launchers, c.LauncherKind()) {
		return fmt.Errorf("next_stage.launcher: unsupported value %q (expected one of %s)", c.NextStage.Launcher, strings.Join(Launchers, ", "))
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	n := c.Notifications
	if !n.SystemError {
		return nil
	}
	if n.NtfyTopic == "" && n.MailSendCommand == "" {
		return errors.New("notifications.system_error requires ntfy_topic or mail_send_command")
	}
	if n.MailSendCommand != "" {
		if n.MailFrom == "" {
			return errors.New("notifications.mail_from must be set when mail_send_command is configured")
		}
		if len(n.MailTo) == 0 {
			return errors.New("notifications.mail_to must list at least one address when mail_send_command is configured")
		}
	}
	return nil
}

func (c *Config) validateStages() error {
	seen := make(map[string]struct{}, len(c.Stages))
	for _, stage := range c.Stages {
		if stage.Name == "" {
			return errors.New("stages: every stage needs a name")
		}
		if strings.ContainsAny(stage.Name, " /\\") {
			return fmt.Errorf("stages[%s]: name must not contain spaces or path separators", stage.Name)
		}
		if _, dup := seen[stage.Name]; dup {
			return fmt.Errorf("stages[%s]: duplicate stage name", stage.Name)
		}
		seen[stage.Name] = struct{}{}

		if stage.MaxConcurrency < 1 {
			return fmt.Errorf("stages[%s].max_concurrency must be at least 1", stage.Name)
		}
		if !contains(Behaviors, stage.Behavior) {
			return fmt.Errorf("stages[%s].behavior: unsupported value %q (expected one of %s)", stage.Name, stage.Behavior, strings.Join(Behaviors, ", "))
		}
		if stage.Behavior == "exec" && stage.Command == "" {
			return fmt.Errorf("stages[%s].command must be set for exec behavior", stage.Name)
		}
		if stage.Behavior == "ledger" && !stage.UsesDatabase {
			return fmt.Errorf("stages[%s]: ledger behavior requires uses_database = true", stage.Name)
		}
		if stage.QueueDir == stage.LockDir {
			return fmt.Errorf("stages[%s]: queue_dir and lock_dir must differ", stage.Name)
		}
	}
	for _, stage := range c.Stages {
		if !stage.HasNext() {
			continue
		}
		if stage.Next == stage.Name {
			return fmt.Errorf("stages[%s].next must not point at itself", stage.Name)
		}
		if _, ok := seen[stage.Next]; !ok {
			return fmt.Errorf("stages[%s].next: unknown stage %q", stage.Name, stage.Next)
		}
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
