package config

const (
	defaultHome               = "~/.local/share/relay"
	defaultQueueRoot          = "queue"
	defaultLockDir            = "lock"
	defaultAssessmentDir      = "assessment"
	defaultHaltFile           = "halt"
	defaultLogDir             = "logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultProjectName        = "relay"
	defaultNotifyTimeout      = 10
	defaultLauncher           = "exec"
	defaultDatabasePath       = "relay.db"
	defaultWatchPollInterval  = 30
	defaultStageBehavior      = "passthrough"
	defaultStageMaxConcurrent = 4
	speedFileSuffix           = ".speed"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Home:          defaultHome,
			QueueRoot:     defaultQueueRoot,
			LockDir:       defaultLockDir,
			AssessmentDir: defaultAssessmentDir,
			HaltFile:      defaultHaltFile,
			LogDir:        defaultLogDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			ProjectName:    defaultProjectName,
			RequestTimeout: defaultNotifyTimeout,
		},
		NextStage: NextStage{
			Launcher: defaultLauncher,
		},
		Database: Database{
			Path: defaultDatabasePath,
		},
		Watch: Watch{
			PollInterval: defaultWatchPollInterval,
		},
	}
}
