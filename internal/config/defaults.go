package config

const (
	defaultDataDir = "~/.local/share/picdrop"
	defaultTempDir = "~/.cache/picdrop/tmp"
	defaultLogDir  = "~/.local/share/picdrop/logs"

	defaultHost              = "imx"
	defaultThumbnailSize     = 350
	defaultThumbnailFormat   = 2
	defaultMaxRetries        = 3
	defaultParallelBatchSize = 4
	defaultTemplateName      = "default"

	defaultGlobalLimit        = 3
	defaultPerHostLimit       = 2
	defaultSlotAcquireTimeout = 30
	defaultWorkers            = 2

	defaultDiskWarningMB   = 2048
	defaultDiskCriticalMB  = 512
	defaultDiskEmergencyMB = 100

	defaultQueuePollInterval   = 2
	defaultErrorRetryInterval  = 5
	defaultRenameSweepInterval = 300

	defaultNotifyRequestTimeout = 10
	defaultHookTimeoutSeconds   = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			TempDir: defaultTempDir,
			LogDir:  defaultLogDir,
		},
		Upload: Upload{
			Host:              defaultHost,
			ThumbnailSize:     defaultThumbnailSize,
			ThumbnailFormat:   defaultThumbnailFormat,
			MaxRetries:        defaultMaxRetries,
			ParallelBatchSize: defaultParallelBatchSize,
			TemplateName:      defaultTemplateName,
			AutoQueue:         true,
		},
		Concurrency: Concurrency{
			GlobalLimit:        defaultGlobalLimit,
			PerHostLimit:       defaultPerHostLimit,
			SlotAcquireTimeout: defaultSlotAcquireTimeout,
			Workers:            defaultWorkers,
		},
		Disk: Disk{
			WarningMB:   defaultDiskWarningMB,
			CriticalMB:  defaultDiskCriticalMB,
			EmergencyMB: defaultDiskEmergencyMB,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			RenameSweepInterval: defaultRenameSweepInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			UploadStarted:  true,
			Gallery:        true,
			Queue:          true,
			Disk:           true,
			Errors:         true,
		},
		Hooks: Hooks{
			TimeoutSeconds: defaultHookTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
