package config

const (
	defaultStagingDir  = "~/.local/share/stemd/staging"
	defaultDownloadDir = "~/.local/share/stemd/downloads"
	defaultLogDir      = "~/.local/share/stemd/logs"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultRedisAddr      = "127.0.0.1:6379"
	defaultRedisKeyPrefix = "stemd"
	defaultRedisTimeout   = 5

	defaultSeparationBinary = "python3"
	defaultModel            = "htdemucs"
	defaultOutputFormat     = "wav"

	defaultDownloadBinary      = "yt-dlp"
	defaultDownloadFormat      = "bestaudio[ext=m4a]"
	defaultDownloadMaxDuration = 600

	defaultMaxFileSizeBytes   = 50 * 1024 * 1024
	defaultMaxDurationSeconds = 600

	defaultWorkers             = 1
	defaultQueuePollInterval   = 1
	defaultErrorRetryInterval  = 5
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultRetentionDays       = 30
	defaultCleanupSweepMinutes = 60
)

func defaultFormats() []string {
	return []string{"mp3", "wav", "m4a", "flac", "ogg"}
}

// KnownModels returns the demucs model names the engine accepts.
func KnownModels() []string {
	return []string{"htdemucs", "htdemucs_ft", "mdx_extra", "mdx_extra_q"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
		Paths: Paths{
			StagingDir:  defaultStagingDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
		},
		Redis: Redis{
			Addr:         defaultRedisAddr,
			KeyPrefix:    defaultRedisKeyPrefix,
			DialTimeout:  defaultRedisTimeout,
			ReadTimeout:  defaultRedisTimeout,
			WriteTimeout: defaultRedisTimeout,
		},
		Separation: Separation{
			Binary:       defaultSeparationBinary,
			DefaultModel: defaultModel,
			OutputFormat: defaultOutputFormat,
			Normalize:    true,
			GPUEnabled:   false,
		},
		Download: Download{
			Binary:             defaultDownloadBinary,
			Format:             defaultDownloadFormat,
			MaxDurationSeconds: defaultDownloadMaxDuration,
		},
		Limits: Limits{
			MaxFileSizeBytes:   defaultMaxFileSizeBytes,
			MaxDurationSeconds: defaultMaxDurationSeconds,
			Formats:            defaultFormats(),
		},
		Workflow: Workflow{
			Workers:                  defaultWorkers,
			QueuePollInterval:        defaultQueuePollInterval,
			ErrorRetryInterval:       defaultErrorRetryInterval,
			HeartbeatInterval:        defaultHeartbeatInterval,
			HeartbeatTimeout:         defaultHeartbeatTimeout,
			RetentionDays:            defaultRetentionDays,
			CleanupSweepIntervalMins: defaultCleanupSweepMinutes,
		},
	}
}
