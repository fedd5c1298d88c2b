package config

const (
	defaultConfigPath             = "~/.config/semefo/config.toml"
	defaultStorageRoot            = "~/semefo/storage"
	defaultDockerStorageRoot      = "/storage"
	defaultStateDir               = "~/.local/share/semefo"
	defaultLogDir                 = "~/.local/share/semefo/logs"
	defaultAPIBind                = "127.0.0.1:7490"
	defaultMinFreeGB              = 5
	defaultMinStableBytes         = 100 * 1024
	defaultScannerMaxAttempts     = 5
	defaultScannerPollInterval    = 2
	defaultScannerMaxPollInterval = 16
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultAudioTimeout           = 300
	defaultVideoTimeout           = 600
	defaultExtractTimeout         = 300
	defaultAudioMinBytes          = 1024 * 1024
	defaultVideoMinBytes          = 500 * 1024
	defaultVideo2MinBytes         = 1024 * 1024
	defaultAudio2MinBytes         = 1024
	defaultLedgerBaseURL          = "http://127.0.0.1:8000"
	defaultLedgerTimeout          = 10
	defaultLedgerRPS              = 5
	defaultLedgerHeartbeat        = 30
	defaultWorkerName             = "semefo-worker"
	defaultDispatchStream         = "TRANSCRIPCIONES"
	defaultDispatchSubject        = "transcripciones"
	defaultDispatchFilename       = "audio.mp4"
	defaultDispatchTimeout        = 10
	defaultQueueMaxAttempts       = 3
	defaultQueueRetryBase         = 60
	defaultQueueRetryMax          = 1800
	defaultWorkflowWorkers        = 2
	defaultWorkflowPollInterval   = 5
	defaultWorkflowHeartbeat      = 15
	defaultWorkflowHeartbeatLimit = 120
	defaultStaleTempHours         = 24
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"

	// ProfileProduction selects full resolution VP8 encoding.
	ProfileProduction = "production"
	// ProfileTest selects the fast low-bitrate encoding used on test benches.
	ProfileTest = "test"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageRoot: defaultStorageRoot,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Disk: Disk{
			MinFreeGB: defaultMinFreeGB,
		},
		Scanner: Scanner{
			MinStableBytes:         defaultMinStableBytes,
			MaxAttempts:            defaultScannerMaxAttempts,
			PollIntervalSeconds:    defaultScannerPollInterval,
			MaxPollIntervalSeconds: defaultScannerMaxPollInterval,
		},
		Assembly: Assembly{
			Profile:               ProfileProduction,
			FFmpegBinary:          defaultFFmpegBinary,
			FFprobeBinary:         defaultFFprobeBinary,
			AudioTimeoutSeconds:   defaultAudioTimeout,
			VideoTimeoutSeconds:   defaultVideoTimeout,
			ExtractTimeoutSeconds: defaultExtractTimeout,
			AudioMinBytes:         defaultAudioMinBytes,
			VideoMinBytes:         defaultVideoMinBytes,
			Video2MinBytes:        defaultVideo2MinBytes,
			Audio2MinBytes:        defaultAudio2MinBytes,
		},
		Ledger: Ledger{
			BaseURL:                  defaultLedgerBaseURL,
			RequestTimeoutSeconds:    defaultLedgerTimeout,
			RequestsPerSecond:        defaultLedgerRPS,
			HeartbeatIntervalSeconds: defaultLedgerHeartbeat,
			WorkerName:               defaultWorkerName,
		},
		Dispatch: Dispatch{
			Stream:         defaultDispatchStream,
			Subject:        defaultDispatchSubject,
			Filename:       defaultDispatchFilename,
			TimeoutSeconds: defaultDispatchTimeout,
		},
		Queue: Queue{
			MaxAttempts:      defaultQueueMaxAttempts,
			RetryBaseSeconds: defaultQueueRetryBase,
			RetryMaxSeconds:  defaultQueueRetryMax,
		},
		Workflow: Workflow{
			Workers:           defaultWorkflowWorkers,
			QueuePollInterval: defaultWorkflowPollInterval,
			HeartbeatInterval: defaultWorkflowHeartbeat,
			HeartbeatTimeout:  defaultWorkflowHeartbeatLimit,
			StaleTempHours:    defaultStaleTempHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
