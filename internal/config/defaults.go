package config

const (
	defaultDataDir             = "~/.local/share/lectern"
	defaultLogDir              = "~/.local/share/lectern/logs"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultPollInterval        = 5
	defaultMaxPollInterval     = 30
	defaultIdleBackoffFactor   = 1.5
	defaultPipelineBatch       = 10
	defaultRescanBatch         = 10
	defaultStartBatch          = 5
	defaultPromotionBatch      = 10
	defaultDocumentBatch       = 5
	defaultCheckpointHeartbeat = 120
	defaultShutdownDrain       = 2
	defaultShutdownTimeout     = 60
	defaultLLMBaseURL          = "https://api.openai.com/v1"
	defaultLLMModel            = "gpt-4o-mini"
	defaultLLMTimeoutSeconds   = 120
	defaultMinConfidence       = 0.5
	defaultMaxItemsPerMapping  = 12
	defaultTransformRetries    = 3
	defaultTransformTemp       = 0.2
	defaultDuplicateThreshold  = 0.9
	defaultLanguage            = "es"
	defaultLevel               = "A1"
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Workflow: Workflow{
			PollInterval:        defaultPollInterval,
			MaxPollInterval:     defaultMaxPollInterval,
			IdleBackoffFactor:   defaultIdleBackoffFactor,
			PipelineBatch:       defaultPipelineBatch,
			RescanBatch:         defaultRescanBatch,
			StartBatch:          defaultStartBatch,
			PromotionBatch:      defaultPromotionBatch,
			DocumentBatch:       defaultDocumentBatch,
			CheckpointHeartbeat: defaultCheckpointHeartbeat,
			ShutdownDrain:       defaultShutdownDrain,
			ShutdownTimeout:     defaultShutdownTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Mapping: Mapping{
			Enabled:       true,
			MinConfidence: defaultMinConfidence,
		},
		Transform: Transform{
			MaxItemsPerMapping: defaultMaxItemsPerMapping,
			RetryAttempts:      defaultTransformRetries,
			Temperature:        defaultTransformTemp,
		},
		Gates: Gates{
			LevelCheck:         true,
			Orthography:        true,
			Safety:             true,
			Duplicate:          true,
			DuplicateThreshold: defaultDuplicateThreshold,
		},
		Ingest: Ingest{
			AllowedExtensions: []string{".pdf", ".txt", ".md"},
			DefaultLanguage:   defaultLanguage,
			DefaultLevel:      defaultLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Review:         true,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
