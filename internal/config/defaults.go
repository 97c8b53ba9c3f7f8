package config

const (
	defaultDataDir            = "~/.local/share/libretto/data"
	defaultLogDir             = "~/.local/share/libretto/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultWorkers            = 4
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultClaimBatchSize     = 10
	defaultLinkRetryAttempts  = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Pipeline: Pipeline{
			Workers:            defaultWorkers,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ClaimBatchSize:     defaultClaimBatchSize,
			LinkRetryAttempts:  defaultLinkRetryAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
