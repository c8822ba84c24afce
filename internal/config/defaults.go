package config

const (
	defaultDataDir             = "~/.local/share/yatrisync"
	defaultLogDir              = "~/.local/share/yatrisync/logs"
	defaultAPIBaseURL          = "http://10.0.2.2:3001/api"
	defaultAPITimeoutSeconds   = 30
	defaultAPIUserAgent        = "yatrisync/dev"
	defaultKeyringService      = "yatrisync"
	defaultMaxRetries          = 3
	defaultProbeTimeoutSeconds = 5
	defaultPollIntervalSeconds = 15
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"

	configDirName   = "~/.config/yatrisync"
	configFileName  = "config.toml"
	projectFileName = "yatrisync.toml"

	envAPIToken = "YATRISYNC_API_TOKEN"
	envAPIURL   = "YATRISYNC_API_URL"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			TimeoutSeconds: defaultAPITimeoutSeconds,
			UserAgent:      defaultAPIUserAgent,
		},
		Auth: Auth{
			KeyringService: defaultKeyringService,
			UseKeyring:     true,
		},
		Sync: Sync{
			MaxRetries:  defaultMaxRetries,
			DeadLetter:  true,
			SyncOnStart: true,
		},
		Network: Network{
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			IgnoreInterfaces:    []string{"lo"},
			Netlink:             true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			DroppedActions: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
