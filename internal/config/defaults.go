package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			DatabaseURL:    "file:browsedash.db",
			MaxBodyBytes:   8 << 20,
			RateLimitRPS:   2,
			RateLimitBurst: 10,
		},
		Sync: SyncConfig{
			ServerURL:           "http://localhost:8080",
			SyncKey:             "",
			WindowDays:          30,
			Schedule:            "@every 6h",
			CheckTimeoutSeconds: 2,
		},
		Collect: CollectConfig{
			BridgeURL:        "http://127.0.0.1:7775",
			HistoryFile:      "",
			ImportWindowDays: 365,
			DenylistDomains:  []string{},
			ExcludeSensitive: false,
		},
		Storage: StorageConfig{
			DataDir: "~/.config/browsedash",
		},
		Retention: RetentionConfig{
			Days:               0,
			PruneIntervalHours: 24,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
