package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:             "info",
			QuietIntervalSeconds: 3,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Providers: ProvidersConfig{
			Gupshup: GupshupConfig{
				Enabled:     true,
				URL:         "https://api.gupshup.io/wa/api/v1/msg",
				WebhookPath: "/webhook/gupshup",
			},
			Netcore: NetcoreConfig{
				Enabled:     false,
				URL:         "https://waapi.pepipost.com/api/v2/message/",
				CharLimit:   1024,
				MaxButtons:  3,
				WebhookPath: "/webhook/netcore",
			},
		},
		Bots: BotsFileConfig{
			Path: "~/.sakhibot/bots.yaml",
		},
		Templates: TemplatesConfig{
			Dir:             "~/.sakhibot/language",
			DefaultLanguage: "en",
		},
		Session: SessionConfig{
			Backend:            "memory",
			DBPath:             "~/.sakhibot/sessions.db",
			IdleTimeoutMinutes: 30,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Env:     "dev",
			AppName: "sakhibot",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
