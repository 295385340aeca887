package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the gateway.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Server    ServerConfig    `json:"server"`
	Providers ProvidersConfig `json:"providers"`
	Bots      BotsFileConfig  `json:"bots"`
	Templates TemplatesConfig `json:"templates"`
	Session   SessionConfig   `json:"session"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	// QuietIntervalSeconds is the pacing delay between the bot answer and the
	// feedback prompt. It is not a timeout.
	QuietIntervalSeconds int `json:"quietIntervalSeconds"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ProvidersConfig struct {
	Gupshup GupshupConfig `json:"gupshup"`
	Netcore NetcoreConfig `json:"netcore"`
}

// GupshupConfig configures the generic-send WhatsApp provider.
type GupshupConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	APIKey      string `json:"apiKey,omitempty"`
	Source      string `json:"source,omitempty"`  // business WhatsApp number
	AppName     string `json:"appName,omitempty"` // src.name envelope field
	WebhookPath string `json:"webhookPath,omitempty"`
}

// NetcoreConfig configures the interactive-button WhatsApp provider.
type NetcoreConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	Token       string `json:"token,omitempty"`
	Source      string `json:"source,omitempty"` // integration source id
	CharLimit   int    `json:"charLimit"`        // max body length before truncation
	MaxButtons  int    `json:"maxButtons"`
	WebhookPath string `json:"webhookPath,omitempty"`
}

// BotsFileConfig points at the YAML persona map (see bots.go).
type BotsFileConfig struct {
	Path  string `json:"path"`
	Token string `json:"token,omitempty"` // optional bearer token for bot endpoints
}

type TemplatesConfig struct {
	Dir             string `json:"dir"` // one <lang>.json per supported language
	DefaultLanguage string `json:"defaultLanguage"`
}

type SessionConfig struct {
	Backend            string `json:"backend"` // "memory" | "sqlite"
	DBPath             string `json:"dbPath,omitempty"`
	IdleTimeoutMinutes int    `json:"idleTimeoutMinutes"`
}

type TelemetryConfig struct {
	Enabled   bool   `json:"enabled"`
	URL       string `json:"url,omitempty"`
	AuthToken string `json:"authToken,omitempty"`
	Env       string `json:"env,omitempty"`
	AppName   string `json:"appName,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.sakhibot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sakhibot"
	}
	return filepath.Join(home, ".sakhibot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Templates.Dir = ExpandPath(cfg.Templates.Dir)
	cfg.Session.DBPath = ExpandPath(cfg.Session.DBPath)
	cfg.Bots.Path = ExpandPath(cfg.Bots.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.General.QuietIntervalSeconds < 0 {
		errs = append(errs, "general.quietIntervalSeconds must be >= 0")
	}
	if cfg.Templates.DefaultLanguage == "" {
		errs = append(errs, "templates.defaultLanguage is required")
	}
	if cfg.Templates.Dir == "" {
		errs = append(errs, "templates.dir is required")
	}

	switch cfg.Session.Backend {
	case "memory", "sqlite":
		// valid
	default:
		errs = append(errs, "session.backend must be one of: memory, sqlite")
	}
	if cfg.Session.Backend == "sqlite" && cfg.Session.DBPath == "" {
		errs = append(errs, "session.dbPath is required for the sqlite backend")
	}
	if cfg.Session.IdleTimeoutMinutes < 1 {
		errs = append(errs, "session.idleTimeoutMinutes must be >= 1")
	}

	if !cfg.Providers.Gupshup.Enabled && !cfg.Providers.Netcore.Enabled {
		errs = append(errs, "at least one provider must be enabled")
	}
	if cfg.Providers.Gupshup.Enabled && cfg.Providers.Gupshup.URL == "" {
		errs = append(errs, "providers.gupshup.url is required when enabled")
	}
	if cfg.Providers.Netcore.Enabled {
		if cfg.Providers.Netcore.URL == "" {
			errs = append(errs, "providers.netcore.url is required when enabled")
		}
		if cfg.Providers.Netcore.CharLimit < 1 {
			errs = append(errs, "providers.netcore.charLimit must be >= 1")
		}
		if cfg.Providers.Netcore.MaxButtons < 1 {
			errs = append(errs, "providers.netcore.maxButtons must be >= 1")
		}
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.URL == "" {
		errs = append(errs, "telemetry.url is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
