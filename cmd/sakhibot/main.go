package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sakhibot/internal/bot"
	"sakhibot/internal/config"
	"sakhibot/internal/dialog"
	"sakhibot/internal/domain"
	"sakhibot/internal/gateway"
	"sakhibot/internal/provider"
	"sakhibot/internal/session"
	"sakhibot/internal/telemetry"
	"sakhibot/internal/template"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is optional; config values reference its variables via ${VAR}.
	godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "sakhibot",
		Short:   "Sakhibot: multi-provider WhatsApp chatbot gateway",
		Long:    "Sakhibot receives WhatsApp webhook messages, runs the language/persona dialogue, relays queries to downstream bot services, and replies through the originating provider.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.sakhibot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(sendTestCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(config.ExpandPath(cfg.Templates.Dir), 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "templates", cfg.Templates.Dir)
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the webhook gateway",
		Long:  "Starts the webhook routes for every enabled provider plus health and metrics endpoints. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botMap, err := config.LoadBots(cfg.Bots.Path)
	if err != nil {
		return fmt.Errorf("bot map: %w", err)
	}

	resolver, err := template.NewResolver(template.ResolverConfig{
		Dir:             cfg.Templates.Dir,
		DefaultLanguage: cfg.Templates.DefaultLanguage,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	store, err := session.NewStore(cfg.Session, logger)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer store.Close()

	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		Bots:   botMap,
		Token:  cfg.Bots.Token,
		Logger: logger,
	})

	correlator := telemetry.NewCorrelator(telemetry.CorrelatorConfig{
		Config:          cfg.Telemetry,
		Bots:            botMap,
		DefaultLanguage: cfg.Templates.DefaultLanguage,
		Logger:          logger,
	})

	orch := dialog.NewOrchestrator(dialog.OrchestratorConfig{
		Sessions:      store,
		Templates:     resolver,
		Bots:          dispatcher,
		BotMap:        botMap,
		Telemetry:     correlator,
		QuietInterval: time.Duration(cfg.General.QuietIntervalSeconds) * time.Second,
		Logger:        logger,
	})

	srv := gateway.NewServer(gateway.ServerConfig{
		Config:       cfg.Server,
		Providers:    buildProviders(cfg),
		Orchestrator: orch,
		Metrics:      cfg.Metrics.Enabled,
		Logger:       logger,
	})

	logger.Info("gateway starting", "version", version)
	return srv.Start(ctx)
}

// buildProviders constructs every enabled provider, keyed by webhook path.
func buildProviders(cfg *config.Config) map[string]domain.Provider {
	providers := make(map[string]domain.Provider)

	if cfg.Providers.Gupshup.Enabled {
		path := cfg.Providers.Gupshup.WebhookPath
		if path == "" {
			path = "/webhook/gupshup"
		}
		providers[path] = provider.NewGupshup(provider.GupshupProviderConfig{
			Config: cfg.Providers.Gupshup,
			Logger: logger,
		})
	}
	if cfg.Providers.Netcore.Enabled {
		path := cfg.Providers.Netcore.WebhookPath
		if path == "" {
			path = "/webhook/netcore"
		}
		providers[path] = provider.NewNetcore(provider.NetcoreProviderConfig{
			Config: cfg.Providers.Netcore,
			Logger: logger,
		})
	}

	return providers
}

func sendTestCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "send-test [destination] [text]",
		Short: "Send a test message through a configured provider",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			text := "Hello from sakhibot"
			if len(args) > 1 {
				text = args[1]
			}

			p, err := pickProvider(cfg, providerName)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			err = p.Send(ctx, &domain.OutgoingMessage{
				TemplateKey: "send_test",
				Body:        &domain.RenderedMessage{Type: domain.TypeText, Text: text},
				To:          args[0],
			})
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logger.Info("test message sent", "provider", p.Name(), "to", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "provider to send through (gupshup or netcore; default: first enabled)")
	return cmd
}

// pickProvider returns the named provider, or the first enabled one.
func pickProvider(cfg *config.Config, name string) (domain.Provider, error) {
	providers := buildProviders(cfg)
	if len(providers) == 0 {
		return nil, fmt.Errorf("no provider enabled in config")
	}
	for _, p := range providers {
		if name == "" || p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("provider %q is not enabled", name)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and the persona map",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if _, err := config.LoadBots(cfg.Bots.Path); err != nil {
				return err
			}
			logger.Info("config valid", "path", cfgPath, "bots", cfg.Bots.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
