// Package gateway runs the HTTP surface: one webhook route per enabled
// provider, a health endpoint, and the metrics endpoint. Webhook deliveries
// are always acknowledged with 200 — anything else makes the provider retry
// the same payload — and the turn itself runs after the acknowledgment.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sakhibot/internal/config"
	"sakhibot/internal/dialog"
	"sakhibot/internal/domain"
	"sakhibot/internal/metrics"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// Server mounts the webhook routes and owns the HTTP listener.
type Server struct {
	cfg       config.ServerConfig
	providers []domain.Provider
	orch      *dialog.Orchestrator
	logger    *slog.Logger
	server    *http.Server
}

type ServerConfig struct {
	Config config.ServerConfig

	// Providers are the enabled adapters; each gets its own webhook route.
	Providers map[string]domain.Provider // route path -> provider

	Orchestrator *dialog.Orchestrator
	Metrics      bool
	Logger       *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg.Config,
		orch:   cfg.Orchestrator,
		logger: cfg.Logger,
	}

	mux := http.NewServeMux()
	for path, p := range cfg.Providers {
		mux.HandleFunc("POST "+path, s.webhookHandler(p))
		s.providers = append(s.providers, p)
		cfg.Logger.Info("webhook route mounted", "provider", p.Name(), "path", path)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	if cfg.Metrics {
		mux.HandleFunc("GET /metrics", metrics.Collector.Handler())
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s
}

// Handler exposes the mounted routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("gateway listening", "addr", s.server.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// webhookHandler acknowledges the delivery, then hands the parsed message to
// the orchestrator on its own goroutine. Parse failures and unrecognized
// payload shapes are logged and dropped, never surfaced to the caller.
func (s *Server) webhookHandler(p domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
		if err != nil {
			s.logger.Warn("webhook body read failed", "provider", p.Name(), "err", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		msg, err := p.ParseIncoming(body)
		if err != nil {
			metrics.MessagesDropped.Inc()
			s.logger.Warn("webhook payload rejected", "provider", p.Name(), "err", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		if msg == nil {
			// Status callbacks, empty batches and other non-message events.
			metrics.MessagesDropped.Inc()
			w.WriteHeader(http.StatusOK)
			return
		}

		s.logger.Info("message received",
			"provider", p.Name(), "from", msg.From, "type", msg.Type)

		go s.orch.HandleMessage(context.Background(), p, msg)

		w.WriteHeader(http.StatusOK)
	}
}
