// Package session owns per-user conversational state: two SessionStore
// implementations (in-memory with idle TTL, SQLite-backed) and the per-user
// lock that serializes concurrent webhook deliveries.
package session

import (
	"fmt"
	"log/slog"
	"time"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

// NewStore builds the SessionStore selected by config.
func NewStore(cfg config.SessionConfig, logger *slog.Logger) (domain.SessionStore, error) {
	ttl := time.Duration(cfg.IdleTimeoutMinutes) * time.Minute

	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(ttl, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg.DBPath, ttl, logger)
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
}
