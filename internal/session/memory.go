package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"sakhibot/internal/domain"
)

// MemoryStore keeps sessions in process memory with an idle TTL. The TTL
// slides on every Update, so an active conversation never expires mid-turn.
type MemoryStore struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewMemoryStore(idleTimeout time.Duration, logger *slog.Logger) *MemoryStore {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &MemoryStore{
		cache:  cache.New(idleTimeout, idleTimeout),
		ttl:    idleTimeout,
		logger: logger,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*domain.Session, error) {
	v, ok := s.cache.Get(userID)
	if !ok {
		return nil, nil
	}
	return v.(*domain.Session), nil
}

func (s *MemoryStore) Create(_ context.Context, userID string) (*domain.Session, error) {
	sess := &domain.Session{
		UserID:         userID,
		LastActivityAt: time.Now(),
	}
	s.cache.Set(userID, sess, cache.DefaultExpiration)
	s.logger.Info("session created", "user", userID)
	return sess, nil
}

func (s *MemoryStore) Update(_ context.Context, sess *domain.Session) error {
	sess.LastActivityAt = time.Now()
	s.cache.Set(sess.UserID, sess, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, userID string) error {
	s.cache.Delete(userID)
	s.logger.Info("session destroyed", "user", userID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
