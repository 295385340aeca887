package domain

import (
	"context"
	"time"
)

// Session is the per-user conversational state. Language is empty until the
// user picks one; Bot is only ever set after Language. The orchestrator holds
// a reference for the duration of one turn and persists changes via the store.
type Session struct {
	UserID         string
	Language       string
	Bot            string
	Pending        string // non-empty while a sent prompt awaits the user's answer
	LastActivityAt time.Time
}

// SessionStore owns session lifecycle. Implementations perform no per-key
// locking; the orchestrator serializes all operations for a given user.
// Get returns (nil, nil) for an unknown user: callers treat that as a new
// conversation. Idle-timeout eviction is the store's business.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Create(ctx context.Context, userID string) (*Session, error)
	Update(ctx context.Context, sess *Session) error
	Destroy(ctx context.Context, userID string) error
	Close() error
}
