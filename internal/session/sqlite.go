package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sakhibot/internal/domain"
)

// SQLiteStore persists sessions across restarts. Idle sessions are expired
// lazily on Get: a stale row reads as "no session", which re-enters the
// conversation at language selection.
type SQLiteStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, idleTimeout time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	store := &SQLiteStore{db: db, ttl: idleTimeout, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id       TEXT PRIMARY KEY,
		language      TEXT NOT NULL DEFAULT '',
		bot           TEXT NOT NULL DEFAULT '',
		pending       TEXT NOT NULL DEFAULT '',
		last_activity DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, language, bot, pending, last_activity FROM sessions WHERE user_id = ?`, userID,
	).Scan(&sess.UserID, &sess.Language, &sess.Bot, &sess.Pending, &sess.LastActivityAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Since(sess.LastActivityAt) > s.ttl {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return nil, err
		}
		s.logger.Info("idle session expired", "user", userID)
		return nil, nil
	}

	return &sess, nil
}

func (s *SQLiteStore) Create(ctx context.Context, userID string) (*domain.Session, error) {
	sess := &domain.Session{
		UserID:         userID,
		LastActivityAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (user_id, language, bot, pending, last_activity)
		 VALUES (?, '', '', '', ?)`,
		userID, sess.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created", "user", userID)
	return sess, nil
}

func (s *SQLiteStore) Update(ctx context.Context, sess *domain.Session) error {
	sess.LastActivityAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (user_id, language, bot, pending, last_activity)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.UserID, sess.Language, sess.Bot, sess.Pending, sess.LastActivityAt,
	)
	return err
}

func (s *SQLiteStore) Destroy(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err == nil {
		s.logger.Info("session destroyed", "user", userID)
	}
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
