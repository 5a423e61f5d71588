// Package sqlite persists forecast response bodies in a SQLite file so the
// cache survives restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS responses (
  key        TEXT    PRIMARY KEY,
  body       BLOB    NOT NULL,
  expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_responses_expires_at ON responses(expires_at);
`

// Store is a response cache backed by a SQLite database.
type Store struct {
	db    *sql.DB
	ttl   time.Duration
	clock clockwork.Clock
}

// Open creates (or reuses) the database at path. Parent directories are
// created as needed.
func Open(path string, ttl time.Duration, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db schema: %w", err)
	}

	return &Store{db: db, ttl: ttl, clock: clock}, nil
}

// Get returns the body stored under key when it has not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM responses WHERE key = ? AND expires_at > ?`,
		key, s.clock.Now().UnixNano(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select response: %w", err)
	}
	return body, true, nil
}

// Put stores body under key for the configured TTL and drops expired rows.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	now := s.clock.Now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (key, body, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, expires_at = excluded.expires_at`,
		key, body, now.Add(s.ttl).UnixNano(),
	); err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE expires_at <= ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("purge expired responses: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
