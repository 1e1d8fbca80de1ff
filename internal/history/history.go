// Package history persists cookie refresh attempts in a local sqlite file.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/session"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

const memoryPath = ":memory:"

// Store is a session.Recorder backed by sqlite.
type Store struct {
	db  *sql.DB
	log *logger.ComponentLogger
}

var _ session.Recorder = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = logger.For(l, logger.ComponentHistory) }
}

// Open opens or creates the database at path. ":memory:" keeps it in memory.
func Open(path string, opts ...Option) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("%w: missing history path", errs.ErrConfiguration)
	}
	if p != memoryPath {
		p = filepath.Clean(p)
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
		}
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single connection; an in-memory database is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, log: logger.For(nil, logger.ComponentHistory)}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Debug("History store opened", map[string]any{"path": p})
	return s, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS refresh_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  at_unix_ms INTEGER NOT NULL,
  ok INTEGER NOT NULL,
  cookies INTEGER NOT NULL,
  state TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_refresh_attempts_at ON refresh_attempts(at_unix_ms DESC);
`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one attempt.
func (s *Store) Record(ctx context.Context, a session.Attempt) error {
	if s == nil || s.db == nil {
		return errors.New("history store not initialized")
	}
	ok := 0
	if a.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO refresh_attempts (at_unix_ms, ok, cookies, state, error)
VALUES (?, ?, ?, ?, ?)
`, a.At.UnixMilli(), ok, a.Cookies, a.State.String(), a.Error)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	s.log.Trace("Attempt recorded", map[string]any{"ok": a.OK, "state": a.State.String()})
	return nil
}

// Recent returns at most limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]session.Attempt, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store not initialized")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT at_unix_ms, ok, cookies, state, error
FROM refresh_attempts
ORDER BY at_unix_ms DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]session.Attempt, 0, limit)
	for rows.Next() {
		var (
			a     session.Attempt
			atMs  int64
			ok    int
			state string
		)
		if err := rows.Scan(&atMs, &ok, &a.Cookies, &state, &a.Error); err != nil {
			return nil, err
		}
		a.At = time.UnixMilli(atMs).UTC()
		a.OK = ok != 0
		a.State = session.ParseState(state)
		out = append(out, a)
	}
	return out, rows.Err()
}
