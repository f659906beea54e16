package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AmmannChristian/go-sierra/oauth2client"
)

var _ oauth2client.Cache = (*SQLite)(nil)

// SQLite is a file-backed cache shared by every process that opens the same
// database, e.g. successive CLI invocations.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (and creates if needed) the cache database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_cache (
			key         TEXT PRIMARY KEY,
			value       BLOB NOT NULL,
			updated_at  INTEGER NOT NULL
		);`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sessionstore: init session_cache table: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session_cache WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("sessionstore: read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

// Set stores value under key, replacing any previous value.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sessionstore: write %s: %w", key, err)
	}
	return nil
}
