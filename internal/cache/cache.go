// Package cache stores narrated instructions in SQLite so that generating a
// guide again from the same recording does not call the backend twice.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS narrations (
	key         TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	instruction TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS narrations_scope ON narrations(scope);
`

// Cache is a SQLite-backed store of narrations keyed by request fingerprint.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns the cache database location under $XDG_CACHE_HOME
// (or ~/.cache).
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "howl", "narrations.db"), nil
}

// Open opens (creating if needed) the cache database at path. Use ":memory:"
// for a throwaway cache.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// One writer at a time; also keeps a :memory: database shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached instruction for key.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx, `SELECT instruction FROM narrations WHERE key = ?`, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cache: %w", err)
	}
	return text, true, nil
}

// Put stores instruction under key, replacing any earlier entry.
func (c *Cache) Put(ctx context.Context, key, scope, instruction string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO narrations (key, scope, instruction, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET instruction = excluded.instruction, created_at = excluded.created_at`,
		key, scope, instruction, c.now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Len returns the number of cached narrations.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM narrations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache: %w", err)
	}
	return n, nil
}

// Clear removes every entry, or only those for scope when it is non-empty.
// It returns the number of rows removed.
func (c *Cache) Clear(ctx context.Context, scope string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if scope == "" {
		res, err = c.db.ExecContext(ctx, `DELETE FROM narrations`)
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM narrations WHERE scope = ?`, scope)
	}
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	return res.RowsAffected()
}
