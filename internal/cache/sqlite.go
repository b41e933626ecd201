package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLite keeps cached payloads on disk so repeated CLI runs reuse them.
type SQLite struct {
	db         *sql.DB
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// OpenSQLite opens or creates the cache database and applies migrations.
func OpenSQLite(path string, maxEntries int, ttl time.Duration) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	c := &SQLite{db: db, maxEntries: maxEntries, ttl: ttl, now: time.Now}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate cache: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLite) Close() error {
	return c.db.Close()
}

func (c *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value and evicts expired entries, then the oldest entries
// beyond the size bound.
func (c *SQLite) Set(ctx context.Context, key string, value []byte) (err error) {
	now := c.now()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, stored_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at, expires_at = excluded.expires_at`,
		key, value, now.UnixNano(), now.Add(c.ttl).UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	if c.maxEntries > 0 {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key IN (
				SELECT key FROM cache_entries ORDER BY stored_at DESC, key LIMIT -1 OFFSET ?
			)`, c.maxEntries,
		); err != nil {
			return fmt.Errorf("failed to evict cache entries: %w", err)
		}
	}
	return tx.Commit()
}

func (c *SQLite) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Len reports the number of stored rows, expired ones included until the next Set.
func (c *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}
