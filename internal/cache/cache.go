// Package cache stores fetched statement payloads keyed by query, bounded in
// size and time.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/verte-zerg/lrsdash/internal/model"
)

// Defaults used when the configuration leaves them unset.
const (
	DefaultSize = 64
	DefaultTTL  = 15 * time.Minute
)

// Cache is a bounded, expiring byte store. Get reports false on a miss or an
// expired entry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key builds the cache key of a query. The window is part of the key, so a
// new day never reads a stale window.
func Key(q model.Query) string {
	mode := q.Mode
	if mode == "" {
		mode = model.ModeRange
	}
	return strings.Join([]string{
		"lrsdash", "v1",
		string(q.Dataset), q.Lang, q.Type,
		q.Since.Format(model.DateLayout), q.Until.Format(model.DateLayout),
		string(mode),
	}, ":")
}

// Config selects and sizes a backend.
type Config struct {
	// Backend is one of none, memory, sqlite or redis.
	Backend string
	Size    int
	TTL     time.Duration
	// Path is the sqlite database file.
	Path string
	// URL is the redis connection URL.
	URL string
}

// Open builds the configured backend.
func Open(cfg Config) (Cache, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	switch cfg.Backend {
	case "none", "off":
		return Nop{}, nil
	case "", "memory":
		return NewMemory(cfg.Size, cfg.TTL), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		return OpenSQLite(cfg.Path, cfg.Size, cfg.TTL)
	case "redis":
		return NewRedis(cfg.URL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q (use none, memory, sqlite or redis)", cfg.Backend)
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Delete(context.Context, string) error              { return nil }
func (Nop) Close() error                                      { return nil }
