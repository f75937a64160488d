package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project-api/pkg/apperr"
)

// PgCache keeps entries in an UNLOGGED PostgreSQL table so every server
// process sees the same entries and the same invalidations.
type PgCache struct {
	pool *pgxpool.Pool
}

// NewPgCache creates a PgCache.
func NewPgCache(pool *pgxpool.Pool) *PgCache {
	return &PgCache{pool: pool}
}

// EnsureTable creates the cache_entries table if it doesn't exist.
func (c *PgCache) EnsureTable(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `
		CREATE UNLOGGED TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at)`)
	return err
}

func (c *PgCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries WHERE key = $1 AND expires_at > now()`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, apperr.Classify(err))
	}
	return value, true, nil
}

func (c *PgCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, apperr.Classify(err))
	}
	return nil
}

func (c *PgCache) Invalidate(ctx context.Context, key string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", key, apperr.Classify(err))
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (c *PgCache) Purge(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", apperr.Classify(err))
	}
	return tag.RowsAffected(), nil
}
