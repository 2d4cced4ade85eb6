package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the posts table. scan_results stays NULL until the first scan so
// "never scanned" and "scanned, nothing found" ('[]') remain distinct.
const Schema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	caption TEXT NOT NULL DEFAULT '',
	image_key TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	scan_results JSONB,
	scanned_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);`

// EnsureSchema creates the posts table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
