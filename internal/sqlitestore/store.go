// Package sqlitestore keeps post records in a single SQLite file for
// single-node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

const schema = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	caption TEXT NOT NULL DEFAULT '',
	image_key TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	scan_results TEXT,
	scanned_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);`

// Store implements the post store on SQLite. Timestamps are stored as Unix
// nanoseconds so the stale-scan comparison stays exact.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a post without scan results.
func (s *Store) Create(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	post.ScanResults = nil
	post.ScannedAt = nil
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, caption, image_key, content_type, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)
	`, post.ID, post.UserID, post.Caption, post.ImageKey, post.ContentType, now.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Get returns a post by id.
func (s *Store) Get(ctx context.Context, id string) (*model.Post, error) {
	var (
		post      model.Post
		results   sql.NullString
		scannedAt sql.NullInt64
		created   int64
		updated   int64
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, caption, image_key, content_type, scan_results, scanned_at, created_at, updated_at
		FROM posts WHERE id=?
	`, id)
	if err := row.Scan(&post.ID, &post.UserID, &post.Caption, &post.ImageKey, &post.ContentType, &results, &scannedAt, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("select post: %w", err)
	}
	post.CreatedAt = time.Unix(0, created).UTC()
	post.UpdatedAt = time.Unix(0, updated).UTC()
	if scannedAt.Valid {
		at := time.Unix(0, scannedAt.Int64).UTC()
		post.ScannedAt = &at
	}
	if results.Valid {
		post.ScanResults = []model.OutfitItem{}
		if err := json.Unmarshal([]byte(results.String), &post.ScanResults); err != nil {
			return nil, fmt.Errorf("decode scan results: %w", err)
		}
	}
	return &post, nil
}

// SaveScanResults replaces scan_results unless a later scan already landed.
func (s *Store) SaveScanResults(ctx context.Context, postID string, items []model.OutfitItem, scannedAt time.Time) error {
	if items == nil {
		items = []model.OutfitItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode scan results: %w", err)
	}
	at := scannedAt.UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET scan_results = ?, scanned_at = ?, updated_at = ?
		WHERE id = ? AND (scanned_at IS NULL OR scanned_at <= ?)
	`, string(payload), at, time.Now().UnixNano(), postID, at)
	if err != nil {
		return fmt.Errorf("update scan results: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE id=?`, postID).Scan(&exists); err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	return fmt.Errorf("post %s: %w", postID, storage.ErrStaleScan)
}
