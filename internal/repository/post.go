package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

// PostRepository wraps all SQL used by the API, worker and CLI.
type PostRepository struct {
	pool *pgxpool.Pool
}

// NewPostRepository constructs a repository.
func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

// Create inserts a post without scan results.
func (r *PostRepository) Create(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	post.ScanResults = nil
	post.ScannedAt = nil
	_, err := r.pool.Exec(ctx, `
		INSERT INTO posts (id, user_id, caption, image_key, content_type, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, post.ID, post.UserID, post.Caption, post.ImageKey, post.ContentType, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Get returns a post by id.
func (r *PostRepository) Get(ctx context.Context, id string) (*model.Post, error) {
	var (
		post    model.Post
		results []byte
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, caption, image_key, content_type, scan_results, scanned_at, created_at, updated_at
		FROM posts WHERE id=$1
	`, id)
	if err := row.Scan(&post.ID, &post.UserID, &post.Caption, &post.ImageKey, &post.ContentType, &results, &post.ScannedAt, &post.CreatedAt, &post.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("select post: %w", err)
	}
	if results != nil {
		post.ScanResults = []model.OutfitItem{}
		if err := json.Unmarshal(results, &post.ScanResults); err != nil {
			return nil, fmt.Errorf("decode scan results: %w", err)
		}
	}
	return &post, nil
}

// SaveScanResults replaces scan_results unless a scan that started later has
// already been stored.
func (r *PostRepository) SaveScanResults(ctx context.Context, postID string, items []model.OutfitItem, scannedAt time.Time) error {
	if items == nil {
		items = []model.OutfitItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode scan results: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET scan_results = $1::jsonb,
			scanned_at = $2,
			updated_at = $3
		WHERE id = $4 AND (scanned_at IS NULL OR scanned_at <= $2)
	`, string(payload), scannedAt.UTC(), time.Now().UTC(), postID)
	if err != nil {
		return fmt.Errorf("update scan results: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id=$1)`, postID).Scan(&exists); err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if !exists {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	return fmt.Errorf("post %s: %w", postID, storage.ErrStaleScan)
}
