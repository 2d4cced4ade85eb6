// Package storage contains the in-memory post store and the local-disk image
// store used when the service runs without Postgres or S3.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/FitSpo/internal/model"
)

var (
	// ErrNotFound is returned by every post store when the id is unknown.
	ErrNotFound = errors.New("post not found")
	// ErrStaleScan is returned when a scan result is older than the one
	// already cached on the post.
	ErrStaleScan = errors.New("newer scan result already stored")
)

// MemoryStore keeps posts in a map guarded by an RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]*model.Post
	now   func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[string]*model.Post),
		now:   time.Now,
	}
}

// Create inserts a post. Scan fields on the input are ignored.
func (m *MemoryStore) Create(_ context.Context, post *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	post.ScanResults = nil
	post.ScannedAt = nil
	stored := *post
	m.posts[post.ID] = &stored
	return nil
}

// Get returns a copy of the post so callers cannot mutate internal state.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	post, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *post
	out.ScanResults = cloneItems(post.ScanResults)
	if post.ScannedAt != nil {
		at := *post.ScannedAt
		out.ScannedAt = &at
	}
	return &out, nil
}

// SaveScanResults replaces the cached scan results. A result from a scan that
// started before the stored one is rejected with ErrStaleScan.
func (m *MemoryStore) SaveScanResults(_ context.Context, postID string, items []model.OutfitItem, scannedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	if post.ScannedAt != nil && scannedAt.Before(*post.ScannedAt) {
		return ErrStaleScan
	}
	if items == nil {
		items = []model.OutfitItem{}
	}
	at := scannedAt.UTC()
	post.ScanResults = cloneItems(items)
	post.ScannedAt = &at
	post.UpdatedAt = m.now().UTC()
	return nil
}

func cloneItems(items []model.OutfitItem) []model.OutfitItem {
	if items == nil {
		return nil
	}
	out := make([]model.OutfitItem, len(items))
	copy(out, items)
	return out
}
