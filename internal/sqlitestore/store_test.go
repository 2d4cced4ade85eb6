package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fitspo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Create(ctx, &model.Post{ID: "p1", UserID: "u1", Caption: "fit", ImageKey: "posts/p1/a.jpg", ContentType: "image/jpeg"}))

	post, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", post.UserID)
	assert.Equal(t, "image/jpeg", post.ContentType)
	assert.False(t, post.Scanned())
	assert.Nil(t, post.ScannedAt)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScanResultsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Create(ctx, &model.Post{ID: "p1", ImageKey: "k"}))
	start := time.Now()

	require.NoError(t, s.SaveScanResults(ctx, "p1", nil, start))
	post, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, post.Scanned())
	assert.Empty(t, post.ScanResults)
	require.NotNil(t, post.ScannedAt)
	assert.Equal(t, start.UnixNano(), post.ScannedAt.UnixNano())

	items := []model.OutfitItem{{ID: "d0", Label: "boots", ShopURL: "https://www.google.com/search?q=boots"}}
	require.NoError(t, s.SaveScanResults(ctx, "p1", items, start.Add(time.Second)))
	post, err = s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, items, post.ScanResults)

	err = s.SaveScanResults(ctx, "p1", []model.OutfitItem{{Label: "stale"}}, start)
	assert.ErrorIs(t, err, storage.ErrStaleScan)

	err = s.SaveScanResults(ctx, "missing", nil, start)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
