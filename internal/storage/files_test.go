package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitSpo/internal/signing"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), "http://localhost:8080/", signing.NewSigner([]byte("secret")), 5*time.Minute)
	require.NoError(t, err)
	return fs
}

func TestFileStorePutOpen(t *testing.T) {
	fs := newTestFileStore(t)
	require.NoError(t, fs.Put(context.Background(), "posts/p1/look.jpg", strings.NewReader("jpegbytes"), 9, "image/jpeg"))

	f, err := fs.Open("posts/p1/look.jpg")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))

	_, err = fs.Open("posts/p1/missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs := newTestFileStore(t)
	err := fs.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), 1, "text/plain")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = fs.URL(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFileStoreSignedURL(t *testing.T) {
	fs := newTestFileStore(t)
	raw, err := fs.URL(context.Background(), "posts/p1/look.jpg")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", u.Host)
	assert.Equal(t, "/images/posts/p1/look.jpg", u.Path)

	q := u.Query()
	assert.NoError(t, fs.Verify("posts/p1/look.jpg", q.Get("expires"), q.Get("signature")))
	assert.Error(t, fs.Verify("posts/p2/look.jpg", q.Get("expires"), q.Get("signature")))
}

func TestFileStoreExpiredURL(t *testing.T) {
	fs := newTestFileStore(t)
	fs.now = func() time.Time { return time.Now().Add(-time.Hour) }
	raw, err := fs.URL(context.Background(), "k.jpg")
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	fs.now = time.Now
	err = fs.Verify("k.jpg", u.Query().Get("expires"), u.Query().Get("signature"))
	assert.EqualError(t, err, "url expired")
}

func TestFileStoreSignedURLEscapesKey(t *testing.T) {
	fs := newTestFileStore(t)
	key := "posts/p1/summer #1 100%.png"
	raw, err := fs.URL(context.Background(), key)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, u.Fragment)
	assert.Equal(t, "/images/"+key, u.Path)
	q := u.Query()
	require.NotEmpty(t, q.Get("signature"))
	assert.NoError(t, fs.Verify(key, q.Get("expires"), q.Get("signature")))
}
