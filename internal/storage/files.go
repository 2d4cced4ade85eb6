package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/FitSpo/internal/signing"
)

// ErrInvalidKey is returned for object keys that would escape the root.
var ErrInvalidKey = errors.New("invalid object key")

// FileStore writes uploaded images below a root directory and hands out
// HMAC-signed URLs so the remote scan service can fetch them.
type FileStore struct {
	root    string
	baseURL string
	signer  *signing.Signer
	ttl     time.Duration
	now     func() time.Time
}

// NewFileStore creates the root directory if needed. baseURL is the public
// address of this service, e.g. "https://fitspo.example.com".
func NewFileStore(root, baseURL string, signer *signing.Signer, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Put streams reader into the file for key.
func (f *FileStore) Put(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(dst, reader); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("write image file: %w", err)
	}
	return dst.Close()
}

// Open returns the stored image for key.
func (f *FileStore) Open(key string) (*os.File, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	return file, nil
}

// URL returns a signed GET URL for key that expires after the configured TTL.
func (f *FileStore) URL(_ context.Context, key string) (string, error) {
	if _, err := f.path(key); err != nil {
		return "", err
	}
	expiry := f.now().Add(f.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiry, 10))
	q.Set("signature", f.signer.Sign(key, expiry))
	return f.baseURL + "/images/" + escapeKey(key) + "?" + q.Encode(), nil
}

// escapeKey escapes each path segment of key. Keys embed client file names,
// which may hold '#', '?' or spaces.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Verify checks the query parameters produced by URL.
func (f *FileStore) Verify(key, expires, signature string) error {
	expiryUnix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return errors.New("invalid expires")
	}
	if time.Unix(expiryUnix, 0).Before(f.now()) {
		return errors.New("url expired")
	}
	if !f.signer.Validate(key, expires, signature) {
		return errors.New("invalid signature")
	}
	return nil
}

func (f *FileStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(f.root, clean), nil
}
