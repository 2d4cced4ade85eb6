// Package s3storage stores post images in MinIO/S3 and hands out presigned
// GET URLs for the remote scan service.
package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/FitSpo/internal/config"
)

// Storage wraps MinIO/S3 interactions for post images.
type Storage struct {
	client *minio.Client
	bucket string
	region string
	ttl    time.Duration
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.ImageBucket,
		region: cfg.S3Region,
		ttl:    cfg.SignedURLTTL,
	}, nil
}

// EnsureBucket makes sure the image bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads an image.
func (s *Storage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts); err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	return nil
}

// URL returns a presigned GET URL valid for the configured TTL. The TTL must
// outlast a full scan, since the remote service fetches lazily.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign image: %w", err)
	}
	return u.String(), nil
}
