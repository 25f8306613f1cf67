package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore is the production Store, backed by any S3-compatible
// endpoint (spec §1 calls out the object store only as a capability
// interface; MinIO is the concrete choice here, per the teacher pack's
// storage stack).
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string // scheme://host:port, per spec §6.4's canonical URL
	logger     *slog.Logger
}

// Config holds the connection parameters for NewMinioStore.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStore dials endpoint and returns a Store. It does not verify the
// bucket exists; callers that need that guarantee should call
// EnsureBucket explicitly (e.g. at migration time).
func NewMinioStore(cfg Config, logger *slog.Logger) (*MinioStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: dialing minio: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &MinioStore{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: fmt.Sprintf("%s://%s", scheme, cfg.Endpoint),
		logger:     logger,
	}, nil
}

// EnsureBucket creates the configured bucket if it does not already exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: checking bucket: %w", err)
	}

	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("objectstore: creating bucket: %w", err)
	}

	s.logger.Info("objectstore: bucket created", slog.String("bucket", s.bucket))

	return nil
}

// Put uploads content under key, per the Store contract.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if size < 0 {
		size = -1
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("objectstore: uploading %s: %w", key, err)
	}

	return s.PublicURL(key), nil
}

// Stat reports whether key exists in the bucket.
func (s *MinioStore) Stat(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" {
		return false, nil
	}

	return false, fmt.Errorf("objectstore: stat %s: %w", key, err)
}

// Ping verifies the configured bucket is reachable, for /health (spec
// §6.1's "object store" dependency check).
func (s *MinioStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: ping: %w", err)
	}

	if !exists {
		return fmt.Errorf("objectstore: ping: bucket %q does not exist", s.bucket)
	}

	return nil
}

// PublicURL builds the canonical image URL per spec §6.4:
// <scheme>://<host>:<port>/<bucket>/products/<filename>.
func (s *MinioStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucket, key)
}
