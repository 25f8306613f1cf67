// Package objectstore is the capability interface for binary image storage
// (spec §4.5's "document store and object store, treated as capability
// interfaces"), backed by an S3-compatible bucket via minio-go.
package objectstore

import (
	"context"
	"io"
)

// Store is the capability every ImageFetcher (C2) depends on, satisfied
// by *MinioStore in production and by fakes in tests.
type Store interface {
	// Put uploads content under key and returns its canonical public URL
	// (spec §6.4). size may be -1 if unknown; contentType is best-effort.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (publicURL string, err error)

	// Stat reports whether key already exists, without downloading it.
	Stat(ctx context.Context, key string) (exists bool, err error)

	// PublicURL computes the canonical URL for a key without any I/O,
	// for building references to objects this process already wrote.
	PublicURL(key string) string
}
