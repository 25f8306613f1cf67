package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// FakeStore is an in-memory Store used by tests across internal/imagefetch
// and internal/syncengine, so those packages never need a real MinIO
// endpoint to exercise upload/skip-if-unchanged logic.
type FakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	base    string
}

// NewFakeStore creates an empty FakeStore. base is used to build
// PublicURL results, defaulting to "http://fake/bucket".
func NewFakeStore(base string) *FakeStore {
	if base == "" {
		base = "http://fake/bucket"
	}

	return &FakeStore{objects: make(map[string][]byte), base: base}
}

func (s *FakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()

	return s.PublicURL(key), nil
}

func (s *FakeStore) Stat(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.objects[key]

	return ok, nil
}

func (s *FakeStore) PublicURL(key string) string {
	return s.base + "/" + key
}

// Ping always succeeds; FakeStore has no real backend to be unreachable.
func (s *FakeStore) Ping(_ context.Context) error {
	return nil
}

// Get returns the bytes stored under key, for test assertions.
func (s *FakeStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]

	return data, ok
}

// Reader exposes a stored object as an io.Reader, for tests that want to
// round-trip through an io.Reader-shaped API.
func (s *FakeStore) Reader(key string) io.Reader {
	data, ok := s.Get(key)
	if !ok {
		return bytes.NewReader(nil)
	}

	return bytes.NewReader(data)
}
