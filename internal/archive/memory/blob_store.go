// Package memory stores archived documents in-memory for development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// BlobStore keeps archived content in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ harvest.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a new in-memory archive.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// Put persists the content and returns a URI.
func (s *BlobStore) Put(_ context.Context, name string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", name), nil
}

// Get returns a stored object, primarily for assertions in tests.
func (s *BlobStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
