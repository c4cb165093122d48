// Package memory provides the in-memory dedup registry used for single runs.
package memory

import (
	"context"
	"sync"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// Store keeps the content-hash index and URL seen-set for one run. Register
// holds the write lock for the whole insert, so two workers racing on the
// same hash resolve to exactly one inserted document.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*harvest.FetchedDocument
	urls sync.Map
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		docs: make(map[string]*harvest.FetchedDocument),
	}
}

// Register inserts the document under its hash if absent. The loser of a race
// receives the already-present document.
func (s *Store) Register(_ context.Context, hash string, doc *harvest.FetchedDocument) (bool, *harvest.FetchedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.docs[hash]; ok {
		return false, existing, nil
	}
	s.docs[hash] = doc
	return true, doc, nil
}

// Lookup returns the document registered under hash, if any.
func (s *Store) Lookup(_ context.Context, hash string) (*harvest.FetchedDocument, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[hash]
	return doc, ok, nil
}

// MarkURL stores the normalized URL if it has not been seen and returns true.
func (s *Store) MarkURL(normalizedURL string) bool {
	if normalizedURL == "" {
		return false
	}
	_, loaded := s.urls.LoadOrStore(normalizedURL, struct{}{})
	return !loaded
}

// SeenURL reports whether the normalized URL was already marked.
func (s *Store) SeenURL(normalizedURL string) bool {
	_, ok := s.urls.Load(normalizedURL)
	return ok
}

// Size returns the number of registered documents.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close implements harvest.DedupStore; the memory store has nothing to flush.
func (s *Store) Close() error {
	return nil
}
