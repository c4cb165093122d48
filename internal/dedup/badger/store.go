// Package badger provides a durable dedup registry so long batches survive
// process restarts.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v2"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// Key prefixes keep hash and URL entries apart in one keyspace.
var (
	hashPrefix = []byte("h:")
	urlPrefix  = []byte("u:")
)

// Store implements harvest.DedupStore on a Badger database. Register runs as
// one read-modify-write transaction, so redundant registrations after a crash
// are safe and racing workers resolve to a single insert.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) the registry at path.
func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dedup db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Register inserts the document under its hash if absent.
func (s *Store) Register(_ context.Context, hash string, doc *harvest.FetchedDocument) (bool, *harvest.FetchedDocument, error) {
	var (
		inserted bool
		existing *harvest.FetchedDocument
	)
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		key := hashKey(hash)
		item, err := txn.Get(key)
		if err == nil {
			val, copyErr := item.ValueCopy(nil)
			if copyErr != nil {
				return fmt.Errorf("read existing document: %w", copyErr)
			}
			var prev harvest.FetchedDocument
			if decodeErr := json.Unmarshal(val, &prev); decodeErr != nil {
				return fmt.Errorf("decode existing document: %w", decodeErr)
			}
			existing = &prev
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("lookup hash: %w", err)
		}
		val, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if err := txn.Set(key, val); err != nil {
			return fmt.Errorf("store document: %w", err)
		}
		inserted = true
		existing = doc
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return inserted, existing, nil
}

// Lookup returns the document registered under hash, if any.
func (s *Store) Lookup(_ context.Context, hash string) (*harvest.FetchedDocument, bool, error) {
	var doc *harvest.FetchedDocument
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(hashKey(hash))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup hash: %w", err)
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		var d harvest.FetchedDocument
		if err := json.Unmarshal(val, &d); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		doc = &d
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}

// MarkURL stores the normalized URL if it has not been seen and returns true.
// Errors degrade to "seen" so a flaky disk cannot re-admit duplicates.
func (s *Store) MarkURL(normalizedURL string) bool {
	if normalizedURL == "" {
		return false
	}
	var fresh bool
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		key := urlKey(normalizedURL)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("lookup url: %w", err)
		}
		if err := txn.Set(key, nil); err != nil {
			return fmt.Errorf("store url: %w", err)
		}
		fresh = true
		return nil
	})
	if err != nil {
		return false
	}
	return fresh
}

// SeenURL reports whether the normalized URL was already marked.
func (s *Store) SeenURL(normalizedURL string) bool {
	seen := false
	_ = s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(urlKey(normalizedURL))
		if err == nil {
			seen = true
		}
		return nil
	})
	return seen
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close dedup db: %w", err)
	}
	return nil
}

func hashKey(hash string) []byte {
	return append(append([]byte(nil), hashPrefix...), hash...)
}

func urlKey(u string) []byte {
	return append(append([]byte(nil), urlPrefix...), u...)
}
