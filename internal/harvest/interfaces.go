package harvest

import (
	"context"
	"io"
	"time"
)

// Session is the browser capability the collector loop drives. One session
// serves one query; page navigation is sequential.
type Session interface {
	Load(ctx context.Context, url string) error
	Scroll(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// DedupStore is the content-addressed registry shared across workers.
// Register is a single critical section per hash: exactly one caller wins the
// insert, later callers receive the existing document.
type DedupStore interface {
	Register(ctx context.Context, hash string, doc *FetchedDocument) (inserted bool, existing *FetchedDocument, err error)
	Lookup(ctx context.Context, hash string) (*FetchedDocument, bool, error)
	MarkURL(normalizedURL string) bool
	SeenURL(normalizedURL string) bool
	Close() error
}

// RecordSink appends completed records to the run output, one at a time.
type RecordSink interface {
	Write(record *ResumeRecord) error
	Close() error
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	Put(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
}

// Catalog persists run and document metadata to a durable store.
type Catalog interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordDocument(ctx context.Context, runID string, record *ResumeRecord, doc *FetchedDocument) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, summary RunSummary) error
	Close() error
}

// Publisher pushes completed records to a message bus (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
