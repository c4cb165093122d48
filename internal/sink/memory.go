package sink

import (
	"sync"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// Memory collects records in memory. Intended for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	records []*harvest.ResumeRecord
}

var _ harvest.RecordSink = (*Memory)(nil)

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Write appends the record.
func (s *Memory) Write(record *harvest.ResumeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a snapshot of everything written so far.
func (s *Memory) Records() []*harvest.ResumeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*harvest.ResumeRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Close is a no-op.
func (s *Memory) Close() error {
	return nil
}
