// Package sink persists completed resume records.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
	"github.com/mfeldman486/resume-harvester/internal/metrics"
)

// JSONL appends records to a single file, one JSON object per line. Writes
// are serialized so concurrent workers never interleave partial lines, and
// the file is opened in append mode so a resumed run extends earlier output.
type JSONL struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	path   string
	logger *zap.Logger
}

var _ harvest.RecordSink = (*JSONL)(nil)

// NewJSONL opens (or creates) the output file for appending.
func NewJSONL(path string, logger *zap.Logger) (*JSONL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JSONL{
		file:   file,
		enc:    json.NewEncoder(file),
		path:   path,
		logger: logger,
	}, nil
}

// Write appends one record as a single line.
func (s *JSONL) Write(record *harvest.ResumeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record); err != nil {
		return fmt.Errorf("append record %s: %w", record.ID, err)
	}
	metrics.IncRecordWritten()
	return nil
}

// Close flushes and closes the output file.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.logger.Warn("sync output file", zap.String("path", s.path), zap.Error(err))
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
