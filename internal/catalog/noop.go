// Package catalog persists run and document metadata.
package catalog

import (
	"context"
	"time"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// Noop is a catalog that performs no operations. It is used when no database
// is configured, so the rest of the pipeline never has to nil-check.
type Noop struct{}

var _ harvest.Catalog = Noop{}

// NewNoop creates a no-op catalog.
func NewNoop() Noop {
	return Noop{}
}

// StartRun does nothing.
func (Noop) StartRun(_ context.Context, _ string, _ time.Time) error { return nil }

// RecordDocument does nothing.
func (Noop) RecordDocument(_ context.Context, _ string, _ *harvest.ResumeRecord, _ *harvest.FetchedDocument) error {
	return nil
}

// FinishRun does nothing.
func (Noop) FinishRun(_ context.Context, _ string, _ time.Time, _ harvest.RunSummary) error {
	return nil
}

// Close does nothing.
func (Noop) Close() error { return nil }
