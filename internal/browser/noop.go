package browser

import (
	"context"
	"errors"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// Noop implements Session but always returns an error to indicate that a
// browser is not available in the current build.
type Noop struct{}

// NewNoop creates a new Noop session.
func NewNoop() *Noop {
	return &Noop{}
}

var _ harvest.Session = Noop{}

// Load returns an error since this is a stub implementation.
func (Noop) Load(_ context.Context, _ string) error {
	return errors.New("browser session not configured")
}

// Scroll returns an error since this is a stub implementation.
func (Noop) Scroll(_ context.Context) error {
	return errors.New("browser session not configured")
}

// HTML returns an error since this is a stub implementation.
func (Noop) HTML(_ context.Context) (string, error) {
	return "", errors.New("browser session not configured")
}

// Close is a no-op.
func (Noop) Close() error {
	return nil
}
