// Package queue provides the bounded candidate buffer between the collector
// loop and the worker pool.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. Enqueue
// blocks while the worker pool is saturated, which is what throttles the
// collector loop.
type Queue struct {
	ch      chan harvest.CandidateLink
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan harvest.CandidateLink, capacity),
	}
}

// Enqueue pushes a candidate into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, link harvest.CandidateLink) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- link:
		return nil
	}
}

// Dequeue pops the next candidate, respecting context cancellation. Once the
// queue is closed and empty it returns ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (harvest.CandidateLink, error) {
	select {
	case <-ctx.Done():
		return harvest.CandidateLink{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case link, ok := <-q.ch:
		if !ok {
			return harvest.CandidateLink{}, ErrClosed
		}
		return link, nil
	}
}

// Close closes the underlying channel so workers drain and exit. Safe to call
// more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
