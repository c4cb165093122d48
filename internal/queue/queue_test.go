package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := New(1)
	result := make(chan harvest.CandidateLink, 1)
	errCh := make(chan error, 1)

	go func() {
		link, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- link
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	link := harvest.CandidateLink{URL: "https://example.com/cv.pdf", Method: harvest.DiscoveryDirectLink}
	if err := q.Enqueue(context.Background(), link); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.URL != "https://example.com/cv.pdf" {
			t.Fatalf("expected candidate back, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return candidate")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := New(1)
	if err := qEnqueue.Enqueue(context.Background(), harvest.CandidateLink{URL: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, harvest.CandidateLink{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := New(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}

func TestQueueDrainsBufferedItemsAfterClose(t *testing.T) {
	t.Parallel()

	q := New(2)
	for _, u := range []string{"https://a.example/a.pdf", "https://b.example/b.pdf"} {
		if err := q.Enqueue(context.Background(), harvest.CandidateLink{URL: u}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	q.Close()

	for _, want := range []string{"https://a.example/a.pdf", "https://b.example/b.pdf"} {
		got, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if got.URL != want {
			t.Fatalf("expected %s, got %s", want, got.URL)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
}
