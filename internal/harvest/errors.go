package harvest

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Per-candidate fetch failures. None of these abort a run; the orchestrator
// logs the candidate and moves on.
var (
	// ErrNotAPdf means the response body or declared content type failed the
	// PDF signature check.
	ErrNotAPdf = errors.New("not a pdf")
	// ErrTimeout means the download exceeded its per-attempt deadline.
	ErrTimeout = errors.New("download timed out")
	// ErrRetryBudgetExhausted means every retry attempt failed.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
)

// HTTPError is a non-retryable HTTP failure (4xx other than 429).
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.Status, e.URL)
}

// FetchErrorKind maps a fetch error onto a small label set usable in logs and
// metric labels.
func FetchErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotAPdf):
		return "not_a_pdf"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRetryBudgetExhausted):
		return "retry_budget_exhausted"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "error"
}

// FatalConfigError marks configuration problems surfaced before a run starts.
// It is the only error class that aborts the process with a non-zero exit.
type FatalConfigError struct {
	Err error
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("fatal config error: %v", e.Err)
}

func (e *FatalConfigError) Unwrap() error {
	return e.Err
}

// NewFatalConfigError wraps err for pre-run validation failures.
func NewFatalConfigError(err error) *FatalConfigError {
	return &FatalConfigError{Err: err}
}
