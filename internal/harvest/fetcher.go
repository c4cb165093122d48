package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/hash/sha256"
	"github.com/mfeldman486/resume-harvester/internal/metrics"
)

// pdfMagic is the signature every well-formed PDF starts with.
const pdfMagic = "%PDF-"

// FetcherConfig controls download behavior.
type FetcherConfig struct {
	DownloadDir string
	// Timeout bounds each individual download attempt.
	Timeout   time.Duration
	UserAgent string
}

// Fetcher downloads candidate links into the download directory. Files are
// streamed to a temporary name and renamed into place only after the full
// write succeeds, so a crash mid-download never leaves a partial file visible.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	store  DedupStore
	retry  *RetryPolicy
	idgen  IDGenerator
	logger *zap.Logger
}

// NewFetcher builds a Fetcher and ensures the download directory exists.
func NewFetcher(cfg FetcherConfig, store DedupStore, idgen IDGenerator, logger *zap.Logger) (*Fetcher, error) {
	if cfg.DownloadDir == "" {
		return nil, fmt.Errorf("download directory is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create download dir %s: %w", cfg.DownloadDir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: newHTTPTransport(),
		},
		store:  store,
		retry:  NewRetryPolicy(),
		idgen:  idgen,
		logger: logger,
	}, nil
}

// DocumentPath returns the deterministic on-disk location for a content hash.
// The download directory doubles as a dedup index recoverable after a crash.
func DocumentPath(downloadDir, contentHash string) string {
	return filepath.Join(downloadDir, contentHash+".pdf")
}

// Fetch downloads the candidate, verifies it is a PDF, computes the content
// hash, and registers the document. The second return reports whether the
// document is new to the run; when the hash is already known the new bytes
// are discarded and the existing document returned so the caller can skip
// re-extraction.
func (f *Fetcher) Fetch(ctx context.Context, link CandidateLink) (*FetchedDocument, bool, error) {
	start := time.Now()
	doc, fresh, err := f.fetchWithRetries(ctx, link)
	metrics.ObserveFetchDuration(time.Since(start))
	if err != nil {
		metrics.IncFetch(FetchErrorKind(err))
		return nil, false, err
	}
	if fresh {
		metrics.IncFetch("success")
	} else {
		metrics.IncFetch("duplicate")
	}
	return doc, fresh, nil
}

func (f *Fetcher) fetchWithRetries(ctx context.Context, link CandidateLink) (*FetchedDocument, bool, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		doc, fresh, err := f.attempt(ctx, link)
		if err == nil {
			return doc, fresh, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt+1) {
			break
		}
		f.logger.Debug("retrying download",
			zap.String("url", link.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-time.After(f.retry.Backoff(attempt)):
		case <-ctx.Done():
			return nil, false, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
	}
	// ShouldRetry with attempt 0 isolates the error kind from the budget:
	// a transient error that ran out of attempts surfaces as budget
	// exhaustion, a permanent one surfaces as itself.
	if f.retry.ShouldRetry(lastErr, 0) {
		return nil, false, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, f.retry.MaxAttempts(), lastErr)
	}
	return nil, false, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, link CandidateLink) (*FetchedDocument, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, false, &HTTPError{Status: 0, URL: link.URL}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, f.classifyTransportErr(attemptCtx, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, &HTTPError{Status: resp.StatusCode, URL: link.URL}
	}
	if !declaredTypeAllowsPDF(resp.Header.Get("Content-Type")) {
		return nil, false, fmt.Errorf("%w: declared content type %q", ErrNotAPdf, resp.Header.Get("Content-Type"))
	}

	magic := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(resp.Body, magic); err != nil {
		return nil, false, fmt.Errorf("%w: body shorter than signature", ErrNotAPdf)
	}
	if string(magic) != pdfMagic {
		return nil, false, fmt.Errorf("%w: signature %q", ErrNotAPdf, string(magic))
	}

	return f.persist(ctx, attemptCtx, link, magic, resp.Body)
}

// persist streams the body to a temporary file while hashing, then renames
// into place and registers the hash. Each worker writes to a distinct
// temporary name, so concurrent fetches never corrupt the same file.
func (f *Fetcher) persist(ctx, attemptCtx context.Context, link CandidateLink, magic []byte, body io.Reader) (*FetchedDocument, bool, error) {
	suffix, err := f.idgen.NewID()
	if err != nil {
		return nil, false, fmt.Errorf("temp name: %w", err)
	}
	tmpPath := filepath.Join(f.cfg.DownloadDir, "tmp-"+suffix+".part")

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("create temp file: %w", err)
	}
	keepTemp := false
	defer func() {
		tmp.Close()
		if !keepTemp {
			os.Remove(tmpPath)
		}
	}()

	digest := sha256.NewDigest()
	out := io.MultiWriter(tmp, digest)
	if _, err := out.Write(magic); err != nil {
		return nil, false, fmt.Errorf("write signature: %w", err)
	}
	copied, err := io.Copy(out, body)
	if err != nil {
		return nil, false, f.classifyTransportErr(attemptCtx, ctx, err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, false, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, false, fmt.Errorf("close temp file: %w", err)
	}

	hash := digest.Sum()
	finalPath := DocumentPath(f.cfg.DownloadDir, hash)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, false, fmt.Errorf("rename into place: %w", err)
	}
	keepTemp = true

	doc := &FetchedDocument{
		ContentHash: hash,
		LocalPath:   finalPath,
		SourceURL:   link.URL,
		ByteSize:    int64(len(magic)) + copied,
	}
	inserted, existing, err := f.store.Register(ctx, hash, doc)
	if err != nil {
		return nil, false, fmt.Errorf("register hash: %w", err)
	}
	if !inserted {
		// Another worker (or an earlier run) got here first; the rename above
		// replaced the file with identical bytes, so only the registry entry
		// matters.
		metrics.IncDuplicateSkipped()
		f.logger.Debug("duplicate content",
			zap.String("url", link.URL),
			zap.String("hash", hash),
			zap.String("existing_url", existing.SourceURL),
		)
		return existing, false, nil
	}
	return doc, true, nil
}

// classifyTransportErr maps transport failures onto the fetch taxonomy. An
// attempt-deadline hit surfaces as ErrTimeout; parent cancellation is passed
// through so the caller can distinguish shutdown from a slow host.
func (f *Fetcher) classifyTransportErr(attemptCtx, parentCtx context.Context, err error) error {
	if parentCtx.Err() != nil {
		return fmt.Errorf("fetch canceled: %w", parentCtx.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("download: %w", err)
}

// declaredTypeAllowsPDF accepts PDF and generic binary declarations; servers
// routinely mislabel PDFs as octet-stream. The magic-byte check stays
// authoritative either way.
func declaredTypeAllowsPDF(declared string) bool {
	if declared == "" {
		return true
	}
	lower := strings.ToLower(declared)
	return strings.Contains(lower, "application/pdf") ||
		strings.Contains(lower, "octet-stream") ||
		strings.Contains(lower, "binary")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
