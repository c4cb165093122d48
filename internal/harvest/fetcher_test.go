package harvest_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dedupmem "github.com/mfeldman486/resume-harvester/internal/dedup/memory"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
	uuidgen "github.com/mfeldman486/resume-harvester/internal/id/uuid"
)

const pdfBody = "%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<</Root 1 0 R>>\n%%EOF"

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newTestFetcher(t *testing.T) (*harvest.Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	f, err := harvest.NewFetcher(harvest.FetcherConfig{
		DownloadDir: dir,
		Timeout:     5 * time.Second,
	}, dedupmem.New(), uuidgen.New(), nil)
	require.NoError(t, err)
	return f, dir
}

func pdfLink(url string) harvest.CandidateLink {
	return harvest.CandidateLink{URL: url, Method: harvest.DiscoveryDirectLink, SourcePage: sourcePage}
}

func TestFetcherDownloadsValidPDF(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t)
	doc, fresh, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/cv.pdf"))
	require.NoError(t, err)
	require.True(t, fresh)

	wantHash := sha256Hex(pdfBody)
	assert.Equal(t, wantHash, doc.ContentHash)
	assert.Equal(t, harvest.DocumentPath(dir, wantHash), doc.LocalPath)
	assert.Equal(t, int64(len(pdfBody)), doc.ByteSize)
	assert.Equal(t, srv.URL+"/cv.pdf", doc.SourceURL)

	data, err := os.ReadFile(doc.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, "tmp-*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetcherRejectsHTMLBody(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>sign in to view this document</body></html>"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	_, _, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/cv"))
	require.ErrorIs(t, err, harvest.ErrNotAPdf)
	assert.Equal(t, int32(1), attempts.Load(), "non-PDF content is permanent, no retry")
}

func TestFetcherRejectsBadSignature(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("this is not a pdf at all"))
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t)
	_, _, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/fake.pdf"))
	require.ErrorIs(t, err, harvest.ErrNotAPdf)

	// The rejected body never reaches the download directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetcherNotFoundIsPermanent(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	_, _, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/gone.pdf"))
	require.Error(t, err)

	var httpErr *harvest.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	doc, fresh, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/flaky.pdf"))
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, sha256Hex(pdfBody), doc.ContentHash)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetcherRetryBudgetExhausted(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	_, _, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/down.pdf"))
	require.ErrorIs(t, err, harvest.ErrRetryBudgetExhausted)
	assert.Equal(t, int32(3), attempts.Load())

	// The underlying status stays visible through the wrap.
	var httpErr *harvest.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
}

func TestFetcherTruncatedBodyLeavesNoFiles(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", "4096")
		// The connection drops before the declared length is served.
		_, _ = w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t)
	_, _, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/cut.pdf"))
	require.ErrorIs(t, err, harvest.ErrRetryBudgetExhausted)
	assert.Equal(t, int32(3), attempts.Load(), "interrupted transfers are transient")

	// Every truncated attempt is rolled back; neither a temp file nor a
	// final-path file survives.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetcherDeduplicatesByContent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t)
	first, fresh, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/mirror-a/cv.pdf"))
	require.NoError(t, err)
	require.True(t, fresh)

	second, fresh, err := f.Fetch(context.Background(), pdfLink(srv.URL+"/mirror-b/cv.pdf"))
	require.NoError(t, err)
	assert.False(t, fresh, "identical bytes under a second URL are a duplicate")
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.SourceURL, second.SourceURL, "the first registration wins")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ContentHash+".pdf", entries[0].Name())
}

func TestFetcherCanceledContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.Fetch(ctx, pdfLink(srv.URL+"/cv.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
