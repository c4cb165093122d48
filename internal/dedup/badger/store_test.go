package badger_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeldman486/resume-harvester/internal/dedup/badger"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

var docHash = strings.Repeat("ab", 32)

func TestRegisterLookupRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := badger.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	doc := &harvest.FetchedDocument{
		ContentHash: docHash,
		LocalPath:   "/downloads/" + docHash + ".pdf",
		SourceURL:   "https://a.com/cv.pdf",
		ByteSize:    4096,
	}

	inserted, existing, err := s.Register(ctx, docHash, doc)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, doc.SourceURL, existing.SourceURL)

	inserted, existing, err = s.Register(ctx, docHash, &harvest.FetchedDocument{
		ContentHash: docHash,
		SourceURL:   "https://b.com/cv.pdf",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "https://a.com/cv.pdf", existing.SourceURL, "the first registration wins")

	got, found, err := s.Lookup(ctx, docHash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, doc.LocalPath, got.LocalPath)
	assert.Equal(t, doc.ByteSize, got.ByteSize)

	_, found, err = s.Lookup(ctx, strings.Repeat("00", 32))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarkAndSeenURL(t *testing.T) {
	t.Parallel()
	s, err := badger.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.MarkURL("https://a.com/cv.pdf"))
	assert.False(t, s.MarkURL("https://a.com/cv.pdf"))
	assert.False(t, s.MarkURL(""))

	assert.True(t, s.SeenURL("https://a.com/cv.pdf"))
	assert.False(t, s.SeenURL("https://b.com/cv.pdf"))
}

func TestStateSurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	s, err := badger.Open(dir)
	require.NoError(t, err)
	_, _, err = s.Register(ctx, docHash, &harvest.FetchedDocument{
		ContentHash: docHash,
		LocalPath:   "/downloads/" + docHash + ".pdf",
		SourceURL:   "https://a.com/cv.pdf",
		ByteSize:    4096,
	})
	require.NoError(t, err)
	require.True(t, s.MarkURL("https://a.com/cv.pdf"))
	require.NoError(t, s.Close())

	s, err = badger.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, found, err := s.Lookup(ctx, docHash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://a.com/cv.pdf", got.SourceURL)

	assert.True(t, s.SeenURL("https://a.com/cv.pdf"))
	assert.False(t, s.MarkURL("https://a.com/cv.pdf"), "marks persist across restarts")
}
