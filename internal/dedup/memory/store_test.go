package memory_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeldman486/resume-harvester/internal/dedup/memory"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

const testHash = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"

func testDoc(url string) *harvest.FetchedDocument {
	return &harvest.FetchedDocument{
		ContentHash: testHash,
		LocalPath:   "/downloads/" + testHash + ".pdf",
		SourceURL:   url,
		ByteSize:    2048,
	}
}

func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	inserted, existing, err := s.Register(ctx, testHash, testDoc("https://a.com/cv.pdf"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "https://a.com/cv.pdf", existing.SourceURL)

	doc, found, err := s.Lookup(ctx, testHash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://a.com/cv.pdf", doc.SourceURL)

	_, found, err = s.Lookup(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegisterDuplicateReturnsWinner(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	_, _, err := s.Register(ctx, testHash, testDoc("https://first.com/cv.pdf"))
	require.NoError(t, err)

	inserted, existing, err := s.Register(ctx, testHash, testDoc("https://second.com/cv.pdf"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "https://first.com/cv.pdf", existing.SourceURL)
	assert.Equal(t, 1, s.Size())
}

func TestMarkURL(t *testing.T) {
	t.Parallel()
	s := memory.New()

	assert.True(t, s.MarkURL("https://a.com/cv.pdf"))
	assert.False(t, s.MarkURL("https://a.com/cv.pdf"))
	assert.False(t, s.MarkURL(""), "empty URLs are never fresh")

	assert.True(t, s.SeenURL("https://a.com/cv.pdf"))
	assert.False(t, s.SeenURL("https://b.com/cv.pdf"))
}

func TestRegisterConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	const racers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			inserted, _, err := s.Register(ctx, testHash, testDoc(fmt.Sprintf("https://mirror-%d.com/cv.pdf", i)))
			assert.NoError(t, err)
			if inserted {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, s.Size())
}

func TestClose(t *testing.T) {
	t.Parallel()
	assert.NoError(t, memory.New().Close())
}
