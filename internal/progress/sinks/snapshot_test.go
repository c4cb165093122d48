package sinks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mfeldman486/resume-harvester/internal/progress"
)

// TestSnapshotAggregatesRunCounters folds a realistic event stream and checks
// the resulting per-run view.
func TestSnapshotAggregatesRunCounters(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	started := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	batch := []progress.Event{
		{RunID: runID, TS: started, Stage: progress.StageRunStart},
		{RunID: runID, TS: started.Add(time.Second), Stage: progress.StageQueryStart, Query: "golang resume"},
		{RunID: runID, TS: started.Add(2 * time.Second), Stage: progress.StagePageCollected, Query: "golang resume", Links: 5},
		{RunID: runID, TS: started.Add(3 * time.Second), Stage: progress.StagePageCollected, Query: "golang resume", Links: 2},
		{RunID: runID, TS: started.Add(4 * time.Second), Stage: progress.StageFetchDone, Host: "a.dev", Outcome: "success", Bytes: 2048},
		{RunID: runID, TS: started.Add(5 * time.Second), Stage: progress.StageFetchDone, Host: "b.dev", Outcome: "duplicate"},
		{RunID: runID, TS: started.Add(6 * time.Second), Stage: progress.StageFetchDone, Host: "c.dev", Outcome: "timeout"},
		{RunID: runID, TS: started.Add(7 * time.Second), Stage: progress.StageRecordDone, Method: "ai"},
	}
	require.NoError(t, snap.Consume(context.Background(), batch))

	run, ok := snap.Run(id.String())
	require.True(t, ok)
	require.Equal(t, "running", run.Status)
	require.Equal(t, started, run.StartedAt)
	require.Nil(t, run.FinishedAt)
	require.Equal(t, int64(1), run.Queries)
	require.Equal(t, int64(2), run.Pages)
	require.Equal(t, int64(7), run.Links)
	require.Equal(t, int64(1), run.Fetched)
	require.Equal(t, int64(1), run.Duplicates)
	require.Equal(t, int64(1), run.Failures)
	require.Equal(t, int64(2048), run.Bytes)
	require.Equal(t, int64(1), run.Records)

	done := progress.Event{RunID: runID, TS: finished, Stage: progress.StageRunDone, Dur: 90 * time.Second}
	require.NoError(t, snap.Consume(context.Background(), []progress.Event{done}))

	run, ok = snap.Run(id.String())
	require.True(t, ok)
	require.Equal(t, "success", run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, finished, *run.FinishedAt)
}

// TestSnapshotRunErrorKeepsNote verifies error completions carry the note.
func TestSnapshotRunErrorKeepsNote(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	now := time.Now().UTC()

	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now.Add(time.Second), Stage: progress.StageRunError, Note: "search unreachable"},
	}
	require.NoError(t, snap.Consume(context.Background(), batch))

	run, ok := snap.Run(id.String())
	require.True(t, ok)
	require.Equal(t, "error", run.Status)
	require.Equal(t, "search unreachable", run.Note)
}

// TestSnapshotRunsNewestFirst checks ordering and the copy semantics of Runs.
func TestSnapshotRunsNewestFirst(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	now := time.Now().UTC()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, snap.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(first), TS: now, Stage: progress.StageRunStart},
		{RunID: progress.UUIDToBytes(second), TS: now.Add(time.Minute), Stage: progress.StageRunStart},
	}))

	runs := snap.Runs()
	require.Len(t, runs, 2)
	require.Equal(t, second.String(), runs[0].RunID)
	require.Equal(t, first.String(), runs[1].RunID)

	runs[0].Fetched = 99
	fresh, ok := snap.Run(second.String())
	require.True(t, ok)
	require.Equal(t, int64(0), fresh.Fetched)
}

// TestSnapshotEvictsOldestRuns fills past the retention limit and checks the
// oldest entries fall off.
func TestSnapshotEvictsOldestRuns(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	snap.maxRuns = 3
	now := time.Now().UTC()

	ids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		evt := progress.Event{
			RunID: progress.UUIDToBytes(id),
			TS:    now.Add(time.Duration(i) * time.Second),
			Stage: progress.StageRunStart,
		}
		require.NoError(t, snap.Consume(context.Background(), []progress.Event{evt}), fmt.Sprintf("run %d", i))
	}

	require.Len(t, snap.Runs(), 3)
	_, ok := snap.Run(ids[0].String())
	require.False(t, ok)
	_, ok = snap.Run(ids[4].String())
	require.True(t, ok)
}

// TestSnapshotRunRejectsMalformedID ensures lookups never panic on bad input.
func TestSnapshotRunRejectsMalformedID(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	_, ok := snap.Run("not-a-uuid")
	require.False(t, ok)
}
