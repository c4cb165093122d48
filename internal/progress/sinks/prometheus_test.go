package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mfeldman486/resume-harvester/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{
			RunID: runID,
			TS:    time.Now().Add(time.Second),
			Stage: progress.StagePageCollected,
			Query: "golang developer",
			Links: 7,
		},
		{
			RunID:   runID,
			TS:      time.Now().Add(10 * time.Second),
			Stage:   progress.StageFetchDone,
			Host:    "example.com",
			Outcome: "success",
			Bytes:   1024,
			Dur:     200 * time.Millisecond,
		},
		{
			RunID:  runID,
			TS:     time.Now().Add(12 * time.Second),
			Stage:  progress.StageRecordDone,
			Method: "fallback",
		},
		{RunID: runID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pagesCollected.WithLabelValues("golang developer")), 1e-9)
	require.InDelta(t, 7.0, testutil.ToFloat64(sink.pageLinks.WithLabelValues("golang developer")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues("example.com", "success")), 1e-9)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("example.com")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.recordsDone.WithLabelValues("fallback")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "harvester_run_duration_seconds"))
}

// TestPrometheusSinkRunningGaugeTracksDistinctRuns ensures duplicate start events do not inflate the gauge.
func TestPrometheusSinkRunningGaugeTracksDistinctRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	done := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Note: "search unreachable"}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}
