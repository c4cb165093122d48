package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfeldman486/resume-harvester/internal/progress"
)

// defaultMaxRuns bounds the snapshot history so a long-lived process cannot
// grow without limit.
const defaultMaxRuns = 64

// RunProgress is the aggregated view of one run served by the ops endpoint.
type RunProgress struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Queries    int64      `json:"queries"`
	Pages      int64      `json:"pages"`
	Links      int64      `json:"links"`
	Fetched    int64      `json:"fetched"`
	Duplicates int64      `json:"duplicates"`
	Failures   int64      `json:"failures"`
	Bytes      int64      `json:"bytes"`
	Records    int64      `json:"records"`
	Note       string     `json:"note,omitempty"`
}

// Snapshot folds progress events into per-run counters held in memory. The ops
// server reads it to answer progress queries without touching the catalog.
// Only the most recent runs are retained; older entries are evicted in arrival
// order.
type Snapshot struct {
	mu      sync.Mutex
	maxRuns int
	order   [][16]byte
	runs    map[[16]byte]*RunProgress
}

// NewSnapshot creates an empty snapshot retaining up to defaultMaxRuns runs.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		maxRuns: defaultMaxRuns,
		runs:    make(map[[16]byte]*RunProgress),
	}
}

// Consume applies a batch of events to the aggregated counters.
func (s *Snapshot) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *Snapshot) apply(evt progress.Event) {
	run, ok := s.runs[evt.RunID]
	if !ok {
		run = &RunProgress{
			RunID:     evt.RunUUID().String(),
			StartedAt: evt.TS,
			Status:    "running",
		}
		s.runs[evt.RunID] = run
		s.order = append(s.order, evt.RunID)
		s.evict()
	}
	switch evt.Stage {
	case progress.StageRunStart:
		run.StartedAt = evt.TS
	case progress.StageQueryStart:
		run.Queries++
	case progress.StagePageCollected:
		run.Pages++
		run.Links += evt.Links
	case progress.StageFetchDone:
		switch evt.Outcome {
		case "success":
			run.Fetched++
		case "duplicate":
			run.Duplicates++
		default:
			run.Failures++
		}
		run.Bytes += evt.Bytes
	case progress.StageRecordDone:
		run.Records++
	case progress.StageRunDone:
		run.Status = "success"
		finished := evt.TS
		run.FinishedAt = &finished
	case progress.StageRunError:
		run.Status = "error"
		run.Note = evt.Note
		finished := evt.TS
		run.FinishedAt = &finished
	}
}

func (s *Snapshot) evict() {
	for len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
}

// Runs returns copies of the retained runs, newest first.
func (s *Snapshot) Runs() []RunProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunProgress, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.runs[s.order[i]])
	}
	return out
}

// Run returns the retained counters for one run ID.
func (s *Snapshot) Run(id string) (RunProgress, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RunProgress{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[progress.UUIDToBytes(parsed)]
	if !ok {
		return RunProgress{}, false
	}
	return *run, true
}

// Close implements the Sink interface; it performs no action.
func (s *Snapshot) Close(context.Context) error {
	return nil
}
