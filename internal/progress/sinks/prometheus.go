package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mfeldman486/resume-harvester/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running, collected pages, fetch
// outcomes, and emitted records.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	pagesCollected *prometheus.CounterVec
	pageLinks      *prometheus.CounterVec
	fetchOutcomes  *prometheus.CounterVec
	fetchBytes     *prometheus.CounterVec
	recordsDone    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_completed_total",
			Help: "Total harvest runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_runs_running",
			Help: "Current number of running harvest runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Wall time per completed harvest run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		pagesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_pages_collected_total",
			Help: "Result pages processed by the collector, per query.",
		}, []string{"query"}),
		pageLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_page_links_total",
			Help: "New candidate links admitted per query.",
		}, []string{"query"}),
		fetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_outcomes_total",
			Help: "Fetch completions partitioned by host and outcome.",
		}, []string{"host", "outcome"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_bytes_total",
			Help: "Bytes downloaded per host.",
		}, []string{"host"}),
		recordsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_progress_records_total",
			Help: "Resume records emitted partitioned by extraction method.",
		}, []string{"method"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.pagesCollected,
		s.pageLinks,
		s.fetchOutcomes,
		s.fetchBytes,
		s.recordsDone,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StagePageCollected:
		s.pagesCollected.WithLabelValues(evt.Query).Inc()
		if evt.Links > 0 {
			s.pageLinks.WithLabelValues(evt.Query).Add(float64(evt.Links))
		}
	case progress.StageFetchDone:
		s.handleFetchEvent(evt)
	case progress.StageRecordDone:
		s.recordsDone.WithLabelValues(evt.Method).Inc()
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	host := evt.Host
	if host == "" {
		host = "unknown"
	}
	s.fetchOutcomes.WithLabelValues(host, evt.Outcome).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(host).Add(float64(evt.Bytes))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
