// Package orchestrator drives a harvest run: a collector loop per query feeds
// a bounded worker pool that fetches, extracts, and records resumes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	systemclock "github.com/mfeldman486/resume-harvester/internal/clock/system"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
	"github.com/mfeldman486/resume-harvester/internal/metrics"
	"github.com/mfeldman486/resume-harvester/internal/progress"
	"github.com/mfeldman486/resume-harvester/internal/queue"
)

// Config bounds a run.
type Config struct {
	// SearxURL is the search endpoint queries are rendered against. Required
	// unless every query carries its own results URL.
	SearxURL string
	// Workers sizes the per-query worker pool.
	Workers int
	// QueueDepth caps candidates buffered between the collector loop and the
	// workers. A full queue throttles collection.
	QueueDepth int
	// MaxResults is the per-query candidate cutoff applied when a query does
	// not set its own.
	MaxResults int
	// EmptyPageStreak is the number of consecutive yieldless pages that ends
	// a query's collection.
	EmptyPageStreak int
	// ParallelQueries above 1 runs batch queries concurrently, each with its
	// own browser session and worker pool.
	ParallelQueries int
	// ArchivePrefix is prepended to archived blob names.
	ArchivePrefix string
	// Topic names the publisher destination for completed records.
	Topic string
}

// SessionFactory opens one browser session per query.
type SessionFactory interface {
	NewSession() (harvest.Session, error)
}

// Fetcher downloads one candidate into the local document store.
type Fetcher interface {
	Fetch(ctx context.Context, link harvest.CandidateLink) (*harvest.FetchedDocument, bool, error)
}

// Extractor produces exactly one record per fetched document.
type Extractor interface {
	Extract(ctx context.Context, doc *harvest.FetchedDocument) *harvest.ResumeRecord
}

// Deps collects the orchestrator's collaborators. Sessions, Dedup, Fetcher,
// Extractor, Sink, and IDs are required; the rest may be nil and the matching
// step is skipped.
type Deps struct {
	Sessions  SessionFactory
	Dedup     harvest.DedupStore
	Prober    harvest.Prober
	Scanner   harvest.PageScanner
	Fetcher   Fetcher
	Extractor Extractor
	Sink      harvest.RecordSink
	Archive   harvest.BlobStore
	Catalog   harvest.Catalog
	Publisher harvest.Publisher
	Emitter   progress.Emitter
	IDs       harvest.IDGenerator
	Clock     harvest.Clock
	Logger    *zap.Logger
}

// Orchestrator owns the run lifecycle.
type Orchestrator struct {
	cfg       Config
	sessions  SessionFactory
	dedup     harvest.DedupStore
	prober    harvest.Prober
	scanner   harvest.PageScanner
	fetcher   Fetcher
	extractor Extractor
	sink      harvest.RecordSink
	archive   harvest.BlobStore
	catalog   harvest.Catalog
	publisher harvest.Publisher
	emitter   progress.Emitter
	ids       harvest.IDGenerator
	clock     harvest.Clock
	logger    *zap.Logger
}

// New validates deps and applies config floors.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("orchestrator: session factory is required")
	case deps.Dedup == nil:
		return nil, errors.New("orchestrator: dedup store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("orchestrator: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case deps.Sink == nil:
		return nil, errors.New("orchestrator: record sink is required")
	case deps.IDs == nil:
		return nil, errors.New("orchestrator: id generator is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Workers * 8
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.ParallelQueries <= 0 {
		cfg.ParallelQueries = 1
	}
	if deps.Clock == nil {
		deps.Clock = systemclock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		sessions:  deps.Sessions,
		dedup:     deps.Dedup,
		prober:    deps.Prober,
		scanner:   deps.Scanner,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		sink:      deps.Sink,
		archive:   deps.Archive,
		catalog:   deps.Catalog,
		publisher: deps.Publisher,
		emitter:   deps.Emitter,
		ids:       deps.IDs,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}, nil
}

// Run executes every query and reports the aggregated summary. Per-candidate
// failures are logged and counted, never returned; a failed query is logged
// and the batch moves on. Only a *harvest.FatalConfigError in the returned
// chain should abort the process.
func (o *Orchestrator) Run(ctx context.Context, specs []harvest.QuerySpec) (harvest.RunSummary, error) {
	if err := o.validateSpecs(specs); err != nil {
		return harvest.RunSummary{}, err
	}

	runID, err := o.ids.NewID()
	if err != nil {
		return harvest.RunSummary{}, fmt.Errorf("allocate run id: %w", err)
	}
	run := newRunRef(runID)
	start := o.clock.Now()

	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("run starting", zap.Int("queries", len(specs)))
	o.emit(progress.Event{RunID: run.uid, TS: start.UTC(), Stage: progress.StageRunStart})
	if o.catalog != nil {
		if err := o.catalog.StartRun(ctx, runID, start); err != nil {
			logger.Warn("catalog start failed", zap.Error(err))
		}
	}

	var tl tally
	runErr := o.runQueries(ctx, run, specs, &tl)

	summary := tl.summary()
	finished := o.clock.Now()
	if o.catalog != nil {
		if err := o.catalog.FinishRun(ctx, runID, finished, summary); err != nil {
			logger.Warn("catalog finish failed", zap.Error(err))
		}
	}

	if runErr != nil {
		o.emit(progress.Event{
			RunID:   run.uid,
			TS:      finished.UTC(),
			Stage:   progress.StageRunError,
			Outcome: "error",
			Dur:     finished.Sub(start),
			Note:    runErr.Error(),
		})
		return summary, runErr
	}

	o.emit(progress.Event{
		RunID:   run.uid,
		TS:      finished.UTC(),
		Stage:   progress.StageRunDone,
		Outcome: "success",
		Dur:     finished.Sub(start),
	})
	logger.Info("run finished",
		zap.Int64("links_direct", summary.LinksDirect),
		zap.Int64("links_probed", summary.LinksProbed),
		zap.Int64("links_scanned", summary.LinksScanned),
		zap.Int64("fetched", summary.Fetched),
		zap.Int64("duplicates", summary.Duplicates),
		zap.Int64("fetch_failures", summary.FetchFailures),
		zap.Int64("records_ai", summary.RecordsAI),
		zap.Int64("records_fallback", summary.RecordsFallback),
	)
	return summary, nil
}

func (o *Orchestrator) validateSpecs(specs []harvest.QuerySpec) error {
	if len(specs) == 0 {
		return harvest.NewFatalConfigError(errors.New("no queries configured"))
	}
	for _, spec := range specs {
		if spec.Query == "" && spec.ResultsURL == "" {
			return harvest.NewFatalConfigError(fmt.Errorf("query %q has neither query text nor a results url", spec.Name))
		}
		if spec.ResultsURL == "" && o.cfg.SearxURL == "" {
			return harvest.NewFatalConfigError(errors.New("search base url is required"))
		}
	}
	return nil
}

// runQueries fans the specs out sequentially or through an errgroup. Only a
// fatal config error propagates; other query failures are logged so the rest
// of the batch still runs.
func (o *Orchestrator) runQueries(ctx context.Context, run runRef, specs []harvest.QuerySpec, tl *tally) error {
	if o.cfg.ParallelQueries <= 1 {
		for _, spec := range specs {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run canceled: %w", err)
			}
			if err := o.runQuery(ctx, run, spec, tl); err != nil {
				if isFatal(err) {
					return err
				}
				o.logger.Error("query failed",
					zap.String("run_id", run.id),
					zap.String("query", specLabel(spec)),
					zap.Error(err),
				)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ParallelQueries)
	for _, spec := range specs {
		g.Go(func() error {
			if err := o.runQuery(gctx, run, spec, tl); err != nil {
				if isFatal(err) {
					return err
				}
				o.logger.Error("query failed",
					zap.String("run_id", run.id),
					zap.String("query", specLabel(spec)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// runQuery opens a session, spawns the worker pool, and drives the collector
// loop until cutoff or exhaustion. The pool always drains before return.
func (o *Orchestrator) runQuery(ctx context.Context, run runRef, spec harvest.QuerySpec, tl *tally) error {
	label := specLabel(spec)
	logger := o.logger.With(zap.String("run_id", run.id), zap.String("query", label))

	maxResults := spec.MaxResults
	if maxResults <= 0 {
		maxResults = o.cfg.MaxResults
	}
	pageURL := spec.ResultsURL
	if pageURL == "" {
		pageURL = harvest.BuildSearchURL(o.cfg.SearxURL, spec.Query)
	}

	session, err := o.sessions.NewSession()
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("session close failed", zap.Error(err))
		}
	}()

	o.emit(progress.Event{
		RunID: run.uid,
		TS:    o.clock.Now().UTC(),
		Stage: progress.StageQueryStart,
		Query: label,
		URL:   pageURL,
	})
	logger.Info("query starting", zap.String("page", pageURL), zap.Int("max_results", maxResults))

	collector := harvest.NewCollector(harvest.CollectorConfig{
		MaxResults:      maxResults,
		EmptyPageStreak: o.cfg.EmptyPageStreak,
	}, o.dedup, o.prober, o.scanner, logger)

	q := queue.New(o.cfg.QueueDepth)
	w := &queryWorker{orc: o, run: run, query: label, tally: tl, logger: logger}
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, q)
		}()
	}

	collectErr := o.collect(ctx, run, label, session, collector, pageURL, q, tl, logger)
	q.Close()
	wg.Wait()

	o.emit(progress.Event{
		RunID: run.uid,
		TS:    o.clock.Now().UTC(),
		Stage: progress.StageQueryDone,
		Query: label,
		Links: int64(collector.Count()),
	})
	logger.Info("query finished", zap.Int("candidates", collector.Count()))
	return collectErr
}

// collect drives the load/scrape/scroll loop and enqueues new candidates.
func (o *Orchestrator) collect(
	ctx context.Context,
	run runRef,
	label string,
	session harvest.Session,
	collector *harvest.Collector,
	pageURL string,
	q *queue.Queue,
	tl *tally,
	logger *zap.Logger,
) error {
	if err := session.Load(ctx, pageURL); err != nil {
		return fmt.Errorf("load results page: %w", err)
	}
	for {
		html, err := session.HTML(ctx)
		if err != nil {
			return fmt.Errorf("read results page: %w", err)
		}
		res, err := collector.CollectPage(ctx, html, pageURL)
		if err != nil {
			return fmt.Errorf("collect page: %w", err)
		}
		for _, link := range res.Links {
			metrics.IncLinkDiscovered(string(link.Method))
			tl.countDiscovery(link.Method)
			if err := q.Enqueue(ctx, link); err != nil {
				return err
			}
		}
		o.emit(progress.Event{
			RunID: run.uid,
			TS:    o.clock.Now().UTC(),
			Stage: progress.StagePageCollected,
			Query: label,
			URL:   pageURL,
			Links: int64(len(res.Links)),
		})
		switch {
		case res.CutoffReached:
			logger.Debug("cutoff reached", zap.Int("candidates", collector.Count()))
			return nil
		case res.Exhausted:
			logger.Debug("results exhausted", zap.Int("candidates", collector.Count()))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("collection canceled: %w", err)
		}
		if err := session.Scroll(ctx); err != nil {
			// A broken scroll ends collection with what we have.
			logger.Warn("scroll failed, ending collection", zap.Error(err))
			return nil
		}
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}

func isFatal(err error) bool {
	var fatal *harvest.FatalConfigError
	return errors.As(err, &fatal)
}

// specLabel names a query for logs and events.
func specLabel(spec harvest.QuerySpec) string {
	switch {
	case spec.Name != "":
		return spec.Name
	case spec.Query != "":
		return spec.Query
	default:
		return spec.ResultsURL
	}
}

// runRef carries both forms of the run identity: the string for storage and
// logs, the UUID form for progress events.
type runRef struct {
	id  string
	uid [16]byte
}

func newRunRef(id string) runRef {
	parsed, err := uuid.Parse(id)
	if err != nil {
		// Non-UUID generators still need a stable, non-zero event identity.
		parsed = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	}
	return runRef{id: id, uid: progress.UUIDToBytes(parsed)}
}

// tally accumulates run counters across queries and workers.
type tally struct {
	direct, probed, scanned            atomic.Int64
	fetched, duplicates, fetchFailures atomic.Int64
	recordsAI, recordsFallback         atomic.Int64
}

func (t *tally) countDiscovery(method harvest.DiscoveryMethod) {
	switch method {
	case harvest.DiscoveryDirectLink:
		t.direct.Add(1)
	case harvest.DiscoveryContentTypeProbe:
		t.probed.Add(1)
	case harvest.DiscoveryPageScan:
		t.scanned.Add(1)
	}
}

func (t *tally) summary() harvest.RunSummary {
	return harvest.RunSummary{
		LinksDirect:     t.direct.Load(),
		LinksProbed:     t.probed.Load(),
		LinksScanned:    t.scanned.Load(),
		Fetched:         t.fetched.Load(),
		Duplicates:      t.duplicates.Load(),
		FetchFailures:   t.fetchFailures.Load(),
		RecordsAI:       t.recordsAI.Load(),
		RecordsFallback: t.recordsFallback.Load(),
	}
}
