// Package app initializes and holds long-lived harvester services, acting as a
// dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/api"
	"github.com/mfeldman486/resume-harvester/internal/archive/gcs"
	"github.com/mfeldman486/resume-harvester/internal/archive/local"
	archmem "github.com/mfeldman486/resume-harvester/internal/archive/memory"
	"github.com/mfeldman486/resume-harvester/internal/browser"
	"github.com/mfeldman486/resume-harvester/internal/catalog"
	catalogpg "github.com/mfeldman486/resume-harvester/internal/catalog/postgres"
	"github.com/mfeldman486/resume-harvester/internal/config"
	"github.com/mfeldman486/resume-harvester/internal/dedup"
	dedupbadger "github.com/mfeldman486/resume-harvester/internal/dedup/badger"
	dedupmem "github.com/mfeldman486/resume-harvester/internal/dedup/memory"
	"github.com/mfeldman486/resume-harvester/internal/extract"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
	uuidgen "github.com/mfeldman486/resume-harvester/internal/id/uuid"
	"github.com/mfeldman486/resume-harvester/internal/logging"
	"github.com/mfeldman486/resume-harvester/internal/orchestrator"
	"github.com/mfeldman486/resume-harvester/internal/progress"
	"github.com/mfeldman486/resume-harvester/internal/progress/sinks"
	publisher "github.com/mfeldman486/resume-harvester/internal/publisher/pubsub"
	"github.com/mfeldman486/resume-harvester/internal/sink"
)

// App holds all the shared, long-lived services for the harvester. It acts as
// a dependency injection container: the browser process, dedup registry,
// output sink, archive, catalog, publisher, and progress hub are initialized
// once at startup and shut down together.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	browser    *browser.Browser
	dedup      harvest.DedupStore
	sink       harvest.RecordSink
	archive    harvest.BlobStore
	catalog    harvest.Catalog
	publisher  *publisher.Publisher
	structurer *extract.GeminiStructurer
	hub        *progress.Hub
	snapshot   *sinks.Snapshot
	orc        *orchestrator.Orchestrator

	gcsClient *gcpstorage.Client
	opsServer *http.Server
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded harvester configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetOrchestrator returns the run orchestrator with all services wired in.
func (a *App) GetOrchestrator() *orchestrator.Orchestrator {
	return a.orc
}

// NewApp creates and initializes a new App based on the application's
// configuration. It is the central point for service initialization: it loads
// the typed config from Viper and instantiates the configured providers
// (Badger or memory dedup, local/GCS archive, Postgres catalog, Pub/Sub
// publisher). It fails fast if any critical service cannot be initialized;
// every such failure is a FatalConfigError because it happens before the run
// starts.
func NewApp(ctx context.Context) (*App, error) {
	l := logging.L
	l.Info("Initializing harvester services...")

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, harvest.NewFatalConfigError(err)
	}

	// 1. Dedup registry. The registry carries both content hashes and seen
	// URLs; Badger makes it survive restarts.
	var store harvest.DedupStore
	switch cfg.Dedup.Backend {
	case "", "memory":
		l.Info("Using in-memory dedup registry")
		store = dedupmem.New()
	case "badger":
		l.Info("Using Badger dedup registry", zap.String("path", cfg.Dedup.BadgerPath))
		store, err = dedupbadger.Open(cfg.Dedup.BadgerPath)
		if err != nil {
			return nil, harvest.NewFatalConfigError(fmt.Errorf("initialize dedup registry: %w", err))
		}
	default:
		return nil, harvest.NewFatalConfigError(fmt.Errorf("unknown dedup backend: %s", cfg.Dedup.Backend))
	}

	// Pre-register PDFs already sitting in the download dir so an interrupted
	// batch resumes instead of re-downloading.
	recovered, err := dedup.RecoverFromDir(ctx, store, cfg.Harvest.DownloadDir, l)
	if err != nil {
		l.Warn("Dedup recovery scan failed", zap.Error(err))
	} else if recovered > 0 {
		l.Info("Recovered previously fetched documents", zap.Int("count", recovered))
	}

	// 2. Archive. Optional: when disabled, fetched PDFs stay only in the
	// download dir.
	var blobStore harvest.BlobStore
	var gcsClient *gcpstorage.Client
	switch cfg.Archive.Backend {
	case "":
		l.Info("Archival disabled")
	case "local":
		l.Info("Using local filesystem archive", zap.String("dir", cfg.Archive.LocalDir))
		blobStore, err = local.New(local.Config{BaseDir: cfg.Archive.LocalDir})
	case "gcs":
		l.Info("Using GCS archive", zap.String("bucket", cfg.Archive.Bucket))
		gcsClient, err = gcpstorage.NewClient(ctx)
		if err == nil {
			blobStore, err = gcs.New(gcsClient, gcs.Config{Bucket: cfg.Archive.Bucket})
		}
	case "memory":
		l.Info("Using in-memory archive")
		blobStore = archmem.NewBlobStore()
	default:
		err = fmt.Errorf("unknown archive backend: %s", cfg.Archive.Backend)
	}
	if err != nil {
		return nil, harvest.NewFatalConfigError(fmt.Errorf("initialize archive: %w", err))
	}

	// 3. Catalog. Postgres when a DSN is configured, otherwise a no-op.
	var cat harvest.Catalog = catalog.NewNoop()
	if cfg.Catalog.DSN != "" {
		l.Info("Connecting to Postgres catalog...")
		cat, err = catalogpg.New(ctx, catalogpg.Config{
			DSN:             cfg.Catalog.DSN,
			RunsTable:       cfg.Catalog.RunsTable,
			DocumentsTable:  cfg.Catalog.DocumentsTable,
			MaxConns:        cfg.Catalog.MaxConns,
			MinConns:        cfg.Catalog.MinConns,
			MaxConnLifetime: cfg.Catalog.MaxConnLifetime,
		})
		if err != nil {
			return nil, harvest.NewFatalConfigError(fmt.Errorf("initialize catalog: %w", err))
		}
	} else {
		l.Info("No catalog DSN configured; run metadata will not be persisted")
	}

	// 4. Publisher. Record notifications go to Pub/Sub when both project and
	// topic are set.
	var pub *publisher.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		l.Info("Connecting to GCP Pub/Sub",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.Topic),
		)
		client, perr := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if perr != nil {
			return nil, harvest.NewFatalConfigError(fmt.Errorf("initialize pubsub: %w", perr))
		}
		pub = publisher.New(client)
	}

	// 5. Progress hub. The snapshot sink feeds the ops server; the Prometheus
	// sink exports run metrics; the log sink is opt-in for debugging.
	var hub *progress.Hub
	var snapshot *sinks.Snapshot
	if cfg.Progress.Enabled {
		snapshot = sinks.NewSnapshot()
		promSink, perr := sinks.NewPrometheusSink(nil)
		if perr != nil {
			return nil, fmt.Errorf("initialize progress metrics: %w", perr)
		}
		hubSinks := []progress.Sink{snapshot, promSink}
		if cfg.Progress.LogEnabled {
			hubSinks = append(hubSinks, sinks.NewLogSink(l))
		}
		hub = progress.NewHub(progress.Config{
			BufferSize:     cfg.Progress.BufferSize,
			MaxBatchEvents: cfg.Progress.Batch.MaxEvents,
			MaxBatchWait:   time.Duration(cfg.Progress.Batch.MaxWaitMS) * time.Millisecond,
			SinkTimeout:    time.Duration(cfg.Progress.SinkTimeoutMS) * time.Millisecond,
			Logger:         l,
		}, hubSinks...)
	}

	// 6. Browser, discovery helpers, fetcher, extraction, output.
	sessions, err := browser.New(browser.Config{
		Headless:         cfg.Search.Headless,
		UserAgent:        cfg.Search.UserAgent,
		PageLoadTimeout:  cfg.Search.PageLoadTimeout,
		ScrollSettle:     cfg.Search.ScrollSettle,
		DebugDir:         cfg.Search.DebugDir,
		IgnoreCertErrors: cfg.Search.IgnoreCertErrors,
	}, l)
	if err != nil {
		return nil, harvest.NewFatalConfigError(fmt.Errorf("initialize browser: %w", err))
	}

	prober := harvest.NewHeadProber(harvest.ProbeConfig{
		Concurrency: cfg.Harvest.ProbeConcurrency,
		Timeout:     cfg.Harvest.ProbeTimeout,
		UserAgent:   cfg.Search.UserAgent,
		HostRPS:     cfg.Harvest.ProbeHostRPS,
		HostBurst:   cfg.Harvest.ProbeHostBurst,
	}, l)
	scanner := harvest.NewCollyScanner(harvest.PageScanConfig{
		UserAgent:  cfg.Search.UserAgent,
		Timeout:    cfg.Harvest.ProbeTimeout,
		MaxPerPage: cfg.Harvest.PageScanLinks,
	}, l)

	ids := uuidgen.New()
	fetcher, err := harvest.NewFetcher(harvest.FetcherConfig{
		DownloadDir: cfg.Harvest.DownloadDir,
		Timeout:     cfg.Harvest.DownloadTimeout,
		UserAgent:   cfg.Search.UserAgent,
	}, store, ids, l)
	if err != nil {
		return nil, harvest.NewFatalConfigError(fmt.Errorf("initialize fetcher: %w", err))
	}

	var structurer *extract.GeminiStructurer
	var primary extract.Structurer
	if len(cfg.Extract.APIKeys) > 0 {
		structurer, err = extract.NewGeminiStructurer(ctx, cfg.Extract.Model, cfg.Extract.APIKeys, l)
		if err != nil {
			l.Warn("Gemini structurer unavailable; every document will take the regex fallback", zap.Error(err))
			structurer = nil
		} else {
			l.Info("Using Gemini structurer",
				zap.String("model", cfg.Extract.Model),
				zap.Int("keys", len(cfg.Extract.APIKeys)),
			)
			primary = structurer
		}
	} else {
		l.Info("No extraction API keys configured; using regex fallback only")
	}
	pipeline := extract.NewPipeline(extract.PipelineConfig{Timeout: cfg.Extract.Timeout}, primary, l)

	out, err := sink.NewJSONL(cfg.Harvest.OutputPath, l)
	if err != nil {
		return nil, harvest.NewFatalConfigError(fmt.Errorf("open output sink: %w", err))
	}

	// 7. Orchestrator.
	deps := orchestrator.Deps{
		Sessions:  sessions,
		Dedup:     store,
		Prober:    prober,
		Scanner:   scanner,
		Fetcher:   fetcher,
		Extractor: pipeline,
		Sink:      out,
		Archive:   blobStore,
		Catalog:   cat,
		IDs:       ids,
		Logger:    l,
	}
	if pub != nil {
		deps.Publisher = pub
	}
	if hub != nil {
		deps.Emitter = hub
	}
	orc, err := orchestrator.New(orchestrator.Config{
		SearxURL:        cfg.Search.BaseURL,
		Workers:         cfg.Harvest.Workers,
		QueueDepth:      cfg.Harvest.QueueDepth,
		MaxResults:      cfg.Harvest.MaxResults,
		EmptyPageStreak: cfg.Search.EmptyPageStreak,
		ParallelQueries: cfg.Harvest.ParallelQueries,
		ArchivePrefix:   cfg.Archive.Prefix,
		Topic:           cfg.PubSub.Topic,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("initialize orchestrator: %w", err)
	}

	a := &App{
		cfg:        cfg,
		logger:     l,
		browser:    sessions,
		dedup:      store,
		sink:       out,
		archive:    blobStore,
		catalog:    cat,
		publisher:  pub,
		structurer: structurer,
		hub:        hub,
		snapshot:   snapshot,
		orc:        orc,
		gcsClient:  gcsClient,
	}

	// 8. Ops server, next to the run in its own goroutine.
	if cfg.Server.Enabled {
		srv := api.NewServer(snapshot, l)
		a.opsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			l.Info("Starting ops server", zap.String("addr", a.opsServer.Addr))
			if serveErr := a.opsServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				l.Error("Ops server failed", zap.Error(serveErr))
			}
		}()
	}

	l.Info("Harvester services initialized successfully.")
	return a, nil
}

// Close gracefully shuts down all services in the App container. It is called
// by a Cobra hook after the command finishes execution. The ops server and
// progress hub stop first so late events still flush; the logger syncs last.
func (a *App) Close() {
	a.logger.Info("Shutting down harvester services...")
	if a.opsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.opsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Error stopping ops server", zap.Error(err))
		}
		cancel()
	}
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("Error draining progress hub", zap.Error(err))
		}
		cancel()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Error closing publisher", zap.Error(err))
		}
	}
	if a.structurer != nil {
		if err := a.structurer.Close(); err != nil {
			a.logger.Warn("Error closing structurer clients", zap.Error(err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Warn("Error closing catalog", zap.Error(err))
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("Error closing output sink", zap.Error(err))
		}
	}
	if a.dedup != nil {
		if err := a.dedup.Close(); err != nil {
			a.logger.Warn("Error closing dedup registry", zap.Error(err))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("Error closing storage client", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Sync to stderr routinely fails on some platforms; best effort only.
		a.logger.Debug("Logger sync on shutdown", zap.Error(err))
	}
}
