package orchestrator

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
	"github.com/mfeldman486/resume-harvester/internal/metrics"
	"github.com/mfeldman486/resume-harvester/internal/progress"
	"github.com/mfeldman486/resume-harvester/internal/queue"
)

// queryWorker processes candidates for one query. Instances are shared by
// every goroutine of the pool; all state they touch is concurrency-safe.
type queryWorker struct {
	orc    *Orchestrator
	run    runRef
	query  string
	tally  *tally
	logger *zap.Logger
}

// loop drains the queue until it closes or the context ends.
func (w *queryWorker) loop(ctx context.Context, q *queue.Queue) {
	for {
		link, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		w.process(ctx, link)
	}
}

// process runs one candidate through fetch, extract, sink, and the optional
// backends. Every failure past this point is logged and swallowed; a bad
// candidate never takes the run down.
func (w *queryWorker) process(ctx context.Context, link harvest.CandidateLink) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.orc.clock.Now()
	doc, fresh, err := w.orc.fetcher.Fetch(ctx, link)
	dur := w.orc.clock.Now().Sub(start)
	host := harvest.HostOf(link.URL)
	if err != nil {
		kind := harvest.FetchErrorKind(err)
		w.tally.fetchFailures.Add(1)
		w.emitFetch(link.URL, host, kind, 0, dur)
		w.logger.Warn("fetch failed",
			zap.String("url", link.URL),
			zap.String("discovery", string(link.Method)),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}

	if !fresh {
		w.tally.duplicates.Add(1)
		w.emitFetch(link.URL, host, "duplicate", doc.ByteSize, dur)
		w.logger.Debug("duplicate content, skipping extraction",
			zap.String("url", link.URL),
			zap.String("hash", doc.ContentHash),
			zap.String("first_seen_url", doc.SourceURL),
		)
		return
	}
	w.tally.fetched.Add(1)
	w.emitFetch(link.URL, host, "success", doc.ByteSize, dur)

	record := w.orc.extractor.Extract(ctx, doc)
	if err := w.orc.sink.Write(record); err != nil {
		// The PDF stays on disk, so a rerun can recover the record.
		w.logger.Error("record write failed",
			zap.String("id", record.ID),
			zap.String("url", doc.SourceURL),
			zap.Error(err),
		)
		return
	}
	if record.Method == harvest.ExtractionAI {
		w.tally.recordsAI.Add(1)
	} else {
		w.tally.recordsFallback.Add(1)
	}

	w.archiveDocument(ctx, doc)
	w.recordAndPublish(ctx, record, doc)

	w.orc.emit(progress.Event{
		RunID:  w.run.uid,
		TS:     w.orc.clock.Now().UTC(),
		Stage:  progress.StageRecordDone,
		Query:  w.query,
		URL:    doc.SourceURL,
		Method: string(record.Method),
	})
	w.logger.Info("record written",
		zap.String("id", record.ID),
		zap.String("url", doc.SourceURL),
		zap.String("method", string(record.Method)),
	)
}

// archiveDocument uploads a newly fetched PDF when an archive is configured.
func (w *queryWorker) archiveDocument(ctx context.Context, doc *harvest.FetchedDocument) {
	if w.orc.archive == nil {
		return
	}
	f, err := os.Open(doc.LocalPath)
	if err != nil {
		w.logger.Warn("archive open failed", zap.String("path", doc.LocalPath), zap.Error(err))
		return
	}
	defer f.Close()

	name := w.blobName(doc.ContentHash)
	uri, err := w.orc.archive.Put(ctx, name, "application/pdf", f)
	if err != nil {
		w.logger.Warn("archive upload failed", zap.String("name", name), zap.Error(err))
		return
	}
	w.logger.Debug("document archived", zap.String("uri", uri))
}

// blobName builds the archive object name: [prefix/]runID/hash.pdf.
func (w *queryWorker) blobName(hash string) string {
	name := w.run.id + "/" + hash + ".pdf"
	if prefix := strings.Trim(w.orc.cfg.ArchivePrefix, "/"); prefix != "" {
		name = prefix + "/" + name
	}
	return name
}

// recordAndPublish persists catalog metadata and pushes the record out.
func (w *queryWorker) recordAndPublish(ctx context.Context, record *harvest.ResumeRecord, doc *harvest.FetchedDocument) {
	if w.orc.catalog != nil {
		if err := w.orc.catalog.RecordDocument(ctx, w.run.id, record, doc); err != nil {
			w.logger.Warn("catalog record failed", zap.String("id", record.ID), zap.Error(err))
		}
	}
	if w.orc.publisher != nil && w.orc.cfg.Topic != "" {
		if _, err := w.orc.publisher.Publish(ctx, w.orc.cfg.Topic, record); err != nil {
			w.logger.Warn("publish failed", zap.String("id", record.ID), zap.Error(err))
		}
	}
}

func (w *queryWorker) emitFetch(url, host, outcome string, bytes int64, dur time.Duration) {
	w.orc.emit(progress.Event{
		RunID:   w.run.uid,
		TS:      w.orc.clock.Now().UTC(),
		Stage:   progress.StageFetchDone,
		Query:   w.query,
		URL:     url,
		Host:    host,
		Outcome: outcome,
		Bytes:   bytes,
		Dur:     dur,
	})
}
