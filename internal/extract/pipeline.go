package extract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
	"github.com/mfeldman486/resume-harvester/internal/metrics"
)

const defaultStructureTimeout = 90 * time.Second

// PipelineConfig carries extraction settings.
type PipelineConfig struct {
	// Timeout bounds one primary structuring call per document.
	Timeout time.Duration
}

// Pipeline turns a fetched PDF into a resume record. The primary structurer
// is tried first under its timeout; any failure there degrades to the regex
// fallback. Extraction never fails a document outright: every fetched PDF
// yields exactly one record.
type Pipeline struct {
	cfg     PipelineConfig
	primary Structurer
	logger  *zap.Logger
}

// NewPipeline wires a pipeline. primary may be nil, in which case every
// document takes the fallback path.
func NewPipeline(cfg PipelineConfig, primary Structurer, logger *zap.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStructureTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, primary: primary, logger: logger}
}

// Extract produces the record for one document.
func (p *Pipeline) Extract(ctx context.Context, doc *harvest.FetchedDocument) *harvest.ResumeRecord {
	text := ExtractText(doc.LocalPath, p.logger)

	fields, method := p.structure(ctx, doc, text)
	if fields.Experiences == nil {
		fields.Experiences = []string{}
	}

	record := &harvest.ResumeRecord{
		ID:          harvest.RecordID(doc.ContentHash),
		Name:        fields.Name,
		Email:       fields.Email,
		GitHub:      fields.GitHub,
		Education:   fields.Education,
		Experiences: fields.Experiences,
		SourceURL:   doc.SourceURL,
		PDFPath:     doc.LocalPath,
		Method:      method,
	}
	metrics.IncExtraction(string(method))
	p.logger.Info("document extracted",
		zap.String("id", record.ID),
		zap.String("method", string(method)),
		zap.Bool("has_email", record.Email != nil),
	)
	return record
}

func (p *Pipeline) structure(ctx context.Context, doc *harvest.FetchedDocument, text Text) (*harvest.ResumeFields, harvest.ExtractionMethod) {
	if p.primary != nil && !text.Empty() {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		fields, err := p.primary.Structure(callCtx, text)
		cancel()
		if err == nil {
			return fields, harvest.ExtractionAI
		}
		p.logger.Warn("primary extraction failed, using fallback",
			zap.String("hash", doc.ContentHash),
			zap.Error(err),
		)
	}
	return FallbackExtract(text.Full), harvest.ExtractionFallback
}
