package harvest

import (
	"context"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/metrics"
	"github.com/mfeldman486/resume-harvester/internal/policy/ratelimit"
)

// probeCacheSize bounds the probe memo; result pages repeat hosts and URLs
// heavily across scrolls.
const probeCacheSize = 4096

// ProbeConfig bounds the content-type probe strategy.
type ProbeConfig struct {
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
	HostRPS     float64
	HostBurst   int
}

// HeadProber classifies URLs by issuing a HEAD request and inspecting the
// declared content type. Probes are limited per host and bounded in number of
// concurrent requests so result hosts are not hammered.
type HeadProber struct {
	client  *http.Client
	cfg     ProbeConfig
	limiter *ratelimit.Limiter
	sem     chan struct{}
	cache   *lru.Cache[string, bool]
	logger  *zap.Logger
}

// NewHeadProber builds a prober.
func NewHeadProber(cfg ProbeConfig, logger *zap.Logger) *HeadProber {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := lru.New[string, bool](probeCacheSize)
	return &HeadProber{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
		limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HostRPS,
			DefaultBurst: cfg.HostBurst,
		}),
		sem:    make(chan struct{}, cfg.Concurrency),
		cache:  cache,
		logger: logger,
	}
}

// IsPDF reports whether the URL's declared content type is application/pdf.
// Any probe failure classifies as not-PDF; discovery simply yields fewer
// links.
func (p *HeadProber) IsPDF(ctx context.Context, rawURL string) bool {
	if cached, ok := p.cache.Get(rawURL); ok {
		return cached
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return false
	}

	if err := p.limiter.Wait(ctx, rawURL); err != nil {
		return false
	}

	result := p.probe(ctx, rawURL)
	p.cache.Add(rawURL, result)
	return result
}

func (p *HeadProber) probe(ctx context.Context, rawURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		p.logger.Debug("probe request build failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.IncProbe("error")
		p.logger.Debug("probe failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ctype, "application/pdf") {
		metrics.IncProbe("pdf")
		return true
	}
	metrics.IncProbe("other")
	return false
}
