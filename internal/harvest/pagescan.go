package harvest

import (
	"context"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// PageScanConfig bounds the on-page scan strategy.
type PageScanConfig struct {
	UserAgent  string
	Timeout    time.Duration
	MaxPerPage int
}

// CollyScanner visits result pages and pulls out anchors that look like PDF
// resumes: hrefs ending in .pdf, or anchors whose href or text carries the
// "pdf" or "resume" token.
type CollyScanner struct {
	cfg    PageScanConfig
	base   *colly.Collector
	logger *zap.Logger
}

// NewCollyScanner builds a scanner.
func NewCollyScanner(cfg PageScanConfig, logger *zap.Logger) *CollyScanner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPerPage <= 0 {
		cfg.MaxPerPage = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &CollyScanner{cfg: cfg, base: c, logger: logger}
}

// Scan visits each page and returns candidate PDF URLs, capped per page.
// Failures on individual pages yield fewer links, never an error.
func (s *CollyScanner) Scan(ctx context.Context, pageURLs []string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, pageURL := range pageURLs {
		select {
		case <-ctx.Done():
			return out
		default:
		}
		found := s.scanPage(ctx, pageURL)
		for _, href := range found {
			if _, dup := seen[href]; dup {
				continue
			}
			seen[href] = struct{}{}
			out = append(out, href)
		}
	}
	return out
}

func (s *CollyScanner) scanPage(ctx context.Context, pageURL string) []string {
	collector := s.base.Clone()

	done := make(chan []string, 1)
	go func() {
		var found []string
		collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
			if len(found) >= s.cfg.MaxPerPage {
				return
			}
			abs := e.Request.AbsoluteURL(e.Attr("href"))
			if abs == "" {
				return
			}
			if IsPDFURL(abs) || hasResumeToken(abs) || hasResumeToken(e.Text) {
				found = append(found, abs)
			}
		})
		collector.OnError(func(_ *colly.Response, err error) {
			s.logger.Debug("page scan fetch failed", zap.String("page", pageURL), zap.Error(err))
		})
		if err := collector.Visit(pageURL); err != nil {
			s.logger.Debug("page scan visit failed", zap.String("page", pageURL), zap.Error(err))
		}
		done <- found
	}()

	select {
	case <-ctx.Done():
		// The in-flight visit finishes on its own timeout; its links are
		// dropped.
		return nil
	case found := <-done:
		return found
	}
}

// hasResumeToken reports whether the text carries the "pdf" or "resume"
// token, the last-resort discovery signal.
func hasResumeToken(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "pdf") || strings.Contains(lower, "resume")
}
