package harvest

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// resultSelectors targets SearXNG result markup; the generic sweep below
// covers other result layouts.
const resultSelectors = "article.result a.url_header, article.result h3 a"

// Prober classifies an ambiguous URL as PDF or not via a lightweight
// HEAD-equivalent check.
type Prober interface {
	IsPDF(ctx context.Context, rawURL string) bool
}

// PageScanner visits result pages and returns PDF-looking links found inside
// them. Used only as the last-resort discovery strategy.
type PageScanner interface {
	Scan(ctx context.Context, pageURLs []string) []string
}

// CollectorConfig bounds one query's collection.
type CollectorConfig struct {
	MaxResults      int
	EmptyPageStreak int
}

// PageResult reports the outcome of collecting one rendered page.
type PageResult struct {
	Links []CandidateLink
	// Exhausted is set after the configured number of consecutive pages
	// yielded nothing new; distinct from hitting the cutoff.
	Exhausted bool
	// CutoffReached is set once the query's max-results cap is hit.
	CutoffReached bool
}

// Collector turns rendered search-result pages into a deduplicated,
// order-preserving stream of candidate links for one query. It is re-invoked
// per page as the caller scrolls; state accumulates across pages.
type Collector struct {
	cfg     CollectorConfig
	store   DedupStore
	prober  Prober
	scanner PageScanner
	logger  *zap.Logger

	count      int
	emptyPages int
	seenRaw    map[string]struct{}
}

// NewCollector builds a collector for a single query.
func NewCollector(cfg CollectorConfig, store DedupStore, prober Prober, scanner PageScanner, logger *zap.Logger) *Collector {
	if cfg.EmptyPageStreak <= 0 {
		cfg.EmptyPageStreak = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		cfg:     cfg,
		store:   store,
		prober:  prober,
		scanner: scanner,
		logger:  logger,
		seenRaw: make(map[string]struct{}),
	}
}

// Count returns the number of candidates yielded so far.
func (c *Collector) Count() int {
	return c.count
}

// CollectPage extracts candidates from one rendered results page. Strategies
// run in priority order; each contributes only URLs not yet seen this run.
func (c *Collector) CollectPage(ctx context.Context, pageHTML, sourcePage string) (PageResult, error) {
	var res PageResult
	if c.count >= c.cfg.MaxResults {
		res.CutoffReached = true
		return res, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		// Malformed page: a discovery error, not a run error.
		c.logger.Debug("results page unparseable", zap.String("page", sourcePage), zap.Error(err))
		c.observePageYield(0, &res)
		return res, nil
	}

	anchors := c.resultAnchors(doc, sourcePage)
	newRaw := 0
	for _, href := range anchors {
		if _, ok := c.seenRaw[href]; !ok {
			c.seenRaw[href] = struct{}{}
			newRaw++
		}
	}

	var ambiguous []string
	added := 0

	// Strategy 1: direct links.
	for _, href := range anchors {
		if c.count >= c.cfg.MaxResults {
			break
		}
		if IsPDFURL(href) || queryDeclaresPDF(href) {
			if c.admit(href, DiscoveryDirectLink, sourcePage, &res) {
				added++
			}
			continue
		}
		ambiguous = append(ambiguous, href)
	}

	// Strategy 2: content-type probes for links with no extension hint.
	for _, href := range ambiguous {
		if c.count >= c.cfg.MaxResults {
			break
		}
		if c.prober != nil && c.prober.IsPDF(ctx, href) {
			if c.admit(href, DiscoveryContentTypeProbe, sourcePage, &res) {
				added++
			}
		}
	}

	// Strategy 3: last resort, only when a page known to contain results
	// produced nothing through the first two strategies.
	if added == 0 && len(anchors) > 0 && c.scanner != nil && c.count < c.cfg.MaxResults {
		targets := scanTargets(ambiguous)
		for _, found := range c.scanner.Scan(ctx, targets) {
			if c.count >= c.cfg.MaxResults {
				break
			}
			if c.admit(found, DiscoveryPageScan, sourcePage, &res) {
				added++
			}
		}
	}

	c.observePageYield(newRaw, &res)
	if c.count >= c.cfg.MaxResults {
		res.CutoffReached = true
	}
	return res, nil
}

// admit registers the URL against the run-wide index and, if unseen, appends
// a candidate. Returns whether a candidate was added.
func (c *Collector) admit(rawURL string, method DiscoveryMethod, sourcePage string, res *PageResult) bool {
	norm, err := NormalizeURL(rawURL)
	if err != nil {
		c.logger.Debug("skipping malformed candidate", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	if !c.store.MarkURL(norm) {
		return false
	}
	res.Links = append(res.Links, CandidateLink{URL: rawURL, Method: method, SourcePage: sourcePage})
	c.count++
	return true
}

func (c *Collector) observePageYield(newRaw int, res *PageResult) {
	if newRaw == 0 {
		c.emptyPages++
	} else {
		c.emptyPages = 0
	}
	if c.emptyPages >= c.cfg.EmptyPageStreak {
		res.Exhausted = true
	}
}

// resultAnchors pulls hrefs out of the result markup, absolutized against the
// source page. The SearXNG selectors run first; when they match nothing the
// generic anchor sweep keeps other layouts working.
func (c *Collector) resultAnchors(doc *goquery.Document, sourcePage string) []string {
	base, _ := url.Parse(sourcePage)
	var out []string
	seen := make(map[string]struct{})

	collect := func(sel *goquery.Selection) {
		sel.Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || href == "" {
				return
			}
			abs := absolutize(base, href)
			if abs == "" {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		})
	}

	collect(doc.Find(resultSelectors))
	if len(out) == 0 {
		collect(doc.Find("a[href]"))
	}
	return out
}

// IsPDFURL reports whether the URL path ends in .pdf (case-insensitive).
func IsPDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// queryDeclaresPDF detects query strings that declare a PDF payload, e.g.
// download endpoints taking format=pdf or an explicit content type.
func queryDeclaresPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	for _, key := range []string{"format", "type", "filetype", "export"} {
		if strings.EqualFold(q.Get(key), "pdf") {
			return true
		}
	}
	ct := strings.ToLower(q.Get("content-type"))
	return strings.Contains(ct, "application/pdf")
}

// scanTargets picks the pages worth visiting for the on-page scan: http(s)
// links that are not themselves PDFs.
func scanTargets(hrefs []string) []string {
	var out []string
	for _, href := range hrefs {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		out = append(out, href)
	}
	return out
}

func absolutize(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
