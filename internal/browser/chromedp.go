// Package browser drives headless Chrome sessions for search result pages.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// initialSettle gives the result page a moment to render after navigation
// before the first link collection.
const initialSettle = 700 * time.Millisecond

// scrollScript jumps to the bottom of the page to trigger infinite scroll.
const scrollScript = "window.scrollBy(0, document.body.scrollHeight);"

// Config controls the shared Chrome process and its sessions.
type Config struct {
	Headless         bool
	UserAgent        string
	PageLoadTimeout  time.Duration
	ScrollSettle     time.Duration
	DebugDir         string
	IgnoreCertErrors bool
}

// Browser owns one Chrome allocator. Sessions share the process but each gets
// its own tab.
type Browser struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New prepares a Chrome allocator. The process itself starts lazily with the
// first session.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = 30 * time.Second
	}
	if cfg.ScrollSettle <= 0 {
		cfg.ScrollSettle = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1280, 800),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreCertErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close tears down the allocator and every remaining tab.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewSession opens a fresh tab for one query.
func (b *Browser) NewSession() (harvest.Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	return &session{
		cfg:    b.cfg,
		logger: b.logger,
		ctx:    tabCtx,
		cancel: tabCancel,
	}, nil
}

type session struct {
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

var _ harvest.Session = (*session)(nil)

// Load navigates the tab and waits for the result page to settle.
func (s *session) Load(ctx context.Context, url string) error {
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(initialSettle),
	}
	if err := s.run(ctx, s.cfg.PageLoadTimeout, actions...); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

// Scroll jumps to the page bottom and waits for new results to render.
func (s *session) Scroll(ctx context.Context) error {
	actions := []chromedp.Action{
		chromedp.Evaluate(scrollScript, nil),
		chromedp.Sleep(s.cfg.ScrollSettle),
	}
	if err := s.run(ctx, s.cfg.PageLoadTimeout, actions...); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// HTML returns the current rendered DOM.
func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.PageLoadTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Close dumps debug artifacts for the final page state, then drops the tab.
func (s *session) Close() error {
	if s.cfg.DebugDir != "" {
		s.captureDebug()
	}
	s.cancel()
	return nil
}

// run executes actions on the session tab under the given timeout, honoring
// the caller's cancellation as well.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := network.SetExtraHTTPHeaders(browserHeaders()).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// browserHeaders mimics an interactive browser; bare automation headers get
// some SearXNG instances to refuse service.
func browserHeaders() network.Headers {
	return network.Headers{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
	}
}

// captureDebug writes the final page HTML and a full-page screenshot. Debug
// output is best effort; failures are logged and ignored.
func (s *session) captureDebug() {
	if err := os.MkdirAll(s.cfg.DebugDir, 0o750); err != nil {
		s.logger.Warn("create debug dir", zap.String("dir", s.cfg.DebugDir), zap.Error(err))
		return
	}

	dumpCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(dumpCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err == nil {
		path := filepath.Join(s.cfg.DebugDir, "search_page.html")
		if err := os.WriteFile(path, []byte(html), 0o600); err != nil {
			s.logger.Warn("write debug html", zap.String("path", path), zap.Error(err))
		}
	} else {
		s.logger.Warn("capture debug html", zap.Error(err))
	}

	var shot []byte
	if err := chromedp.Run(dumpCtx, chromedp.FullScreenshot(&shot, 90)); err == nil {
		path := filepath.Join(s.cfg.DebugDir, "search_page.png")
		if err := os.WriteFile(path, shot, 0o600); err != nil {
			s.logger.Warn("write debug screenshot", zap.String("path", path), zap.Error(err))
		}
	} else {
		s.logger.Warn("capture debug screenshot", zap.Error(err))
	}
}
