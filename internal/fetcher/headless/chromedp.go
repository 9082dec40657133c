// Package headless implements crawler.Browser with headless Chrome via chromedp.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/fetcher/dom"
)

const defaultNavTimeout = 30 * time.Second

// Config controls the behavior of the headless browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	Headless          bool
	WindowWidth       int
	WindowHeight      int
}

// Browser owns one Chrome process; each session is a tab in it.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp prepares the allocator. Chrome starts with the first session.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.allocCancel()
	return nil
}

// NewSession opens a tab. It blocks while MaxParallel tabs are open.
func (b *Browser) NewSession(ctx context.Context) (crawler.Session, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	s := &Session{browser: b, tab: tabCtx, cancel: tabCancel, meta: newResponseMeta()}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)

	if err := chromedp.Run(tabCtx, b.setupAction()); err != nil {
		tabCancel()
		b.release()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return s, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if b.cfg.WindowWidth > 0 && b.cfg.WindowHeight > 0 {
			metrics := emulation.SetDeviceMetricsOverride(int64(b.cfg.WindowWidth), int64(b.cfg.WindowHeight), 1, false)
			if err := metrics.Do(ctx); err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// Session is one Chrome tab. Locate reads a DOM snapshot taken when the page
// finished loading; Evaluate runs against the live page.
type Session struct {
	browser   *Browser
	tab       context.Context
	cancel    context.CancelFunc
	meta      *responseMeta
	doc       *dom.Document
	closeOnce sync.Once
}

// operation derives a per-call context bound to both the tab and the caller.
func (s *Session) operation(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.tab, s.browser.navTimeout())
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url, waits for the body, and snapshots the DOM.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.doc = nil
	s.meta.reset()
	opCtx, cancel := s.operation(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp navigate canceled: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	if status := s.meta.status(); status >= http.StatusBadRequest {
		return fmt.Errorf("chromedp navigate %s: status %d", url, status)
	}
	doc, err := dom.Parse([]byte(html))
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// Locate implements crawler.Session.
func (s *Session) Locate(_ context.Context, selector string) ([]crawler.Element, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("locate %q: no page loaded", selector)
	}
	return s.doc.Locate(selector)
}

// Evaluate runs script in the page and decodes the JSON result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	opCtx, cancel := s.operation(ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("chromedp evaluate: %w", err)
	}
	return nil
}

// Close closes the tab and frees its slot.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.browser.release()
	})
	return nil
}

// responseMeta remembers the status of the last document response.
type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.code = 0
	m.mu.Unlock()
}
