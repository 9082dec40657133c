// Package collyfetcher implements crawler.Browser over plain HTTP using gocolly.
// Pages are parsed into a static DOM snapshot, so scripts never run.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/fetcher/dom"
)

const defaultTimeout = 30 * time.Second

var errNoPage = errors.New("no page loaded")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Browser hands out sessions that share one HTTP transport.
type Browser struct {
	cfg           Config
	transport     *http.Transport
	roundTripper  http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Browser.
func New(cfg Config, logger *zap.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport()
	var roundTripper http.RoundTripper = transport
	if cfg.RespectRobots {
		roundTripper = newRobotsAwareTransport(transport, logger)
	}
	c.WithTransport(roundTripper)
	return &Browser{
		cfg:           cfg,
		transport:     transport,
		roundTripper:  roundTripper,
		baseCollector: c,
		logger:        logger,
	}
}

// NewSession implements crawler.Browser.
func (b *Browser) NewSession(context.Context) (crawler.Session, error) {
	return &Session{browser: b}, nil
}

// Close drops idle connections.
func (b *Browser) Close() error {
	b.transport.CloseIdleConnections()
	return nil
}

func (b *Browser) buildCollector(body *[]byte, fetchErr *error) *colly.Collector {
	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !b.cfg.RespectRobots
	collector.SetRequestTimeout(b.cfg.Timeout)
	collector.WithTransport(b.roundTripper)
	b.configureCollectorHooks(collector, body, fetchErr)
	return collector
}

func (b *Browser) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		*fetchErr = err
	})
}

// Session holds the most recently loaded page. It is not safe for concurrent
// use; each worker owns one.
type Session struct {
	browser *Browser
	doc     *dom.Document
	url     string
}

// Navigate fetches url and replaces the current page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var (
		body     []byte
		fetchErr error
	)
	s.doc, s.url = nil, ""
	collector := s.browser.buildCollector(&body, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return err
	}
	doc, err := dom.Parse(body)
	if err != nil {
		return err
	}
	s.doc, s.url = doc, url
	s.browser.logger.Debug("page loaded", zap.String("url", url), zap.Int("bytes", len(body)))
	return nil
}

// Locate implements crawler.Session.
func (s *Session) Locate(_ context.Context, selector string) ([]crawler.Element, error) {
	if s.doc == nil {
		return nil, errNoPage
	}
	return s.doc.Locate(selector)
}

// Evaluate always fails: static pages have no script runtime.
func (s *Session) Evaluate(context.Context, string, any) error {
	return crawler.ErrEvaluateUnsupported
}

// Close forgets the current page.
func (s *Session) Close() error {
	s.doc, s.url = nil, ""
	return nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
