package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxPages bounds listing traversal per unit.
const DefaultMaxPages = 20

// ListingConfig configures listing traversal.
type ListingConfig struct {
	BaseURL   string
	MaxPages  int
	Selectors Selectors
}

// ListingCrawler walks the paginated search results of one unit and collects
// officer detail links.
type ListingCrawler struct {
	cfg    ListingConfig
	base   *url.URL
	pacer  Pacer
	logger *zap.Logger
}

// NewListingCrawler validates cfg and builds a ListingCrawler.
func NewListingCrawler(cfg ListingConfig, pacer Pacer, logger *zap.Logger) (*ListingCrawler, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingCrawler{cfg: cfg, base: base, pacer: pacer, logger: logger}, nil
}

// Crawl loads listing pages 1..MaxPages for unit. It stops on the no-results
// marker, on a page without officer links, or when the page offers no next
// control. A page that fails to load aborts the unit with a *UnitError.
func (c *ListingCrawler) Crawl(ctx context.Context, session Session, unit SearchUnit, observer Observer) (ListingResult, error) {
	if observer == nil {
		observer = NopObserver{}
	}
	result := ListingResult{Unit: unit, Links: []Link{}, State: ListingError}
	seen := make(map[string]struct{})
	logger := c.logger.With(zap.String("unit", unit.String()))

	for page := 1; page <= c.cfg.MaxPages; page++ {
		target := SearchURL(c.cfg.BaseURL, c.cfg.Selectors.SearchPath, unit, page)
		if err := c.load(ctx, session, target); err != nil {
			return result, &UnitError{Unit: unit, Page: page, Err: err}
		}
		result.Pages = page

		marker, err := session.Locate(ctx, c.cfg.Selectors.NoResults)
		if err != nil {
			return result, &UnitError{Unit: unit, Page: page, Err: fmt.Errorf("%w: locate no-results marker: %w", ErrNavigation, err)}
		}
		if len(marker) > 0 {
			logger.Debug("no results marker reached", zap.Int("page", page))
			observer.PageDone(unit, page, 0)
			break
		}

		found, err := c.discover(ctx, session)
		if err != nil {
			return result, &UnitError{Unit: unit, Page: page, Err: err}
		}
		observer.PageDone(unit, page, len(found))
		if len(found) == 0 {
			logger.Warn("listing page without officer links", zap.Int("page", page), zap.String("url", target))
			break
		}
		for _, link := range found {
			if _, dup := seen[link.Href]; dup {
				continue
			}
			seen[link.Href] = struct{}{}
			result.Links = append(result.Links, link)
		}

		more, err := c.hasNext(ctx, session)
		if err != nil {
			return result, &UnitError{Unit: unit, Page: page, Err: err}
		}
		if !more {
			break
		}
	}

	result.State = ListingNoResults
	if len(result.Links) > 0 {
		result.State = ListingHasLinks
	}
	logger.Debug("listing finished",
		zap.String("state", string(result.State)),
		zap.Int("pages", result.Pages),
		zap.Int("links", len(result.Links)),
	)
	return result, nil
}

func (c *ListingCrawler) load(ctx context.Context, session Session, target string) error {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, target); err != nil {
			return fmt.Errorf("%w: pace %s: %w", ErrNavigation, target, err)
		}
	}
	if err := session.Navigate(ctx, target); err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrNavigation, target, err)
	}
	return nil
}

// discover lists the page's officer links in document order, resolved to
// absolute URLs.
func (c *ListingCrawler) discover(ctx context.Context, session Session) ([]Link, error) {
	var raw []Link
	err := session.Evaluate(ctx, c.cfg.Selectors.LinkScript(), &raw)
	if errors.Is(err, ErrEvaluateUnsupported) {
		raw, err = c.locateLinks(ctx, session)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: discover officer links: %w", ErrNavigation, err)
	}

	links := make([]Link, 0, len(raw))
	for _, link := range raw {
		abs, ok := resolveLink(c.base, link.Href)
		if !ok {
			continue
		}
		links = append(links, Link{Href: abs, Text: clean(link.Text)})
	}
	return links, nil
}

func (c *ListingCrawler) locateLinks(ctx context.Context, session Session) ([]Link, error) {
	elements, err := session.Locate(ctx, c.cfg.Selectors.OfficerLink)
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(elements))
	for _, el := range elements {
		href, _ := el.Attr("href")
		links = append(links, Link{Href: href, Text: el.Text()})
	}
	return links, nil
}

// hasNext reports whether the page carries a next control with a target.
func (c *ListingCrawler) hasNext(ctx context.Context, session Session) (bool, error) {
	next, err := session.Locate(ctx, c.cfg.Selectors.NextPage)
	if err != nil {
		return false, fmt.Errorf("%w: locate next control: %w", ErrNavigation, err)
	}
	for _, el := range next {
		if href, ok := el.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return true, nil
		}
	}
	return false, nil
}

// clean collapses whitespace runs the way rendered text reads.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
