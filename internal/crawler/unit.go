package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// UnitRunner crawls one unit end to end: listing traversal, then every
// discovered officer page in listing order.
type UnitRunner struct {
	listing   *ListingCrawler
	extractor *Extractor
	clock     Clock
	logger    *zap.Logger
}

// NewUnitRunner wires a runner from its stages.
func NewUnitRunner(listing *ListingCrawler, extractor *Extractor, clock Clock, logger *zap.Logger) *UnitRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitRunner{listing: listing, extractor: extractor, clock: clock, logger: logger}
}

// Run returns listing failures and cancellation as a *UnitError in the result.
// Officer failures only increase Dropped.
func (r *UnitRunner) Run(ctx context.Context, session Session, unit SearchUnit, observer Observer) UnitResult {
	if observer == nil {
		observer = NopObserver{}
	}
	start := r.now()
	logger := r.logger.With(zap.String("unit", unit.String()))
	result := UnitResult{Unit: unit, Records: []OfficerRecord{}, State: ListingError}
	finish := func() UnitResult {
		result.Duration = r.now().Sub(start)
		return result
	}

	listing, err := r.listing.Crawl(ctx, session, unit, observer)
	result.Pages = listing.Pages
	if err != nil {
		result.Err = err
		return finish()
	}
	result.State = listing.State
	result.Links = len(listing.Links)

	for i, link := range listing.Links {
		if err := ctx.Err(); err != nil {
			result.Err = &UnitError{Unit: unit, Err: err}
			return finish()
		}
		rec, ok, err := r.extractor.Extract(ctx, session, unit, link.Href)
		observer.OfficerDone(unit, link.Href, len(rec.Appointments), err)
		switch {
		case err != nil && ctx.Err() != nil:
			result.Err = &UnitError{Unit: unit, Err: ctx.Err()}
			return finish()
		case err != nil:
			result.Dropped++
			logger.Warn("officer dropped",
				zap.Int("position", i+1),
				zap.String("url", link.Href),
				zap.Error(err),
			)
		case !ok:
			result.Dropped++
			logger.Debug("officer without appointments", zap.String("url", link.Href))
		default:
			result.Records = append(result.Records, rec)
		}
	}
	return finish()
}

func (r *UnitRunner) now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock.Now()
}
