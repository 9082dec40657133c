package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/aggregate"
	"github.com/JakeFAU/officer-crawler/internal/app"
	"github.com/JakeFAU/officer-crawler/internal/config"
	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/dispatcher"
)

type fakeApp struct {
	cfg       config.Config
	crawlOpts *app.CrawlOptions
	crawlErr  error
	closed    int
}

func (f *fakeApp) Logger() *zap.Logger   { return zap.NewNop() }
func (f *fakeApp) Config() config.Config { return f.cfg }
func (f *fakeApp) Close(context.Context) { f.closed++ }
func (f *fakeApp) Plan(context.Context) ([]crawler.SearchUnit, crawler.Partition, error) {
	return []crawler.SearchUnit{"Ali", "Ayşe", "Ayse"}, crawler.Partition{
		Done:    []crawler.SearchUnit{"Ali"},
		Pending: []crawler.SearchUnit{"Ayşe"},
		Corrupt: []crawler.SearchUnit{"Ayse"},
	}, nil
}

func (f *fakeApp) Crawl(_ context.Context, opts app.CrawlOptions) (app.CrawlReport, error) {
	f.crawlOpts = &opts
	if f.crawlErr != nil {
		return app.CrawlReport{}, f.crawlErr
	}
	return app.CrawlReport{
		RunID:   "run-1",
		Queued:  2,
		Summary: dispatcher.Summary{Completed: []crawler.SearchUnit{"Ali"}, Failed: []crawler.SearchUnit{"Can"}},
		Final: aggregate.Report{
			Dataset:   aggregate.Dataset{Officers: make([]crawler.OfficerSummary, 4)},
			Locations: []string{"reports/officers_final_20260301_090000.xlsx"},
		},
	}, nil
}

func (f *fakeApp) Aggregate(context.Context) (aggregate.Report, error) {
	return aggregate.Report{
		Dataset: aggregate.Dataset{
			Units:   []crawler.SearchUnit{"Ali"},
			Corrupt: []crawler.SearchUnit{"Ayse"},
		},
		Locations: []string{"reports/officers_combined.xlsx"},
	}, nil
}

// stubApp swaps the factory for the duration of a test; callers must not run
// in parallel.
func stubApp(t *testing.T, fake *fakeApp) *int {
	t.Helper()
	built := 0
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		built++
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &built
}

func TestCrawlCommandAppliesFlags(t *testing.T) {
	fake := &fakeApp{}
	stubApp(t, fake)

	var out bytes.Buffer
	err := execute(context.Background(), []string{
		"crawl", "--concurrency", "3", "--max-pages", "5", "--redo", "Ali", "--redo", "Can",
	}, &out)
	require.NoError(t, err)

	require.Equal(t, 3, fake.cfg.Crawler.Concurrency)
	require.Equal(t, 5, fake.cfg.Crawler.MaxPages)
	require.NotNil(t, fake.crawlOpts)
	require.Equal(t, []crawler.SearchUnit{"Ali", "Can"}, fake.crawlOpts.Redo)
	require.Equal(t, 1, fake.closed)
	require.Contains(t, out.String(), "run run-1: 1 crawled, 1 failed, 4 officers")
	require.Contains(t, out.String(), "officers_final_20260301_090000.xlsx")
}

func TestCrawlCommandClosesAppOnFailure(t *testing.T) {
	fake := &fakeApp{crawlErr: errors.New("report sink down")}
	stubApp(t, fake)

	err := execute(context.Background(), []string{"crawl"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "report sink down")
	require.Equal(t, 1, fake.closed)
}

func TestInvalidOverrideStopsBeforeBuildingServices(t *testing.T) {
	fake := &fakeApp{}
	built := stubApp(t, fake)

	err := execute(context.Background(), []string{"crawl", "--concurrency", "0"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "crawler.concurrency")
	require.Zero(t, *built)
}

func TestUnitsCommandListsStates(t *testing.T) {
	fake := &fakeApp{}
	stubApp(t, fake)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"units"}, &out))
	require.Regexp(t, `1\s+Ali\s+done\s+results_Ali\.json`, out.String())
	require.Regexp(t, `2\s+Ayşe\s+pending`, out.String())
	require.Regexp(t, `3\s+Ayse\s+corrupt`, out.String())
	require.Contains(t, out.String(), "1 done, 1 pending, 1 corrupt")
}

func TestAggregateCommandReportsCorruptCheckpoints(t *testing.T) {
	fake := &fakeApp{}
	stubApp(t, fake)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"aggregate"}, &out))
	require.Contains(t, out.String(), "1 search terms, 0 officers, 0 appointments")
	require.Contains(t, out.String(), "skipped corrupt checkpoint: Ayse")
	require.Contains(t, out.String(), "reports/officers_combined.xlsx")
}
