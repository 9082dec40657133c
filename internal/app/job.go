package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/aggregate"
	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/dispatcher"
	"github.com/JakeFAU/officer-crawler/internal/progress"
	"github.com/JakeFAU/officer-crawler/internal/worker"
)

const tracerName = "github.com/JakeFAU/officer-crawler/internal/app"

// CrawlOptions adjusts a single crawl invocation.
type CrawlOptions struct {
	// Redo lists units whose checkpoints are replaced by a fresh crawl.
	Redo []crawler.SearchUnit
}

// CrawlReport summarizes one crawl invocation.
type CrawlReport struct {
	RunID     string
	Partition crawler.Partition
	Queued    int
	Summary   dispatcher.Summary
	Final     aggregate.Report
}

// Units returns the generated unit list in crawl order.
func (a *App) Units() ([]crawler.SearchUnit, error) {
	names, err := a.cfg.Units.BaseNames()
	if err != nil {
		return nil, err
	}
	units, err := crawler.GenerateUnits(names, a.cfg.Units.FoldVariants)
	if err != nil {
		return nil, fmt.Errorf("generate units: %w", err)
	}
	return units, nil
}

// Plan generates the units and splits them by checkpoint state without
// crawling anything.
func (a *App) Plan(ctx context.Context) ([]crawler.SearchUnit, crawler.Partition, error) {
	units, err := a.Units()
	if err != nil {
		return nil, crawler.Partition{}, err
	}
	partition, err := crawler.PartitionUnits(ctx, a.deps.Store, units)
	if err != nil {
		return nil, crawler.Partition{}, fmt.Errorf("partition units: %w", err)
	}
	return units, partition, nil
}

// Crawl runs the full job: plan, snapshot the data already collected, crawl
// every pending unit, and publish the final report. Unit failures are
// reported in the summary; only infrastructure errors are returned.
func (a *App) Crawl(ctx context.Context, opts CrawlOptions) (report CrawlReport, err error) {
	runID, err := a.newRunID()
	if err != nil {
		return CrawlReport{}, err
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawl", trace.WithAttributes(
		attribute.String("officer.run_id", runID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "crawl failed")
		}
		span.End()
	}()
	logger := a.logger.With(zap.String("run_id", runID.String()))
	start := a.deps.Clock.Now()
	report = CrawlReport{RunID: runID.String()}

	units, partition, err := a.Plan(ctx)
	if err != nil {
		return report, err
	}
	report.Partition = partition
	for _, unit := range partition.Corrupt {
		logger.Warn("checkpoint is corrupt; unit excluded until re-crawled with --redo", zap.String("unit", string(unit)))
	}
	logger.Info("units planned",
		zap.Int("units", len(units)),
		zap.Int("done", len(partition.Done)),
		zap.Int("pending", len(partition.Pending)),
		zap.Int("corrupt", len(partition.Corrupt)),
	)

	items, err := queueItems(partition, opts.Redo)
	if err != nil {
		return report, err
	}
	report.Queued = len(items)
	a.emit(runID, progress.Event{
		Stage: progress.StageRunStart,
		Note:  fmt.Sprintf("units=%d pending=%d redo=%d", len(units), len(partition.Pending), len(opts.Redo)),
	})

	if len(partition.Done) > 0 {
		a.snapshot(ctx, logger, a.cfg.Report.CurrentDestination())
	}

	if len(items) == 0 {
		logger.Info("every unit already has a checkpoint; nothing to crawl")
	} else {
		pool := dispatcher.New(a.workerFactory(runID), dispatcher.Config{
			Concurrency:  a.cfg.Crawler.Concurrency,
			InterimEvery: a.cfg.Report.InterimEvery,
		}, logger)
		report.Summary, err = pool.Run(ctx, items, func(ctx context.Context, completed int) {
			a.snapshot(ctx, logger, a.cfg.Report.InterimDestination(completed))
		})
		if err != nil {
			return report, fmt.Errorf("run worker pool: %w", err)
		}
		if len(report.Summary.Failed) > 0 {
			logger.Warn("units failed and stay pending for the next run",
				zap.Strings("units", unitStrings(report.Summary.Failed)))
		}
	}

	// An interrupted run still reports what its checkpoints hold.
	final, err := a.aggregator.Publish(context.WithoutCancel(ctx), a.cfg.Report.FinalDestination())
	report.Final = final
	a.emit(runID, progress.Event{
		Stage:        progress.StageRunDone,
		Officers:     len(final.Dataset.Officers),
		Appointments: len(final.Dataset.Appointments),
		Dur:          max(a.deps.Clock.Now().Sub(start), 0),
		Note: fmt.Sprintf("completed=%d failed=%d abandoned=%d",
			len(report.Summary.Completed), len(report.Summary.Failed), len(items)-len(report.Summary.Results)),
	})
	if err != nil {
		return report, fmt.Errorf("publish final report: %w", err)
	}
	if ctx.Err() != nil {
		return report, fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	logger.Info("crawl finished",
		zap.Int("completed", len(report.Summary.Completed)),
		zap.Int("failed", len(report.Summary.Failed)),
		zap.Int("officers", len(final.Dataset.Officers)),
		zap.Int("appointments", len(final.Dataset.Appointments)),
		zap.Strings("reports", final.Locations),
	)
	return report, nil
}

// Aggregate publishes whatever checkpoints exist under the combined
// destination.
func (a *App) Aggregate(ctx context.Context) (aggregate.Report, error) {
	report, err := a.aggregator.Publish(ctx, a.cfg.Report.CombinedDestination())
	if err != nil {
		return report, fmt.Errorf("publish combined report: %w", err)
	}
	if len(report.Dataset.Units) == 0 {
		a.logger.Warn("no checkpoints found; the combined report is empty")
	}
	return report, nil
}

// snapshot publishes an intermediate report. Failures are logged; the
// checkpoints stay authoritative.
func (a *App) snapshot(ctx context.Context, logger *zap.Logger, destination string) {
	if _, err := a.aggregator.Publish(ctx, destination); err != nil {
		logger.Warn("snapshot report failed", zap.String("destination", destination), zap.Error(err))
	}
}

func (a *App) workerFactory(runID uuid.UUID) dispatcher.Factory {
	cfg := worker.Config{Topic: a.cfg.Notify.Topic, RunID: runID}
	return func(index int, queue crawler.Queue) dispatcher.Runner {
		return worker.New(index, queue, a.deps.Browser, a.deps.Crawler, a.deps.Store,
			a.deps.Notifier, a.deps.Pacer, a.deps.Emitter, a.deps.Clock, cfg, a.logger)
	}
}

func (a *App) newRunID() (uuid.UUID, error) {
	raw, err := a.deps.IDs.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id %q: %w", raw, err)
	}
	return id, nil
}

func (a *App) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = a.deps.Clock.Now().UTC()
	a.deps.Emitter.Emit(evt)
}

// queueItems lists pending units in crawl order followed by explicit re-runs.
// A re-run of a pending unit keeps its position and a plain save.
func queueItems(partition crawler.Partition, redo []crawler.SearchUnit) ([]crawler.QueueItem, error) {
	items := make([]crawler.QueueItem, 0, len(partition.Pending)+len(redo))
	for _, unit := range partition.Pending {
		items = append(items, crawler.QueueItem{Unit: unit, Index: len(items)})
	}
	seen := make(map[crawler.SearchUnit]struct{}, len(redo))
	for _, unit := range redo {
		if err := crawler.ValidateUnit(unit); err != nil {
			return nil, fmt.Errorf("redo unit: %w", err)
		}
		if _, dup := seen[unit]; dup || slices.Contains(partition.Pending, unit) {
			continue
		}
		seen[unit] = struct{}{}
		items = append(items, crawler.QueueItem{Unit: unit, Index: len(items), Replace: true})
	}
	return items, nil
}

func unitStrings(units []crawler.SearchUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = string(u)
	}
	return out
}
