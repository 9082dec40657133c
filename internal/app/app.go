// Package app builds the long-lived services of a crawl job from configuration
// and runs the job phases on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/aggregate"
	"github.com/JakeFAU/officer-crawler/internal/clock/system"
	"github.com/JakeFAU/officer-crawler/internal/config"
	"github.com/JakeFAU/officer-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/officer-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/officer-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/officer-crawler/internal/id/uuid"
	"github.com/JakeFAU/officer-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/officer-crawler/internal/progress"
	"github.com/JakeFAU/officer-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/officer-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/officer-crawler/internal/report/postgres"
	"github.com/JakeFAU/officer-crawler/internal/report/xlsx"
	"github.com/JakeFAU/officer-crawler/internal/storage/gcs"
	"github.com/JakeFAU/officer-crawler/internal/storage/local"
	"github.com/JakeFAU/officer-crawler/internal/telemetry"
)

const (
	serviceName  = "officer-crawler"
	closeTimeout = 15 * time.Second
)

// Deps are the collaborators a job runs against. New fills them from
// configuration; tests supply fakes through NewWithDeps.
type Deps struct {
	Store    crawler.CheckpointStore
	Browser  crawler.Browser
	Crawler  crawler.UnitCrawler
	Pacer    crawler.Pacer
	Notifier crawler.Notifier
	Writers  []crawler.ReportWriter
	Emitter  progress.Emitter
	Clock    crawler.Clock
	IDs      crawler.IDGenerator
}

// App holds the services shared by every command.
type App struct {
	cfg        config.Config
	deps       Deps
	aggregator *aggregate.Aggregator
	logger     *zap.Logger
	closers    []func(context.Context) error
}

// New builds every service named by cfg. On failure, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.aggregator = aggregate.New(a.deps.Store, a.deps.Writers, aggregate.Config{}, logger)
	logger.Info("application services initialized",
		zap.String("engine", cfg.Browser.Engine),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
		zap.Strings("report_sinks", cfg.Report.Sinks),
		zap.Bool("notify", cfg.Notify.Topic != ""),
	)
	return a, nil
}

// NewWithDeps assembles an App around caller-supplied collaborators.
func NewWithDeps(cfg config.Config, deps Deps, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	return &App{
		cfg:        cfg,
		deps:       deps,
		aggregator: aggregate.New(deps.Store, deps.Writers, aggregate.Config{}, logger),
		logger:     logger,
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close releases services in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	for _, closeFn := range slices.Backward(a.closers) {
		if err := closeFn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return fmt.Errorf("load report timezone: %w", err)
	}
	a.deps.Clock = system.NewIn(loc)
	a.deps.IDs = uuid.New()

	if err := a.buildTracing(ctx); err != nil {
		return err
	}

	if a.deps.Store, err = a.buildStore(ctx); err != nil {
		return err
	}
	pacer, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		Burst:             cfg.Crawler.Burst,
		PaceMin:           cfg.Crawler.PaceMin,
		PaceMax:           cfg.Crawler.PaceMax,
		PauseMin:          cfg.Crawler.UnitPauseMin,
		PauseMax:          cfg.Crawler.UnitPauseMax,
	})
	if err != nil {
		return fmt.Errorf("init pacer: %w", err)
	}
	a.deps.Pacer = pacer

	if a.deps.Browser, err = a.buildBrowser(); err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return a.deps.Browser.Close() })

	listing, err := crawler.NewListingCrawler(crawler.ListingConfig{
		BaseURL:   cfg.Crawler.BaseURL,
		MaxPages:  cfg.Crawler.MaxPages,
		Selectors: cfg.Selectors,
	}, pacer, a.logger)
	if err != nil {
		return fmt.Errorf("init listing crawler: %w", err)
	}
	extractor := crawler.NewExtractor(cfg.Selectors, crawler.Policy{
		RequireBirthDate: cfg.Extract.RequireBirthDate,
	}, pacer, a.logger)
	a.deps.Crawler = crawler.NewUnitRunner(listing, extractor, a.deps.Clock, a.logger)

	if a.deps.Emitter, err = a.buildProgress(); err != nil {
		return err
	}
	if a.deps.Notifier, err = a.buildNotifier(ctx); err != nil {
		return err
	}
	if a.deps.Writers, err = a.buildWriters(ctx); err != nil {
		return err
	}
	return nil
}

func (a *App) buildTracing(ctx context.Context) error {
	tcfg := telemetry.Config{ServiceName: serviceName}
	if endpoint := a.cfg.Telemetry.OTLPEndpoint; endpoint != "" {
		exporter, err := telemetry.NewOTLPExporter(ctx, telemetry.OTLPConfig{
			Endpoint: endpoint,
			Protocol: a.cfg.Telemetry.OTLPProtocol,
			Insecure: a.cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("init otlp exporter: %w", err)
		}
		tcfg.Processors = append(tcfg.Processors, telemetry.BatchProcessor(exporter))
		a.logger.Info("exporting traces", zap.String("endpoint", endpoint), zap.String("protocol", a.cfg.Telemetry.OTLPProtocol))
	}
	tp, err := telemetry.InitTracerProvider(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.onClose(tp.Shutdown)
	return nil
}

func (a *App) buildStore(ctx context.Context) (crawler.CheckpointStore, error) {
	cfg := a.cfg.Checkpoint
	switch cfg.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs checkpoint store: %w", err)
		}
		a.logger.Info("using gcs checkpoint store", zap.String("bucket", cfg.GCSBucket), zap.String("prefix", cfg.GCSPrefix))
		return store, nil
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local checkpoint store: %w", err)
		}
		a.logger.Info("using local checkpoint store", zap.String("dir", cfg.Dir))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Backend)
	}
}

func (a *App) buildBrowser() (crawler.Browser, error) {
	cfg := a.cfg
	switch cfg.Browser.Engine {
	case config.EngineChromedp:
		browser, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Browser.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Browser.NavTimeout,
			Headless:          cfg.Browser.Headless,
			WindowWidth:       cfg.Browser.WindowWidth,
			WindowHeight:      cfg.Browser.WindowHeight,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init chromedp browser: %w", err)
		}
		return browser, nil
	case config.EngineColly:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.Browser.NavTimeout,
		}, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown browser engine: %s", cfg.Browser.Engine)
	}
}

func (a *App) buildProgress() (progress.Emitter, error) {
	var progressSinks []progress.Sink
	if a.cfg.Progress.LogEvents {
		progressSinks = append(progressSinks, sinks.NewLogSink(a.logger))
	}
	metrics, err := sinks.NewPrometheusSink(prometheus.NewRegistry(), a.cfg.Progress.MetricsFile)
	if err != nil {
		return nil, fmt.Errorf("init metrics sink: %w", err)
	}
	progressSinks = append(progressSinks, metrics)
	hub := progress.NewHub(progress.Config{Logger: a.logger}, progressSinks...)
	a.onClose(func(ctx context.Context) error {
		stats := hub.Stats()
		a.logger.Debug("progress hub closing",
			zap.Int64("accepted", stats.Accepted),
			zap.Int64("dropped", stats.Dropped),
			zap.Int64("invalid", stats.Invalid),
		)
		return hub.Close(ctx)
	})
	return hub, nil
}

func (a *App) buildNotifier(ctx context.Context) (crawler.Notifier, error) {
	cfg := a.cfg.Notify
	if cfg.Topic == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client)
	a.onClose(func(context.Context) error { return publisher.Close() })
	a.logger.Info("publishing unit notifications", zap.String("project", cfg.ProjectID), zap.String("topic", cfg.Topic))
	return publisher, nil
}

func (a *App) buildWriters(ctx context.Context) ([]crawler.ReportWriter, error) {
	cfg := a.cfg.Report
	var writers []crawler.ReportWriter
	for _, sink := range cfg.Sinks {
		switch sink {
		case config.SinkXLSX:
			w, err := xlsx.New(xlsx.Config{Dir: cfg.Dir}, a.deps.Clock)
			if err != nil {
				return nil, fmt.Errorf("init xlsx writer: %w", err)
			}
			writers = append(writers, w)
		case config.SinkPostgres:
			w, err := postgres.New(ctx, postgres.Config{
				DSN:              cfg.PostgresDSN,
				OfficerTable:     cfg.OfficerTable,
				AppointmentTable: cfg.AppointmentTable,
			})
			if err != nil {
				return nil, fmt.Errorf("init postgres writer: %w", err)
			}
			a.onClose(func(context.Context) error {
				w.Close()
				return nil
			})
			if err := w.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure report schema: %w", err)
			}
			writers = append(writers, w)
		default:
			return nil, fmt.Errorf("unknown report sink: %s", sink)
		}
	}
	if len(writers) == 0 {
		return nil, errors.New("no report sinks configured")
	}
	return writers, nil
}
