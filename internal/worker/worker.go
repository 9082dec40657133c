// Package worker runs search units end-to-end: one session, one unit, one
// checkpoint at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives a notification per completed unit. Empty disables it.
	Topic string
	RunID uuid.UUID
	// Tracer starts one span per unit. Nil uses the global provider.
	Tracer trace.Tracer
}

const tracerName = "github.com/JakeFAU/officer-crawler/internal/worker"

// Tracker observes units entering and leaving a worker.
type Tracker interface {
	Begin(unit crawler.SearchUnit)
	End(unit crawler.SearchUnit)
}

// Notification is the payload published for a completed unit.
type Notification struct {
	RunID        string `json:"run_id"`
	Unit         string `json:"unit"`
	Officers     int    `json:"officers"`
	Appointments int    `json:"appointments"`
	Checkpoint   string `json:"checkpoint"`
	Replaced     bool   `json:"replaced"`
}

// Worker consumes queue items until the queue is closed and drained.
type Worker struct {
	index     int
	queue     crawler.Queue
	browser   crawler.Browser
	crawler   crawler.UnitCrawler
	store     crawler.CheckpointStore
	publisher crawler.Notifier
	pacer     crawler.Pacer
	emitter   progress.Emitter
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher, pacer, and emitter may be nil.
func New(
	index int,
	queue crawler.Queue,
	browser crawler.Browser,
	unitCrawler crawler.UnitCrawler,
	store crawler.CheckpointStore,
	publisher crawler.Notifier,
	pacer crawler.Pacer,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Worker{
		index:     index,
		queue:     queue,
		browser:   browser,
		crawler:   unitCrawler,
		store:     store,
		publisher: publisher,
		pacer:     pacer,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker").With(zap.Int("index", index)),
	}
}

// Run processes units and sends each outcome on results. It returns when the
// queue reports ErrQueueClosed or ctx ends.
func (w *Worker) Run(ctx context.Context, results chan<- crawler.UnitResult, tracker Tracker) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if tracker != nil {
			tracker.Begin(item.Unit)
		}
		res := w.processUnit(ctx, item)
		if tracker != nil {
			tracker.End(item.Unit)
		}
		results <- res
		if ctx.Err() != nil {
			return
		}
		if w.pacer != nil {
			w.pacer.Pause(ctx)
		}
	}
}

func (w *Worker) processUnit(ctx context.Context, item crawler.QueueItem) crawler.UnitResult {
	ctx, span := w.cfg.Tracer.Start(ctx, "crawl unit", trace.WithAttributes(
		attribute.String("officer.unit", string(item.Unit)),
		attribute.Int("officer.worker", w.index),
		attribute.Bool("officer.replace", item.Replace),
	))
	defer span.End()
	logger := w.logger.With(
		zap.String("unit", string(item.Unit)),
		zap.Int("position", item.Index),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)
	start := w.now()
	w.emit(progress.Event{Stage: progress.StageUnitStart, Unit: string(item.Unit)})
	logger.Info("unit started", zap.Bool("replace", item.Replace))

	res := w.crawlUnit(ctx, item)
	if res.Err == nil {
		res.Err = w.persist(ctx, item, res.Records)
	}
	if res.Duration == 0 {
		res.Duration = w.now().Sub(start)
	}

	officers, appointments := tally(res.Records)
	evt := progress.Event{
		Unit:         string(item.Unit),
		Links:        res.Links,
		Officers:     officers,
		Appointments: appointments,
		Dropped:      res.Dropped,
		Dur:          max(res.Duration, 0),
	}
	span.SetAttributes(
		attribute.Int("officer.pages", res.Pages),
		attribute.Int("officer.officers", officers),
		attribute.Int("officer.appointments", appointments),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "unit failed")
		evt.Stage = progress.StageUnitError
		evt.Note = res.Err.Error()
		w.emit(evt)
		logger.Error("unit failed", zap.Int("pages", res.Pages), zap.Int("links", res.Links), zap.Error(res.Err))
		return res
	}

	evt.Stage = progress.StageUnitDone
	w.emit(evt)
	logger.Info("unit completed",
		zap.String("state", string(res.State)),
		zap.Int("pages", res.Pages),
		zap.Int("links", res.Links),
		zap.Int("officers", officers),
		zap.Int("appointments", appointments),
		zap.Int("dropped", res.Dropped),
		zap.Duration("dur", res.Duration),
	)
	w.notify(ctx, item, officers, appointments, logger)
	return res
}

// crawlUnit opens a session for the unit and always releases it.
func (w *Worker) crawlUnit(ctx context.Context, item crawler.QueueItem) crawler.UnitResult {
	session, err := w.browser.NewSession(ctx)
	if err != nil {
		return crawler.UnitResult{
			Unit: item.Unit,
			Err:  &crawler.UnitError{Unit: item.Unit, Err: fmt.Errorf("open session: %w", err)},
		}
	}
	defer func() {
		if err := session.Close(); err != nil {
			w.logger.Warn("session close failed", zap.String("unit", string(item.Unit)), zap.Error(err))
		}
	}()
	return w.crawler.Run(ctx, session, item.Unit, &observer{worker: w})
}

func (w *Worker) persist(ctx context.Context, item crawler.QueueItem, records []crawler.OfficerRecord) error {
	var err error
	if item.Replace {
		err = w.store.Replace(ctx, item.Unit, records)
	} else {
		err = w.store.Save(ctx, item.Unit, records)
	}
	if err != nil {
		return &crawler.UnitError{Unit: item.Unit, Err: fmt.Errorf("write checkpoint: %w", err)}
	}
	return nil
}

// notify is best effort; the checkpoint is the source of truth.
func (w *Worker) notify(ctx context.Context, item crawler.QueueItem, officers, appointments int, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := Notification{
		RunID:        w.cfg.RunID.String(),
		Unit:         string(item.Unit),
		Officers:     officers,
		Appointments: appointments,
		Checkpoint:   crawler.CheckpointName(item.Unit),
		Replaced:     item.Replace,
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		logger.Warn("unit notification failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("unit notification published", zap.String("message_id", id))
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(w.cfg.RunID)
	evt.TS = w.now().UTC()
	evt.Worker = w.index
	w.emitter.Emit(evt)
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock.Now()
}

// tally counts reportable officers and their appointments.
func tally(records []crawler.OfficerRecord) (officers, appointments int) {
	for _, rec := range records {
		if !rec.Reportable() {
			continue
		}
		officers++
		appointments += len(rec.Appointments)
	}
	return officers, appointments
}

// observer forwards page and officer milestones to the progress emitter.
type observer struct {
	worker *Worker
}

func (o *observer) PageDone(unit crawler.SearchUnit, page, links int) {
	o.worker.emit(progress.Event{Stage: progress.StagePageDone, Unit: string(unit), Page: page, Links: links})
}

func (o *observer) OfficerDone(unit crawler.SearchUnit, url string, appointments int, err error) {
	evt := progress.Event{Stage: progress.StageOfficerDone, Unit: string(unit), URL: url, Appointments: appointments}
	if err == nil && appointments > 0 {
		evt.Officers = 1
	}
	if err != nil {
		evt.Note = err.Error()
	}
	o.worker.emit(evt)
}
