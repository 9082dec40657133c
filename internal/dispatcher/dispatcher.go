// Package dispatcher fans pending units out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/queue/memory"
	"github.com/JakeFAU/officer-crawler/internal/worker"
)

// Runner consumes units from its queue until the queue drains.
type Runner interface {
	Run(ctx context.Context, results chan<- crawler.UnitResult, tracker worker.Tracker)
}

// Factory builds the runner for worker index bound to queue.
type Factory func(index int, queue crawler.Queue) Runner

// InterimFunc is called from the dispatcher goroutine after every
// InterimEvery successful units, with the running success count.
type InterimFunc func(ctx context.Context, completed int)

// Config sizes the pool.
type Config struct {
	Concurrency  int
	InterimEvery int
}

// Summary is the outcome of one pool run.
type Summary struct {
	// Results holds every unit outcome in completion order.
	Results      []crawler.UnitResult
	Completed    []crawler.SearchUnit
	Failed       []crawler.SearchUnit
	PeakInFlight int
	Workers      int
}

// Pool runs queue items through Concurrency workers.
type Pool struct {
	factory Factory
	cfg     Config
	logger  *zap.Logger
}

// New creates a Pool. Concurrency below 1 is treated as 1.
func New(factory Factory, cfg Config, logger *zap.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{factory: factory, cfg: cfg, logger: logger.Named("dispatcher")}
}

// Run enqueues every item, starts min(Concurrency, len(items)) workers, and
// blocks until all of them exit. Cancelling ctx abandons units not yet
// started; they stay pending.
func (p *Pool) Run(ctx context.Context, items []crawler.QueueItem, interim InterimFunc) (Summary, error) {
	if len(items) == 0 {
		return Summary{}, nil
	}
	queue := memory.NewQueue(len(items))
	for _, item := range items {
		if err := queue.Enqueue(ctx, item); err != nil {
			queue.Close()
			return Summary{}, fmt.Errorf("queue enqueue: %w", err)
		}
	}
	queue.Close()

	workers := min(p.cfg.Concurrency, len(items))
	results := make(chan crawler.UnitResult, len(items))
	tracker := &inFlight{}
	var wg sync.WaitGroup
	for i := range workers {
		runner := p.factory(i, queue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx, results, tracker)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	p.logger.Info("pool started", zap.Int("units", len(items)), zap.Int("workers", workers))

	summary := Summary{Workers: workers}
	for res := range results {
		summary.Results = append(summary.Results, res)
		if res.Failed() {
			summary.Failed = append(summary.Failed, res.Unit)
			continue
		}
		summary.Completed = append(summary.Completed, res.Unit)
		if interim != nil && p.cfg.InterimEvery > 0 && len(summary.Completed)%p.cfg.InterimEvery == 0 {
			interim(ctx, len(summary.Completed))
		}
	}
	summary.PeakInFlight = tracker.highWater()
	p.logger.Info("pool drained",
		zap.Int("completed", len(summary.Completed)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("abandoned", len(items)-len(summary.Results)),
		zap.Int("peak_in_flight", summary.PeakInFlight),
	)
	return summary, nil
}

// inFlight tracks the number of units being processed and its high-water mark.
type inFlight struct {
	mu   sync.Mutex
	cur  int
	peak int
}

func (t *inFlight) Begin(crawler.SearchUnit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur++
	t.peak = max(t.peak, t.cur)
}

func (t *inFlight) End(crawler.SearchUnit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur--
}

func (t *inFlight) highWater() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}
