package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/officer-crawler/internal/progress"
)

// PrometheusSink turns progress events into crawler metrics. The process
// exposes no listener, so Close writes the registry to TextfilePath in the
// node-exporter textfile format when a path is configured.
type PrometheusSink struct {
	unitsStarted   prometheus.Counter
	unitsCompleted *prometheus.CounterVec
	unitsRunning   prometheus.Gauge
	unitRuntime    *prometheus.HistogramVec

	pages        prometheus.Counter
	links        prometheus.Counter
	officers     *prometheus.CounterVec
	appointments prometheus.Counter

	registry *prometheus.Registry
	textfile string
	tracker  *unitTracker
}

// NewPrometheusSink registers the collectors against reg, or a fresh registry
// when reg is nil.
func NewPrometheusSink(reg *prometheus.Registry, textfile string) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &PrometheusSink{
		unitsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officer_crawler_units_started_total",
			Help: "Search units picked up by a worker.",
		}),
		unitsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "officer_crawler_units_completed_total",
			Help: "Search units finished partitioned by result.",
		}, []string{"result"}),
		unitsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "officer_crawler_units_running",
			Help: "Search units currently being crawled.",
		}),
		unitRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "officer_crawler_unit_runtime_seconds",
			Help:    "Wall time per finished unit.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"result"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officer_crawler_listing_pages_total",
			Help: "Listing pages loaded.",
		}),
		links: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officer_crawler_officer_links_total",
			Help: "Officer links discovered on listing pages.",
		}),
		officers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "officer_crawler_officer_pages_total",
			Help: "Officer detail pages processed partitioned by result.",
		}, []string{"result"}),
		appointments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officer_crawler_appointments_total",
			Help: "Appointment rows extracted.",
		}),
		registry: reg,
		textfile: textfile,
		tracker:  newUnitTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.unitsStarted,
		s.unitsCompleted,
		s.unitsRunning,
		s.unitRuntime,
		s.pages,
		s.links,
		s.officers,
		s.appointments,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageUnitStart:
		s.unitsStarted.Inc()
		if s.tracker.start(evt.Unit) {
			s.unitsRunning.Inc()
		}
	case progress.StageUnitDone:
		s.finishUnit(evt, "success")
	case progress.StageUnitError:
		s.finishUnit(evt, "error")
	case progress.StagePageDone:
		s.pages.Inc()
		s.links.Add(float64(evt.Links))
	case progress.StageOfficerDone:
		result := "dropped"
		if evt.Officers > 0 {
			result = "recorded"
		}
		s.officers.WithLabelValues(result).Inc()
		s.appointments.Add(float64(evt.Appointments))
	}
}

func (s *PrometheusSink) finishUnit(evt progress.Event, result string) {
	s.unitsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.unitRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.Unit) {
		s.unitsRunning.Dec()
	}
}

// Close dumps the registry to the textfile when one is configured.
func (s *PrometheusSink) Close(context.Context) error {
	if s.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(s.textfile, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

type unitTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newUnitTracker() *unitTracker {
	return &unitTracker{running: make(map[string]struct{})}
}

func (t *unitTracker) start(unit string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[unit]; ok {
		return false
	}
	t.running[unit] = struct{}{}
	return true
}

func (t *unitTracker) complete(unit string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[unit]; !ok {
		return false
	}
	delete(t.running, unit)
	return true
}
