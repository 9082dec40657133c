// Package aggregate combines every unit checkpoint into the officer-summary and
// appointment-detail relations and hands them to the report writers.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/hash/sha256"
)

const defaultParallelism = 8

// Config controls checkpoint loading.
type Config struct {
	// Parallelism bounds concurrent Load calls (default 8).
	Parallelism int
}

// Dataset is the flattened content of a checkpoint set.
type Dataset struct {
	// Units lists the units whose checkpoints loaded, sorted.
	Units []crawler.SearchUnit
	// Corrupt lists units whose checkpoints could not be parsed.
	Corrupt      []crawler.SearchUnit
	Officers     []crawler.OfficerSummary
	Appointments []crawler.AppointmentDetail
}

// Digest returns a SHA-256 over both relations. Equal checkpoint sets yield
// equal digests.
func (d Dataset) Digest() string {
	sum := sha256.New().Int(len(d.Officers))
	for _, o := range d.Officers {
		sum.Field(o.SearchUnit.String()).Field(o.Name).Field(o.DateOfBirth).Field(o.Nationality).
			Int(o.AppointmentCount).Field(o.URL)
	}
	sum.Int(len(d.Appointments))
	for _, a := range d.Appointments {
		sum.Field(a.SearchUnit.String()).Field(a.OfficerName).Field(a.OfficerURL).
			Field(a.CompanyName).Field(a.CompanyNumber).Field(a.CompanyStatus).Field(a.Role).
			Field(a.CorrespondenceAddress).Field(a.AppointedOn).Field(a.GoverningLaw).Field(a.LegalForm)
	}
	return sum.Sum()
}

// Aggregator reads checkpoints and publishes the combined relations.
type Aggregator struct {
	store   crawler.CheckpointStore
	writers []crawler.ReportWriter
	cfg     Config
	logger  *zap.Logger
}

// New builds an Aggregator.
func New(store crawler.CheckpointStore, writers []crawler.ReportWriter, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, writers: writers, cfg: cfg, logger: logger.Named("aggregate")}
}

type loaded struct {
	records []crawler.OfficerRecord
	corrupt bool
	missing bool
}

// Build loads every listed checkpoint and flattens them in unit order. Corrupt
// checkpoints are reported in Dataset.Corrupt and skipped.
func (a *Aggregator) Build(ctx context.Context) (Dataset, error) {
	units, err := a.store.List(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("list checkpoints: %w", err)
	}
	units = slices.Clone(units)
	slices.Sort(units)
	units = slices.Compact(units)

	out := make([]loaded, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Parallelism)
	for i, unit := range units {
		g.Go(func() error {
			records, err := a.store.Load(gctx, unit)
			switch {
			case err == nil:
				out[i].records = records
			case crawler.IsCorrupt(err), errors.Is(err, crawler.ErrInvalidUnit):
				out[i].corrupt = true
				a.logger.Warn("skipping corrupt checkpoint", zap.String("unit", unit.String()), zap.Error(err))
			case errors.Is(err, crawler.ErrCheckpointNotFound):
				out[i].missing = true
			default:
				return fmt.Errorf("load checkpoint %q: %w", unit, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}

	var ds Dataset
	for i, unit := range units {
		switch {
		case out[i].corrupt:
			ds.Corrupt = append(ds.Corrupt, unit)
			continue
		case out[i].missing:
			continue
		}
		ds.Units = append(ds.Units, unit)
		flatten(&ds, unit, out[i].records)
	}
	return ds, nil
}

func flatten(ds *Dataset, unit crawler.SearchUnit, records []crawler.OfficerRecord) {
	for _, rec := range records {
		if !rec.Reportable() {
			continue
		}
		searchUnit := rec.SearchUnit
		if searchUnit == "" {
			searchUnit = unit
		}
		ds.Officers = append(ds.Officers, crawler.OfficerSummary{
			SearchUnit:       searchUnit,
			Name:             rec.Name,
			DateOfBirth:      rec.DateOfBirth,
			Nationality:      rec.Nationality,
			AppointmentCount: len(rec.Appointments),
			URL:              rec.URL,
		})
		for _, appt := range rec.Appointments {
			ds.Appointments = append(ds.Appointments, crawler.AppointmentDetail{
				SearchUnit:        searchUnit,
				OfficerName:       rec.Name,
				OfficerURL:        rec.URL,
				AppointmentRecord: appt,
			})
		}
	}
}

// Report is the outcome of one Publish call.
type Report struct {
	Dataset   Dataset
	Locations []string
}

// Publish builds the dataset and writes it to every writer under destination.
// A failing writer does not stop the others; their errors are joined.
func (a *Aggregator) Publish(ctx context.Context, destination string) (Report, error) {
	ds, err := a.Build(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Dataset: ds}
	var errs []error
	for _, w := range a.writers {
		loc, err := w.Write(ctx, ds.Officers, ds.Appointments, destination)
		if err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", destination, err))
			continue
		}
		report.Locations = append(report.Locations, loc)
	}
	a.logger.Info("report published",
		zap.String("destination", destination),
		zap.Int("units", len(ds.Units)),
		zap.Int("corrupt", len(ds.Corrupt)),
		zap.Int("officers", len(ds.Officers)),
		zap.Int("appointments", len(ds.Appointments)),
		zap.Strings("locations", report.Locations),
		zap.String("digest", ds.Digest()),
	)
	return report, errors.Join(errs...)
}
