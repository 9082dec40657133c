// Package postgres writes the combined relations into two Postgres tables,
// replacing any earlier rows of the same destination in one transaction.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var (
	officerColumns = []string{
		"destination", "ordinal", "search_unit", "name", "date_of_birth", "nationality",
		"appointment_count", "url",
	}
	appointmentColumns = []string{
		"destination", "ordinal", "search_unit", "officer_name", "officer_url", "company_name",
		"company_number", "company_status", "role", "correspondence_address", "appointed_on",
		"governing_law", "legal_form",
	}
)

// Config controls the connection pool and table names.
type Config struct {
	DSN              string
	OfficerTable     string
	AppointmentTable string
	MaxConns         int32
	MaxConnLifetime  time.Duration
}

type txPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Writer implements crawler.ReportWriter.
type Writer struct {
	pool         txPool
	officers     string
	appointments string
}

// New connects a pool for the configured DSN.
func New(ctx context.Context, cfg Config) (*Writer, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("report.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	w, err := NewWithPool(pool, cfg.OfficerTable, cfg.AppointmentTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

// NewWithPool builds a Writer over an existing pool. Empty table names default
// to officer_summary and appointment_detail.
func NewWithPool(pool txPool, officerTable, appointmentTable string) (*Writer, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if officerTable == "" {
		officerTable = "officer_summary"
	}
	if appointmentTable == "" {
		appointmentTable = "appointment_detail"
	}
	for _, table := range []string{officerTable, appointmentTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Writer{pool: pool, officers: officerTable, appointments: appointmentTable}, nil
}

// EnsureSchema creates both tables when missing.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			destination TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			search_unit TEXT NOT NULL,
			name TEXT NOT NULL,
			date_of_birth TEXT NOT NULL DEFAULT '',
			nationality TEXT NOT NULL DEFAULT '',
			appointment_count INTEGER NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (destination, ordinal)
		)`, w.officers),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			destination TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			search_unit TEXT NOT NULL,
			officer_name TEXT NOT NULL,
			officer_url TEXT NOT NULL,
			company_name TEXT NOT NULL,
			company_number TEXT NOT NULL DEFAULT '',
			company_status TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			correspondence_address TEXT NOT NULL DEFAULT '',
			appointed_on TEXT NOT NULL DEFAULT '',
			governing_law TEXT NOT NULL DEFAULT '',
			legal_form TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (destination, ordinal)
		)`, w.appointments),
	}
	for _, stmt := range statements {
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure report schema: %w", err)
		}
	}
	return nil
}

// Write replaces the destination's rows in both tables and returns a
// postgres:// locator for the log.
func (w *Writer) Write(
	ctx context.Context,
	officers []crawler.OfficerSummary,
	appointments []crawler.AppointmentDetail,
	destination string,
) (string, error) {
	if destination == "" {
		return "", fmt.Errorf("report destination is required")
	}
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin report tx: %w", err)
	}
	if err := w.replace(ctx, tx, officers, appointments, destination); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return "", fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit report tx: %w", err)
	}
	return fmt.Sprintf("postgres://%s,%s?destination=%s", w.officers, w.appointments, destination), nil
}

func (w *Writer) replace(
	ctx context.Context,
	tx pgx.Tx,
	officers []crawler.OfficerSummary,
	appointments []crawler.AppointmentDetail,
	destination string,
) error {
	for _, table := range []string{w.officers, w.appointments} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE destination = $1", table), destination); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	officerRows := make([][]any, len(officers))
	for i, o := range officers {
		officerRows[i] = []any{
			destination, i + 1, o.SearchUnit.String(), o.Name, o.DateOfBirth, o.Nationality,
			o.AppointmentCount, o.URL,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{w.officers}, officerColumns, pgx.CopyFromRows(officerRows)); err != nil {
		return fmt.Errorf("copy %s: %w", w.officers, err)
	}

	appointmentRows := make([][]any, len(appointments))
	for i, a := range appointments {
		appointmentRows[i] = []any{
			destination, i + 1, a.SearchUnit.String(), a.OfficerName, a.OfficerURL, a.CompanyName,
			a.CompanyNumber, a.CompanyStatus, a.Role, a.CorrespondenceAddress, a.AppointedOn,
			a.GoverningLaw, a.LegalForm,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{w.appointments}, appointmentColumns, pgx.CopyFromRows(appointmentRows)); err != nil {
		return fmt.Errorf("copy %s: %w", w.appointments, err)
	}
	return nil
}

// Close releases the pool.
func (w *Writer) Close() {
	w.pool.Close()
}
