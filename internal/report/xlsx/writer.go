// Package xlsx writes the combined relations to a two-sheet Excel workbook.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// Sheet names of the workbook.
const (
	OfficersSheet     = "Officers"
	AppointmentsSheet = "Appointments"
	stampLayout       = "20060102_150405"
)

var (
	officerHeader = []string{
		"Search Term", "Name", "Date of Birth", "Nationality", "Appointment Count", "URL",
	}
	appointmentHeader = []string{
		"Search Term", "Officer Name", "Officer URL", "Company Name", "Company Number", "Company Status",
		"Role", "Correspondence Address", "Appointed On", "Governing Law", "Legal Form",
	}
)

// Config locates the output directory.
type Config struct {
	Dir string
}

// Writer implements crawler.ReportWriter.
type Writer struct {
	dir   string
	clock crawler.Clock
}

// New creates the output directory if needed.
func New(cfg Config, clock crawler.Clock) (*Writer, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Writer{dir: dir, clock: clock}, nil
}

// Write saves <dir>/<destination>_<YYYYmmdd_HHMMSS>.xlsx and returns its path.
// The workbook is staged under a temporary name and renamed into place.
func (w *Writer) Write(
	ctx context.Context,
	officers []crawler.OfficerSummary,
	appointments []crawler.AppointmentDetail,
	destination string,
) (string, error) {
	if destination == "" || filepath.Base(destination) != destination {
		return "", fmt.Errorf("invalid report destination %q", destination)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.xlsx", destination, w.clock.Now().Format(stampLayout)))

	f := excelize.NewFile()
	defer f.Close()
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetName("Sheet1", OfficersSheet); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(AppointmentsSheet); err != nil {
		return "", fmt.Errorf("add sheet: %w", err)
	}

	officerRows := make([][]any, len(officers))
	for i, o := range officers {
		officerRows[i] = []any{o.SearchUnit.String(), o.Name, o.DateOfBirth, o.Nationality, o.AppointmentCount, o.URL}
	}
	if err := writeSheet(f, OfficersSheet, header, officerHeader, officerRows); err != nil {
		return "", err
	}
	appointmentRows := make([][]any, len(appointments))
	for i, a := range appointments {
		appointmentRows[i] = []any{
			a.SearchUnit.String(), a.OfficerName, a.OfficerURL, a.CompanyName, a.CompanyNumber, a.CompanyStatus,
			a.Role, a.CorrespondenceAddress, a.AppointedOn, a.GoverningLaw, a.LegalForm,
		}
	}
	if err := writeSheet(f, AppointmentsSheet, header, appointmentHeader, appointmentRows); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(w.dir, ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("stage workbook: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("save workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish workbook: %w", err)
	}
	return path, nil
}

func writeSheet(f *excelize.File, sheet string, style int, header []string, rows [][]any) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream %s: %w", sheet, err)
	}
	headCells := make([]any, len(header))
	for i, h := range header {
		headCells[i] = excelize.Cell{StyleID: style, Value: h}
	}
	if err := sw.SetRow("A1", headCells); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", sheet, err)
	}
	return nil
}
