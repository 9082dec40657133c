package xlsx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestWriterProducesTwoSheets(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	w, err := New(Config{Dir: dir}, fixedClock{now: time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)})
	require.NoError(t, err)

	officers := []crawler.OfficerSummary{{
		SearchUnit: "Ayşe", Name: "YILMAZ, Ayşe", DateOfBirth: "March 1980", AppointmentCount: 1, URL: "https://r/o/1",
	}}
	appointments := []crawler.AppointmentDetail{{
		SearchUnit: "Ayşe", OfficerName: "YILMAZ, Ayşe", OfficerURL: "https://r/o/1",
		AppointmentRecord: crawler.AppointmentRecord{
			CompanyName: "Acme Holdings (01234567)", CompanyNumber: "01234567", Role: "Director",
		},
	}}

	path, err := w.Write(context.Background(), officers, appointments, "turkish_officers_final")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "turkish_officers_final_20260301_140509.xlsx"), path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging file must not remain")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{OfficersSheet, AppointmentsSheet}, f.GetSheetList())

	rows, err := f.GetRows(OfficersSheet)
	require.NoError(t, err)
	require.Equal(t, officerHeader, rows[0])
	require.Equal(t, []string{"Ayşe", "YILMAZ, Ayşe", "March 1980", "", "1", "https://r/o/1"}, rows[1])

	rows, err = f.GetRows(AppointmentsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Acme Holdings (01234567)", rows[1][3])
	require.Equal(t, "01234567", rows[1][4])
	require.Equal(t, "Director", rows[1][6])
}

func TestWriterEmptyRelations(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Dir: t.TempDir()}, fixedClock{now: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	path, err := w.Write(context.Background(), nil, nil, "turkish_officers_current")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(AppointmentsSheet)
	require.NoError(t, err)
	require.Equal(t, [][]string{appointmentHeader}, rows)
}

func TestWriterRejectsPathDestinations(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Dir: t.TempDir()}, fixedClock{now: time.Now()})
	require.NoError(t, err)
	for _, dest := range []string{"", "../escape", "nested/name"} {
		_, err := w.Write(context.Background(), nil, nil, dest)
		require.Error(t, err, dest)
	}
}
