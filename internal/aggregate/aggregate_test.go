package aggregate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
	"github.com/JakeFAU/officer-crawler/internal/storage/local"
	"github.com/JakeFAU/officer-crawler/internal/storage/memory"
)

func seededStore(t *testing.T) *memory.CheckpointStore {
	t.Helper()
	ctx := context.Background()
	store := memory.NewCheckpointStore()
	require.NoError(t, store.Save(ctx, "Mehmet", []crawler.OfficerRecord{{
		SearchUnit:  "Mehmet",
		Name:        "DEMIR, Mehmet",
		DateOfBirth: "May 1975",
		URL:         "https://registry.test/officers/m1/appointments",
		Appointments: []crawler.AppointmentRecord{
			{CompanyName: "Anatolia Ltd (01111111)", CompanyNumber: "01111111", Role: "Director"},
			{CompanyName: "Marmara Ltd (02222222)", CompanyNumber: "02222222", CompanyStatus: "Dissolved"},
		},
	}}))
	require.NoError(t, store.Save(ctx, "Ali", []crawler.OfficerRecord{{
		SearchUnit:   "Ali",
		Name:         "YILMAZ, Ali",
		URL:          "https://registry.test/officers/a1/appointments",
		Appointments: []crawler.AppointmentRecord{{CompanyName: "Bosphorus Ltd"}},
	}}))
	require.NoError(t, store.Save(ctx, "Zeynep", nil))
	store.Put("Gözde", []byte(`{"Arama Terimi": "Gözde", "İsim": "KAYA, Gözde", "URL": "https://registry.test/officers/g1",
		"Atamalar": [{"Şirket Adı": "Ege Ltd (03333333)", "Şirket Numarası": "03333333"}]}`))
	store.Put("Can", []byte(`[{"name": "TRUNC`))
	return store
}

func TestBuildFlattensInUnitOrder(t *testing.T) {
	t.Parallel()

	ds, err := New(seededStore(t), nil, Config{Parallelism: 2}, nil).Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, []crawler.SearchUnit{"Ali", "Gözde", "Mehmet", "Zeynep"}, ds.Units)
	require.Equal(t, []crawler.SearchUnit{"Can"}, ds.Corrupt)

	require.Len(t, ds.Officers, 3)
	require.Equal(t, crawler.OfficerSummary{
		SearchUnit:       "Mehmet",
		Name:             "DEMIR, Mehmet",
		DateOfBirth:      "May 1975",
		AppointmentCount: 2,
		URL:              "https://registry.test/officers/m1/appointments",
	}, ds.Officers[2])
	require.Equal(t, "KAYA, Gözde", ds.Officers[1].Name)

	require.Len(t, ds.Appointments, 4)
	require.Equal(t, "Bosphorus Ltd", ds.Appointments[0].CompanyName)
	require.Equal(t, "03333333", ds.Appointments[1].CompanyNumber)
	require.Equal(t, "DEMIR, Mehmet", ds.Appointments[3].OfficerName)
	require.Equal(t, "Dissolved", ds.Appointments[3].CompanyStatus)
}

func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	agg := New(store, nil, Config{}, nil)
	first, err := agg.Build(context.Background())
	require.NoError(t, err)
	second, err := agg.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, first.Digest(), second.Digest())

	require.NoError(t, store.Save(context.Background(), "Deniz", []crawler.OfficerRecord{{
		SearchUnit: "Deniz", Name: "DENIZ, Ayse", URL: "u",
		Appointments: []crawler.AppointmentRecord{{CompanyName: "Acme"}},
	}}))
	third, err := agg.Build(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Digest(), third.Digest())
}

func TestBuildEmptyStore(t *testing.T) {
	t.Parallel()

	ds, err := New(memory.NewCheckpointStore(), nil, Config{}, nil).Build(context.Background())
	require.NoError(t, err)
	require.Empty(t, ds.Officers)
	require.Empty(t, ds.Appointments)
	require.NotEmpty(t, ds.Digest())
}

func TestBuildFailsOnStoreErrors(t *testing.T) {
	t.Parallel()

	_, err := New(&brokenStore{listErr: errors.New("bucket missing")}, nil, Config{}, nil).Build(context.Background())
	require.ErrorContains(t, err, "list checkpoints")

	_, err = New(&brokenStore{units: []crawler.SearchUnit{"Ali"}, loadErr: errors.New("permission denied")}, nil, Config{}, nil).
		Build(context.Background())
	require.ErrorContains(t, err, `load checkpoint "Ali"`)

	ds, err := New(&brokenStore{units: []crawler.SearchUnit{"Ali"}, loadErr: crawler.ErrCheckpointNotFound}, nil, Config{}, nil).
		Build(context.Background())
	require.NoError(t, err)
	require.Empty(t, ds.Units)
}

func TestBuildSurvivesStrayCheckpointFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "Deniz", []crawler.OfficerRecord{{
		SearchUnit:   "Deniz",
		Name:         "AKSOY, Deniz",
		URL:          "https://registry.test/officers/d1/appointments",
		Appointments: []crawler.AppointmentRecord{{CompanyName: "Deniz Ltd"}},
	}}))
	for _, name := range []string{"results_..json", "results_ .json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o600))
	}

	ds, err := New(store, nil, Config{}, nil).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, []crawler.SearchUnit{"Deniz"}, ds.Units)
	require.Len(t, ds.Officers, 1)
}

func TestBuildTreatsInvalidUnitAsCorrupt(t *testing.T) {
	t.Parallel()

	err := crawler.ValidateUnit("..")
	require.ErrorIs(t, err, crawler.ErrInvalidUnit)
	ds, err := New(&brokenStore{units: []crawler.SearchUnit{".."}, loadErr: err}, nil, Config{}, nil).
		Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, []crawler.SearchUnit{".."}, ds.Corrupt)
	require.Empty(t, ds.Units)
}

func TestPublishWritesEveryDestination(t *testing.T) {
	t.Parallel()

	good := &recordingWriter{location: "reports/officers_final.xlsx"}
	bad := &recordingWriter{err: errors.New("disk full")}
	also := &recordingWriter{location: "postgres://officer_summary"}
	agg := New(seededStore(t), []crawler.ReportWriter{good, bad, also}, Config{}, nil)

	report, err := agg.Publish(context.Background(), "officers_final")
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, []string{"reports/officers_final.xlsx", "postgres://officer_summary"}, report.Locations)
	require.Equal(t, []string{"officers_final"}, good.destinations)
	require.Equal(t, 3, good.officers)
	require.Equal(t, 4, also.appointments)
}

type recordingWriter struct {
	mu           sync.Mutex
	location     string
	err          error
	destinations []string
	officers     int
	appointments int
}

func (w *recordingWriter) Write(_ context.Context, officers []crawler.OfficerSummary, appointments []crawler.AppointmentDetail, destination string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.destinations = append(w.destinations, destination)
	w.officers = len(officers)
	w.appointments = len(appointments)
	return w.location, nil
}

type brokenStore struct {
	units   []crawler.SearchUnit
	listErr error
	loadErr error
}

func (s *brokenStore) Exists(context.Context, crawler.SearchUnit) (bool, error) { return false, nil }

func (s *brokenStore) Load(context.Context, crawler.SearchUnit) ([]crawler.OfficerRecord, error) {
	return nil, s.loadErr
}

func (s *brokenStore) Save(context.Context, crawler.SearchUnit, []crawler.OfficerRecord) error {
	return nil
}

func (s *brokenStore) Replace(context.Context, crawler.SearchUnit, []crawler.OfficerRecord) error {
	return nil
}

func (s *brokenStore) List(context.Context) ([]crawler.SearchUnit, error) {
	return s.units, s.listErr
}
