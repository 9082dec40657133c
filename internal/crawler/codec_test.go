package crawler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecords() []OfficerRecord {
	return []OfficerRecord{
		{
			SearchUnit:  "Ayşe",
			Name:        "YILMAZ, Ayşe",
			DateOfBirth: "March 1980",
			URL:         "https://example.test/officers/abc/appointments",
			Appointments: []AppointmentRecord{
				{
					CompanyName:   "Acme Holdings (01234567)",
					CompanyNumber: "01234567",
					CompanyStatus: "Active",
					Role:          "Director",
					AppointedOn:   "1 January 2020",
				},
			},
		},
	}
}

func TestCheckpointCodecRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := EncodeCheckpoint(sampleRecords())
	require.NoError(t, err)
	require.Contains(t, string(data), `"name": "YILMAZ, Ayşe"`, "non-ASCII text must stay unescaped")
	require.Contains(t, string(data), "\n    {", "four-space indentation")

	got, err := DecodeCheckpoint("Ayşe", data)
	require.NoError(t, err)
	require.Equal(t, sampleRecords(), got)
}

func TestEncodeCheckpointDropsOfficersWithoutAppointments(t *testing.T) {
	t.Parallel()

	records := append(sampleRecords(), OfficerRecord{SearchUnit: "Ayşe", Name: "EMPTY", URL: "u"})
	data, err := EncodeCheckpoint(records)
	require.NoError(t, err)
	require.NotContains(t, string(data), "EMPTY")

	empty, err := EncodeCheckpoint(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", strings.TrimSpace(string(empty)))

	decoded, err := DecodeCheckpoint("Ayşe", empty)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDecodeCheckpointLegacyLayout(t *testing.T) {
	t.Parallel()

	legacy := `{
    "Arama Terimi": "Gözde",
    "İsim": "KAYA, Gözde",
    "URL": "https://example.test/officers/xyz/appointments",
    "Atamalar": [
        {"Şirket Adı": "Bosphorus Ltd (09876543)", "Şirket Numarası": "09876543", "Rol": "Secretary", "Şirket Durumu": ""},
        {"Rol": "Director"}
    ]
}`
	got, err := DecodeCheckpoint("Gözde", []byte(legacy))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, SearchUnit("Gözde"), got[0].SearchUnit)
	require.Equal(t, "KAYA, Gözde", got[0].Name)
	require.Equal(t, "https://example.test/officers/xyz/appointments", got[0].URL)
	require.Equal(t, []AppointmentRecord{{
		CompanyName:   "Bosphorus Ltd (09876543)",
		CompanyNumber: "09876543",
		Role:          "Secretary",
	}}, got[0].Appointments)
}

func TestDecodeCheckpointRejectsCorruptPayloads(t *testing.T) {
	t.Parallel()

	for name, payload := range map[string]string{
		"empty":     "",
		"truncated": `[{"name": "A", "url": "u", "appointments": [`,
		"scalar":    `42`,
		"nameless":  `[{"appointments": [{"company_name": "X"}]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeCheckpoint("Ali", []byte(payload))
			require.ErrorIs(t, err, ErrCorruptCheckpoint)
			var corrupt *CorruptCheckpointError
			require.True(t, errors.As(err, &corrupt))
			require.Equal(t, SearchUnit("Ali"), corrupt.Unit)
		})
	}
}

func TestCheckpointNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "results_Ayşe.json", CheckpointName("Ayşe"))
	unit, ok := UnitFromCheckpointName("results_Mary Ann.json")
	require.True(t, ok)
	require.Equal(t, SearchUnit("Mary Ann"), unit)

	for _, name := range []string{
		"results_.json", "results_Ali.xlsx", "Ali.json", "turkish_officers_final.json",
		"results_..json", "results_ .json", `results_a\b.json`,
	} {
		_, ok := UnitFromCheckpointName(name)
		require.False(t, ok, name)
	}
}

func TestCheckpointRoundTripNormalizesUnnamedCompanies(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	records[0].Appointments = append(records[0].Appointments, AppointmentRecord{Role: "Secretary"})
	records = append(records, OfficerRecord{
		SearchUnit:   "Ayşe",
		Name:         "NOCOMPANY, Ayşe",
		URL:          "https://example.test/officers/def/appointments",
		Appointments: []AppointmentRecord{{Role: "Director"}},
	})

	data, err := EncodeCheckpoint(records)
	require.NoError(t, err)
	require.NotContains(t, string(data), "NOCOMPANY")
	require.NotContains(t, string(data), "Secretary")
	require.Len(t, records[0].Appointments, 2, "input must not be modified")

	got, err := DecodeCheckpoint("Ayşe", data)
	require.NoError(t, err)
	require.Equal(t, ReportableOnly(records), got)
	require.Equal(t, sampleRecords(), got)
}
