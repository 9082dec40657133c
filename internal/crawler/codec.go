package crawler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CheckpointPrefix starts every checkpoint file or object name.
const CheckpointPrefix = "results_"

const checkpointSuffix = ".json"

// CheckpointName is the file or object name holding a unit's checkpoint.
func CheckpointName(unit SearchUnit) string {
	return CheckpointPrefix + string(unit) + checkpointSuffix
}

// UnitFromCheckpointName reverses CheckpointName. Names whose unit would fail
// ValidateUnit are not checkpoints.
func UnitFromCheckpointName(name string) (SearchUnit, bool) {
	if !strings.HasPrefix(name, CheckpointPrefix) || !strings.HasSuffix(name, checkpointSuffix) {
		return "", false
	}
	unit := strings.TrimSuffix(strings.TrimPrefix(name, CheckpointPrefix), checkpointSuffix)
	if ValidateUnit(SearchUnit(unit)) != nil {
		return "", false
	}
	return SearchUnit(unit), true
}

// EncodeCheckpoint serializes records as an indented JSON array. Records are
// normalized by ReportableOnly first; an empty set encodes as [].
func EncodeCheckpoint(records []OfficerRecord) ([]byte, error) {
	kept := ReportableOnly(records)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(kept); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCheckpoint parses a checkpoint payload. Besides the current layout it
// accepts files written by the earlier tool, which used Turkish keys and
// sometimes stored a single object instead of an array.
func DecodeCheckpoint(unit SearchUnit, data []byte) ([]OfficerRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &CorruptCheckpointError{Unit: unit, Err: errors.New("empty payload")}
	}

	var wires []officerWire
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &wires); err != nil {
			return nil, &CorruptCheckpointError{Unit: unit, Err: err}
		}
	case '{':
		var single officerWire
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, &CorruptCheckpointError{Unit: unit, Err: err}
		}
		wires = []officerWire{single}
	default:
		return nil, &CorruptCheckpointError{Unit: unit, Err: fmt.Errorf("unexpected leading byte %q", trimmed[0])}
	}

	records := make([]OfficerRecord, 0, len(wires))
	for i, w := range wires {
		rec := w.record()
		if rec.Name == "" && rec.URL == "" {
			return nil, &CorruptCheckpointError{Unit: unit, Err: fmt.Errorf("record %d has neither name nor url", i)}
		}
		if rec.SearchUnit == "" {
			rec.SearchUnit = unit
		}
		if rec.Reportable() {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ReportableOnly drops appointments without a company name, then officers
// left without appointments. The input is not modified.
func ReportableOnly(records []OfficerRecord) []OfficerRecord {
	out := make([]OfficerRecord, 0, len(records))
	for _, rec := range records {
		appointments := make([]AppointmentRecord, 0, len(rec.Appointments))
		for _, appt := range rec.Appointments {
			if appt.CompanyName != "" {
				appointments = append(appointments, appt)
			}
		}
		if len(appointments) == 0 {
			continue
		}
		rec.Appointments = appointments
		out = append(out, rec)
	}
	return out
}

type officerWire struct {
	SearchUnit   string            `json:"search_unit"`
	Name         string            `json:"name"`
	DateOfBirth  string            `json:"date_of_birth"`
	Nationality  string            `json:"nationality"`
	URL          string            `json:"url"`
	Appointments []appointmentWire `json:"appointments"`

	LegacySearchUnit   string            `json:"Arama Terimi"`
	LegacyName         string            `json:"İsim"`
	LegacyAppointments []appointmentWire `json:"Atamalar"`
}

type appointmentWire struct {
	CompanyName           string `json:"company_name"`
	CompanyNumber         string `json:"company_number"`
	CompanyStatus         string `json:"company_status"`
	Role                  string `json:"role"`
	CorrespondenceAddress string `json:"correspondence_address"`
	AppointedOn           string `json:"appointed_on"`
	GoverningLaw          string `json:"governing_law"`
	LegalForm             string `json:"legal_form"`

	LegacyCompanyName           string `json:"Şirket Adı"`
	LegacyCompanyNumber         string `json:"Şirket Numarası"`
	LegacyCompanyStatus         string `json:"Şirket Durumu"`
	LegacyRole                  string `json:"Rol"`
	LegacyCorrespondenceAddress string `json:"Yazışma Adresi"`
	LegacyAppointedOn           string `json:"Atanma Tarihi"`
	LegacyGoverningLaw          string `json:"Yönetilen Kanun"`
	LegacyLegalForm             string `json:"Yasal Form"`
}

func (w officerWire) record() OfficerRecord {
	appointments := w.Appointments
	if len(appointments) == 0 {
		appointments = w.LegacyAppointments
	}
	rec := OfficerRecord{
		SearchUnit:   SearchUnit(firstNonEmpty(w.SearchUnit, w.LegacySearchUnit)),
		Name:         firstNonEmpty(w.Name, w.LegacyName),
		DateOfBirth:  w.DateOfBirth,
		Nationality:  w.Nationality,
		URL:          w.URL,
		Appointments: make([]AppointmentRecord, 0, len(appointments)),
	}
	for _, a := range appointments {
		appt := a.record()
		if appt.CompanyName == "" {
			continue
		}
		rec.Appointments = append(rec.Appointments, appt)
	}
	return rec
}

func (w appointmentWire) record() AppointmentRecord {
	return AppointmentRecord{
		CompanyName:           firstNonEmpty(w.CompanyName, w.LegacyCompanyName),
		CompanyNumber:         firstNonEmpty(w.CompanyNumber, w.LegacyCompanyNumber),
		CompanyStatus:         firstNonEmpty(w.CompanyStatus, w.LegacyCompanyStatus),
		Role:                  firstNonEmpty(w.Role, w.LegacyRole),
		CorrespondenceAddress: firstNonEmpty(w.CorrespondenceAddress, w.LegacyCorrespondenceAddress),
		AppointedOn:           firstNonEmpty(w.AppointedOn, w.LegacyAppointedOn),
		GoverningLaw:          firstNonEmpty(w.GoverningLaw, w.LegacyGoverningLaw),
		LegalForm:             firstNonEmpty(w.LegalForm, w.LegacyLegalForm),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
