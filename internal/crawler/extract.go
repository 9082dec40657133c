package crawler

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

var companyNumberPattern = regexp.MustCompile(`\((\d+)\)`)

// ParseCompanyNumber returns the first parenthesised digit run in a company
// name, or "" when there is none.
func ParseCompanyNumber(companyName string) string {
	m := companyNumberPattern.FindStringSubmatch(companyName)
	if m == nil {
		return ""
	}
	return m[1]
}

// Policy selects extraction variants.
type Policy struct {
	// RequireBirthDate skips officers whose page shows no date of birth.
	RequireBirthDate bool
}

// Extractor turns officer detail pages into records.
type Extractor struct {
	selectors Selectors
	policy    Policy
	pacer     Pacer
	logger    *zap.Logger
}

// NewExtractor builds an Extractor. Blank selectors take their defaults.
func NewExtractor(selectors Selectors, policy Policy, pacer Pacer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		selectors: selectors.WithDefaults(),
		policy:    policy,
		pacer:     pacer,
		logger:    logger,
	}
}

// Extract loads one officer page. It reports ok=false without an error when the
// officer has no appointment with a company link. Errors wrap ErrNavigation,
// ErrExtraction, or ErrOfficerSkipped and only ever cost this one officer.
func (e *Extractor) Extract(ctx context.Context, session Session, unit SearchUnit, officerURL string) (OfficerRecord, bool, error) {
	if e.pacer != nil {
		if err := e.pacer.Wait(ctx, officerURL); err != nil {
			return OfficerRecord{}, false, fmt.Errorf("%w: pace %s: %w", ErrNavigation, officerURL, err)
		}
	}
	if err := session.Navigate(ctx, officerURL); err != nil {
		return OfficerRecord{}, false, fmt.Errorf("%w: load %s: %w", ErrNavigation, officerURL, err)
	}

	name, err := e.firstText(ctx, session, e.selectors.OfficerName)
	if err != nil {
		return OfficerRecord{}, false, err
	}
	if name == "" {
		return OfficerRecord{}, false, fmt.Errorf("%w: no officer name on %s", ErrExtraction, officerURL)
	}
	dob, err := e.firstText(ctx, session, e.selectors.BirthDate)
	if err != nil {
		return OfficerRecord{}, false, err
	}
	if dob == "" && e.policy.RequireBirthDate {
		return OfficerRecord{}, false, fmt.Errorf("%w: %s has no date of birth", ErrOfficerSkipped, officerURL)
	}
	nationality, err := e.firstText(ctx, session, e.selectors.Nationality)
	if err != nil {
		return OfficerRecord{}, false, err
	}

	blocks, err := session.Locate(ctx, e.selectors.AppointmentBlock)
	if err != nil {
		return OfficerRecord{}, false, fmt.Errorf("%w: locate appointments: %w", ErrExtraction, err)
	}
	rec := OfficerRecord{
		SearchUnit:   unit,
		Name:         name,
		DateOfBirth:  dob,
		Nationality:  nationality,
		URL:          officerURL,
		Appointments: make([]AppointmentRecord, 0, len(blocks)),
	}
	for i, block := range blocks {
		appt, ok := e.appointment(block, i+1)
		if !ok {
			continue
		}
		rec.Appointments = append(rec.Appointments, appt)
	}
	e.logger.Debug("officer page read",
		zap.String("unit", unit.String()),
		zap.String("url", officerURL),
		zap.Int("blocks", len(blocks)),
		zap.Int("appointments", len(rec.Appointments)),
	)
	if !rec.Reportable() {
		return OfficerRecord{}, false, nil
	}
	return rec, true, nil
}

// appointment reads one block. Blocks without a named company link are
// dropped; every other field falls back to "".
func (e *Extractor) appointment(block Element, ordinal int) (AppointmentRecord, bool) {
	links := block.Locate(e.selectors.CompanyLink)
	if len(links) == 0 {
		return AppointmentRecord{}, false
	}
	company := clean(links[0].Text())
	if company == "" {
		return AppointmentRecord{}, false
	}
	field := func(selector string) string {
		found := block.Locate(slot(selector, ordinal))
		if len(found) == 0 {
			return ""
		}
		return clean(found[0].Text())
	}
	return AppointmentRecord{
		CompanyName:           company,
		CompanyNumber:         ParseCompanyNumber(company),
		CompanyStatus:         field(e.selectors.CompanyStatus),
		Role:                  field(e.selectors.Role),
		CorrespondenceAddress: field(e.selectors.Address),
		AppointedOn:           field(e.selectors.AppointedOn),
		GoverningLaw:          field(e.selectors.GoverningLaw),
		LegalForm:             field(e.selectors.LegalForm),
	}, true
}

func (e *Extractor) firstText(ctx context.Context, session Session, selector string) (string, error) {
	found, err := session.Locate(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("%w: locate %s: %w", ErrExtraction, selector, err)
	}
	if len(found) == 0 {
		return "", nil
	}
	return clean(found[0].Text()), nil
}
