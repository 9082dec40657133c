package crawler

import "time"

// SearchUnit is one candidate name submitted to the registry search.
type SearchUnit string

// String returns the raw search term.
func (u SearchUnit) String() string {
	return string(u)
}

// AppointmentRecord is one company appointment held by an officer.
// Every field other than CompanyName may be empty.
type AppointmentRecord struct {
	CompanyName           string `json:"company_name"`
	CompanyNumber         string `json:"company_number"`
	CompanyStatus         string `json:"company_status"`
	Role                  string `json:"role"`
	CorrespondenceAddress string `json:"correspondence_address"`
	AppointedOn           string `json:"appointed_on"`
	GoverningLaw          string `json:"governing_law"`
	LegalForm             string `json:"legal_form"`
}

// OfficerRecord is one officer matched by a search unit. Records are only
// persisted when they carry at least one appointment.
type OfficerRecord struct {
	SearchUnit   SearchUnit          `json:"search_unit"`
	Name         string              `json:"name"`
	DateOfBirth  string              `json:"date_of_birth,omitempty"`
	Nationality  string              `json:"nationality,omitempty"`
	URL          string              `json:"url"`
	Appointments []AppointmentRecord `json:"appointments"`
}

// Reportable reports whether the record carries any appointment.
func (r OfficerRecord) Reportable() bool {
	return len(r.Appointments) > 0
}

// Link is an officer detail link discovered on a listing page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// ListingState is the terminal state of a unit's listing traversal.
type ListingState string

// Listing terminal states.
const (
	ListingHasLinks  ListingState = "HAS_LINKS"
	ListingNoResults ListingState = "NO_RESULTS"
	ListingError     ListingState = "ERROR"
)

// ListingResult is what pagination over one unit produced.
type ListingResult struct {
	Unit  SearchUnit
	Links []Link
	// Pages is the number of listing pages that were loaded successfully.
	Pages int
	State ListingState
}

// UnitResult is the outcome of crawling one unit end-to-end.
type UnitResult struct {
	Unit    SearchUnit
	Records []OfficerRecord
	// Links is the number of detail links discovered.
	Links int
	// Dropped counts detail pages that produced no record.
	Dropped  int
	Pages    int
	State    ListingState
	Duration time.Duration
	Err      error
}

// Failed reports whether the unit must stay pending.
func (r UnitResult) Failed() bool {
	return r.Err != nil
}

// Partition splits units by checkpoint state, preserving input order.
type Partition struct {
	Done    []SearchUnit
	Pending []SearchUnit
	// Corrupt holds units whose checkpoint exists but cannot be parsed. They
	// are neither crawled nor aggregated until an operator repairs them.
	Corrupt []SearchUnit
}

// QueueItem wraps a unit ready to run.
type QueueItem struct {
	Unit SearchUnit
	// Index is the unit's position in the pending partition.
	Index int
	// Replace marks an explicit re-run that may overwrite a checkpoint.
	Replace bool
}
