package crawler

import (
	"context"
	"time"
)

// Browser opens independent page sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is one browser tab driven by a single worker. Calls are blocking and
// fail on navigation or timeout errors.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Locate(ctx context.Context, selector string) ([]Element, error)
	// Evaluate runs script in the page and decodes its result into out.
	// Engines without a script runtime return ErrEvaluateUnsupported.
	Evaluate(ctx context.Context, script string, out any) error
	Close() error
}

// Element is a located node with text and attribute access.
type Element interface {
	Text() string
	Attr(name string) (string, bool)
	Locate(selector string) []Element
}

// CheckpointStore persists the completed result set of each unit.
type CheckpointStore interface {
	Exists(ctx context.Context, unit SearchUnit) (bool, error)
	Load(ctx context.Context, unit SearchUnit) ([]OfficerRecord, error)
	// Save fails with ErrCheckpointExists when the unit already has a checkpoint.
	// Records are stored as ReportableOnly normalizes them.
	Save(ctx context.Context, unit SearchUnit, records []OfficerRecord) error
	// Replace overwrites a checkpoint for an explicit re-run.
	Replace(ctx context.Context, unit SearchUnit, records []OfficerRecord) error
	// List returns every unit that has a checkpoint object, parseable or not.
	List(ctx context.Context) ([]SearchUnit, error)
}

// Pacer spaces out page loads to stay within the site's tolerance.
type Pacer interface {
	Wait(ctx context.Context, url string) error
	Pause(ctx context.Context)
}

// ReportWriter persists the combined relations under a destination name.
type ReportWriter interface {
	Write(ctx context.Context, officers []OfficerSummary, appointments []AppointmentDetail, destination string) (string, error)
}

// Notifier announces completed units to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// OfficerSummary is one row of the officer-summary relation.
type OfficerSummary struct {
	SearchUnit       SearchUnit
	Name             string
	DateOfBirth      string
	Nationality      string
	AppointmentCount int
	URL              string
}

// AppointmentDetail is one row of the appointment-detail relation.
type AppointmentDetail struct {
	SearchUnit  SearchUnit
	OfficerName string
	OfficerURL  string
	AppointmentRecord
}

// Observer receives per-page and per-officer milestones of a unit crawl.
type Observer interface {
	PageDone(unit SearchUnit, page, links int)
	OfficerDone(unit SearchUnit, url string, appointments int, err error)
}

// NopObserver discards every milestone.
type NopObserver struct{}

// PageDone implements Observer.
func (NopObserver) PageDone(SearchUnit, int, int) {}

// OfficerDone implements Observer.
func (NopObserver) OfficerDone(SearchUnit, string, int, error) {}

// Queue hands pending units to workers.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	// Dequeue returns ErrQueueClosed once the queue is closed and drained.
	Dequeue(ctx context.Context) (QueueItem, error)
	Close()
}

// UnitCrawler crawls one unit over an open session.
type UnitCrawler interface {
	Run(ctx context.Context, session Session, unit SearchUnit, observer Observer) UnitResult
}
