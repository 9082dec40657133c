package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageUnitStart   Stage = "UNIT_START"
	StagePageDone    Stage = "PAGE_DONE"
	StageOfficerDone Stage = "OFFICER_DONE"
	StageUnitDone    Stage = "UNIT_DONE"
	StageUnitError   Stage = "UNIT_ERROR"
	StageRunDone     Stage = "RUN_DONE"
)

// Event is one progress milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Unit is the search unit for every stage except RUN_START and RUN_DONE.
	Unit string
	// Worker is the index of the emitting worker.
	Worker int
	// URL is the officer page for OFFICER_DONE.
	URL string
	// Page is the 1-based listing page for PAGE_DONE.
	Page int
	// Links counts officer links found on a page or across a unit.
	Links int
	// Officers counts reportable officers of a unit, or 1 per OFFICER_DONE.
	Officers int
	// Appointments counts appointment rows.
	Appointments int
	// Dropped counts officer pages that produced no record.
	Dropped int
	// Dur is the unit runtime for UNIT_DONE/UNIT_ERROR and the run time for RUN_DONE.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageUnitStart, StageUnitDone, StageUnitError:
		if e.Unit == "" {
			return fmt.Errorf("%s requires unit", e.Stage)
		}
	case StagePageDone:
		if e.Unit == "" || e.Page < 1 {
			return errors.New("page done requires unit and page")
		}
	case StageOfficerDone:
		if e.Unit == "" || e.URL == "" {
			return errors.New("officer done requires unit and url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Links < 0 || e.Officers < 0 || e.Appointments < 0 || e.Dropped < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID back to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
