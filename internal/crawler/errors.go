package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNavigation marks a transient page load failure.
	ErrNavigation = errors.New("navigation failure")
	// ErrExtraction marks a detail page with an unexpected shape.
	ErrExtraction = errors.New("extraction failure")
	// ErrOfficerSkipped marks a detail page excluded by the extraction policy.
	ErrOfficerSkipped = errors.New("officer skipped by policy")
	// ErrCorruptCheckpoint marks a checkpoint that exists but cannot be parsed.
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint")
	// ErrCheckpointExists is returned when Save would overwrite a checkpoint.
	ErrCheckpointExists = errors.New("checkpoint already exists")
	// ErrCheckpointNotFound is returned by Load for units without a checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrInvalidUnit rejects unit strings that cannot key a checkpoint.
	ErrInvalidUnit = errors.New("invalid search unit")
	// ErrEvaluateUnsupported is returned by sessions without a script runtime.
	ErrEvaluateUnsupported = errors.New("evaluate not supported by this browser engine")
	// ErrQueueClosed is returned by Dequeue after the queue drains.
	ErrQueueClosed = errors.New("queue closed")
)

// UnitError is the failure of a whole unit. The unit keeps no checkpoint and
// is selected as pending again on the next run.
type UnitError struct {
	Unit SearchUnit
	Page int
	Err  error
}

func (e *UnitError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("unit %q failed on listing page %d: %v", e.Unit, e.Page, e.Err)
	}
	return fmt.Sprintf("unit %q failed: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// CorruptCheckpointError carries the unit whose checkpoint failed to parse.
type CorruptCheckpointError struct {
	Unit SearchUnit
	Err  error
}

func (e *CorruptCheckpointError) Error() string {
	return fmt.Sprintf("corrupt checkpoint for unit %q: %v", e.Unit, e.Err)
}

// Is lets errors.Is match ErrCorruptCheckpoint.
func (e *CorruptCheckpointError) Is(target error) bool {
	return target == ErrCorruptCheckpoint
}

func (e *CorruptCheckpointError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err signals an unparseable checkpoint.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptCheckpoint)
}
