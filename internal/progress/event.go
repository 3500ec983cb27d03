package progress

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes which lifecycle milestone an Event represents.
type Kind string

// Supported event kinds.
const (
	KindRunStart   Kind = "RUN_START"
	KindSourceDone Kind = "SOURCE_DONE"
	KindRunDone    Kind = "RUN_DONE"
)

// Run-level statuses carried by KindRunDone events.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Event is one milestone of an ingest or transform run.
type Event struct {
	RunID string
	// Stage is "ingest" or "transform".
	Stage string
	Kind  Kind
	TS    time.Time
	// Source is set on KindSourceDone events.
	Source string
	// Status is the source outcome, or the run result on KindRunDone.
	Status  string
	Records int64
	Key     string
	Dur     time.Duration
	// Note holds the error text for failures.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunStart:
	case KindSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
		if e.Status == "" {
			return errors.New("source done requires status")
		}
	case KindRunDone:
		if e.Status != RunSucceeded && e.Status != RunFailed {
			return fmt.Errorf("run done has invalid status %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
