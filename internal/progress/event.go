// Package progress defines the event structures emitted by the ingest loop.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StagePageDone   Stage = "PAGE_DONE"
	StageWindowDone Stage = "WINDOW_DONE"
)

// Event captures a single milestone of ingest progress.
type Event struct {
	// RunID identifies the ingest run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// ProductType scopes page and window events to an endpoint.
	ProductType string
	// Window optionally labels the report_date window, e.g. "2024-03".
	Window string
	// Fetched is the number of records returned by the API for this event.
	Fetched int64
	// Inserted is the number of records written to the store.
	Inserted int64
	// Deduped is the number of records skipped as already present.
	Deduped int64
	// Dur captures wall time for page fetches and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
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
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePageDone, StageWindowDone:
		if e.ProductType == "" {
			return fmt.Errorf("%s requires product type", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
