// Package progress defines the event structures emitted by a crawl run.
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
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunCanceled Stage = "RUN_CANCELED"
	StageTaskDone    Stage = "TASK_DONE"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// RunID identifies the logical run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or task milestone occurred.
	Stage Stage
	// ProductID scopes task events to one identifier.
	ProductID string
	// Status carries the classified verdict for task completions.
	Status string
	// StatusCode is the HTTP status observed for the fetch.
	StatusCode int
	// Dur captures fetch latency for tasks and wall time for run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context.
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
	case StageRunStart, StageRunDone, StageRunCanceled:
	case StageTaskDone:
		if e.ProductID == "" {
			return errors.New("task done requires product id")
		}
		if e.Status == "" {
			return errors.New("task done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
