package harvest

import (
	"sync/atomic"
	"time"
)

// Run states reported by Progress.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateComplete = "complete"
	StatePartial  = "partial"
	StateFailed   = "failed"
)

// Summary reports the outcome of one Run.
type Summary struct {
	RunID string
	// Accepted is the checkpoint total at the end of the run.
	Accepted int
	Target   int
	// SavedThisRun counts books accepted by this run.
	SavedThisRun int
	// Skipped counts entries already collected or claimed by another task.
	Skipped int
	// Dropped counts entries without a usable format or below the word minimum.
	Dropped int
	// Errors counts entries lost to fetch, extraction or persistence failures.
	Errors int
	Pages  int
	// Exhausted is set when the catalog ran out before the target was met.
	Exhausted bool
	Duration  time.Duration
}

// TargetReached reports whether the checkpoint holds at least Target books.
func (s Summary) TargetReached() bool {
	return s.Accepted >= s.Target
}

// Progress is a point-in-time view of a running harvest.
type Progress struct {
	RunID        string    `json:"run_id"`
	State        string    `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	Accepted     int       `json:"accepted"`
	Target       int       `json:"target"`
	SavedThisRun int       `json:"saved_this_run"`
	Skipped      int       `json:"skipped"`
	Dropped      int       `json:"dropped"`
	Errors       int       `json:"errors"`
	Pages        int       `json:"pages"`
	InFlight     int       `json:"in_flight"`
}

type counters struct {
	saved   atomic.Int64
	skipped atomic.Int64
	dropped atomic.Int64
	errors  atomic.Int64
	pages   atomic.Int64
}
