package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the harvest_runs status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunPartial  RunStatus = "partial"
	RunError    RunStatus = "error"
)

// Run models one harvest invocation.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// Target is the TARGET_BOOKS value the run aimed for.
	Target int
	// Accepted is the collected total when the run finished.
	Accepted int
	// Saved counts books accepted by this run alone.
	Saved        int
	ErrorMessage *string
}

// RunResult is what a finished run reports.
type RunResult struct {
	FinishedAt   time.Time
	Status       RunStatus
	Accepted     int
	Saved        int
	ErrorMessage *string
}

// RunRepository persists harvest run history.
type RunRepository interface {
	// StartRun inserts the run row in the running state.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, target int) error
	// CompleteRun records the final status and counts.
	CompleteRun(ctx context.Context, runID uuid.UUID, result RunResult) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
