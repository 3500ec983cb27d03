package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the status column of a recorded run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ParseRunStatus maps a query value onto a RunStatus.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunRunning, RunSucceeded, RunFailed:
		return RunStatus(s), nil
	case "success":
		return RunSucceeded, nil
	case "error", "failure":
		return RunFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

// Run is one ingest or transform invocation.
type Run struct {
	RunID        string
	Stage        string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	ErrorMessage *string
	// Sources is only populated by GetRun.
	Sources []SourceRun
}

// SourceRun is the recorded outcome for one source within a run.
type SourceRun struct {
	RunID        string
	Source       string
	Status       string
	Records      int64
	Key          string
	Duration     time.Duration
	ErrorMessage *string
	RecordedAt   time.Time
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Stage  string
	Status *RunStatus
	Limit  int
	Offset int
}

// RunHistory persists run lifecycles and per-source outcomes.
type RunHistory interface {
	// StartRun records a run as running. Repeating it is a no-op.
	StartRun(ctx context.Context, runID, stage string, startedAt time.Time) error
	// RecordSource upserts the outcome of one source.
	RecordSource(ctx context.Context, sr SourceRun) error
	// FinishRun marks the run finished with status and an optional error.
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, status RunStatus, errMsg *string) error
	// GetRun loads one run with its sources or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
}
