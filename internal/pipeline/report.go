package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/progress"
)

// Status is the per-source outcome of a run.
type Status string

// Source outcome values.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusNotRun    Status = "not_run"
)

// FailurePolicy decides what a run does after one source fails.
type FailurePolicy string

// Supported failure policies.
const (
	// FailAbort stops at the first failed source; later sources are not run.
	FailAbort FailurePolicy = "abort"
	// FailContinue runs every source and fails the run at the end.
	FailContinue FailurePolicy = "continue"
)

// ParseFailurePolicy maps a config value onto a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailAbort:
		return FailAbort, nil
	case FailContinue:
		return FailContinue, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// RunOptions controls how sources are scheduled within one run.
type RunOptions struct {
	FailurePolicy FailurePolicy
	Parallelism   int
	// Events, when set, receives the run lifecycle.
	Events progress.Emitter
}

// SourceOutcome records what happened to one source in a run.
type SourceOutcome struct {
	Source   string
	Status   Status
	Err      error
	Key      string
	Records  int
	Duration time.Duration
}

// RunReport summarizes one ingestion or transform run.
type RunReport struct {
	RunID      string
	Stage      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []SourceOutcome
}

// Count returns how many sources ended with the given status.
func (r RunReport) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Outcome returns the outcome recorded for a source.
func (r RunReport) Outcome(source string) (SourceOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Source == source {
			return o, true
		}
	}
	return SourceOutcome{}, false
}

// Err joins the errors of every failed source, or returns nil.
func (r RunReport) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed && o.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Stage, o.Source, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Log writes one line per source plus a summary line.
func (r RunReport) Log(logger *zap.Logger) {
	for _, o := range r.Outcomes {
		fields := []zap.Field{
			zap.String("run_id", r.RunID),
			zap.String("source", o.Source),
			zap.String("status", string(o.Status)),
			zap.Int("records", o.Records),
			zap.Duration("duration", o.Duration),
		}
		if o.Key != "" {
			fields = append(fields, zap.String("key", o.Key))
		}
		if o.Err != nil {
			fields = append(fields, zap.Error(o.Err))
			logger.Error("source outcome", fields...)
			continue
		}
		logger.Info("source outcome", fields...)
	}
	logger.Info(r.Stage+" complete",
		zap.String("run_id", r.RunID),
		zap.Int("succeeded", r.Count(StatusSucceeded)),
		zap.Int("failed", r.Count(StatusFailed)),
		zap.Int("skipped", r.Count(StatusSkipped)),
		zap.Int("not_run", r.Count(StatusNotRun)),
		zap.Duration("duration", r.FinishedAt.Sub(r.StartedAt)),
	)
}
