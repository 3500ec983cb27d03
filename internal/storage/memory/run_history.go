package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/lakeingest/internal/store"
)

// RunHistory keeps run history in-memory for development/testing.
type RunHistory struct {
	mu      sync.RWMutex
	runs    map[string]*store.Run
	sources map[string][]store.SourceRun
}

var _ store.RunHistory = (*RunHistory)(nil)

// NewRunHistory constructs an empty RunHistory.
func NewRunHistory() *RunHistory {
	return &RunHistory{
		runs:    make(map[string]*store.Run),
		sources: make(map[string][]store.SourceRun),
	}
}

// StartRun records a running run unless it already exists.
func (h *RunHistory) StartRun(_ context.Context, runID, stage string, startedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.runs[runID]; ok {
		return nil
	}
	h.runs[runID] = &store.Run{RunID: runID, Stage: stage, StartedAt: startedAt.UTC(), Status: store.RunRunning}
	return nil
}

// RecordSource upserts one source outcome.
func (h *RunHistory) RecordSource(_ context.Context, sr store.SourceRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sr.RecordedAt = sr.RecordedAt.UTC()
	list := h.sources[sr.RunID]
	for i := range list {
		if list[i].Source == sr.Source {
			list[i] = sr
			return nil
		}
	}
	h.sources[sr.RunID] = append(list, sr)
	return nil
}

// FinishRun marks a run finished. It returns store.ErrNotFound for unknown runs.
func (h *RunHistory) FinishRun(_ context.Context, runID string, finishedAt time.Time, status store.RunStatus, errMsg *string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	run, ok := h.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	at := finishedAt.UTC()
	run.FinishedAt = &at
	run.Status = status
	run.ErrorMessage = errMsg
	return nil
}

// GetRun returns a copy of the run with its sources.
func (h *RunHistory) GetRun(_ context.Context, runID string) (store.Run, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	run, ok := h.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	out := *run
	out.Sources = append([]store.SourceRun(nil), h.sources[runID]...)
	return out, nil
}

// ListRuns returns matching runs newest first.
func (h *RunHistory) ListRuns(_ context.Context, filter store.RunFilter) ([]store.Run, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]store.Run, 0, len(h.runs))
	for _, run := range h.runs {
		if filter.Stage != "" && run.Stage != filter.Stage {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].RunID > out[j].RunID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []store.Run{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
