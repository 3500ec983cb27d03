package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lakeingest/internal/store"
)

func TestRunHistoryLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := NewRunHistory()
	start := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	require.NoError(t, h.StartRun(ctx, "run-1", "ingest", start))
	require.NoError(t, h.StartRun(ctx, "run-1", "transform", start.Add(time.Hour)))
	require.NoError(t, h.RecordSource(ctx, store.SourceRun{RunID: "run-1", Source: "crm", Status: "failed"}))
	require.NoError(t, h.RecordSource(ctx, store.SourceRun{RunID: "run-1", Source: "crm", Status: "succeeded", Records: 3}))
	require.NoError(t, h.FinishRun(ctx, "run-1", start.Add(time.Minute), store.RunSucceeded, nil))

	run, err := h.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ingest", run.Stage)
	assert.Equal(t, start, run.StartedAt)
	assert.Equal(t, store.RunSucceeded, run.Status)
	require.Len(t, run.Sources, 1)
	assert.Equal(t, int64(3), run.Sources[0].Records)
}

func TestRunHistoryMissingRun(t *testing.T) {
	t.Parallel()

	h := NewRunHistory()
	_, err := h.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, h.FinishRun(context.Background(), "nope", time.Now(), store.RunFailed, nil), store.ErrNotFound)
}

func TestRunHistoryListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := NewRunHistory()
	base := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, h.StartRun(ctx, "a", "ingest", base))
	require.NoError(t, h.StartRun(ctx, "b", "transform", base.Add(time.Hour)))
	require.NoError(t, h.StartRun(ctx, "c", "ingest", base.Add(2*time.Hour)))
	require.NoError(t, h.FinishRun(ctx, "a", base.Add(time.Minute), store.RunFailed, nil))

	all, err := h.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, runIDs(all))

	ingest, err := h.ListRuns(ctx, store.RunFilter{Stage: "ingest"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, runIDs(ingest))

	failed := store.RunFailed
	onlyFailed, err := h.ListRuns(ctx, store.RunFilter{Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, runIDs(onlyFailed))

	page, err := h.ListRuns(ctx, store.RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, runIDs(page))

	empty, err := h.ListRuns(ctx, store.RunFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func runIDs(runs []store.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.RunID
	}
	return out
}
