package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/storage/memory"
	"github.com/JakeFAU/lakeingest/internal/store"
)

func seededHistory(t *testing.T) *memory.RunHistory {
	t.Helper()
	ctx := context.Background()
	h := memory.NewRunHistory()
	base := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, h.StartRun(ctx, "run-1", "ingest", base))
	require.NoError(t, h.RecordSource(ctx, store.SourceRun{
		RunID: "run-1", Source: "crm", Status: "succeeded", Records: 2,
		Key: "raw/crm/dt=2025-01-15/1736928000.json", Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, h.FinishRun(ctx, "run-1", base.Add(time.Minute), store.RunSucceeded, nil))
	require.NoError(t, h.StartRun(ctx, "run-2", "transform", base.Add(time.Hour)))
	return h
}

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRunsRoutesAbsentWithoutHistory(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, zap.NewNop()), "/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, zap.NewNop(), WithRunHistory(seededHistory(t)))
	rec := serve(t, s, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "run-2", body.Runs[0].RunID)
	assert.Equal(t, "running", body.Runs[0].Status)
	assert.Nil(t, body.Runs[0].FinishedAt)

	rec = serve(t, s, "/runs?stage=ingest&status=succeeded&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-1", body.Runs[0].RunID)
}

func TestListRunsRejectsBadFilters(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, zap.NewNop(), WithRunHistory(seededHistory(t)))
	for _, target := range []string{
		"/runs?limit=0",
		"/runs?limit=abc",
		"/runs?offset=-1",
		"/runs?status=exploded",
		"/runs?stage=export",
	} {
		rec := serve(t, s, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, zap.NewNop(), WithRunHistory(seededHistory(t)))
	rec := serve(t, s, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "succeeded", body.Run.Status)
	require.Len(t, body.Run.Sources, 1)
	assert.Equal(t, int64(1500), body.Run.Sources[0].DurationMS)
	assert.Equal(t, int64(2), body.Run.Sources[0].Records)

	rec = serve(t, s, "/runs/run-404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenHistory struct {
	store.RunHistory
}

func (brokenHistory) ListRuns(context.Context, store.RunFilter) ([]store.Run, error) {
	return nil, errors.New("pool closed")
}

func (brokenHistory) GetRun(context.Context, string) (store.Run, error) {
	return store.Run{}, errors.New("pool closed")
}

func TestRunsBackendFailure(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, zap.NewNop(), WithRunHistory(brokenHistory{}))
	assert.Equal(t, http.StatusInternalServerError, serve(t, s, "/runs").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, s, "/runs/run-1").Code)
}
