package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/lakeingest/internal/store"
)

// Default run history tables.
const (
	DefaultRunsTable       = "pipeline_runs"
	DefaultSourceRunsTable = "pipeline_source_runs"
)

// RunHistoryConfig controls where run history is written.
type RunHistoryConfig struct {
	DSN          string
	RunsTable    string
	SourcesTable string
	MaxConns     int32
}

// RunHistory implements store.RunHistory on two Postgres tables.
type RunHistory struct {
	pool    queryPool
	runs    string
	sources string
}

var _ store.RunHistory = (*RunHistory)(nil)

// NewRunHistory connects to Postgres and ensures both tables exist.
func NewRunHistory(ctx context.Context, cfg RunHistoryConfig) (*RunHistory, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.postgres.dsn is required")
	}
	p, err := connect(ctx, PoolConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, err
	}
	h, err := NewRunHistoryWithPool(p, cfg.RunsTable, cfg.SourcesTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := h.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return h, nil
}

// NewRunHistoryWithPool constructs a RunHistory from an existing pool.
func NewRunHistoryWithPool(p queryPool, runsTable, sourcesTable string) (*RunHistory, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runsTable == "" {
		runsTable = DefaultRunsTable
	}
	if sourcesTable == "" {
		sourcesTable = DefaultSourceRunsTable
	}
	for _, t := range []string{runsTable, sourcesTable} {
		if !validTableName.MatchString(t) {
			return nil, fmt.Errorf("invalid table name %q", t)
		}
	}
	return &RunHistory{pool: p, runs: runsTable, sources: sourcesTable}, nil
}

// Close releases the underlying pool resources.
func (h *RunHistory) Close() {
	if h == nil || h.pool == nil {
		return
	}
	h.pool.Close()
}

// EnsureSchema creates the run tables when they are missing.
func (h *RunHistory) EnsureSchema(ctx context.Context) error {
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT PRIMARY KEY,
	stage         TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	error_message TEXT
)`, h.runs)
	if _, err := h.pool.Exec(ctx, runs); err != nil {
		return fmt.Errorf("create %s: %w", h.runs, err)
	}
	sources := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL,
	records       BIGINT NOT NULL DEFAULT 0,
	object_key    TEXT NOT NULL DEFAULT '',
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	error_message TEXT,
	recorded_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, source)
)`, h.sources)
	if _, err := h.pool.Exec(ctx, sources); err != nil {
		return fmt.Errorf("create %s: %w", h.sources, err)
	}
	return nil
}

// StartRun inserts a running row unless the run already exists.
func (h *RunHistory) StartRun(ctx context.Context, runID, stage string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, stage, started_at, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id) DO NOTHING`, h.runs)
	if _, err := h.pool.Exec(ctx, query, runID, stage, startedAt.UTC(), string(store.RunRunning)); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

// RecordSource upserts one source outcome.
func (h *RunHistory) RecordSource(ctx context.Context, sr store.SourceRun) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, source, status, records, object_key, duration_ms, error_message, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id, source) DO UPDATE
SET status = EXCLUDED.status,
	records = EXCLUDED.records,
	object_key = EXCLUDED.object_key,
	duration_ms = EXCLUDED.duration_ms,
	error_message = EXCLUDED.error_message,
	recorded_at = EXCLUDED.recorded_at`, h.sources)
	if _, err := h.pool.Exec(ctx, query,
		sr.RunID,
		sr.Source,
		sr.Status,
		sr.Records,
		sr.Key,
		sr.Duration.Milliseconds(),
		sr.ErrorMessage,
		sr.RecordedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert source run %s/%s: %w", sr.RunID, sr.Source, err)
	}
	return nil
}

// FinishRun marks a run finished. Unknown runs yield store.ErrNotFound.
func (h *RunHistory) FinishRun(
	ctx context.Context,
	runID string,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, error_message = $3
WHERE run_id = $4`, h.runs)
	tag, err := h.pool.Exec(ctx, query, finishedAt.UTC(), string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun loads one run and its source rows.
func (h *RunHistory) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := fmt.Sprintf(`
SELECT run_id, stage, started_at, finished_at, status, error_message
FROM %s
WHERE run_id = $1`, h.runs)
	run, err := scanRun(h.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}

	query = fmt.Sprintf(`
SELECT run_id, source, status, records, object_key, duration_ms, error_message, recorded_at
FROM %s
WHERE run_id = $1
ORDER BY recorded_at, source`, h.sources)
	rows, err := h.pool.Query(ctx, query, runID)
	if err != nil {
		return store.Run{}, fmt.Errorf("list sources for run %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sr         store.SourceRun
			durationMS int64
		)
		if err := rows.Scan(
			&sr.RunID,
			&sr.Source,
			&sr.Status,
			&sr.Records,
			&sr.Key,
			&durationMS,
			&sr.ErrorMessage,
			&sr.RecordedAt,
		); err != nil {
			return store.Run{}, fmt.Errorf("scan source run: %w", err)
		}
		sr.Duration = time.Duration(durationMS) * time.Millisecond
		run.Sources = append(run.Sources, sr)
	}
	if err := rows.Err(); err != nil {
		return store.Run{}, fmt.Errorf("iterate source runs: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. A non-positive limit returns every
// matching run.
func (h *RunHistory) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	query := fmt.Sprintf(`
SELECT run_id, stage, started_at, finished_at, status, error_message
FROM %s
WHERE ($1 = '' OR stage = $1)
  AND ($2::text IS NULL OR status = $2)
ORDER BY started_at DESC, run_id DESC
LIMIT $3 OFFSET $4`, h.runs)

	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := h.pool.Query(ctx, query, filter.Stage, status, limit, max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	if err := row.Scan(
		&run.RunID,
		&run.Stage,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
	); err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	return run, nil
}
