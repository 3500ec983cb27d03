package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	historyTimeout  = 3 * time.Second
)

type runsHandler struct {
	history store.RunHistory
	timeout time.Duration
	logger  *zap.Logger
}

func newRunsHandler(history store.RunHistory, logger *zap.Logger) *runsHandler {
	return &runsHandler{history: history, timeout: historyTimeout, logger: logger}
}

// list handles GET /runs?stage=&status=&limit=&offset= and returns
// {"runs": [...]} newest first.
func (h *runsHandler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.history.ListRuns(ctx, filter)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs", h.logger)
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out}, h.logger)
}

// get handles GET /runs/{run_id} and returns {"run": {...}} with its
// per-source outcomes.
func (h *runsHandler) get(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required", h.logger)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.history.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found", h.logger)
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)}, h.logger)
}

func parseRunFilter(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	filter := store.RunFilter{Stage: q.Get("stage"), Limit: defaultRunLimit}
	switch filter.Stage {
	case "", "ingest", "transform":
	default:
		return store.RunFilter{}, errors.New("invalid stage")
	}
	if raw := q.Get("status"); raw != "" {
		status, err := store.ParseRunStatus(strings.ToLower(raw))
		if err != nil {
			return store.RunFilter{}, err
		}
		filter.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return store.RunFilter{}, errors.New("invalid limit")
		}
		filter.Limit = min(n, maxRunLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.RunFilter{}, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

type runDTO struct {
	RunID        string         `json:"run_id"`
	Stage        string         `json:"stage"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	Sources      []sourceRunDTO `json:"sources,omitempty"`
}

type sourceRunDTO struct {
	Source       string  `json:"source"`
	Status       string  `json:"status"`
	Records      int64   `json:"records"`
	Key          string  `json:"key,omitempty"`
	DurationMS   int64   `json:"duration_ms"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func toRunDTO(run store.Run) runDTO {
	dto := runDTO{
		RunID:        run.RunID,
		Stage:        run.Stage,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		ErrorMessage: run.ErrorMessage,
	}
	for _, sr := range run.Sources {
		dto.Sources = append(dto.Sources, sourceRunDTO{
			Source:       sr.Source,
			Status:       sr.Status,
			Records:      sr.Records,
			Key:          sr.Key,
			DurationMS:   sr.Duration.Milliseconds(),
			ErrorMessage: sr.ErrorMessage,
		})
	}
	return dto
}
