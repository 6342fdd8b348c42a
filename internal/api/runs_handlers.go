package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunHandler serves the persisted run history.
type RunHandler struct {
	repo    store.RunRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires a RunHandler.
func NewRunHandler(repo store.RunRepository, timeout time.Duration, logger *zap.Logger) *RunHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{repo: repo, timeout: timeout, logger: logger}
}

// ListRuns handles GET /v1/runs?limit=N.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListRuns(ctx, limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	resp := listRunsResponse{Runs: make([]runDTO, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /v1/runs/{run_id}.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultRunLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return limit, nil
}

type listRunsResponse struct {
	Runs []runDTO `json:"runs"`
}

type runDTO struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Target       int        `json:"target"`
	Accepted     int        `json:"accepted"`
	Saved        int        `json:"saved"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

func toRunDTO(r store.Run) runDTO {
	return runDTO{
		ID:           r.ID.String(),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Status:       string(r.Status),
		Target:       r.Target,
		Accepted:     r.Accepted,
		Saved:        r.Saved,
		ErrorMessage: r.ErrorMessage,
	}
}
