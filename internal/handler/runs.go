package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ambigdb/ambigdb/internal/config"
	"github.com/ambigdb/ambigdb/internal/model"
)

// RunReader is the read side of the run ledger.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// RunsHandler serves the run ledger.
type RunsHandler struct {
	runs RunReader
}

// NewRunsHandler creates a RunsHandler over runs.
func NewRunsHandler(runs RunReader) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// ListRuns handles GET /api/v1/runs. Query parameters db_id, configuration
// and accepted filter; limit and offset page.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter := model.RunFilter{
		DBID:   queryString(r, "db_id"),
		Limit:  clampInt(queryInt(r, "limit", defaultRunLimit), 1, maxRunLimit),
		Offset: clampInt(queryInt(r, "offset", 0), 0, 1<<31-1),
	}
	if cfg := queryString(r, "configuration"); cfg != "" {
		parsed, err := model.ParseConfiguration(cfg)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Configuration = parsed
	}
	accepted, err := queryOptionalBool(r, "accepted")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Accepted = accepted

	runs, err := h.runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: runs,
		Meta: &model.ResponseMeta{
			Count:  len(runs),
			Limit:  filter.Limit,
			Offset: filter.Offset,
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}
