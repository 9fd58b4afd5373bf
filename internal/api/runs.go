package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/MikeSquared-Agency/Assay/internal/runner"
)

type RunTrigger interface {
	RunIDs(ctx context.Context, ids []string) (*runner.Report, error)
}

type RunsHandler struct {
	runs RunTrigger
}

func NewRunsHandler(t RunTrigger) *RunsHandler {
	return &RunsHandler{runs: t}
}

type RunRequest struct {
	EntityIDs []string `json:"entity_ids"`
}

// Trigger runs synchronously and returns the report. An empty body scores
// every entity.
func (h *RunsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}
	var req RunRequest
	if err := readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.runs.RunIDs(r.Context(), req.EntityIDs)
	if errors.Is(err, runner.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
