package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/Assay/internal/store"
)

// Store is the read side the API serves from.
type Store interface {
	GetEntity(ctx context.Context, id string) (*store.Entity, error)
	GetCompositeScores(ctx context.Context, entityID string) ([]store.StoredComposite, error)
	GetApprovalEstimate(ctx context.Context, entityID string) (*store.StoredEstimate, error)
}

type EntitiesHandler struct {
	store Store
}

func NewEntitiesHandler(s Store) *EntitiesHandler {
	return &EntitiesHandler{store: s}
}

type ScoresResponse struct {
	Entity store.Entity            `json:"entity"`
	Scores []store.StoredComposite `json:"scores"`
}

func (h *EntitiesHandler) Scores(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := h.store.GetEntity(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	scores, err := h.store.GetCompositeScores(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scores == nil {
		scores = []store.StoredComposite{}
	}
	writeJSON(w, http.StatusOK, ScoresResponse{Entity: *e, Scores: scores})
}

func (h *EntitiesHandler) Approval(w http.ResponseWriter, r *http.Request) {
	est, err := h.store.GetApprovalEstimate(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no approval estimate for entity")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, est)
}
