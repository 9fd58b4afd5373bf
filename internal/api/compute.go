package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/precedent"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/signal"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

// ComputeHandler serves stateless computations over caller-supplied data.
type ComputeHandler struct {
	engine    *scoring.Engine
	estimator *approval.Estimator
	registry  *signal.Registry
	model     precedent.Model
	logger    *slog.Logger
}

func NewComputeHandler(engine *scoring.Engine, est *approval.Estimator, logger *slog.Logger) *ComputeHandler {
	return &ComputeHandler{
		engine:    engine,
		estimator: est,
		registry:  signal.DefaultRegistry(),
		model:     precedent.NewModel(precedent.DefaultBaseline()),
		logger:    logger,
	}
}

// CompositeRequest takes either raw signals, scored by the configured
// engine, or precomputed components aggregated under a named profile or an
// inline spec.
type CompositeRequest struct {
	EntityID   string                   `json:"entity_id,omitempty"`
	Profile    string                   `json:"profile,omitempty"`
	Spec       *scoring.WeightSpec      `json:"spec,omitempty"`
	Caps       []scoring.CapRule        `json:"caps,omitempty"`
	Components []scoring.ComponentScore `json:"components,omitempty"`
	Signals    map[string]any           `json:"signals,omitempty"`
}

type CompositeResponse struct {
	Components []scoring.ComponentScore `json:"components,omitempty"`
	Composites []scoring.CompositeScore `json:"composites"`
	Rejected   []RejectedSignal         `json:"rejected_signals,omitempty"`
}

type RejectedSignal struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (h *ComputeHandler) Composite(w http.ResponseWriter, r *http.Request) {
	var req CompositeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Signals != nil {
		set, rejected := h.registry.Parse(req.EntityID, req.Signals, h.logger)
		res := h.engine.Score(set)
		out := CompositeResponse{Components: res.Components, Composites: res.Composites}
		if req.Profile != "" {
			c, ok := res.Composite(req.Profile)
			if !ok {
				writeError(w, http.StatusNotFound, "unknown profile "+req.Profile)
				return
			}
			out.Composites = []scoring.CompositeScore{c}
		}
		for _, rj := range rejected {
			out.Rejected = append(out.Rejected, RejectedSignal{Name: rj.Name, Reason: rj.Err.Error()})
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var agg *scoring.Aggregator
	switch {
	case req.Spec != nil:
		a, err := scoring.NewAggregator(*req.Spec, req.Caps)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		agg = a
	case req.Profile != "":
		a, ok := h.engine.Aggregator(req.Profile)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown profile "+req.Profile)
			return
		}
		agg = a
	default:
		writeError(w, http.StatusBadRequest, "one of signals, spec or profile is required")
		return
	}
	writeJSON(w, http.StatusOK, CompositeResponse{Composites: []scoring.CompositeScore{agg.Aggregate(req.Components)}})
}

// ApprovalRequest carries the entity's own trials, the indication's trial
// history for precedent, and optionally its competitors.
type ApprovalRequest struct {
	EntityID         string                   `json:"entity_id"`
	IsApproved       bool                     `json:"is_approved"`
	Indication       string                   `json:"indication,omitempty"`
	Trials           []trial.Trial            `json:"trials"`
	IndicationTrials []trial.Trial            `json:"indication_trials,omitempty"`
	Competitors      []competition.Competitor `json:"competitors,omitempty"`
}

type ApprovalResponse struct {
	Estimate    approval.Estimate   `json:"estimate"`
	Precedent   precedent.Record    `json:"precedent"`
	Competition *competition.Result `json:"competition,omitempty"`
}

func (h *ComputeHandler) Approval(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := h.model.BaselineRecord(req.Indication)
	if len(req.IndicationTrials) > 0 {
		rec = h.model.Build(req.Indication, req.IndicationTrials)
	}

	var comp *competition.Result
	if req.Competitors != nil {
		res := competition.Analyze(competition.Landscape{
			EntityID:     req.EntityID,
			HighestPhase: int(trial.HighestPhase(req.Trials, false)),
			Competitors:  req.Competitors,
		})
		comp = &res
	}

	est, err := h.estimator.Estimate(approval.Input{
		EntityID:    req.EntityID,
		IsApproved:  req.IsApproved,
		Trials:      req.Trials,
		Precedent:   rec,
		Competition: comp,
	})
	if errors.Is(err, approval.ErrNoEntity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse{Estimate: est, Precedent: rec, Competition: comp})
}
