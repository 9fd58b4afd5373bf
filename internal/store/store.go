package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

var ErrNotFound = errors.New("not found")

type EntityKind string

const (
	KindDrug   EntityKind = "drug"
	KindTarget EntityKind = "target"
	KindAsset  EntityKind = "asset"
)

// Entity is a drug, target or asset being scored. Indication and Target
// are free text; an empty value means unknown.
type Entity struct {
	ID         string     `json:"entity_id"`
	Name       string     `json:"name"`
	Kind       EntityKind `json:"kind"`
	Indication string     `json:"indication,omitempty"`
	Target     string     `json:"target,omitempty"`
	IsApproved bool       `json:"is_approved"`
}

// StoredComposite is a persisted composite score.
type StoredComposite struct {
	ID           uuid.UUID              `json:"id"`
	RunID        uuid.UUID              `json:"run_id"`
	EntityID     string                 `json:"entity_id"`
	IndicationID string                 `json:"indication_id"`
	Score        scoring.CompositeScore `json:"score"`
	ComputedAt   time.Time              `json:"computed_at"`
}

// StoredEstimate is a persisted approval estimate.
type StoredEstimate struct {
	ID           uuid.UUID         `json:"id"`
	RunID        uuid.UUID         `json:"run_id"`
	EntityID     string            `json:"entity_id"`
	IndicationID string            `json:"indication_id"`
	Estimate     approval.Estimate `json:"estimate"`
	ComputedAt   time.Time         `json:"computed_at"`
}

// Run is the summary row written at the end of a batch run.
type Run struct {
	ID         uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Scored     int       `json:"scored"`
	Failed     int       `json:"failed"`
}

// Reader supplies the inputs of a scoring run.
type Reader interface {
	ListEntities(ctx context.Context) ([]Entity, error)
	GetEntity(ctx context.Context, id string) (*Entity, error)
	GetSignals(ctx context.Context, entityID string) (map[string]any, error)
	GetTrialsForIndication(ctx context.Context, indication string) ([]trial.Trial, error)
	GetTrialsForEntity(ctx context.Context, entityID string) ([]trial.Trial, error)
	GetCompetitors(ctx context.Context, e Entity) ([]competition.Competitor, error)
}

// EntityScores is everything one run computed for one entity.
type EntityScores struct {
	RunID        uuid.UUID
	EntityID     string
	IndicationID string
	Components   []scoring.ComponentScore
	Composites   []scoring.CompositeScore
	Approval     approval.Estimate
}

// Writer persists run outputs. All writes are upserts keyed by
// (entity_id, indication_id[, score_type]) so reruns are idempotent.
// SaveEntityScores is atomic per entity.
type Writer interface {
	SaveEntityScores(ctx context.Context, es EntityScores) error
	RecordRun(ctx context.Context, run Run) error
}

type Store interface {
	Reader
	Writer

	GetCompositeScores(ctx context.Context, entityID string) ([]StoredComposite, error)
	GetApprovalEstimate(ctx context.Context, entityID string) (*StoredEstimate, error)

	Close() error
}
