package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/precedent"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const entityColumns = `entity_id, name, kind, indication, target, is_approved`

func scanEntity(row pgx.Row) (Entity, error) {
	var e Entity
	err := row.Scan(&e.ID, &e.Name, &e.Kind, &e.Indication, &e.Target, &e.IsApproved)
	return e, err
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE entity_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

// UpsertEntity is used by seeding and tests.
func (s *PostgresStore) UpsertEntity(ctx context.Context, e Entity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id) DO UPDATE SET
			name = EXCLUDED.name, kind = EXCLUDED.kind, indication = EXCLUDED.indication,
			target = EXCLUDED.target, is_approved = EXCLUDED.is_approved`,
		e.ID, e.Name, e.Kind, e.Indication, e.Target, e.IsApproved)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// GetSignals returns raw signal values keyed by name. A stored JSON null
// comes back as a nil value.
func (s *PostgresStore) GetSignals(ctx context.Context, entityID string) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM entity_signals WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("get signals %s: %w", entityID, err)
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		var v any
		if raw != nil {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode signal %s: %w", name, err)
			}
		}
		out[name] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutSignals(ctx context.Context, entityID string, raw map[string]any) error {
	b := &pgx.Batch{}
	for name, v := range raw {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode signal %s: %w", name, err)
		}
		b.Queue(`
			INSERT INTO entity_signals (entity_id, name, value) VALUES ($1, $2, $3)
			ON CONFLICT (entity_id, name) DO UPDATE SET value = EXCLUDED.value`,
			entityID, name, data)
	}
	return sendBatch(ctx, s.pool, b, "put signals")
}

const trialColumns = `trial_id, entity_id, indication, phase, status,
	is_randomized, is_blinded, has_placebo, has_active_comparator,
	primary_endpoint, enrollment`

func (s *PostgresStore) queryTrials(ctx context.Context, where string, arg any) ([]trial.Trial, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trialColumns+` FROM trials WHERE `+where+` ORDER BY trial_id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trial.Trial
	for rows.Next() {
		var t trial.Trial
		var phase int
		var status string
		if err := rows.Scan(&t.ID, &t.EntityID, &t.Indication, &phase, &status,
			&t.Randomized, &t.Blinded, &t.PlaceboControlled, &t.ActiveComparator,
			&t.PrimaryEndpoint, &t.Enrollment); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Phase = trial.Phase(phase)
		t.Status = trial.ParseStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTrialsForIndication matches indications case- and whitespace-
// insensitively.
func (s *PostgresStore) GetTrialsForIndication(ctx context.Context, indication string) ([]trial.Trial, error) {
	out, err := s.queryTrials(ctx,
		`regexp_replace(lower(trim(indication)), '\s+', ' ', 'g') = $1`,
		precedent.NormalizeIndication(indication))
	if err != nil {
		return nil, fmt.Errorf("trials for indication %q: %w", indication, err)
	}
	return out, nil
}

func (s *PostgresStore) GetTrialsForEntity(ctx context.Context, entityID string) ([]trial.Trial, error) {
	out, err := s.queryTrials(ctx, `entity_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("trials for entity %s: %w", entityID, err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertTrial(ctx context.Context, t trial.Trial) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trials (`+trialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (trial_id) DO UPDATE SET
			entity_id = EXCLUDED.entity_id, indication = EXCLUDED.indication,
			phase = EXCLUDED.phase, status = EXCLUDED.status,
			is_randomized = EXCLUDED.is_randomized, is_blinded = EXCLUDED.is_blinded,
			has_placebo = EXCLUDED.has_placebo, has_active_comparator = EXCLUDED.has_active_comparator,
			primary_endpoint = EXCLUDED.primary_endpoint, enrollment = EXCLUDED.enrollment`,
		t.ID, t.EntityID, t.Indication, int(t.Phase), string(t.Status),
		t.Randomized, t.Blinded, t.PlaceboControlled, t.ActiveComparator,
		t.PrimaryEndpoint, t.Enrollment)
	if err != nil {
		return fmt.Errorf("upsert trial %s: %w", t.ID, err)
	}
	return nil
}

// GetCompetitors returns other entities sharing e's indication or target.
// An approved competitor counts as phase 4.
func (s *PostgresStore) GetCompetitors(ctx context.Context, e Entity) ([]competition.Competitor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.entity_id,
			GREATEST(COALESCE(MAX(t.phase), 0), CASE WHEN c.is_approved THEN 4 ELSE 0 END),
			($2 <> '' AND lower(c.indication) = lower($2)),
			($3 <> '' AND lower(c.target) = lower($3))
		FROM entities c
		LEFT JOIN trials t ON t.entity_id = c.entity_id
		WHERE c.entity_id <> $1
			AND (($2 <> '' AND lower(c.indication) = lower($2))
				OR ($3 <> '' AND lower(c.target) = lower($3)))
		GROUP BY c.entity_id, c.indication, c.target, c.is_approved
		ORDER BY c.entity_id`,
		e.ID, e.Indication, e.Target)
	if err != nil {
		return nil, fmt.Errorf("competitors for %s: %w", e.ID, err)
	}
	defer rows.Close()

	var out []competition.Competitor
	for rows.Next() {
		var c competition.Competitor
		if err := rows.Scan(&c.EntityID, &c.HighestPhase, &c.SharesIndication, &c.SharesTarget); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// SaveEntityScores writes one entity's components, composites and estimate
// in a single transaction. Either all of them move to es.RunID or none do.
func (s *PostgresStore) SaveEntityScores(ctx context.Context, es EntityScores) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin save %s: %w", es.EntityID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := upsertComponentScores(ctx, tx, es.RunID, es.EntityID, es.Components); err != nil {
		return err
	}
	for _, c := range es.Composites {
		if err := upsertCompositeScore(ctx, tx, es.RunID, es.EntityID, es.IndicationID, c); err != nil {
			return err
		}
	}
	if err := upsertApprovalEstimate(ctx, tx, es.RunID, es.EntityID, es.IndicationID, es.Approval); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save %s: %w", es.EntityID, err)
	}
	return nil
}

func upsertComponentScores(ctx context.Context, db dbtx, runID uuid.UUID, entityID string, scores []scoring.ComponentScore) error {
	b := &pgx.Batch{}
	for _, c := range scores {
		sources := c.SourceSignals
		if sources == nil {
			sources = []string{}
		}
		b.Queue(`
			INSERT INTO component_scores (entity_id, component, run_id, value, default_applied, source_signals, reason, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (entity_id, component) DO UPDATE SET
				run_id = EXCLUDED.run_id, value = EXCLUDED.value,
				default_applied = EXCLUDED.default_applied, source_signals = EXCLUDED.source_signals,
				reason = EXCLUDED.reason, computed_at = EXCLUDED.computed_at`,
			entityID, c.Name, runID, c.Value, c.DefaultApplied, sources, c.Reason)
	}
	return sendBatch(ctx, db, b, "upsert component scores")
}

func upsertCompositeScore(ctx context.Context, db dbtx, runID uuid.UUID, entityID, indicationID string, c scoring.CompositeScore) error {
	detail, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode composite %s: %w", c.Name, err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO composite_scores (id, entity_id, indication_id, score_type, run_id, value, detail, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (entity_id, indication_id, score_type) DO UPDATE SET
			run_id = EXCLUDED.run_id, value = EXCLUDED.value,
			detail = EXCLUDED.detail, computed_at = EXCLUDED.computed_at`,
		uuid.New(), entityID, indicationID, c.Name, runID, c.Value, detail)
	if err != nil {
		return fmt.Errorf("upsert composite %s/%s: %w", entityID, c.Name, err)
	}
	return nil
}

func upsertApprovalEstimate(ctx context.Context, db dbtx, runID uuid.UUID, entityID, indicationID string, est approval.Estimate) error {
	detail, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("encode estimate: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO approval_estimates (id, entity_id, indication_id, run_id, final_probability, confidence_tier, detail, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (entity_id, indication_id) DO UPDATE SET
			run_id = EXCLUDED.run_id, final_probability = EXCLUDED.final_probability,
			confidence_tier = EXCLUDED.confidence_tier, detail = EXCLUDED.detail,
			computed_at = EXCLUDED.computed_at`,
		uuid.New(), entityID, indicationID, runID, est.FinalProbability, est.Confidence, detail)
	if err != nil {
		return fmt.Errorf("upsert approval estimate %s: %w", entityID, err)
	}
	return nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO score_runs (run_id, started_at, finished_at, scored, failed)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Scored, run.Failed)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetCompositeScores(ctx context.Context, entityID string) ([]StoredComposite, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, entity_id, indication_id, detail, computed_at
		FROM composite_scores WHERE entity_id = $1
		ORDER BY indication_id, score_type`, entityID)
	if err != nil {
		return nil, fmt.Errorf("get composites %s: %w", entityID, err)
	}
	defer rows.Close()

	var out []StoredComposite
	for rows.Next() {
		var sc StoredComposite
		var detail []byte
		if err := rows.Scan(&sc.ID, &sc.RunID, &sc.EntityID, &sc.IndicationID, &detail, &sc.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan composite: %w", err)
		}
		if err := json.Unmarshal(detail, &sc.Score); err != nil {
			return nil, fmt.Errorf("decode composite: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// GetApprovalEstimate returns the most recently computed estimate for the
// entity across indications.
func (s *PostgresStore) GetApprovalEstimate(ctx context.Context, entityID string) (*StoredEstimate, error) {
	var se StoredEstimate
	var detail []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, entity_id, indication_id, detail, computed_at
		FROM approval_estimates WHERE entity_id = $1
		ORDER BY computed_at DESC LIMIT 1`, entityID,
	).Scan(&se.ID, &se.RunID, &se.EntityID, &se.IndicationID, &detail, &se.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval estimate %s: %w", entityID, err)
	}
	if err := json.Unmarshal(detail, &se.Estimate); err != nil {
		return nil, fmt.Errorf("decode estimate: %w", err)
	}
	return &se, nil
}

func sendBatch(ctx context.Context, db dbtx, b *pgx.Batch, op string) error {
	if b.Len() == 0 {
		return nil
	}
	br := db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
