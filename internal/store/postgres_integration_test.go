//go:build integration

package store

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

func setupTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, "TRUNCATE entity_signals, entities, trials, component_scores, composite_scores, approval_estimates, score_runs CASCADE")
		s.Close()
	})

	return s
}

func seed(t *testing.T, s *PostgresStore) {
	t.Helper()
	ctx := context.Background()
	entities := []Entity{
		{ID: "D1", Name: "drug one", Kind: KindDrug, Indication: "Gout", Target: "XO"},
		{ID: "D2", Name: "drug two", Kind: KindDrug, Indication: "gout"},
		{ID: "D3", Name: "drug three", Kind: KindDrug, Indication: "Asthma", Target: "xo", IsApproved: true},
		{ID: "D4", Name: "unrelated", Kind: KindDrug, Indication: "Asthma"},
	}
	for _, e := range entities {
		if err := s.UpsertEntity(ctx, e); err != nil {
			t.Fatalf("UpsertEntity: %v", err)
		}
	}
	trials := []trial.Trial{
		{ID: "T1", EntityID: "D1", Indication: "Gout", Phase: trial.Phase2, Status: trial.StatusCompleted, Randomized: true, Enrollment: 120},
		{ID: "T2", EntityID: "D2", Indication: "  GOUT ", Phase: trial.Phase3, Status: trial.StatusRecruiting},
		{ID: "T3", EntityID: "D4", Indication: "Asthma", Phase: trial.Phase1, Status: trial.StatusTerminated},
	}
	for _, tr := range trials {
		if err := s.UpsertTrial(ctx, tr); err != nil {
			t.Fatalf("UpsertTrial: %v", err)
		}
	}
}

func TestEntitiesAndSignals(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	seed(t, s)

	list, err := s.ListEntities(ctx)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 entities, got %d", len(list))
	}

	if _, err := s.GetEntity(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	err = s.PutSignals(ctx, "D1", map[string]any{"bio_association": 0.4, "tractability_label": "Advanced Clinical", "potency_pxc50": nil})
	if err != nil {
		t.Fatalf("PutSignals: %v", err)
	}
	raw, err := s.GetSignals(ctx, "D1")
	if err != nil {
		t.Fatalf("GetSignals: %v", err)
	}
	if raw["bio_association"] != 0.4 {
		t.Errorf("expected 0.4, got %v", raw["bio_association"])
	}
	if v, ok := raw["potency_pxc50"]; !ok || v != nil {
		t.Errorf("expected present nil potency, got %v (present=%v)", v, ok)
	}
}

func TestTrialsAndCompetitors(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	seed(t, s)

	byIndication, err := s.GetTrialsForIndication(ctx, "gout")
	if err != nil {
		t.Fatalf("GetTrialsForIndication: %v", err)
	}
	if len(byIndication) != 2 {
		t.Errorf("expected 2 gout trials, got %d", len(byIndication))
	}

	byEntity, err := s.GetTrialsForEntity(ctx, "D1")
	if err != nil {
		t.Fatalf("GetTrialsForEntity: %v", err)
	}
	if len(byEntity) != 1 || byEntity[0].Phase != trial.Phase2 || byEntity[0].Status != trial.StatusCompleted {
		t.Errorf("unexpected entity trials: %+v", byEntity)
	}

	comps, err := s.GetCompetitors(ctx, Entity{ID: "D1", Indication: "Gout", Target: "XO"})
	if err != nil {
		t.Fatalf("GetCompetitors: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("expected 2 competitors, got %+v", comps)
	}
	if comps[0].EntityID != "D2" || !comps[0].SharesIndication || comps[0].HighestPhase != 3 {
		t.Errorf("unexpected D2 competitor: %+v", comps[0])
	}
	if comps[1].EntityID != "D3" || !comps[1].SharesTarget || comps[1].SharesIndication || comps[1].HighestPhase != 4 {
		t.Errorf("unexpected D3 competitor: %+v", comps[1])
	}
}

func TestScoreUpsertsAreIdempotent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	runID := uuid.New()
	v := 42.0

	comps := []scoring.ComponentScore{
		{Name: scoring.ComponentBio, Value: &v, SourceSignals: []string{"bio_association"}},
		{Name: scoring.ComponentChem, Reason: "missing signal: potency_pxc50"},
	}
	for i := 0; i < 2; i++ {
		err := s.SaveEntityScores(ctx, EntityScores{
			RunID:      runID,
			EntityID:   "D1",
			Components: comps,
			Composites: []scoring.CompositeScore{{Name: scoring.TotalScore, Value: &v}},
			Approval:   approval.Estimate{EntityID: "D1", FinalProbability: 0.3, Confidence: "Low"},
		})
		if err != nil {
			t.Fatalf("SaveEntityScores: %v", err)
		}
	}

	stored, err := s.GetCompositeScores(ctx, "D1")
	if err != nil {
		t.Fatalf("GetCompositeScores: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 composite after rerun, got %d", len(stored))
	}
	if stored[0].Score.Value == nil || *stored[0].Score.Value != 42 {
		t.Errorf("unexpected stored score %+v", stored[0].Score)
	}

	est, err := s.GetApprovalEstimate(ctx, "D1")
	if err != nil {
		t.Fatalf("GetApprovalEstimate: %v", err)
	}
	if est.Estimate.FinalProbability != 0.3 || est.RunID != runID {
		t.Errorf("unexpected estimate %+v", est)
	}

	if _, err := s.GetApprovalEstimate(ctx, "D9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	now := time.Now()
	if err := s.RecordRun(ctx, Run{ID: runID, StartedAt: now, FinishedAt: now, Scored: 1}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
}

func TestSaveEntityScoresRollsBackOnFailure(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()
	v, w := 42.0, 77.0

	err := s.SaveEntityScores(ctx, EntityScores{
		RunID:      first,
		EntityID:   "D1",
		Components: []scoring.ComponentScore{{Name: scoring.ComponentBio, Value: &v}},
		Composites: []scoring.CompositeScore{{Name: scoring.TotalScore, Value: &v}},
		Approval:   approval.Estimate{EntityID: "D1", FinalProbability: 0.3, Confidence: "Low"},
	})
	if err != nil {
		t.Fatalf("SaveEntityScores: %v", err)
	}

	// NaN cannot be encoded, so the estimate write fails after the
	// component and composite rows were written inside the transaction.
	err = s.SaveEntityScores(ctx, EntityScores{
		RunID:      second,
		EntityID:   "D1",
		Components: []scoring.ComponentScore{{Name: scoring.ComponentBio, Value: &w}},
		Composites: []scoring.CompositeScore{{Name: scoring.TotalScore, Value: &w}},
		Approval:   approval.Estimate{EntityID: "D1", FinalProbability: math.NaN()},
	})
	if err == nil {
		t.Fatal("expected save to fail")
	}

	stored, err := s.GetCompositeScores(ctx, "D1")
	if err != nil {
		t.Fatalf("GetCompositeScores: %v", err)
	}
	if len(stored) != 1 || stored[0].RunID != first || *stored[0].Score.Value != 42 {
		t.Errorf("composite not rolled back: %+v", stored)
	}

	var componentRun uuid.UUID
	if err := s.pool.QueryRow(ctx, `SELECT run_id FROM component_scores WHERE entity_id = 'D1' AND component = $1`,
		scoring.ComponentBio).Scan(&componentRun); err != nil {
		t.Fatalf("query component: %v", err)
	}
	if componentRun != first {
		t.Errorf("component row moved to failed run %s", componentRun)
	}
}
