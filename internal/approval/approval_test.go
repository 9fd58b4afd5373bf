package approval

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/precedent"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

func newEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(DefaultConfig())
	require.NoError(t, err)
	return e
}

func baselinePrecedent() precedent.Record {
	return precedent.NewModel(precedent.DefaultBaseline()).BaselineRecord("x")
}

func pivotal(phase trial.Phase) trial.Trial {
	return trial.Trial{
		Phase: phase, Status: trial.StatusCompleted,
		Randomized: true, Blinded: true, PlaceboControlled: true,
		PrimaryEndpoint: "overall survival", Enrollment: 400,
	}
}

func TestApprovedFlagShortCircuits(t *testing.T) {
	est, err := newEstimator(t).Estimate(Input{
		EntityID:    "drug-1",
		IsApproved:  true,
		Trials:      []trial.Trial{{Phase: trial.Phase1}},
		Competition: &competition.Result{Score: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, est.FinalProbability)
	assert.Equal(t, ConfidenceConfirmed, est.Confidence)
	assert.Equal(t, PhaseApproved, est.CurrentPhase)
	assert.True(t, est.Overridden)
}

func TestPhaseFourOverride(t *testing.T) {
	est, err := newEstimator(t).Estimate(Input{
		EntityID: "drug-2",
		Trials:   []trial.Trial{{Phase: trial.Phase2}, {Phase: trial.Phase4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, est.FinalProbability)
	assert.Equal(t, ConfidenceHigh, est.Confidence)
	assert.True(t, est.Overridden)
}

func TestBaseRateByPhase(t *testing.T) {
	base := precedent.DefaultBaseline()
	tests := []struct {
		name  string
		phase trial.Phase
		want  float64
		label string
	}{
		{"phase 1 uses 1->2 proxy", trial.Phase1, base.Phase1To2, "PHASE_1"},
		{"phase 2 compounds two hurdles", trial.Phase2, base.Phase2To3 * base.Phase3ToApproval, "PHASE_2"},
		{"phase 3", trial.Phase3, base.Phase3ToApproval, "PHASE_3"},
		{"no clinical trials", trial.Phase0, base.Phase1To2, PhasePreclinical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trials []trial.Trial
			if tt.phase != trial.Phase0 {
				// design 50 -> Fair, no adjustment
				trials = []trial.Trial{{Phase: tt.phase, Randomized: true, Blinded: true, PrimaryEndpoint: "x"}}
			}
			est, err := newEstimator(t).Estimate(Input{EntityID: "e", Trials: trials, Precedent: baselinePrecedent()})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, est.BaseRate, 1e-12)
			assert.Equal(t, tt.label, est.CurrentPhase)
			assert.False(t, est.Overridden)
		})
	}
}

func TestAdjustmentsAreAdditive(t *testing.T) {
	est, err := newEstimator(t).Estimate(Input{
		EntityID:    "e",
		Trials:      []trial.Trial{pivotal(trial.Phase3)},
		Precedent:   baselinePrecedent(),
		Competition: &competition.Result{Score: 80},
	})
	require.NoError(t, err)
	// design 20+20+15+15+5 = 75 -> Excellent +0.10; competition 80 -> Strong +0.05
	assert.Equal(t, "Excellent", est.QualityTier)
	assert.Equal(t, 0.10, est.QualityAdjustment)
	assert.Equal(t, "Strong", est.CompetitiveTier)
	assert.Equal(t, 0.05, est.CompetitiveAdjustment)
	assert.InDelta(t, 0.578+0.10+0.05, est.FinalProbability, 1e-12)
	assert.Equal(t, precedent.ConfidenceLow, est.Confidence)
}

func TestFinalClampedToBounds(t *testing.T) {
	high := precedent.Record{TransitionRates: precedent.Rates{Phase3ToApproval: 0.93}, Confidence: precedent.ConfidenceHigh}
	est, err := newEstimator(t).Estimate(Input{
		EntityID: "e", Trials: []trial.Trial{pivotal(trial.Phase3)}, Precedent: high,
		Competition: &competition.Result{Score: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.95, est.FinalProbability)
	assert.Contains(t, est.Rationale, "clamped")

	low := precedent.Record{TransitionRates: precedent.Rates{Phase1To2: 0.05}}
	est, err = newEstimator(t).Estimate(Input{
		EntityID: "e", Trials: []trial.Trial{{Phase: trial.Phase1}}, Precedent: low,
		Competition: &competition.Result{Score: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "Poor", est.QualityTier)
	assert.Equal(t, "Weak", est.CompetitiveTier)
	assert.Equal(t, 0.01, est.FinalProbability)
}

func TestProbabilityAlwaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	e := newEstimator(t)
	for i := 0; i < 1000; i++ {
		rec := precedent.Record{TransitionRates: precedent.Rates{
			Phase1To2: rng.Float64(), Phase2To3: rng.Float64(), Phase3ToApproval: rng.Float64(),
		}}
		tr := trial.Trial{
			Phase:      trial.Phase(rng.Intn(4)),
			Randomized: rng.Intn(2) == 0, Blinded: rng.Intn(2) == 0,
			PlaceboControlled: rng.Intn(2) == 0, ActiveComparator: rng.Intn(2) == 0,
		}
		est, err := e.Estimate(Input{
			EntityID: "e", Trials: []trial.Trial{tr}, Precedent: rec,
			Competition: &competition.Result{Score: rng.Float64() * 100},
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, est.FinalProbability, 0.01)
		assert.LessOrEqual(t, est.FinalProbability, 0.95)
	}
}

func TestNoQualityOrCompetitionKeepsBase(t *testing.T) {
	est, err := newEstimator(t).Estimate(Input{EntityID: "e", Precedent: baselinePrecedent()})
	require.NoError(t, err)
	assert.Equal(t, TierUnknown, est.QualityTier)
	assert.Equal(t, TierUnknown, est.CompetitiveTier)
	assert.Equal(t, est.BaseRate, est.FinalProbability)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.Ceiling = 1.2
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.QualityBuckets[0].Adjustment = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.CompetitiveBuckets = nil
	assert.Error(t, bad.Validate())
}

func TestEstimateRequiresEntity(t *testing.T) {
	_, err := newEstimator(t).Estimate(Input{})
	assert.ErrorIs(t, err, ErrNoEntity)
}
