package precedent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

func trials(phase trial.Phase, status trial.Status, n int) []trial.Trial {
	out := make([]trial.Trial, n)
	for i := range out {
		out[i] = trial.Trial{Phase: phase, Status: status}
	}
	return out
}

func TestNoMatchingTrialsUsesBaseline(t *testing.T) {
	m := NewModel(DefaultBaseline())
	rec := m.Build("Rare Disease X", nil)

	assert.True(t, rec.UsesBaseline)
	assert.Equal(t, DefaultBaseline().Phase1To2, rec.TransitionRates.Phase1To2)
	assert.Equal(t, DefaultBaseline(), rec.TransitionRates)
	assert.Equal(t, ConfidenceLow, rec.Confidence)
	assert.Zero(t, rec.NTrials)
}

func TestPhaseFourOnlyTrialsUseBaseline(t *testing.T) {
	rec := NewModel(DefaultBaseline()).Build("x", trials(trial.Phase4, trial.StatusCompleted, 5))
	assert.True(t, rec.UsesBaseline)
}

func TestCompletionAdjustsBaseline(t *testing.T) {
	base := DefaultBaseline()
	var ts []trial.Trial
	ts = append(ts, trials(trial.Phase1, trial.StatusCompleted, 10)...)
	ts = append(ts, trials(trial.Phase2, trial.StatusCompleted, 5)...)
	ts = append(ts, trials(trial.Phase2, trial.StatusRecruiting, 5)...)
	ts = append(ts, trials(trial.Phase3, trial.StatusTerminated, 1)...)
	ts = append(ts, trials(trial.Phase3, trial.StatusWithdrawn, 1)...)
	ts = append(ts, trials(trial.Phase3, trial.StatusRecruiting, 2)...)

	rec := NewModel(base).Build("Asthma", ts)
	require.False(t, rec.UsesBaseline)
	assert.Equal(t, [3]int{10, 10, 4}, rec.PhaseCounts)
	assert.Equal(t, [3]int{10, 5, 2}, rec.FinishedCounts)
	assert.Equal(t, [3]float64{1, 0.5, 0.5}, rec.CompletionRates)
	assert.InDelta(t, base.Phase1To2, rec.TransitionRates.Phase1To2, 1e-12)
	assert.InDelta(t, base.Phase2To3*0.9, rec.TransitionRates.Phase2To3, 1e-12)
	assert.InDelta(t, base.Phase3ToApproval*0.9, rec.TransitionRates.Phase3ToApproval, 1e-12)
	assert.Equal(t, 24, rec.NTrials)
	assert.Equal(t, ConfidenceMedium, rec.Confidence)
}

func TestAdjustmentBoundedToTwentyPercent(t *testing.T) {
	base := DefaultBaseline()
	rec := NewModel(base).Build("x", trials(trial.Phase2, trial.StatusRecruiting, 3))
	// phase 1 and 3 have no trials: completion 0 with the denominator floored at 1
	assert.InDelta(t, base.Phase1To2*0.8, rec.TransitionRates.Phase1To2, 1e-12)
	assert.InDelta(t, base.Phase2To3*0.8, rec.TransitionRates.Phase2To3, 1e-12)
	assert.GreaterOrEqual(t, rec.TransitionRates.Phase3ToApproval, base.Phase3ToApproval*0.8)
	assert.LessOrEqual(t, rec.TransitionRates.Phase3ToApproval, base.Phase3ToApproval)
}

func TestConfidenceTier(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceTier(50))
	assert.Equal(t, ConfidenceMedium, ConfidenceTier(49))
	assert.Equal(t, ConfidenceMedium, ConfidenceTier(20))
	assert.Equal(t, ConfidenceLow, ConfidenceTier(19))
}

type fakeSource struct {
	byIndication map[string][]trial.Trial
	fail         map[string]bool
	calls        int
}

func (f *fakeSource) GetTrialsForIndication(_ context.Context, ind string) ([]trial.Trial, error) {
	f.calls++
	if f.fail[ind] {
		return nil, errors.New("upstream down")
	}
	return f.byIndication[ind], nil
}

func TestBuildCache(t *testing.T) {
	src := &fakeSource{
		byIndication: map[string][]trial.Trial{
			"Asthma": trials(trial.Phase3, trial.StatusCompleted, 60),
		},
		fail: map[string]bool{"Gout": true},
	}
	var failed []string
	cache, err := BuildCache(context.Background(), NewModel(DefaultBaseline()), src,
		[]string{"Asthma", "asthma ", "Gout", ""},
		func(ind string, _ error) { failed = append(failed, ind) })
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls, "duplicate indications are fetched once")
	assert.Equal(t, []string{"Gout"}, failed)
	assert.Equal(t, 2, cache.Len())

	asthma := cache.Get("ASTHMA")
	assert.False(t, asthma.UsesBaseline)
	assert.Equal(t, ConfidenceHigh, asthma.Confidence)

	assert.True(t, cache.Get("Gout").UsesBaseline)
	assert.True(t, cache.Get("never seen").UsesBaseline)
}

func TestBuildCacheHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildCache(ctx, NewModel(DefaultBaseline()), &fakeSource{}, []string{"a"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
