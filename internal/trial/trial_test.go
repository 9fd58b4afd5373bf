package trial

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	tests := map[string]Phase{
		"PHASE1":          Phase1,
		"Phase 2":         Phase2,
		"PHASE1|PHASE2":   Phase2,
		"Phase 2/Phase 3": Phase3,
		"PHASE4":          Phase4,
		"EARLY_PHASE1":    Phase0,
		"Phase III":       Phase3,
		"phase iv":        Phase4,
		"Not Applicable":  Phase0,
		"":                Phase0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParsePhase(in), in)
	}
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusActiveNotRecruit, ParseStatus("ACTIVE_NOT_RECRUITING"))
	assert.Equal(t, StatusActiveNotRecruit, ParseStatus("Active, not recruiting"))
	assert.Equal(t, StatusCompleted, ParseStatus("completed"))
	assert.Equal(t, StatusEnrollingByInvite, ParseStatus("ENROLLING_BY_INVITATION"))
	assert.Equal(t, StatusUnknown, ParseStatus("whatever"))
}

func TestFinishedStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusTerminated, StatusWithdrawn} {
		assert.True(t, s.Finished(), s)
	}
	for _, s := range []Status{StatusRecruiting, StatusActiveNotRecruit, StatusSuspended, StatusUnknown} {
		assert.False(t, s.Finished(), s)
	}
}

func TestDesignQuality(t *testing.T) {
	tests := []struct {
		name  string
		trial Trial
		want  float64
	}{
		{"empty record", Trial{}, 0},
		{
			name: "gold standard pivotal",
			trial: Trial{
				Randomized: true, Blinded: true, PlaceboControlled: true, ActiveComparator: true,
				PrimaryEndpoint: "Overall Survival (OS)", Enrollment: 600, Status: StatusCompleted,
			},
			want: 90,
		},
		{
			name:  "surrogate endpoint, large and recruiting",
			trial: Trial{Randomized: true, PrimaryEndpoint: "Objective response rate", Enrollment: 150, Status: StatusRecruiting},
			want:  28,
		},
		{
			name:  "other endpoint",
			trial: Trial{Blinded: true, PrimaryEndpoint: "Time to first flare", Enrollment: 40, Status: StatusCompleted},
			want:  30,
		},
		{
			name:  "PFS keyword",
			trial: Trial{PrimaryEndpoint: "median PFS by RECIST"},
			want:  15,
		},
		{
			name:  "large but terminated earns no enrollment bonus",
			trial: Trial{PrimaryEndpoint: "safety", Enrollment: 500, Status: StatusTerminated},
			want:  10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DesignQuality(tt.trial)
			assert.Equal(t, tt.want, q.Score)
			assert.LessOrEqual(t, q.Score, 100.0)
		})
	}
}

func TestAverageQuality(t *testing.T) {
	assert.Nil(t, AverageQuality(nil))

	avg := AverageQuality([]Trial{
		{Randomized: true, Blinded: true},     // 40
		{PrimaryEndpoint: "overall survival"}, // 15
	})
	require.NotNil(t, avg)
	assert.Equal(t, 27.5, *avg)
}

func TestHighestPhase(t *testing.T) {
	trials := []Trial{{Phase: Phase2}, {Phase: Phase4}, {Phase: Phase1}}
	assert.Equal(t, Phase4, HighestPhase(trials, false))
	assert.Equal(t, Phase2, HighestPhase(trials, true))
	assert.True(t, HasPostMarketing(trials))
	assert.False(t, HasPostMarketing(trials[:1]))
	assert.Equal(t, Phase0, HighestPhase(nil, true))
}

func TestTrialJSONNormalisesPhaseAndStatus(t *testing.T) {
	var trials []Trial
	err := json.Unmarshal([]byte(`[
		{"trial_id":"a","phase":"Phase 1/Phase 2","status":"ACTIVE_NOT_RECRUITING"},
		{"trial_id":"b","phase":3,"status":"completed"}
	]`), &trials)
	require.NoError(t, err)
	assert.Equal(t, Phase2, trials[0].Phase)
	assert.Equal(t, StatusActiveNotRecruit, trials[0].Status)
	assert.Equal(t, Phase3, trials[1].Phase)
	assert.Equal(t, StatusCompleted, trials[1].Status)

	var p Phase
	assert.Error(t, json.Unmarshal([]byte(`7`), &p))
}
