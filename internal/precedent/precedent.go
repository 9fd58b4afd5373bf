// Package precedent derives historical phase-transition rates for an
// indication by adjusting fixed industry baselines with observed trial
// completion.
package precedent

import (
	"strings"

	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

// Confidence tiers.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

const (
	highConfidenceTrials   = 50
	mediumConfidenceTrials = 20

	// adjusted = baseline × (adjustmentFloor + adjustmentSpan × completion_rate)
	adjustmentFloor = 0.8
	adjustmentSpan  = 0.2
)

// Rates are phase-transition probabilities.
type Rates struct {
	Phase1To2        float64 `json:"phase_1_to_2"`
	Phase2To3        float64 `json:"phase_2_to_3"`
	Phase3ToApproval float64 `json:"phase_3_to_approval"`
}

func (r Rates) at(i int) float64 {
	switch i {
	case 0:
		return r.Phase1To2
	case 1:
		return r.Phase2To3
	default:
		return r.Phase3ToApproval
	}
}

func (r *Rates) set(i int, v float64) {
	switch i {
	case 0:
		r.Phase1To2 = v
	case 1:
		r.Phase2To3 = v
	default:
		r.Phase3ToApproval = v
	}
}

// DefaultBaseline returns industry-wide transition rates (BIO/Informa
// 2011–2020 clinical development success rates).
func DefaultBaseline() Rates {
	return Rates{
		Phase1To2:        0.520,
		Phase2To3:        0.289,
		Phase3ToApproval: 0.578,
	}
}

// Record is the precedent for one indication. Index 0 of each array is
// phase 1.
type Record struct {
	Indication      string     `json:"indication"`
	PhaseCounts     [3]int     `json:"phase_trial_counts"`
	FinishedCounts  [3]int     `json:"finished_counts"`
	CompletionRates [3]float64 `json:"completion_rates"`
	TransitionRates Rates      `json:"transition_rates"`
	NTrials         int        `json:"n_trials"`
	Confidence      string     `json:"confidence_tier"`
	UsesBaseline    bool       `json:"uses_baseline"`
}

// Model builds precedent records against a fixed baseline.
type Model struct {
	baseline Rates
}

func NewModel(baseline Rates) Model {
	return Model{baseline: baseline}
}

func (m Model) Baseline() Rates { return m.baseline }

// BaselineRecord is returned for indications with no matching trials.
func (m Model) BaselineRecord(indication string) Record {
	return Record{
		Indication:      indication,
		TransitionRates: m.baseline,
		Confidence:      ConfidenceLow,
		UsesBaseline:    true,
	}
}

// Build computes the record for indication from its matched trials.
// Only phase 1–3 trials inform transition rates and the sample size.
func (m Model) Build(indication string, trials []trial.Trial) Record {
	rec := Record{Indication: indication}
	for _, t := range trials {
		if t.Phase < trial.Phase1 || t.Phase > trial.Phase3 {
			continue
		}
		i := int(t.Phase) - 1
		rec.PhaseCounts[i]++
		if t.Status.Finished() {
			rec.FinishedCounts[i]++
		}
		rec.NTrials++
	}
	if rec.NTrials == 0 {
		return m.BaselineRecord(indication)
	}

	for i := 0; i < 3; i++ {
		rate := float64(rec.FinishedCounts[i]) / float64(max(rec.PhaseCounts[i], 1))
		rec.CompletionRates[i] = rate
		rec.TransitionRates.set(i, m.baseline.at(i)*(adjustmentFloor+adjustmentSpan*rate))
	}
	rec.Confidence = ConfidenceTier(rec.NTrials)
	return rec
}

// ConfidenceTier grades a sample size.
func ConfidenceTier(n int) string {
	switch {
	case n >= highConfidenceTrials:
		return ConfidenceHigh
	case n >= mediumConfidenceTrials:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// NormalizeIndication is the cache key for an indication name.
func NormalizeIndication(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
