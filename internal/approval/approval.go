// Package approval estimates regulatory-approval probability from precedent
// base rates with bounded additive adjustments for trial-design quality and
// competitive position.
package approval

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/precedent"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

const (
	PhaseApproved    = "APPROVED"
	PhasePreclinical = "PRECLINICAL"

	ConfidenceConfirmed = "Confirmed"
	ConfidenceHigh      = "High"

	TierUnknown = "Unknown"

	// Adjustments larger than this are rejected by Config.Validate.
	maxAdjustment = 0.25
)

var ErrNoEntity = errors.New("entity id required")

// Bucket maps a score at or above Min to a tier and an additive adjustment.
type Bucket struct {
	Tier       string  `json:"tier" yaml:"tier"`
	Min        float64 `json:"min" yaml:"min"`
	Adjustment float64 `json:"adjustment" yaml:"adjustment"`
}

// Config holds the tunable bucket tables and probability bounds.
type Config struct {
	QualityBuckets     []Bucket `json:"quality_buckets" yaml:"quality_buckets"`
	CompetitiveBuckets []Bucket `json:"competitive_buckets" yaml:"competitive_buckets"`
	Floor              float64  `json:"floor" yaml:"floor"`
	Ceiling            float64  `json:"ceiling" yaml:"ceiling"`
}

func DefaultConfig() Config {
	return Config{
		QualityBuckets: []Bucket{
			{Tier: "Excellent", Min: 75, Adjustment: 0.10},
			{Tier: "Good", Min: 60, Adjustment: 0.05},
			{Tier: "Fair", Min: 40, Adjustment: 0},
			{Tier: "Poor", Min: 0, Adjustment: -0.10},
		},
		CompetitiveBuckets: []Bucket{
			{Tier: "Strong", Min: 75, Adjustment: 0.05},
			{Tier: "Favorable", Min: 60, Adjustment: 0.02},
			{Tier: "Neutral", Min: 40, Adjustment: 0},
			{Tier: "Weak", Min: 0, Adjustment: -0.05},
		},
		Floor:   0.01,
		Ceiling: 0.95,
	}
}

func (c Config) Validate() error {
	if c.Floor <= 0 || c.Ceiling >= 1 || c.Floor >= c.Ceiling {
		return fmt.Errorf("approval bounds [%g, %g] must satisfy 0 < floor < ceiling < 1", c.Floor, c.Ceiling)
	}
	for name, buckets := range map[string][]Bucket{"quality": c.QualityBuckets, "competitive": c.CompetitiveBuckets} {
		if len(buckets) == 0 {
			return fmt.Errorf("%s buckets: at least one bucket required", name)
		}
		for _, b := range buckets {
			if b.Tier == "" {
				return fmt.Errorf("%s buckets: tier name required", name)
			}
			if b.Adjustment < -maxAdjustment || b.Adjustment > maxAdjustment {
				return fmt.Errorf("%s bucket %s: adjustment %g outside ±%g", name, b.Tier, b.Adjustment, maxAdjustment)
			}
		}
	}
	return nil
}

// Input is everything known about one entity.
type Input struct {
	EntityID    string
	IsApproved  bool
	Trials      []trial.Trial
	Precedent   precedent.Record
	Competition *competition.Result
}

// Estimate is the approval-probability output for one entity.
type Estimate struct {
	EntityID              string   `json:"entity_id"`
	CurrentPhase          string   `json:"current_phase"`
	BaseRate              float64  `json:"base_rate"`
	QualityScore          *float64 `json:"quality_score,omitempty"`
	QualityTier           string   `json:"quality_tier"`
	QualityAdjustment     float64  `json:"quality_adjustment"`
	CompetitiveScore      *float64 `json:"competitive_score,omitempty"`
	CompetitiveTier       string   `json:"competitive_tier"`
	CompetitiveAdjustment float64  `json:"competitive_adjustment"`
	FinalProbability      float64  `json:"final_probability"`
	Confidence            string   `json:"confidence_tier"`
	Overridden            bool     `json:"overridden"`
	Rationale             string   `json:"rationale"`
}

// Estimator is stateless and safe for concurrent use.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.QualityBuckets = sortedBuckets(cfg.QualityBuckets)
	cfg.CompetitiveBuckets = sortedBuckets(cfg.CompetitiveBuckets)
	return &Estimator{cfg: cfg}, nil
}

// Estimate applies, in order: explicit approval, phase-4 evidence, then the
// general precedent model.
func (e *Estimator) Estimate(in Input) (Estimate, error) {
	if in.EntityID == "" {
		return Estimate{}, ErrNoEntity
	}
	out := Estimate{EntityID: in.EntityID, QualityTier: TierUnknown, CompetitiveTier: TierUnknown}

	if in.IsApproved {
		out.CurrentPhase = PhaseApproved
		out.FinalProbability = 1.0
		out.Confidence = ConfidenceConfirmed
		out.Overridden = true
		out.Rationale = "flagged approved"
		return out, nil
	}
	if trial.HasPostMarketing(in.Trials) {
		out.CurrentPhase = PhaseApproved
		out.FinalProbability = 1.0
		out.Confidence = ConfidenceHigh
		out.Overridden = true
		out.Rationale = "has phase 4 post-marketing trial"
		return out, nil
	}

	phase := trial.HighestPhase(in.Trials, true)
	rates := in.Precedent.TransitionRates
	var reasons []string
	switch phase {
	case trial.Phase3:
		out.BaseRate = rates.Phase3ToApproval
		reasons = append(reasons, fmt.Sprintf("phase 3 base %.3f", out.BaseRate))
	case trial.Phase2:
		out.BaseRate = rates.Phase2To3 * rates.Phase3ToApproval
		reasons = append(reasons, fmt.Sprintf("phase 2 base %.3f×%.3f", rates.Phase2To3, rates.Phase3ToApproval))
	default:
		out.BaseRate = rates.Phase1To2
		reasons = append(reasons, fmt.Sprintf("phase %d base %.3f (phase 1→2 proxy)", phase, out.BaseRate))
	}
	if phase == trial.Phase0 {
		out.CurrentPhase = PhasePreclinical
	} else {
		out.CurrentPhase = fmt.Sprintf("PHASE_%d", phase)
	}
	if in.Precedent.UsesBaseline {
		reasons = append(reasons, "industry baseline")
	}

	if avg := trial.AverageQuality(clinical(in.Trials)); avg != nil {
		b := pick(e.cfg.QualityBuckets, *avg)
		out.QualityScore = avg
		out.QualityTier, out.QualityAdjustment = b.Tier, b.Adjustment
		reasons = append(reasons, fmt.Sprintf("design %s (%.1f) %+.2f", b.Tier, *avg, b.Adjustment))
	}
	if in.Competition != nil {
		score := in.Competition.Score
		b := pick(e.cfg.CompetitiveBuckets, score)
		out.CompetitiveScore = &score
		out.CompetitiveTier, out.CompetitiveAdjustment = b.Tier, b.Adjustment
		reasons = append(reasons, fmt.Sprintf("competition %s (%.1f) %+.2f", b.Tier, score, b.Adjustment))
	}

	final := out.BaseRate + out.QualityAdjustment + out.CompetitiveAdjustment
	out.FinalProbability = clamp(final, e.cfg.Floor, e.cfg.Ceiling)
	if out.FinalProbability != final {
		reasons = append(reasons, fmt.Sprintf("clamped to [%.2f, %.2f]", e.cfg.Floor, e.cfg.Ceiling))
	}
	out.Confidence = in.Precedent.Confidence
	if out.Confidence == "" {
		out.Confidence = precedent.ConfidenceLow
	}
	out.Rationale = strings.Join(reasons, "; ")
	return out, nil
}

func clinical(trials []trial.Trial) []trial.Trial {
	out := make([]trial.Trial, 0, len(trials))
	for _, t := range trials {
		if t.Phase != trial.Phase4 {
			out = append(out, t)
		}
	}
	return out
}

func sortedBuckets(b []Bucket) []Bucket {
	out := append([]Bucket(nil), b...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Min > out[j].Min })
	return out
}

// pick returns the first bucket whose Min the score reaches. Scores below
// every bucket fall into the lowest one.
func pick(buckets []Bucket, score float64) Bucket {
	for _, b := range buckets {
		if score >= b.Min {
			return b
		}
	}
	return buckets[len(buckets)-1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
