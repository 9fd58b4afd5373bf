package scoring

import (
	"fmt"

	"github.com/MikeSquared-Agency/Assay/internal/signal"
)

// Composite score types.
const (
	TotalScore   = "total_score"
	EditingScore = "editing_score"
	OverallScore = "overall_score"
)

// Profile pairs a WeightSpec with its cap rules.
type Profile struct {
	Spec WeightSpec `json:"spec" yaml:"spec"`
	Caps []CapRule  `json:"caps" yaml:"caps"`
}

// TotalScoreProfile: 0.5·Bio + 0.3·Chem + 0.2·Tract, capped at 30 when
// Bio == 0 and at 50 when Tract <= 20.
func TotalScoreProfile() Profile {
	return Profile{
		Spec: WeightSpec{Name: TotalScore, Weights: []ComponentWeight{
			{Component: ComponentBio, Weight: 0.5},
			{Component: ComponentChem, Weight: 0.3},
			{Component: ComponentTractability, Weight: 0.2},
		}},
		Caps: []CapRule{
			{Name: "no_biological_evidence", Component: ComponentBio, Comparator: Equal, Threshold: 0, Ceiling: 30},
			{Name: "low_tractability", Component: ComponentTractability, Comparator: LessOrEqual, Threshold: 20, Ceiling: 50},
		},
	}
}

// EditingScoreProfile: 0.5·TargetBio + 0.3·Modality + 0.2·Durability.
func EditingScoreProfile() Profile {
	return Profile{
		Spec: WeightSpec{Name: EditingScore, Weights: []ComponentWeight{
			{Component: ComponentTargetBio, Weight: 0.5},
			{Component: ComponentModality, Weight: 0.3},
			{Component: ComponentDurability, Weight: 0.2},
		}},
	}
}

// OverallScoreProfile: 0.4·TrialProgress + 0.3·Mechanism + 0.3·Safety.
func OverallScoreProfile() Profile {
	return Profile{
		Spec: WeightSpec{Name: OverallScore, Weights: []ComponentWeight{
			{Component: ComponentTrialProgress, Weight: 0.4},
			{Component: ComponentMechanism, Weight: 0.3},
			{Component: ComponentSafety, Weight: 0.3},
		}},
	}
}

func DefaultProfiles() []Profile {
	return []Profile{TotalScoreProfile(), EditingScoreProfile(), OverallScoreProfile()}
}

// Engine computes every component a set of profiles needs and aggregates
// each profile. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	calculators map[string]Calculator
	aggregators []*Aggregator
}

// NewEngine builds an Engine. Every component named by a profile must have
// a calculator.
func NewEngine(calculators map[string]Calculator, profiles ...Profile) (*Engine, error) {
	e := &Engine{calculators: calculators}
	for _, p := range profiles {
		for _, name := range p.Spec.Components() {
			if _, ok := calculators[name]; !ok {
				return nil, fmt.Errorf("%s: no calculator for component %q", p.Spec.Name, name)
			}
		}
		agg, err := NewAggregator(p.Spec, p.Caps)
		if err != nil {
			return nil, err
		}
		e.aggregators = append(e.aggregators, agg)
	}
	return e, nil
}

// Result is the output of scoring one entity.
type Result struct {
	Components []ComponentScore `json:"components"`
	Composites []CompositeScore `json:"composites"`
}

// Composite returns the composite named name.
func (r Result) Composite(name string) (CompositeScore, bool) {
	for _, c := range r.Composites {
		if c.Name == name {
			return c, true
		}
	}
	return CompositeScore{}, false
}

// Score computes components once and aggregates every profile from them.
func (e *Engine) Score(s signal.Set) Result {
	var (
		res  Result
		done = map[string]ComponentScore{}
	)
	for _, agg := range e.aggregators {
		var comps []ComponentScore
		for _, name := range agg.spec.Components() {
			c, ok := done[name]
			if !ok {
				c = e.calculators[name].Score(s)
				done[name] = c
				res.Components = append(res.Components, c)
			}
			comps = append(comps, c)
		}
		res.Composites = append(res.Composites, agg.Aggregate(comps))
	}
	return res
}

// Aggregator returns the aggregator for the named composite.
func (e *Engine) Aggregator(name string) (*Aggregator, bool) {
	for _, a := range e.aggregators {
		if a.spec.Name == name {
			return a, true
		}
	}
	return nil, false
}
