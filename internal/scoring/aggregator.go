package scoring

import (
	"fmt"
	"sort"
	"strings"
)

// CompositeScore is derived purely from component scores and a WeightSpec.
// It is always recomputed in full, never updated incrementally.
type CompositeScore struct {
	Name        string             `json:"name"`
	Value       *float64           `json:"value"`
	Raw         *float64           `json:"raw,omitempty"`
	WeightsUsed map[string]float64 `json:"weights_used"`
	CapsFired   []string           `json:"caps_fired"`
	Missing     []string           `json:"missing,omitempty"`
	Components  []ComponentScore   `json:"components"`
	Rationale   string             `json:"rationale"`
}

// Aggregator combines component scores under one WeightSpec and an ordered
// list of cap rules.
type Aggregator struct {
	spec WeightSpec
	caps []CapRule
}

// NewAggregator validates spec and caps. Cap rules must reference a
// component of the spec.
func NewAggregator(spec WeightSpec, caps []CapRule) (*Aggregator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(spec.Weights))
	for _, cw := range spec.Weights {
		known[cw.Component] = true
	}
	for _, r := range caps {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
		if !known[r.Component] {
			return nil, fmt.Errorf("%s: cap rule %q references unknown component %q", spec.Name, r.Name, r.Component)
		}
	}
	return &Aggregator{spec: spec, caps: append([]CapRule(nil), caps...)}, nil
}

func (a *Aggregator) Spec() WeightSpec { return a.spec }

func (a *Aggregator) Caps() []CapRule { return append([]CapRule(nil), a.caps...) }

// Aggregate computes the composite:
//  1. partition components into present and missing
//  2. all missing -> null composite
//  3. renormalize weights over present components
//  4. raw = Σ w'_i × value_i
//  5. apply cap rules in declared order, each clamping to min(current, ceiling)
//  6. clamp to [0, 100] and round to one decimal
//
// Steps 4 and 5 use each component's unrounded score.
func (a *Aggregator) Aggregate(components []ComponentScore) CompositeScore {
	byName := make(map[string]ComponentScore, len(components))
	for _, c := range components {
		byName[c.Name] = c
	}

	out := CompositeScore{
		Name:        a.spec.Name,
		WeightsUsed: map[string]float64{},
		CapsFired:   []string{},
	}
	for _, name := range a.spec.Components() {
		c, ok := byName[name]
		if !ok {
			c = ComponentScore{Name: name, Reason: "not computed"}
		}
		out.Components = append(out.Components, c)
		if c.Value == nil {
			out.Missing = append(out.Missing, name)
		}
	}

	weights := a.spec.Redistribute(func(name string) bool {
		c, ok := byName[name]
		return ok && c.Value != nil
	})
	if weights == nil {
		if len(out.Missing) < len(out.Components) {
			out.Rationale = "present components carry zero weight"
			if len(out.Missing) > 0 {
				out.Rationale += "; missing: " + strings.Join(out.Missing, ", ")
			}
			return out
		}
		out.Rationale = "all components missing: " + strings.Join(out.Missing, ", ")
		return out
	}
	out.WeightsUsed = weights

	var raw float64
	for _, name := range a.spec.Components() {
		if w, ok := weights[name]; ok {
			v, _ := byName[name].Exact()
			raw += w * v
		}
	}
	rawRounded := Round1(raw)
	out.Raw = &rawRounded

	value := raw
	for _, rule := range a.caps {
		capped, fired := rule.Apply(value, byName)
		if fired {
			out.CapsFired = append(out.CapsFired, rule.Name)
		}
		value = capped
	}
	value = Round1(clamp(value, 0, 100))
	out.Value = &value
	out.Rationale = a.rationale(out, raw)
	return out
}

func (a *Aggregator) rationale(c CompositeScore, raw float64) string {
	names := make([]string, 0, len(c.WeightsUsed))
	for n := range c.WeightsUsed {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%.3f", n, c.WeightsUsed[n]))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s raw %.1f from weights [%s]", c.Name, raw, strings.Join(parts, " "))
	if len(c.Missing) > 0 {
		fmt.Fprintf(&b, "; renormalized without %s", strings.Join(c.Missing, ", "))
	}
	for _, r := range a.caps {
		for _, fired := range c.CapsFired {
			if fired == r.Name {
				fmt.Fprintf(&b, "; cap %s", r)
			}
		}
	}
	for _, comp := range c.Components {
		if comp.DefaultApplied {
			fmt.Fprintf(&b, "; %s used %s", comp.Name, comp.Reason)
		}
	}
	fmt.Fprintf(&b, "; final %.1f", *c.Value)
	return b.String()
}
