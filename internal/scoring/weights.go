package scoring

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidWeights = errors.New("invalid weight spec")

const weightTolerance = 0.001

// ComponentWeight is one entry of a WeightSpec.
type ComponentWeight struct {
	Component string  `json:"component" yaml:"component"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

// WeightSpec defines the relative importance of each component in one
// composite score type. Weights must sum to 1.0 (±0.001 tolerance).
type WeightSpec struct {
	Name    string            `json:"name" yaml:"name"`
	Weights []ComponentWeight `json:"weights" yaml:"weights"`
}

// Sum returns the total of all weights.
func (w WeightSpec) Sum() float64 {
	var total float64
	for _, cw := range w.Weights {
		total += cw.Weight
	}
	return total
}

// Validate checks that weights sum to 1.0, none are negative and no
// component appears twice.
func (w WeightSpec) Validate() error {
	if len(w.Weights) == 0 {
		return fmt.Errorf("%w: %s has no components", ErrInvalidWeights, w.Name)
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return fmt.Errorf("%w: %s weights sum to %.4f, must sum to 1.0", ErrInvalidWeights, w.Name, w.Sum())
	}
	seen := make(map[string]bool, len(w.Weights))
	for _, cw := range w.Weights {
		if cw.Weight < 0 {
			return fmt.Errorf("%w: %s has negative weight %f for %s", ErrInvalidWeights, w.Name, cw.Weight, cw.Component)
		}
		if seen[cw.Component] {
			return fmt.Errorf("%w: %s lists %s twice", ErrInvalidWeights, w.Name, cw.Component)
		}
		seen[cw.Component] = true
	}
	return nil
}

// Components returns the component names in declared order.
func (w WeightSpec) Components() []string {
	names := make([]string, len(w.Weights))
	for i, cw := range w.Weights {
		names[i] = cw.Component
	}
	return names
}

// Redistribute returns w_i / Σ(w_present) for each present component.
// Missing components get no entry. Returns nil when nothing is present or
// the present weights sum to zero.
func (w WeightSpec) Redistribute(present func(component string) bool) map[string]float64 {
	var presentSum float64
	for _, cw := range w.Weights {
		if present(cw.Component) {
			presentSum += cw.Weight
		}
	}
	if presentSum <= 0 {
		return nil
	}
	out := make(map[string]float64, len(w.Weights))
	for _, cw := range w.Weights {
		if present(cw.Component) {
			out[cw.Component] = cw.Weight / presentSum
		}
	}
	return out
}
