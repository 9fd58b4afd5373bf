package scoring

import (
	"fmt"
	"math"
)

type Comparator string

const (
	Equal          Comparator = "=="
	Less           Comparator = "<"
	LessOrEqual    Comparator = "<="
	Greater        Comparator = ">"
	GreaterOrEqual Comparator = ">="
)

const compareEpsilon = 1e-9

func (c Comparator) Valid() bool {
	switch c {
	case Equal, Less, LessOrEqual, Greater, GreaterOrEqual:
		return true
	}
	return false
}

func (c Comparator) compare(v, threshold float64) bool {
	switch c {
	case Equal:
		return math.Abs(v-threshold) <= compareEpsilon
	case Less:
		return v < threshold
	case LessOrEqual:
		return v <= threshold+compareEpsilon
	case Greater:
		return v > threshold
	case GreaterOrEqual:
		return v >= threshold-compareEpsilon
	}
	return false
}

// CapRule imposes Ceiling on a composite when a component's value meets
// the trigger. A null component never triggers.
type CapRule struct {
	Name       string     `json:"name" yaml:"name"`
	Component  string     `json:"component" yaml:"component"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Threshold  float64    `json:"threshold" yaml:"threshold"`
	Ceiling    float64    `json:"ceiling" yaml:"ceiling"`
}

func (r CapRule) Validate() error {
	if r.Component == "" {
		return fmt.Errorf("cap rule %q: component required", r.Name)
	}
	if !r.Comparator.Valid() {
		return fmt.Errorf("cap rule %q: unknown comparator %q", r.Name, r.Comparator)
	}
	if r.Ceiling < 0 || r.Ceiling > 100 {
		return fmt.Errorf("cap rule %q: ceiling %.1f outside [0, 100]", r.Name, r.Ceiling)
	}
	return nil
}

// Fires reports whether the rule's trigger holds for the given components.
func (r CapRule) Fires(components map[string]ComponentScore) bool {
	c, ok := components[r.Component]
	if !ok {
		return false
	}
	v, ok := c.Exact()
	if !ok {
		return false
	}
	return r.Comparator.compare(v, r.Threshold)
}

// Apply clamps current to min(current, ceiling) when the rule fires.
// Applying the same rule again returns the same value.
func (r CapRule) Apply(current float64, components map[string]ComponentScore) (float64, bool) {
	if !r.Fires(components) {
		return current, false
	}
	return math.Min(current, r.Ceiling), true
}

func (r CapRule) String() string {
	name := r.Name
	if name == "" {
		name = "cap"
	}
	return fmt.Sprintf("%s (%s %s %g -> <= %g)", name, r.Component, r.Comparator, r.Threshold, r.Ceiling)
}
