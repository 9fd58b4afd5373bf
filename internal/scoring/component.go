package scoring

import (
	"math"
	"strings"

	"github.com/MikeSquared-Agency/Assay/internal/signal"
)

// Component names.
const (
	ComponentBio           = "bio"
	ComponentChem          = "chem"
	ComponentTractability  = "tractability"
	ComponentTargetBio     = "target_bio"
	ComponentModality      = "modality"
	ComponentDurability    = "durability"
	ComponentTrialProgress = "trial_progress"
	ComponentMechanism     = "mechanism"
	ComponentSafety        = "safety"
)

// ComponentScore is one calculator's output in [0, 100]. Value is nil only
// when a required signal was absent. Value is rounded for display;
// aggregation and cap triggers read the unrounded score.
type ComponentScore struct {
	Name           string   `json:"name"`
	Value          *float64 `json:"value"`
	SourceSignals  []string `json:"source_signals"`
	DefaultApplied bool     `json:"default_applied"`
	Reason         string   `json:"reason"`

	exact *float64
}

// Present reports whether the component has a value.
func (c ComponentScore) Present() bool { return c.Value != nil }

// Exact returns the full-precision score. Components decoded from JSON
// carry only the rounded Value, which is returned instead.
func (c ComponentScore) Exact() (float64, bool) {
	switch {
	case c.Value == nil:
		return 0, false
	case c.exact != nil:
		return *c.exact, true
	default:
		return *c.Value, true
	}
}

func (c *ComponentScore) setValue(v float64) {
	rounded := Round1(v)
	c.exact = &v
	c.Value = &rounded
}

// Calculator maps signals to a single component score. Every name in
// Requires must be present or the result is null; Optional signals only
// contribute points when present.
type Calculator struct {
	Name     string
	Requires []string
	// RequiresAny is satisfied by any one of its signals being present.
	RequiresAny []string
	Optional    []string
	compute     func(s signal.Set) (value float64, reasons []string)

	// fallback, when set, is used in place of a null result and marks the
	// score as DefaultApplied.
	fallback *float64
}

// Score runs the calculator. Value is rounded to one decimal place; the
// unrounded score is kept for aggregation.
func (c Calculator) Score(s signal.Set) ComponentScore {
	out := ComponentScore{Name: c.Name, SourceSignals: c.sources(s)}

	var missing []string
	for _, req := range c.Requires {
		if !s.Has(req) {
			missing = append(missing, req)
		}
	}
	if len(c.RequiresAny) > 0 && !hasAny(s, c.RequiresAny) {
		missing = append(missing, strings.Join(c.RequiresAny, " or "))
	}
	if len(missing) > 0 {
		if c.fallback != nil {
			out.setValue(*c.fallback)
			out.DefaultApplied = true
			out.Reason = "neutral default: " + strings.Join(missing, ", ") + " unavailable"
			return out
		}
		out.Reason = "missing signal: " + strings.Join(missing, ", ")
		return out
	}

	v, reasons := c.compute(s)
	out.setValue(clamp(v, 0, 100))
	out.Reason = strings.Join(reasons, "; ")
	return out
}

func (c Calculator) sources(s signal.Set) []string {
	var names []string
	for _, n := range c.Requires {
		if s.Has(n) {
			names = append(names, n)
		}
	}
	for _, n := range c.RequiresAny {
		if s.Has(n) {
			names = append(names, n)
		}
	}
	for _, n := range c.Optional {
		if s.Has(n) {
			names = append(names, n)
		}
	}
	return names
}

func hasAny(s signal.Set, names []string) bool {
	for _, n := range names {
		if s.Has(n) {
			return true
		}
	}
	return false
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func float64Ptr(v float64) *float64 { return &v }
