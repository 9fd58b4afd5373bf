package scoring

import "sort"

// Step awards Points to any value >= Min.
type Step struct {
	Min    float64
	Points float64
}

// BreakpointTable maps a value to points by the highest step it reaches,
// or to Floor when it reaches none.
type BreakpointTable struct {
	Steps []Step
	Floor float64
}

// NewBreakpointTable sorts steps by descending Min.
func NewBreakpointTable(floor float64, steps ...Step) BreakpointTable {
	s := append([]Step(nil), steps...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Min > s[j].Min })
	return BreakpointTable{Steps: s, Floor: floor}
}

func (t BreakpointTable) Lookup(v float64) float64 {
	for _, st := range t.Steps {
		if v >= st.Min {
			return st.Points
		}
	}
	return t.Floor
}

// Max returns the largest attainable points.
func (t BreakpointTable) Max() float64 {
	m := t.Floor
	for _, st := range t.Steps {
		if st.Points > m {
			m = st.Points
		}
	}
	return m
}

// LabelTable maps discrete labels to fixed points.
type LabelTable map[string]float64

// Best returns the highest-scoring recognised label among labels.
func (t LabelTable) Best(labels []string) (string, float64, bool) {
	var (
		best   string
		points float64
		found  bool
	)
	for _, l := range labels {
		p, ok := t[l]
		if !ok {
			continue
		}
		if !found || p > points {
			best, points, found = l, p, true
		}
	}
	return best, points, found
}
