// Package competition scores an asset's market position from the
// competitors that share its indication or its target.
package competition

import (
	"fmt"
	"strings"
)

// Leadership relative to the strongest indication competitor.
const (
	Leading  = "leading"
	Tied     = "tied"
	Trailing = "trailing"
)

const (
	baseScore       = 50.0
	pointsPerPhase  = 7.5
	maxPhaseBonus   = 30.0
	leadingBonus    = 10.0
	trailingPenalty = -5.0
)

// Competitor is another entity with its highest phase reached.
type Competitor struct {
	EntityID         string `json:"entity_id"`
	HighestPhase     int    `json:"highest_phase"`
	SharesIndication bool   `json:"shares_indication"`
	SharesTarget     bool   `json:"shares_target"`
}

// Landscape is the input for one entity.
type Landscape struct {
	EntityID     string       `json:"entity_id"`
	HighestPhase int          `json:"highest_phase"`
	Competitors  []Competitor `json:"competitors"`
}

// Result is the analyzed competitive position.
type Result struct {
	Score                 float64  `json:"score"`
	IndicationCompetitors int      `json:"indication_competitors"`
	TargetCompetitors     int      `json:"target_competitors"`
	StrongestPhase        int      `json:"strongest_competitor_phase"`
	Leadership            string   `json:"leadership"`
	Reasons               []string `json:"reasons"`
}

// Analyze scores a landscape:
//
//	50 + 7.5×phase (<=30) + count bucket + target uniqueness + leadership
//
// clamped to [0, 100]. The entity itself and duplicate IDs are ignored.
func Analyze(l Landscape) Result {
	var (
		res      Result
		seen     = map[string]bool{}
		strong   = -1
		hasIndic bool
	)
	for _, c := range l.Competitors {
		if c.EntityID == l.EntityID || (c.EntityID != "" && seen[c.EntityID]) {
			continue
		}
		seen[c.EntityID] = true
		if c.SharesIndication {
			res.IndicationCompetitors++
			hasIndic = true
			if c.HighestPhase > strong {
				strong = c.HighestPhase
			}
		}
		if c.SharesTarget {
			res.TargetCompetitors++
		}
	}

	score := baseScore
	phaseBonus := min(pointsPerPhase*float64(max(l.HighestPhase, 0)), maxPhaseBonus)
	score += phaseBonus
	res.Reasons = append(res.Reasons, fmt.Sprintf("phase %d +%.1f", l.HighestPhase, phaseBonus))

	countBonus := competitorCountBonus(res.IndicationCompetitors)
	score += countBonus
	res.Reasons = append(res.Reasons, fmt.Sprintf("%d indication competitors %+.0f", res.IndicationCompetitors, countBonus))

	uniq := targetUniquenessBonus(res.TargetCompetitors)
	score += uniq
	res.Reasons = append(res.Reasons, fmt.Sprintf("%d target-sharing competitors %+.0f", res.TargetCompetitors, uniq))

	switch {
	case !hasIndic || l.HighestPhase > strong:
		res.Leadership = Leading
		score += leadingBonus
	case l.HighestPhase == strong:
		res.Leadership = Tied
	default:
		res.Leadership = Trailing
		score += trailingPenalty
	}
	if hasIndic {
		res.StrongestPhase = strong
	}
	res.Reasons = append(res.Reasons, "phase "+res.Leadership)

	res.Score = clamp(score, 0, 100)
	return res
}

func competitorCountBonus(n int) float64 {
	switch {
	case n == 0:
		return 20
	case n <= 3:
		return 10
	case n <= 10:
		return 0
	default:
		return -10
	}
}

func targetUniquenessBonus(n int) float64 {
	switch {
	case n == 0:
		return 10
	case n <= 2:
		return 5
	default:
		return 0
	}
}

// Summary renders the result as a single rationale line.
func (r Result) Summary() string {
	return fmt.Sprintf("competitive score %.1f (%s)", r.Score, strings.Join(r.Reasons, ", "))
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
