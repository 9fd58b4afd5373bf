package scoring

import (
	"fmt"

	"github.com/MikeSquared-Agency/Assay/internal/signal"
)

// Serious-AE ratio bands: a ratio at or below Max earns Points.
type ratioBand struct {
	Max    float64
	Points float64
}

const (
	seriousRatioFloor    = 30
	boxedWarningPenalty  = 20
	neutralSafetyDefault = 70
)

// TractabilityPoints returns the fixed points for each druggability label.
func TractabilityPoints() LabelTable {
	labels := signal.TractabilityLabelSet()
	points := []float64{100, 90, 80, 70, 60, 50, 40, 30}
	t := make(LabelTable, len(labels))
	for i, l := range labels {
		t[l] = points[i]
	}
	return t
}

func ModalityPoints() LabelTable {
	return LabelTable{
		"base_editing":       90,
		"prime_editing":      85,
		"crispr_knockout":    75,
		"rna_editing":        70,
		"epigenetic_editing": 65,
		"crispr_activation":  60,
	}
}

func DurabilityPoints() LabelTable {
	return LabelTable{
		"permanent": 100,
		"long_term": 70,
		"transient": 40,
	}
}

// BioCalculator scales target–disease association to [0, 100]. A measured
// association of zero scores zero.
func BioCalculator() Calculator {
	return Calculator{
		Name:     ComponentBio,
		Requires: []string{signal.BioAssociation},
		Optional: []string{signal.BioLiteratureCount},
		compute: func(s signal.Set) (float64, []string) {
			assoc := *s.Float(signal.BioAssociation)
			reasons := []string{fmt.Sprintf("association %.3f", assoc)}
			if n := s.Float(signal.BioLiteratureCount); n != nil {
				reasons = append(reasons, fmt.Sprintf("%d supporting publications", int(*n)))
			}
			return assoc * 100, reasons
		},
	}
}

// ChemCalculator sums potency (<=40), selectivity (<=30) and data richness
// (<=30). Potency is required; the other two add nothing when absent.
func ChemCalculator() Calculator {
	potencyTable := NewBreakpointTable(10,
		Step{Min: 8, Points: 40},
		Step{Min: 7, Points: 30},
		Step{Min: 6, Points: 20},
	)
	selectivityTable := NewBreakpointTable(5,
		Step{Min: 100, Points: 30},
		Step{Min: 30, Points: 20},
		Step{Min: 10, Points: 10},
	)
	dataRichnessTable := NewBreakpointTable(5,
		Step{Min: 100, Points: 30},
		Step{Min: 20, Points: 20},
		Step{Min: 5, Points: 10},
	)
	return Calculator{
		Name:     ComponentChem,
		Requires: []string{signal.PotencyPXC50},
		Optional: []string{signal.SelectivityFold, signal.ActivityCount},
		compute: func(s signal.Set) (float64, []string) {
			pxc50 := *s.Float(signal.PotencyPXC50)
			potency := potencyTable.Lookup(pxc50)
			reasons := []string{fmt.Sprintf("potency pXC50 %.2f -> %.0f", pxc50, potency)}
			total := potency

			if sel := s.Float(signal.SelectivityFold); sel != nil {
				p := selectivityTable.Lookup(*sel)
				total += p
				reasons = append(reasons, fmt.Sprintf("selectivity %.0fx -> %.0f", *sel, p))
			} else {
				reasons = append(reasons, "selectivity unavailable")
			}

			if n := s.Float(signal.ActivityCount); n != nil {
				p := dataRichnessTable.Lookup(*n)
				total += p
				reasons = append(reasons, fmt.Sprintf("%d activity records -> %.0f", int(*n), p))
			} else {
				reasons = append(reasons, "activity data unavailable")
			}
			return total, reasons
		},
	}
}

// TractabilityCalculator takes the best label across all of a drug's
// targets: a drug is only as tractable as its single best target.
func TractabilityCalculator() Calculator {
	table := TractabilityPoints()
	return Calculator{
		Name:        ComponentTractability,
		RequiresAny: []string{signal.TractabilityLabels, signal.TractabilityLabel},
		compute: func(s signal.Set) (float64, []string) {
			labels := append(s.Labels(signal.TractabilityLabels), s.Labels(signal.TractabilityLabel)...)
			best, points, _ := table.Best(labels)
			reason := fmt.Sprintf("best label %q", best)
			if len(labels) > 1 {
				reason = fmt.Sprintf("best of %d labels %q", len(labels), best)
			}
			return points, []string{reason}
		},
	}
}

func TargetBioCalculator() Calculator {
	return Calculator{
		Name:     ComponentTargetBio,
		Requires: []string{signal.TargetBioAssociation},
		compute: func(s signal.Set) (float64, []string) {
			assoc := *s.Float(signal.TargetBioAssociation)
			return assoc * 100, []string{fmt.Sprintf("target association %.3f", assoc)}
		},
	}
}

func ModalityCalculator() Calculator {
	table := ModalityPoints()
	return Calculator{
		Name:     ComponentModality,
		Requires: []string{signal.Modality},
		compute: func(s signal.Set) (float64, []string) {
			m := s.Label(signal.Modality)
			_, p, _ := table.Best([]string{m})
			return p, []string{"modality " + m}
		},
	}
}

func DurabilityCalculator() Calculator {
	table := DurabilityPoints()
	return Calculator{
		Name:     ComponentDurability,
		Requires: []string{signal.DurabilityClass},
		compute: func(s signal.Set) (float64, []string) {
			d := s.Label(signal.DurabilityClass)
			_, p, _ := table.Best([]string{d})
			return p, []string{"durability " + d}
		},
	}
}

func TrialProgressCalculator() Calculator {
	trialProgressTable := NewBreakpointTable(10,
		Step{Min: 4, Points: 100},
		Step{Min: 3, Points: 75},
		Step{Min: 2, Points: 50},
		Step{Min: 1, Points: 30},
	)
	return Calculator{
		Name:     ComponentTrialProgress,
		Requires: []string{signal.HighestPhase},
		compute: func(s signal.Set) (float64, []string) {
			phase := *s.Float(signal.HighestPhase)
			return trialProgressTable.Lookup(phase), []string{fmt.Sprintf("highest phase %.0f", phase)}
		},
	}
}

func MechanismCalculator() Calculator {
	return Calculator{
		Name:     ComponentMechanism,
		Requires: []string{signal.MechanismKnown},
		Optional: []string{signal.MechanismTargetCount},
		compute: func(s signal.Set) (float64, []string) {
			if !*s.Bool(signal.MechanismKnown) {
				return 30, []string{"mechanism of action unknown"}
			}
			if n := s.Float(signal.MechanismTargetCount); n != nil && *n == 1 {
				return 90, []string{"known single-target mechanism"}
			}
			return 70, []string{"known mechanism"}
		},
	}
}

// SafetyCalculator grades the serious share of adverse events. When
// adverse-event counts are unavailable it applies a neutral default of 70
// and flags the score so it is never mistaken for a computed one.
func SafetyCalculator() Calculator {
	bands := []ratioBand{
		{Max: 0.05, Points: 90},
		{Max: 0.15, Points: 70},
		{Max: 0.30, Points: 50},
	}
	return Calculator{
		Name:     ComponentSafety,
		Requires: []string{signal.TotalAECount, signal.SeriousAECount},
		Optional: []string{signal.HasBoxedWarning},
		fallback: float64Ptr(neutralSafetyDefault),
		compute: func(s signal.Set) (float64, []string) {
			total := *s.Float(signal.TotalAECount)
			serious := *s.Float(signal.SeriousAECount)
			ratio := serious / max(total, 1)

			score := float64(seriousRatioFloor)
			for _, b := range bands {
				if ratio <= b.Max {
					score = b.Points
					break
				}
			}
			reasons := []string{fmt.Sprintf("serious AE ratio %.3f (%d/%d)", ratio, int(serious), int(total))}
			if b := s.Bool(signal.HasBoxedWarning); b != nil && *b {
				score -= boxedWarningPenalty
				reasons = append(reasons, "boxed warning")
			}
			return score, reasons
		},
	}
}

// DefaultCalculators returns every calculator keyed by component name.
func DefaultCalculators() map[string]Calculator {
	calcs := []Calculator{
		BioCalculator(),
		ChemCalculator(),
		TractabilityCalculator(),
		TargetBioCalculator(),
		ModalityCalculator(),
		DurabilityCalculator(),
		TrialProgressCalculator(),
		MechanismCalculator(),
		SafetyCalculator(),
	}
	out := make(map[string]Calculator, len(calcs))
	for _, c := range calcs {
		out[c.Name] = c
	}
	return out
}
