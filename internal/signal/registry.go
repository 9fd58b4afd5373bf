package signal

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Known signal names.
const (
	BioAssociation       = "bio_association"
	BioLiteratureCount   = "bio_literature_count"
	PotencyPXC50         = "potency_pxc50"
	SelectivityFold      = "selectivity_fold"
	ActivityCount        = "activity_count"
	TractabilityLabel    = "tractability_label"
	TractabilityLabels   = "tractability_labels"
	TargetBioAssociation = "target_bio_association"
	Modality             = "modality"
	DurabilityClass      = "durability_class"
	HighestPhase         = "highest_phase"
	MechanismKnown       = "mechanism_known"
	MechanismTargetCount = "mechanism_target_count"
	SeriousAECount       = "serious_ae_count"
	TotalAECount         = "total_ae_count"
	IsApproved           = "is_approved"
	HasBoxedWarning      = "has_boxed_warning"
)

// Tractability labels, best first.
var tractabilityLabels = []string{
	"Approved Drug",
	"Advanced Clinical",
	"Phase 1 Clinical",
	"Structure with Ligand",
	"High-Quality Ligand",
	"High-Quality Pocket",
	"Med-Quality Pocket",
	"Druggable Family",
}

// TractabilityLabelSet returns the eight recognised druggability labels, best first.
func TractabilityLabelSet() []string {
	return append([]string(nil), tractabilityLabels...)
}

// Definition describes a known signal: its kind, unit and valid domain.
type Definition struct {
	Name   string
	Kind   Kind
	Unit   string
	Range  Range
	Labels []string
}

func (d Definition) allowsLabel(l string) bool {
	if len(d.Labels) == 0 {
		return true
	}
	for _, allowed := range d.Labels {
		if allowed == l {
			return true
		}
	}
	return false
}

// Rejection records a raw value that was dropped during parsing.
type Rejection struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Err   error  `json:"-"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s=%v: %v", r.Name, r.Value, r.Err)
}

// Registry validates raw upstream values into typed Signals.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

// DefaultRegistry returns the registry of all signals the calculators read.
func DefaultRegistry() *Registry {
	unit := Between(0, 1)
	modalities := []string{"base_editing", "prime_editing", "crispr_knockout", "crispr_activation", "rna_editing", "epigenetic_editing"}
	return NewRegistry(
		Definition{Name: BioAssociation, Kind: KindFloat, Unit: "score", Range: unit},
		Definition{Name: BioLiteratureCount, Kind: KindFloat, Unit: "count", Range: AtLeast(0)},
		Definition{Name: PotencyPXC50, Kind: KindFloat, Unit: "-log10(M)", Range: Between(0, 14)},
		Definition{Name: SelectivityFold, Kind: KindFloat, Unit: "fold", Range: AtLeast(0)},
		Definition{Name: ActivityCount, Kind: KindFloat, Unit: "count", Range: AtLeast(0)},
		Definition{Name: TractabilityLabel, Kind: KindLabel, Labels: tractabilityLabels},
		Definition{Name: TractabilityLabels, Kind: KindLabels, Labels: tractabilityLabels},
		Definition{Name: TargetBioAssociation, Kind: KindFloat, Unit: "score", Range: unit},
		Definition{Name: Modality, Kind: KindLabel, Labels: modalities},
		Definition{Name: DurabilityClass, Kind: KindLabel, Labels: []string{"permanent", "long_term", "transient"}},
		Definition{Name: HighestPhase, Kind: KindFloat, Unit: "phase", Range: Between(0, 4)},
		Definition{Name: MechanismKnown, Kind: KindBool},
		Definition{Name: MechanismTargetCount, Kind: KindFloat, Unit: "count", Range: AtLeast(0)},
		Definition{Name: SeriousAECount, Kind: KindFloat, Unit: "count", Range: AtLeast(0)},
		Definition{Name: TotalAECount, Kind: KindFloat, Unit: "count", Range: AtLeast(0)},
		Definition{Name: IsApproved, Kind: KindBool},
		Definition{Name: HasBoxedWarning, Kind: KindBool},
	)
}

func (r *Registry) Definition(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Validate checks a typed signal against its definition and stamps the
// definition's kind, unit and range onto it.
func (r *Registry) Validate(sig Signal) (Signal, error) {
	d, ok := r.defs[sig.Name]
	if !ok {
		return Signal{}, fmt.Errorf("%w: %s", ErrUnknownSignal, sig.Name)
	}
	sig.Kind, sig.Unit, sig.Range = d.Kind, d.Unit, d.Range

	switch d.Kind {
	case KindFloat:
		if sig.Num == nil {
			return sig, nil
		}
		if !d.Range.Contains(*sig.Num) {
			return Signal{}, fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrInvalidRange, sig.Name, *sig.Num, d.Range.Min, d.Range.Max)
		}
	case KindLabel, KindLabels:
		for _, l := range sig.Labels {
			if !d.allowsLabel(l) {
				return Signal{}, fmt.Errorf("%w: %s=%q is not a recognised label", ErrInvalidRange, sig.Name, l)
			}
		}
		if d.Kind == KindLabel && len(sig.Labels) > 1 {
			return Signal{}, fmt.Errorf("%w: %s expects one label, got %d", ErrWrongKind, sig.Name, len(sig.Labels))
		}
	}
	return sig, nil
}

// Parse converts a raw {name: value|null} map into a validated Set.
// Nil values are absent. Unknown names, wrong kinds and out-of-range values
// are dropped, logged at warn level and returned as rejections.
func (r *Registry) Parse(entityID string, raw map[string]any, logger *slog.Logger) (Set, []Rejection) {
	names := make([]string, 0, len(raw))
	for n := range raw {
		names = append(names, n)
	}
	sort.Strings(names)

	var (
		signals  []Signal
		rejected []Rejection
	)
	for _, name := range names {
		v := raw[name]
		if v == nil {
			continue
		}
		sig, err := r.fromRaw(name, v)
		if err == nil {
			sig, err = r.Validate(sig)
		}
		if err != nil {
			rejected = append(rejected, Rejection{Name: name, Value: v, Err: err})
			if logger != nil {
				logger.Warn("signal rejected", "entity_id", entityID, "signal", name, "value", v, "error", err)
			}
			continue
		}
		signals = append(signals, sig)
	}
	return NewSet(signals...), rejected
}

func (r *Registry) fromRaw(name string, v any) (Signal, error) {
	d, ok := r.defs[name]
	if !ok {
		return Signal{}, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	switch d.Kind {
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return Signal{}, fmt.Errorf("%w: %s wants a number, got %T", ErrWrongKind, name, v)
		}
		return Signal{Name: name, Num: &f}, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return Signal{}, fmt.Errorf("%w: %s wants a bool, got %T", ErrWrongKind, name, v)
		}
		return Signal{Name: name, Flag: &b}, nil
	case KindLabel:
		s, ok := v.(string)
		if !ok {
			return Signal{}, fmt.Errorf("%w: %s wants a string, got %T", ErrWrongKind, name, v)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return Signal{Name: name}, nil
		}
		return Signal{Name: name, Labels: []string{s}}, nil
	case KindLabels:
		labels, ok := toStrings(v)
		if !ok {
			return Signal{}, fmt.Errorf("%w: %s wants a list of strings, got %T", ErrWrongKind, name, v)
		}
		return Signal{Name: name, Labels: labels}, nil
	}
	return Signal{}, fmt.Errorf("%w: %s has unsupported kind %q", ErrWrongKind, name, d.Kind)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...), true
	case string:
		return []string{l}, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
