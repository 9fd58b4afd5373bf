// Package signal defines the typed, range-validated inputs consumed by the
// scoring core. A Signal is either present with a value or explicitly absent;
// absence means "not fetchable" and is never the same as a measured zero.
package signal

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrUnknownSignal = errors.New("unknown signal")
	ErrInvalidRange  = errors.New("signal value outside valid range")
	ErrWrongKind     = errors.New("signal value has wrong kind")
)

type Kind string

const (
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindLabel  Kind = "label"
	KindLabels Kind = "labels"
)

// Range is an inclusive numeric domain. Use math.Inf(1) for an open top.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// AtLeast returns the range [min, +Inf].
func AtLeast(min float64) Range { return Range{Min: min, Max: math.Inf(1)} }

// Between returns the range [min, max].
func Between(min, max float64) Range { return Range{Min: min, Max: max} }

// Signal is a single named input. Exactly one of Num, Flag or Labels is
// populated when the signal is present.
type Signal struct {
	Name   string   `json:"name"`
	Kind   Kind     `json:"kind"`
	Unit   string   `json:"unit,omitempty"`
	Range  Range    `json:"valid_range"`
	Num    *float64 `json:"num,omitempty"`
	Flag   *bool    `json:"flag,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// Present reports whether the signal carries a value.
func (s Signal) Present() bool {
	switch s.Kind {
	case KindFloat:
		return s.Num != nil
	case KindBool:
		return s.Flag != nil
	case KindLabel, KindLabels:
		return len(s.Labels) > 0
	}
	return false
}

// Set holds the validated signals for one entity. Signals that are absent or
// were rejected during validation are simply not in the set.
type Set struct {
	signals map[string]Signal
}

func NewSet(signals ...Signal) Set {
	s := Set{signals: make(map[string]Signal, len(signals))}
	for _, sig := range signals {
		if sig.Present() {
			s.signals[sig.Name] = sig
		}
	}
	return s
}

// With returns a copy of the set with sig added or replaced.
func (s Set) With(sig Signal) Set {
	out := Set{signals: make(map[string]Signal, len(s.signals)+1)}
	for k, v := range s.signals {
		out.signals[k] = v
	}
	if sig.Present() {
		out.signals[sig.Name] = sig
	} else {
		delete(out.signals, sig.Name)
	}
	return out
}

func (s Set) Has(name string) bool {
	_, ok := s.signals[name]
	return ok
}

func (s Set) Get(name string) (Signal, bool) {
	sig, ok := s.signals[name]
	return sig, ok
}

// Float returns the numeric value of name, or nil when absent.
func (s Set) Float(name string) *float64 {
	sig, ok := s.signals[name]
	if !ok || sig.Num == nil {
		return nil
	}
	v := *sig.Num
	return &v
}

// Bool returns the flag value of name, or nil when absent.
func (s Set) Bool(name string) *bool {
	sig, ok := s.signals[name]
	if !ok || sig.Flag == nil {
		return nil
	}
	v := *sig.Flag
	return &v
}

// Label returns the first label of name, or "" when absent.
func (s Set) Label(name string) string {
	sig, ok := s.signals[name]
	if !ok || len(sig.Labels) == 0 {
		return ""
	}
	return sig.Labels[0]
}

// Labels returns all labels of name.
func (s Set) Labels(name string) []string {
	sig, ok := s.signals[name]
	if !ok {
		return nil
	}
	return append([]string(nil), sig.Labels...)
}

// Names returns the names of all present signals, sorted.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.signals))
	for n := range s.signals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Set) Len() int { return len(s.signals) }

func Float(name string, v float64) Signal {
	return Signal{Name: name, Kind: KindFloat, Num: &v}
}

func Bool(name string, v bool) Signal {
	return Signal{Name: name, Kind: KindBool, Flag: &v}
}

func Label(name string, labels ...string) Signal {
	kind := KindLabel
	if len(labels) > 1 {
		kind = KindLabels
	}
	return Signal{Name: name, Kind: kind, Labels: labels}
}
