// Package trial models clinical-trial records and scores their design quality.
package trial

import (
	"regexp"
	"strings"
)

var romanPhase = regexp.MustCompile(`PHASE\s*(IV|III|II|I)\b`)

// Phase is a clinical phase 0–4. Phase 0 covers early-phase and unknown.
type Phase int

const (
	Phase0 Phase = 0
	Phase1 Phase = 1
	Phase2 Phase = 2
	Phase3 Phase = 3
	Phase4 Phase = 4
)

// ParsePhase accepts registry forms such as "PHASE2", "Phase 1/Phase 2",
// "EARLY_PHASE1" or "3". Combined phases resolve to the highest one listed.
func ParsePhase(s string) Phase {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || strings.Contains(s, "EARLY") {
		return Phase0
	}
	best := Phase0
	for _, r := range s {
		if r >= '1' && r <= '4' {
			if p := Phase(r - '0'); p > best {
				best = p
			}
		}
	}
	if best == Phase0 {
		roman := map[string]Phase{"I": Phase1, "II": Phase2, "III": Phase3, "IV": Phase4}
		for _, g := range romanPhase.FindAllStringSubmatch(s, -1) {
			if p := roman[g[1]]; p > best {
				best = p
			}
		}
	}
	return best
}

type Status string

const (
	StatusCompleted         Status = "Completed"
	StatusTerminated        Status = "Terminated"
	StatusWithdrawn         Status = "Withdrawn"
	StatusSuspended         Status = "Suspended"
	StatusActiveNotRecruit  Status = "Active, not recruiting"
	StatusRecruiting        Status = "Recruiting"
	StatusEnrollingByInvite Status = "Enrolling by invitation"
	StatusNotYetRecruiting  Status = "Not yet recruiting"
	StatusUnknown           Status = "Unknown"
)

// ParseStatus normalises registry spellings such as "ACTIVE_NOT_RECRUITING".
func ParseStatus(s string) Status {
	key := strings.ToLower(strings.NewReplacer("_", " ", ",", "", "-", " ").Replace(strings.TrimSpace(s)))
	key = strings.Join(strings.Fields(key), " ")
	switch key {
	case "completed":
		return StatusCompleted
	case "terminated":
		return StatusTerminated
	case "withdrawn":
		return StatusWithdrawn
	case "suspended":
		return StatusSuspended
	case "active not recruiting":
		return StatusActiveNotRecruit
	case "recruiting":
		return StatusRecruiting
	case "enrolling by invitation":
		return StatusEnrollingByInvite
	case "not yet recruiting":
		return StatusNotYetRecruiting
	}
	return StatusUnknown
}

// Finished reports whether the trial has ended, successfully or not.
func (s Status) Finished() bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusWithdrawn:
		return true
	}
	return false
}

func (s Status) nearComplete() bool {
	return s == StatusCompleted || s == StatusActiveNotRecruit
}

func (s Status) ongoing() bool {
	switch s {
	case StatusRecruiting, StatusEnrollingByInvite, StatusNotYetRecruiting:
		return true
	}
	return false
}

// Trial is one registry record.
type Trial struct {
	ID                string `json:"trial_id"`
	EntityID          string `json:"entity_id,omitempty"`
	Indication        string `json:"indication,omitempty"`
	Phase             Phase  `json:"phase"`
	Status            Status `json:"status"`
	Randomized        bool   `json:"is_randomized"`
	Blinded           bool   `json:"is_blinded"`
	PlaceboControlled bool   `json:"has_placebo"`
	ActiveComparator  bool   `json:"has_active_comparator"`
	PrimaryEndpoint   string `json:"primary_endpoint,omitempty"`
	Enrollment        int    `json:"enrollment"`
}

// HighestPhase returns the highest phase among trials, optionally
// excluding post-marketing (phase 4) studies.
func HighestPhase(trials []Trial, excludePostMarketing bool) Phase {
	best := Phase0
	for _, t := range trials {
		if excludePostMarketing && t.Phase == Phase4 {
			continue
		}
		if t.Phase > best {
			best = t.Phase
		}
	}
	return best
}

// HasPostMarketing reports whether any trial is phase 4.
func HasPostMarketing(trials []Trial) bool {
	for _, t := range trials {
		if t.Phase == Phase4 {
			return true
		}
	}
	return false
}
