package trial

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	pointsRandomized       = 20
	pointsBlinded          = 20
	pointsPlacebo          = 15
	pointsActiveComparator = 15
	pointsGoldEndpoint     = 15
	pointsSurrogate        = 5
	pointsOtherEndpoint    = 10
	pointsLargeComplete    = 5
	pointsLargeOngoing     = 3

	largeEnrollment = 100
	maxQuality      = 100
)

var (
	goldStandardEndpoint = regexp.MustCompile(`(?i)\b(overall survival|progression[- ]free survival|disease[- ]free survival|event[- ]free survival|mortality|os|pfs|dfs|efs)\b`)
	surrogateEndpoint    = regexp.MustCompile(`(?i)\b(response rate|objective response|orr|biomarker|hba1c|ldl|viral load|change from baseline)\b`)
)

// Quality is the design-quality score of one trial.
type Quality struct {
	TrialID string   `json:"trial_id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// DesignQuality scores a single trial's design on an additive 0–100 rubric.
func DesignQuality(t Trial) Quality {
	q := Quality{TrialID: t.ID}
	add := func(points float64, reason string) {
		q.Score += points
		q.Reasons = append(q.Reasons, fmt.Sprintf("%s +%g", reason, points))
	}

	if t.Randomized {
		add(pointsRandomized, "randomized")
	}
	if t.Blinded {
		add(pointsBlinded, "blinded")
	}
	if t.PlaceboControlled {
		add(pointsPlacebo, "placebo arm")
	}
	if t.ActiveComparator {
		add(pointsActiveComparator, "active comparator")
	}

	endpoint := strings.TrimSpace(t.PrimaryEndpoint)
	switch {
	case endpoint == "":
	case goldStandardEndpoint.MatchString(endpoint):
		add(pointsGoldEndpoint, "gold-standard endpoint")
	case surrogateEndpoint.MatchString(endpoint):
		add(pointsSurrogate, "surrogate endpoint")
	default:
		add(pointsOtherEndpoint, "defined endpoint")
	}

	if t.Enrollment >= largeEnrollment {
		switch {
		case t.Status.nearComplete():
			add(pointsLargeComplete, "large, near-complete enrollment")
		case t.Status.ongoing():
			add(pointsLargeOngoing, "large, ongoing enrollment")
		}
	}

	if q.Score > maxQuality {
		q.Score = maxQuality
	}
	return q
}

// AverageQuality averages DesignQuality over trials. It returns nil when
// trials is empty.
func AverageQuality(trials []Trial) *float64 {
	if len(trials) == 0 {
		return nil
	}
	var sum float64
	for _, t := range trials {
		sum += DesignQuality(t).Score
	}
	avg := sum / float64(len(trials))
	return &avg
}
