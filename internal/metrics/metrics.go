// Package metrics holds the Prometheus collectors for scoring runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assay"

// Outcome labels for EntitiesScored.
const (
	OutcomeScored = "scored"
	OutcomeFailed = "failed"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	entities    *prometheus.CounterVec
	nullScores  *prometheus.CounterVec
	capsFired   *prometheus.CounterVec
	defaults    *prometheus.CounterVec
	overrides   *prometheus.CounterVec
	probability prometheus.Histogram
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	auto := promauto.With(reg)
	return &Recorder{
		entities: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Entities processed by scoring runs, by outcome.",
		}, []string{"outcome"}),
		nullScores: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "null_composites_total",
			Help:      "Composite scores that came out null because every component was missing.",
		}, []string{"score_type"}),
		capsFired: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caps_fired_total",
			Help:      "Cap rules that fired, by composite and rule.",
		}, []string{"score_type", "rule"}),
		defaults: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_defaults_total",
			Help:      "Component scores that used a neutral default.",
		}, []string{"component"}),
		overrides: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_overrides_total",
			Help:      "Approval estimates short-circuited to 1.0, by reason.",
		}, []string{"confidence"}),
		probability: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_probability",
			Help:      "Distribution of final approval probabilities.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		runDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of batch scoring runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastRun: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
}

func (r *Recorder) EntityDone(outcome string) {
	if r == nil {
		return
	}
	r.entities.WithLabelValues(outcome).Inc()
}

func (r *Recorder) NullComposite(scoreType string) {
	if r == nil {
		return
	}
	r.nullScores.WithLabelValues(scoreType).Inc()
}

func (r *Recorder) CapFired(scoreType, rule string) {
	if r == nil {
		return
	}
	r.capsFired.WithLabelValues(scoreType, rule).Inc()
}

func (r *Recorder) DefaultApplied(component string) {
	if r == nil {
		return
	}
	r.defaults.WithLabelValues(component).Inc()
}

// Approval records the final probability, and the override when the
// estimate short-circuited.
func (r *Recorder) Approval(probability float64, overridden bool, confidence string) {
	if r == nil {
		return
	}
	r.probability.Observe(probability)
	if overridden {
		r.overrides.WithLabelValues(confidence).Inc()
	}
}

func (r *Recorder) RunFinished(d time.Duration, at time.Time) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
	r.lastRun.Set(float64(at.Unix()))
}
