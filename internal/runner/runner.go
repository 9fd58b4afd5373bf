// Package runner executes batch scoring runs: precedent cache first, then
// a bounded worker pool scoring each entity independently.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/hermes"
	"github.com/MikeSquared-Agency/Assay/internal/metrics"
	"github.com/MikeSquared-Agency/Assay/internal/precedent"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/signal"
	"github.com/MikeSquared-Agency/Assay/internal/store"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

var ErrRunInProgress = errors.New("a scoring run is already in progress")

// Store is the subset of store.Store a run needs.
type Store interface {
	store.Reader
	store.Writer
}

// SignalSource supplies raw signals. The store satisfies it; so does the
// ingest HTTP client.
type SignalSource interface {
	GetSignals(ctx context.Context, entityID string) (map[string]any, error)
}

type Config struct {
	Workers  int
	Interval time.Duration
}

// EntityError records one entity's failure without aborting the run.
type EntityError struct {
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// EntityResult is everything computed for one entity.
type EntityResult struct {
	EntityID    string                   `json:"entity_id"`
	Composites  []scoring.CompositeScore `json:"composites"`
	Competition competition.Result       `json:"competition"`
	Approval    approval.Estimate        `json:"approval"`
	Rejected    []string                 `json:"rejected_signals,omitempty"`
}

type Report struct {
	RunID      uuid.UUID      `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Scored     int            `json:"scored"`
	Failed     int            `json:"failed"`
	Errors     []EntityError  `json:"errors,omitempty"`
	Results    []EntityResult `json:"results,omitempty"`
}

type Runner struct {
	store     Store
	signals   SignalSource
	registry  *signal.Registry
	engine    *scoring.Engine
	precedent precedent.Model
	estimator *approval.Estimator
	hermes    hermes.Client
	metrics   *metrics.Recorder
	cfg       Config
	logger    *slog.Logger

	running atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Runner. signals may be nil, in which case signals are read
// from the store. h and rec may be nil.
func New(s Store, signals SignalSource, engine *scoring.Engine, est *approval.Estimator, h hermes.Client, rec *metrics.Recorder, cfg Config, logger *slog.Logger) *Runner {
	if signals == nil {
		signals = s
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		store:     s,
		signals:   signals,
		registry:  signal.DefaultRegistry(),
		engine:    engine,
		precedent: precedent.NewModel(precedent.DefaultBaseline()),
		estimator: est,
		hermes:    h,
		metrics:   rec,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic loop when an interval is configured.
func (r *Runner) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		return
	}
	r.wg.Add(1)
	go r.loop(ctx)
}

func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunAll(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				r.logger.Error("periodic run failed", "error", err)
			}
		}
	}
}

// RunAll scores every entity in the store.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return r.Run(ctx, entities)
}

// RunIDs scores the named entities. Unknown IDs are reported as failures.
func (r *Runner) RunIDs(ctx context.Context, ids []string) (*Report, error) {
	if len(ids) == 0 {
		return r.RunAll(ctx)
	}
	var (
		entities []store.Entity
		missing  []EntityError
	)
	for _, id := range ids {
		e, err := r.store.GetEntity(ctx, id)
		if err != nil {
			missing = append(missing, EntityError{EntityID: id, Error: err.Error()})
			continue
		}
		entities = append(entities, *e)
	}
	rep, err := r.Run(ctx, entities)
	if rep != nil {
		rep.Failed += len(missing)
		rep.Errors = append(missing, rep.Errors...)
	}
	return rep, err
}

// Run scores entities. Per-entity failures are collected in the report;
// the returned error is non-nil only when the run as a whole could not
// proceed or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, entities []store.Entity) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	rep := &Report{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	log := r.logger.With("run_id", rep.RunID)

	indications := make([]string, 0, len(entities))
	for _, e := range entities {
		indications = append(indications, e.Indication)
	}
	cache, err := precedent.BuildCache(ctx, r.precedent, r.store, indications, func(ind string, err error) {
		log.Warn("precedent fetch failed, using baseline", "indication", ind, "error", err)
	})
	if err != nil {
		return nil, err
	}
	log.Info("scoring run started", "entities", len(entities), "indications", cache.Len())

	results := make([]*EntityResult, len(entities))
	errs := make([]error, len(entities))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, e := range entities {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.scoreIsolated(ctx, rep.RunID, cache, e)
			if err != nil {
				errs[i] = err
				r.metrics.EntityDone(metrics.OutcomeFailed)
				log.Error("entity scoring failed", "entity_id", e.ID, "error", err)
				return nil
			}
			results[i] = res
			r.metrics.EntityDone(metrics.OutcomeScored)
			return nil
		})
	}
	_ = g.Wait()

	for i, e := range entities {
		switch {
		case results[i] != nil:
			rep.Scored++
			rep.Results = append(rep.Results, *results[i])
		case errs[i] != nil:
			rep.Failed++
			rep.Errors = append(rep.Errors, EntityError{EntityID: e.ID, Error: errs[i].Error()})
		}
	}
	rep.FinishedAt = time.Now().UTC()

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("run %s interrupted: %w", rep.RunID, err)
	}

	duration := rep.FinishedAt.Sub(rep.StartedAt)
	r.metrics.RunFinished(duration, rep.FinishedAt)
	if err := r.store.RecordRun(ctx, store.Run{
		ID: rep.RunID, StartedAt: rep.StartedAt, FinishedAt: rep.FinishedAt,
		Scored: rep.Scored, Failed: rep.Failed,
	}); err != nil {
		log.Warn("failed to record run", "error", err)
	}
	r.publish(hermes.SubjectRunCompleted(rep.RunID.String()), hermes.RunCompletedEvent{
		RunID:      rep.RunID.String(),
		Scored:     rep.Scored,
		Failed:     rep.Failed,
		DurationMs: duration.Milliseconds(),
		Timestamp:  rep.FinishedAt,
	})
	log.Info("scoring run completed", "scored", rep.Scored, "failed", rep.Failed, "duration", duration)
	return rep, nil
}

// scoreIsolated turns a panic while scoring e into e's error so siblings
// keep running.
func (r *Runner) scoreIsolated(ctx context.Context, runID uuid.UUID, cache *precedent.Cache, e store.Entity) (res *EntityResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("panic scoring %s: %v", e.ID, p)
		}
	}()
	return r.scoreEntity(ctx, runID, cache, e)
}

func (r *Runner) scoreEntity(ctx context.Context, runID uuid.UUID, cache *precedent.Cache, e store.Entity) (*EntityResult, error) {
	raw, err := r.signals.GetSignals(ctx, e.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Unreachable upstream means every signal is missing, never zero.
		r.logger.Warn("signal fetch failed, scoring without signals", "entity_id", e.ID, "error", err)
		raw = nil
	}
	set, rejected := r.registry.Parse(e.ID, raw, r.logger)

	trials, err := r.store.GetTrialsForEntity(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("trials: %w", err)
	}
	set = r.deriveSignals(set, e, trials)

	scores := r.engine.Score(set)

	competitors, err := r.store.GetCompetitors(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("competitors: %w", err)
	}
	comp := competition.Analyze(competition.Landscape{
		EntityID:     e.ID,
		HighestPhase: int(trial.HighestPhase(trials, false)),
		Competitors:  competitors,
	})

	approved := e.IsApproved
	if v := set.Bool(signal.IsApproved); v != nil && *v {
		approved = true
	}
	est, err := r.estimator.Estimate(approval.Input{
		EntityID:    e.ID,
		IsApproved:  approved,
		Trials:      trials,
		Precedent:   cache.Get(e.Indication),
		Competition: &comp,
	})
	if err != nil {
		return nil, fmt.Errorf("approval: %w", err)
	}

	if err := r.store.SaveEntityScores(ctx, store.EntityScores{
		RunID:        runID,
		EntityID:     e.ID,
		IndicationID: e.Indication,
		Components:   scores.Components,
		Composites:   scores.Composites,
		Approval:     est,
	}); err != nil {
		return nil, err
	}

	r.observe(scores, est)
	r.announce(runID, e, scores, est)

	res := &EntityResult{EntityID: e.ID, Composites: scores.Composites, Competition: comp, Approval: est}
	for _, rj := range rejected {
		res.Rejected = append(res.Rejected, rj.Name)
	}
	return res, nil
}

// deriveSignals fills highest_phase and is_approved from the entity record
// and its trials when the upstream did not supply them.
func (r *Runner) deriveSignals(set signal.Set, e store.Entity, trials []trial.Trial) signal.Set {
	if !set.Has(signal.HighestPhase) && len(trials) > 0 {
		if sig, err := r.registry.Validate(signal.Float(signal.HighestPhase, float64(trial.HighestPhase(trials, false)))); err == nil {
			set = set.With(sig)
		}
	}
	if !set.Has(signal.IsApproved) && e.IsApproved {
		if sig, err := r.registry.Validate(signal.Bool(signal.IsApproved, true)); err == nil {
			set = set.With(sig)
		}
	}
	return set
}

func (r *Runner) observe(scores scoring.Result, est approval.Estimate) {
	for _, c := range scores.Components {
		if c.DefaultApplied {
			r.metrics.DefaultApplied(c.Name)
		}
	}
	for _, c := range scores.Composites {
		if c.Value == nil {
			r.metrics.NullComposite(c.Name)
		}
		for _, rule := range c.CapsFired {
			r.metrics.CapFired(c.Name, rule)
		}
	}
	r.metrics.Approval(est.FinalProbability, est.Overridden, est.Confidence)
}

func (r *Runner) announce(runID uuid.UUID, e store.Entity, scores scoring.Result, est approval.Estimate) {
	now := time.Now().UTC()
	ev := hermes.ScoreComputedEvent{
		RunID:        runID.String(),
		EntityID:     e.ID,
		IndicationID: e.Indication,
		Scores:       make(map[string]*float64, len(scores.Composites)),
		Timestamp:    now,
	}
	for _, c := range scores.Composites {
		ev.Scores[c.Name] = c.Value
		if len(c.CapsFired) > 0 {
			if ev.CapsFired == nil {
				ev.CapsFired = map[string][]string{}
			}
			ev.CapsFired[c.Name] = c.CapsFired
		}
	}
	r.publish(hermes.SubjectScoreComputed(e.ID), ev)
	r.publish(hermes.SubjectApprovalEstimated(e.ID), hermes.ApprovalEstimatedEvent{
		RunID:            runID.String(),
		EntityID:         e.ID,
		IndicationID:     e.Indication,
		CurrentPhase:     est.CurrentPhase,
		FinalProbability: est.FinalProbability,
		Confidence:       est.Confidence,
		Timestamp:        now,
	})
}

func (r *Runner) publish(subject string, data any) {
	if r.hermes == nil {
		return
	}
	if err := r.hermes.Publish(subject, data); err != nil {
		r.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}
