package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/competition"
	"github.com/MikeSquared-Agency/Assay/internal/metrics"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/store"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

// Mocks
type fakeStore struct {
	mu          sync.Mutex
	entities    []store.Entity
	signals     map[string]map[string]any
	trials      []trial.Trial
	trialErr    map[string]error
	saveErr     map[string]error
	components  map[string][]scoring.ComponentScore
	composites  map[string][]scoring.CompositeScore
	estimates   map[string]approval.Estimate
	runs        []store.Run
	listCalls   int
	indicationQ []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		signals:    map[string]map[string]any{},
		trialErr:   map[string]error{},
		saveErr:    map[string]error{},
		components: map[string][]scoring.ComponentScore{},
		composites: map[string][]scoring.CompositeScore{},
		estimates:  map[string]approval.Estimate{},
	}
}

func (f *fakeStore) ListEntities(_ context.Context) ([]store.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.entities, nil
}
func (f *fakeStore) GetEntity(_ context.Context, id string) (*store.Entity, error) {
	for _, e := range f.entities {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}
func (f *fakeStore) GetSignals(_ context.Context, id string) (map[string]any, error) {
	return f.signals[id], nil
}
func (f *fakeStore) GetTrialsForIndication(_ context.Context, ind string) ([]trial.Trial, error) {
	f.mu.Lock()
	f.indicationQ = append(f.indicationQ, ind)
	f.mu.Unlock()
	var out []trial.Trial
	for _, t := range f.trials {
		if t.Indication == ind {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStore) GetTrialsForEntity(_ context.Context, id string) ([]trial.Trial, error) {
	if err := f.trialErr[id]; err != nil {
		return nil, err
	}
	var out []trial.Trial
	for _, t := range f.trials {
		if t.EntityID == id {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStore) GetCompetitors(_ context.Context, e store.Entity) ([]competition.Competitor, error) {
	var out []competition.Competitor
	for _, o := range f.entities {
		if o.ID != e.ID && o.Indication == e.Indication {
			out = append(out, competition.Competitor{EntityID: o.ID, HighestPhase: 1, SharesIndication: true})
		}
	}
	return out, nil
}
func (f *fakeStore) SaveEntityScores(_ context.Context, es store.EntityScores) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErr[es.EntityID]; err != nil {
		return err
	}
	f.components[es.EntityID] = es.Components
	f.composites[es.EntityID] = es.Composites
	f.estimates[es.EntityID] = es.Approval
	return nil
}
func (f *fakeStore) RecordRun(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

type fakeHermes struct {
	mu       sync.Mutex
	subjects []string
}

func (h *fakeHermes) Publish(subject string, _ any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subjects = append(h.subjects, subject)
	return nil
}
func (h *fakeHermes) Subscribe(_ string, _ func(string, []byte)) error { return nil }
func (h *fakeHermes) Close()                                           {}

type failingSource struct{}

func (failingSource) GetSignals(_ context.Context, _ string) (map[string]any, error) {
	return nil, errors.New("upstream unavailable")
}

// panicSource panics for one entity and serves the store's signals for
// the rest.
type panicSource struct {
	store *fakeStore
	id    string
}

func (p panicSource) GetSignals(ctx context.Context, id string) (map[string]any, error) {
	if id == p.id {
		panic("malformed upstream payload")
	}
	return p.store.GetSignals(ctx, id)
}

// blockingSource parks every call until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) GetSignals(ctx context.Context, _ string) (map[string]any, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner(t *testing.T, s *fakeStore, src SignalSource, h *fakeHermes, cfg Config) *Runner {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.DefaultCalculators(), scoring.DefaultProfiles()...)
	require.NoError(t, err)
	est, err := approval.NewEstimator(approval.DefaultConfig())
	require.NoError(t, err)
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	if h == nil {
		return New(s, src, engine, est, nil, rec, cfg, testLogger())
	}
	return New(s, src, engine, est, h, rec, cfg, testLogger())
}

func seededStore() *fakeStore {
	s := newFakeStore()
	s.entities = []store.Entity{
		{ID: "E1", Kind: store.KindDrug, Indication: "gout"},
		{ID: "E2", Kind: store.KindDrug, Indication: "gout", IsApproved: true},
		{ID: "E3", Kind: store.KindDrug, Indication: "asthma"},
	}
	s.signals["E1"] = map[string]any{
		"bio_association":    0.4,
		"tractability_label": "Advanced Clinical",
		"potency_pxc50":      nil,
		"selectivity_fold":   -3.0,
	}
	s.trials = []trial.Trial{
		{ID: "T1", EntityID: "E1", Indication: "gout", Phase: trial.Phase2, Status: trial.StatusRecruiting},
	}
	s.trialErr["E3"] = errors.New("db timeout")
	return s
}

func compositeValue(t *testing.T, res EntityResult, name string) *float64 {
	t.Helper()
	for _, c := range res.Composites {
		if c.Name == name {
			return c.Value
		}
	}
	t.Fatalf("composite %s missing", name)
	return nil
}

func TestRunIsolatesEntityFailures(t *testing.T) {
	s := seededStore()
	h := &fakeHermes{}
	r := newRunner(t, s, nil, h, Config{Workers: 2})

	rep, err := r.Run(context.Background(), s.entities)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Scored)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "E3", rep.Errors[0].EntityID)
	assert.Contains(t, rep.Errors[0].Error, "db timeout")

	require.Len(t, rep.Results, 2)
	e1 := rep.Results[0]
	assert.Equal(t, "E1", e1.EntityID)
	require.NotNil(t, compositeValue(t, e1, scoring.TotalScore))
	assert.InDelta(t, 54.3, *compositeValue(t, e1, scoring.TotalScore), 0.05)
	assert.Nil(t, compositeValue(t, e1, scoring.EditingScore))
	// highest_phase derived from the phase 2 trial, safety neutral default
	require.NotNil(t, compositeValue(t, e1, scoring.OverallScore))
	assert.InDelta(t, 58.6, *compositeValue(t, e1, scoring.OverallScore), 0.05)
	assert.Equal(t, []string{"selectivity_fold"}, e1.Rejected)
	assert.Equal(t, "PHASE_2", e1.Approval.CurrentPhase)

	e2 := rep.Results[1]
	assert.Equal(t, 1.0, e2.Approval.FinalProbability)
	assert.Equal(t, approval.ConfidenceConfirmed, e2.Approval.Confidence)

	assert.Len(t, s.composites["E1"], 3)
	assert.Contains(t, s.estimates, "E2")
	assert.NotContains(t, s.estimates, "E3")
	require.Len(t, s.runs, 1)
	assert.Equal(t, rep.RunID, s.runs[0].ID)

	// gout and asthma fetched once each for the precedent cache
	assert.ElementsMatch(t, []string{"gout", "asthma"}, s.indicationQ)

	assert.Contains(t, h.subjects, "assay.score.E1.computed")
	assert.Contains(t, h.subjects, "assay.approval.E2.estimated")
	assert.Contains(t, h.subjects, "assay.run."+rep.RunID.String()+".completed")
	assert.NotContains(t, h.subjects, "assay.score.E3.computed")
}

func TestSignalFetchFailureMeansNullNotZero(t *testing.T) {
	s := seededStore()
	r := newRunner(t, s, failingSource{}, nil, Config{Workers: 1})

	rep, err := r.Run(context.Background(), s.entities[:1])
	require.NoError(t, err)
	require.Equal(t, 1, rep.Scored)

	res := rep.Results[0]
	assert.Nil(t, compositeValue(t, res, scoring.TotalScore))
	for _, c := range s.components["E1"] {
		if c.Name == scoring.ComponentBio {
			assert.Nil(t, c.Value)
		}
	}
}

func TestPanicIsolatedToEntity(t *testing.T) {
	s := seededStore()
	r := newRunner(t, s, panicSource{store: s, id: "E1"}, nil, Config{Workers: 2})

	rep, err := r.Run(context.Background(), s.entities[:2])
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scored)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "E1", rep.Errors[0].EntityID)
	assert.Contains(t, rep.Errors[0].Error, "malformed upstream payload")
	assert.Contains(t, s.estimates, "E2")
}

func TestSaveFailureFailsOnlyThatEntity(t *testing.T) {
	s := seededStore()
	s.saveErr["E2"] = errors.New("deadlock detected")
	h := &fakeHermes{}
	r := newRunner(t, s, nil, h, Config{Workers: 2})

	rep, err := r.Run(context.Background(), s.entities[:2])
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scored)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "E2", rep.Errors[0].EntityID)
	assert.NotContains(t, s.composites, "E2")
	assert.NotContains(t, s.estimates, "E2")
	assert.NotContains(t, h.subjects, "assay.approval.E2.estimated")
}

func TestRunIDsReportsUnknownEntities(t *testing.T) {
	s := seededStore()
	r := newRunner(t, s, nil, nil, Config{Workers: 1})

	rep, err := r.RunIDs(context.Background(), []string{"E2", "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scored)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, "NOPE", rep.Errors[0].EntityID)
}

func TestConcurrentRunRejected(t *testing.T) {
	s := seededStore()
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	r := newRunner(t, s, src, nil, Config{Workers: 1})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), s.entities[:1])
		done <- err
	}()
	<-src.entered

	_, err := r.Run(context.Background(), s.entities[:1])
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(src.release)
	require.NoError(t, <-done)
}

func TestRunCancelled(t *testing.T) {
	s := seededStore()
	r := newRunner(t, s, nil, nil, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, s.entities)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.runs)
}

func TestStartStopPeriodic(t *testing.T) {
	s := seededStore()
	r := newRunner(t, s, nil, nil, Config{Workers: 2, Interval: 10 * time.Millisecond})

	r.Start(context.Background())
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.runs) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()

	s.mu.Lock()
	calls := s.listCalls
	s.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, calls, s.listCalls)
}

func TestStartWithoutIntervalIsNoop(t *testing.T) {
	s := seededStore()
	r := newRunner(t, s, nil, nil, Config{Workers: 1})
	r.Start(context.Background())
	r.Stop()
	assert.Zero(t, s.listCalls)
}
