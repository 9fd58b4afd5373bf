package precedent

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

// TrialSource returns the historical trials matched to an indication.
type TrialSource interface {
	GetTrialsForIndication(ctx context.Context, indication string) ([]trial.Trial, error)
}

// Cache is a read-only map of indication to precedent record. It is built
// once before scoring starts and never mutated.
type Cache struct {
	model   Model
	records map[string]Record
}

// NewCache builds a cache from already-computed records.
func NewCache(model Model, records ...Record) *Cache {
	c := &Cache{model: model, records: make(map[string]Record, len(records))}
	for _, r := range records {
		c.records[NormalizeIndication(r.Indication)] = r
	}
	return c
}

// BuildCache fetches trials for every indication and builds its record.
// A failed fetch is reported to onError and the indication falls back to
// the baseline.
func BuildCache(ctx context.Context, model Model, src TrialSource, indications []string, onError func(indication string, err error)) (*Cache, error) {
	c := &Cache{model: model, records: make(map[string]Record, len(indications))}
	for _, ind := range indications {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build precedent cache: %w", err)
		}
		key := NormalizeIndication(ind)
		if key == "" {
			continue
		}
		if _, ok := c.records[key]; ok {
			continue
		}
		trials, err := src.GetTrialsForIndication(ctx, ind)
		if err != nil {
			if onError != nil {
				onError(ind, err)
			}
			c.records[key] = model.BaselineRecord(ind)
			continue
		}
		c.records[key] = model.Build(ind, trials)
	}
	return c, nil
}

// Get returns the record for indication, or the baseline record when the
// indication is unknown.
func (c *Cache) Get(indication string) Record {
	if r, ok := c.records[NormalizeIndication(indication)]; ok {
		return r
	}
	return c.model.BaselineRecord(indication)
}

func (c *Cache) Len() int { return len(c.records) }
