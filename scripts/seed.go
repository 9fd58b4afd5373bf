// seed.go loads a YAML fixture of entities, signals and trials into Postgres.
//
// Usage:
//
//	go run scripts/seed.go -db postgres://localhost/assay -file fixtures.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Assay/internal/store"
	"github.com/MikeSquared-Agency/Assay/internal/trial"
)

type fixture struct {
	Entities []fixtureEntity `yaml:"entities"`
}

type fixtureEntity struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind"`
	Indication string         `yaml:"indication"`
	Target     string         `yaml:"target"`
	IsApproved bool           `yaml:"is_approved"`
	Signals    map[string]any `yaml:"signals"`
	Trials     []fixtureTrial `yaml:"trials"`
}

type fixtureTrial struct {
	ID                string `yaml:"id"`
	Indication        string `yaml:"indication"`
	Phase             string `yaml:"phase"`
	Status            string `yaml:"status"`
	Randomized        bool   `yaml:"randomized"`
	Blinded           bool   `yaml:"blinded"`
	PlaceboControlled bool   `yaml:"placebo"`
	ActiveComparator  bool   `yaml:"active_comparator"`
	PrimaryEndpoint   string `yaml:"primary_endpoint"`
	Enrollment        int    `yaml:"enrollment"`
}

func main() {
	dbURL := flag.String("db", os.Getenv("ASSAY_DATABASE_URL"), "database URL")
	path := flag.String("file", "fixtures.yaml", "fixture file")
	dryRun := flag.Bool("dry-run", false, "print what would be loaded")
	flag.Parse()

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("read fixture: %v", err)
	}
	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		log.Fatalf("parse fixture: %v", err)
	}

	if *dryRun {
		for _, e := range fx.Entities {
			fmt.Printf("%s (%s) indication=%q signals=%d trials=%d\n", e.ID, e.Kind, e.Indication, len(e.Signals), len(e.Trials))
		}
		return
	}

	ctx := context.Background()
	db, err := store.NewPostgresStore(ctx, *dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var nSignals, nTrials int
	for _, e := range fx.Entities {
		kind := store.EntityKind(e.Kind)
		if kind == "" {
			kind = store.KindDrug
		}
		if err := db.UpsertEntity(ctx, store.Entity{
			ID: e.ID, Name: e.Name, Kind: kind,
			Indication: e.Indication, Target: e.Target, IsApproved: e.IsApproved,
		}); err != nil {
			log.Fatalf("entity %s: %v", e.ID, err)
		}
		if err := db.PutSignals(ctx, e.ID, e.Signals); err != nil {
			log.Fatalf("signals %s: %v", e.ID, err)
		}
		nSignals += len(e.Signals)
		for _, t := range e.Trials {
			ind := t.Indication
			if ind == "" {
				ind = e.Indication
			}
			if err := db.UpsertTrial(ctx, trial.Trial{
				ID: t.ID, EntityID: e.ID, Indication: ind,
				Phase: trial.ParsePhase(t.Phase), Status: trial.ParseStatus(t.Status),
				Randomized: t.Randomized, Blinded: t.Blinded,
				PlaceboControlled: t.PlaceboControlled, ActiveComparator: t.ActiveComparator,
				PrimaryEndpoint: t.PrimaryEndpoint, Enrollment: t.Enrollment,
			}); err != nil {
				log.Fatalf("trial %s: %v", t.ID, err)
			}
			nTrials++
		}
	}
	fmt.Printf("loaded %d entities, %d signals, %d trials\n", len(fx.Entities), nSignals, nTrials)
}
