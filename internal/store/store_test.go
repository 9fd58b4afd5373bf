package store

import (
	"strings"
	"testing"
)

var _ Store = (*PostgresStore)(nil)

func TestEntityKindValues(t *testing.T) {
	kinds := []EntityKind{KindDrug, KindTarget, KindAsset}
	expected := []string{"drug", "target", "asset"}
	for i, k := range kinds {
		if string(k) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], k)
		}
	}
}

func TestSchemaTables(t *testing.T) {
	for _, table := range []string{
		"entities", "entity_signals", "trials", "component_scores",
		"composite_scores", "approval_estimates", "score_runs",
	} {
		if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("schema missing table %s", table)
		}
	}
}

func TestSchemaUpsertKeys(t *testing.T) {
	keys := []string{
		"PRIMARY KEY (entity_id, component)",
		"PRIMARY KEY (entity_id, indication_id, score_type)",
		"PRIMARY KEY (entity_id, indication_id)",
	}
	for _, k := range keys {
		if !strings.Contains(Schema, k) {
			t.Errorf("schema missing key %q", k)
		}
	}
}
