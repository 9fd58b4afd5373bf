package store

// Schema is applied by Migrate. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_id   TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT 'drug',
	indication  TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL DEFAULT '',
	is_approved BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS entity_signals (
	entity_id TEXT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	value     JSONB,
	PRIMARY KEY (entity_id, name)
);

CREATE TABLE IF NOT EXISTS trials (
	trial_id              TEXT PRIMARY KEY,
	entity_id             TEXT NOT NULL DEFAULT '',
	indication            TEXT NOT NULL DEFAULT '',
	phase                 INTEGER NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT '',
	is_randomized         BOOLEAN NOT NULL DEFAULT FALSE,
	is_blinded            BOOLEAN NOT NULL DEFAULT FALSE,
	has_placebo           BOOLEAN NOT NULL DEFAULT FALSE,
	has_active_comparator BOOLEAN NOT NULL DEFAULT FALSE,
	primary_endpoint      TEXT NOT NULL DEFAULT '',
	enrollment            INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trials_entity_idx ON trials (entity_id);
CREATE INDEX IF NOT EXISTS trials_indication_idx ON trials (lower(indication));

CREATE TABLE IF NOT EXISTS component_scores (
	entity_id       TEXT NOT NULL,
	component       TEXT NOT NULL,
	run_id          UUID NOT NULL,
	value           DOUBLE PRECISION,
	default_applied BOOLEAN NOT NULL DEFAULT FALSE,
	source_signals  TEXT[] NOT NULL DEFAULT '{}',
	reason          TEXT NOT NULL DEFAULT '',
	computed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, component)
);

CREATE TABLE IF NOT EXISTS composite_scores (
	id            UUID NOT NULL UNIQUE,
	entity_id     TEXT NOT NULL,
	indication_id TEXT NOT NULL DEFAULT '',
	score_type    TEXT NOT NULL,
	run_id        UUID NOT NULL,
	value         DOUBLE PRECISION,
	detail        JSONB NOT NULL,
	computed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, indication_id, score_type)
);

CREATE TABLE IF NOT EXISTS approval_estimates (
	id                UUID NOT NULL UNIQUE,
	entity_id         TEXT NOT NULL,
	indication_id     TEXT NOT NULL DEFAULT '',
	run_id            UUID NOT NULL,
	final_probability DOUBLE PRECISION NOT NULL,
	confidence_tier   TEXT NOT NULL,
	detail            JSONB NOT NULL,
	computed_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, indication_id)
);

CREATE TABLE IF NOT EXISTS score_runs (
	run_id      UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	scored      INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
`
