package store

const postgresMigration = `
CREATE TABLE IF NOT EXISTS suggestions (
	id                  TEXT PRIMARY KEY,
	type                TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	priority            TEXT NOT NULL DEFAULT 'normal',
	confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_type         TEXT NOT NULL,
	source_id           TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	payload             JSONB NOT NULL DEFAULT '{}'::jsonb,
	target_table        TEXT NOT NULL DEFAULT '',
	target_id           TEXT,
	dedup_target        TEXT NOT NULL DEFAULT '',
	related_entity_code TEXT NOT NULL DEFAULT '',
	pattern_type        TEXT NOT NULL DEFAULT '',
	pattern_key         TEXT NOT NULL DEFAULT '',
	pattern_id          TEXT,
	signal_count        INTEGER NOT NULL DEFAULT 1,
	reviewed_by         TEXT,
	reviewed_at         TIMESTAMPTZ,
	review_notes        TEXT,
	last_error          TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at          TIMESTAMPTZ,
	CONSTRAINT suggestions_status_check CHECK (status IN ('pending', 'approved', 'rejected', 'applied', 'apply_failed', 'rollback_failed', 'rolled_back')),
	CONSTRAINT suggestions_confidence_check CHECK (confidence_score >= 0 AND confidence_score <= 1),
	CONSTRAINT suggestions_applied_target_check CHECK (status NOT IN ('applied', 'rolled_back', 'rollback_failed') OR target_id IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_suggestions_dedup ON suggestions(type, source_type, source_id, target_table, dedup_target);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
CREATE INDEX IF NOT EXISTS idx_suggestions_type ON suggestions(type);
CREATE INDEX IF NOT EXISTS idx_suggestions_entity ON suggestions(related_entity_code);
CREATE INDEX IF NOT EXISTS idx_suggestions_expires ON suggestions(expires_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS patterns (
	id             TEXT PRIMARY KEY,
	pattern_type   TEXT NOT NULL,
	pattern_key    TEXT NOT NULL,
	target_type    TEXT NOT NULL DEFAULT '',
	target_code    TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	times_used     INTEGER NOT NULL DEFAULT 0,
	times_correct  INTEGER NOT NULL DEFAULT 0,
	times_rejected INTEGER NOT NULL DEFAULT 0,
	is_active      BOOLEAN NOT NULL DEFAULT false,
	notes          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT patterns_confidence_check CHECK (confidence >= 0 AND confidence <= 1)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_patterns_shape ON patterns(pattern_type, pattern_key, target_type, target_code);
CREATE INDEX IF NOT EXISTS idx_patterns_lookup ON patterns(pattern_type, pattern_key) WHERE is_active;

CREATE TABLE IF NOT EXISTS change_records (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT NOT NULL REFERENCES suggestions(id),
	action        TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	field_name    TEXT NOT NULL,
	old_value     JSONB,
	new_value     JSONB,
	applied_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	reversed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_change_records_suggestion ON change_records(suggestion_id);
CREATE INDEX IF NOT EXISTS idx_change_records_record ON change_records(table_name, record_id);

CREATE TABLE IF NOT EXISTS signal_receipts (
	source_type   TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	signal_type   TEXT NOT NULL,
	signal_key    TEXT NOT NULL DEFAULT '',
	suggestion_id TEXT REFERENCES suggestions(id),
	received_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_type, source_id, signal_type, signal_key)
);
`

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS suggestions (
	id                  TEXT PRIMARY KEY,
	type                TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'approved', 'rejected', 'applied', 'apply_failed', 'rollback_failed', 'rolled_back')),
	priority            TEXT NOT NULL DEFAULT 'normal',
	confidence_score    REAL NOT NULL DEFAULT 0 CHECK (confidence_score >= 0 AND confidence_score <= 1),
	source_type         TEXT NOT NULL,
	source_id           TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	payload             TEXT NOT NULL DEFAULT '{}',
	target_table        TEXT NOT NULL DEFAULT '',
	target_id           TEXT,
	dedup_target        TEXT NOT NULL DEFAULT '',
	related_entity_code TEXT NOT NULL DEFAULT '',
	pattern_type        TEXT NOT NULL DEFAULT '',
	pattern_key         TEXT NOT NULL DEFAULT '',
	pattern_id          TEXT,
	signal_count        INTEGER NOT NULL DEFAULT 1,
	reviewed_by         TEXT,
	reviewed_at         DATETIME,
	review_notes        TEXT,
	last_error          TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at          DATETIME,
	CHECK (status NOT IN ('applied', 'rolled_back', 'rollback_failed') OR target_id IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_suggestions_dedup ON suggestions(type, source_type, source_id, target_table, dedup_target);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
CREATE INDEX IF NOT EXISTS idx_suggestions_type ON suggestions(type);
CREATE INDEX IF NOT EXISTS idx_suggestions_entity ON suggestions(related_entity_code);

CREATE TABLE IF NOT EXISTS patterns (
	id             TEXT PRIMARY KEY,
	pattern_type   TEXT NOT NULL,
	pattern_key    TEXT NOT NULL,
	target_type    TEXT NOT NULL DEFAULT '',
	target_code    TEXT NOT NULL,
	confidence     REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
	times_used     INTEGER NOT NULL DEFAULT 0,
	times_correct  INTEGER NOT NULL DEFAULT 0,
	times_rejected INTEGER NOT NULL DEFAULT 0,
	is_active      INTEGER NOT NULL DEFAULT 0,
	notes          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_patterns_shape ON patterns(pattern_type, pattern_key, target_type, target_code);
CREATE INDEX IF NOT EXISTS idx_patterns_lookup ON patterns(pattern_type, pattern_key);

CREATE TABLE IF NOT EXISTS change_records (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT NOT NULL REFERENCES suggestions(id),
	action        TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	field_name    TEXT NOT NULL,
	old_value     TEXT,
	new_value     TEXT,
	applied_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	reversed_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_change_records_suggestion ON change_records(suggestion_id);
CREATE INDEX IF NOT EXISTS idx_change_records_record ON change_records(table_name, record_id);

CREATE TABLE IF NOT EXISTS signal_receipts (
	source_type   TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	signal_type   TEXT NOT NULL,
	signal_key    TEXT NOT NULL DEFAULT '',
	suggestion_id TEXT REFERENCES suggestions(id),
	received_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source_type, source_id, signal_type, signal_key)
);
`
