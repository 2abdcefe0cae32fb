package ledger

// schemaVersionV1 is the initial ledger schema.
const schemaVersionV1 = 1

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV1

// schemaV1 is the ledger DDL. One table, insert-only; the events table has
// no UPDATE or DELETE path anywhere in this package.
var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS events (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id TEXT NOT NULL,
	episode_id   TEXT,
	event_type   TEXT NOT NULL,
	prev_status  TEXT,
	new_status   TEXT NOT NULL,
	reason       TEXT,
	actor        TEXT,
	payload_ref  TEXT,
	note         TEXT,
	at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_candidate ON events(candidate_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`
