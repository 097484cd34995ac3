// Package catalog provides the named, parameterized SQL statements that
// back the persistence schema (spec.md §4.C, §6). Statement names and their
// parameter shapes are the contract the rest of the runtime depends on; the
// SQL text itself is swappable, as demonstrated by the two built-in
// catalogs below and by any caller-supplied Statements value.
package catalog

// Statements is a container of named, parameterized query strings covering
// schema bootstrap and every operation the Entity Store, Signal Store,
// Signal Queue, and Delayed Signal Queue perform. Placeholder style
// ("?" vs "$1") and upsert dialect are a property of the catalog, not of
// the callers — every field here is meant to be used directly regardless
// of which built-in (or caller-supplied) catalog produced it.
type Statements struct {
	// Schema is a ";"-delimited sequence of DDL statements applied by
	// Runtime.Create / Runtime.CreateSchema.
	Schema string

	// Entity Store.
	ReadEntity           string // (cls, id) -> (bytes, state)
	UpsertEntity         string // (cls, id, bytes, state)
	DeleteProperties     string // (cls, id)
	InsertProperty       string // (cls, id, name, value)
	SelectByProperty     string // (cls, name, value) -> (id, bytes, state) rows
	SelectByPropertyRange string // (propName, propValue, rangeName, cls, start, end, lastID, limit) -> (id, bytes, state, rangeValue) rows
	ListAll              string // (cls) -> (id, bytes, state) rows

	// Signal Queue.
	InsertSignal     string // (cls, id, event_cls, event_bytes) -> seq
	SelectSignalBySeq string // (seq) -> exists
	DeleteSignal      string // (seq)
	SelectAllSignals  string // -> (seq, cls, id, event_cls, event_bytes) rows, ascending

	// Delayed Signal Queue.
	DeleteDelayedByKey string // (from_cls, from_id, cls, id)
	InsertDelayed      string // (from_cls, from_id, cls, id, event_cls, event_bytes, fire_at) -> seq
	SelectDelayedBySeq string // (seq) -> exists
	DeleteDelayed      string // (seq)
	SelectAllDelayed   string // -> (seq, from_cls, from_id, cls, id, event_cls, event_bytes, fire_at) rows

	// Signal Store (optional audit log).
	AppendSignalStore string // (cls, id, event_cls, event_bytes)

	// ReturningSeq reports whether Insert* statements return the assigned
	// seq via RETURNING (Postgres) rather than via driver LastInsertId
	// (SQLite), so callers know how to recover it.
	ReturningSeq bool
}

// defaultSchema targets the embedded SQL engine (modernc.org/sqlite), using
// its AUTOINCREMENT keyword for the three append-only sequence columns.
const defaultSchema = `
CREATE TABLE IF NOT EXISTS entity (
    cls   TEXT NOT NULL,
    id    TEXT NOT NULL,
    bytes BLOB NOT NULL,
    state TEXT NOT NULL,
    PRIMARY KEY (cls, id)
);
CREATE TABLE IF NOT EXISTS entity_property (
    cls   TEXT NOT NULL,
    id    TEXT NOT NULL,
    name  TEXT NOT NULL,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entity_property_lookup ON entity_property (cls, name, value);
CREATE INDEX IF NOT EXISTS idx_entity_property_by_entity ON entity_property (cls, id);
CREATE TABLE IF NOT EXISTS signal_queue (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    cls         TEXT NOT NULL,
    id          TEXT NOT NULL,
    event_cls   TEXT NOT NULL,
    event_bytes BLOB NOT NULL,
    ts          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS delayed_signal_queue (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    from_cls    TEXT NOT NULL,
    from_id     TEXT NOT NULL,
    cls         TEXT NOT NULL,
    id          TEXT NOT NULL,
    event_cls   TEXT NOT NULL,
    event_bytes BLOB NOT NULL,
    times       TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_delayed_cancellation_key
    ON delayed_signal_queue (from_cls, from_id, cls, id);
CREATE TABLE IF NOT EXISTS signal_store (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    cls         TEXT NOT NULL,
    id          TEXT NOT NULL,
    event_cls   TEXT NOT NULL,
    event_bytes BLOB NOT NULL,
    ts          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// postgresSchema is the same shape as defaultSchema, expressed with
// Postgres's BIGSERIAL instead of SQLite's AUTOINCREMENT and native TIMESTAMPTZ.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS entity (
    cls   TEXT NOT NULL,
    id    TEXT NOT NULL,
    bytes BYTEA NOT NULL,
    state TEXT NOT NULL,
    PRIMARY KEY (cls, id)
);
CREATE TABLE IF NOT EXISTS entity_property (
    cls   TEXT NOT NULL,
    id    TEXT NOT NULL,
    name  TEXT NOT NULL,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entity_property_lookup ON entity_property (cls, name, value);
CREATE INDEX IF NOT EXISTS idx_entity_property_by_entity ON entity_property (cls, id);
CREATE TABLE IF NOT EXISTS signal_queue (
    seq         BIGSERIAL PRIMARY KEY,
    cls         TEXT NOT NULL,
    id          TEXT NOT NULL,
    event_cls   TEXT NOT NULL,
    event_bytes BYTEA NOT NULL,
    ts          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS delayed_signal_queue (
    seq         BIGSERIAL PRIMARY KEY,
    from_cls    TEXT NOT NULL,
    from_id     TEXT NOT NULL,
    cls         TEXT NOT NULL,
    id          TEXT NOT NULL,
    event_cls   TEXT NOT NULL,
    event_bytes BYTEA NOT NULL,
    times       TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_delayed_cancellation_key
    ON delayed_signal_queue (from_cls, from_id, cls, id);
CREATE TABLE IF NOT EXISTS signal_store (
    seq         BIGSERIAL PRIMARY KEY,
    cls         TEXT NOT NULL,
    id          TEXT NOT NULL,
    event_cls   TEXT NOT NULL,
    event_bytes BYTEA NOT NULL,
    ts          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Default returns the catalog targeting the embedded SQL engine
// (modernc.org/sqlite), the runtime's default connection factory target.
// It mirrors the teacher's own choice of modernc.org/sqlite for its local
// queue, also used directly by two further pack repos.
func Default() Statements {
	return Statements{
		Schema: defaultSchema,

		ReadEntity: `SELECT bytes, state FROM entity WHERE cls = ? AND id = ?`,
		UpsertEntity: `INSERT INTO entity (cls, id, bytes, state) VALUES (?, ?, ?, ?)
			ON CONFLICT(cls, id) DO UPDATE SET bytes = excluded.bytes, state = excluded.state`,
		DeleteProperties: `DELETE FROM entity_property WHERE cls = ? AND id = ?`,
		InsertProperty:   `INSERT INTO entity_property (cls, id, name, value) VALUES (?, ?, ?, ?)`,
		SelectByProperty: `SELECT e.id, e.bytes, e.state FROM entity e
			JOIN entity_property p ON p.cls = e.cls AND p.id = e.id
			WHERE e.cls = ? AND p.name = ? AND p.value = ?`,
		SelectByPropertyRange: `SELECT e.id, e.bytes, e.state, r.value FROM entity e
			JOIN entity_property p ON p.cls = e.cls AND p.id = e.id AND p.name = ? AND p.value = ?
			JOIN entity_property r ON r.cls = e.cls AND r.id = e.id AND r.name = ?
			WHERE e.cls = ? AND CAST(r.value AS REAL) >= ? AND CAST(r.value AS REAL) <= ? AND e.id > ?
			ORDER BY CAST(r.value AS REAL), e.id
			LIMIT ?`,
		ListAll: `SELECT id, bytes, state FROM entity WHERE cls = ?`,

		InsertSignal:      `INSERT INTO signal_queue (cls, id, event_cls, event_bytes) VALUES (?, ?, ?, ?)`,
		SelectSignalBySeq: `SELECT 1 FROM signal_queue WHERE seq = ?`,
		DeleteSignal:      `DELETE FROM signal_queue WHERE seq = ?`,
		SelectAllSignals:  `SELECT seq, cls, id, event_cls, event_bytes FROM signal_queue ORDER BY seq`,

		DeleteDelayedByKey: `DELETE FROM delayed_signal_queue WHERE from_cls = ? AND from_id = ? AND cls = ? AND id = ?`,
		InsertDelayed: `INSERT INTO delayed_signal_queue (from_cls, from_id, cls, id, event_cls, event_bytes, times)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		SelectDelayedBySeq: `SELECT 1 FROM delayed_signal_queue WHERE seq = ?`,
		DeleteDelayed:      `DELETE FROM delayed_signal_queue WHERE seq = ?`,
		SelectAllDelayed:   `SELECT seq, from_cls, from_id, cls, id, event_cls, event_bytes, times FROM delayed_signal_queue ORDER BY seq`,

		AppendSignalStore: `INSERT INTO signal_store (cls, id, event_cls, event_bytes) VALUES (?, ?, ?, ?)`,
		ReturningSeq:       false,
	}
}

// Postgres returns the catalog targeting PostgreSQL, exercised by the
// integration test suite via pgx/pgxpool. $n placeholders, Postgres upsert
// syntax, and RETURNING-based sequence recovery are the departures from
// Default.
func Postgres() Statements {
	return Statements{
		Schema: postgresSchema,

		ReadEntity: `SELECT bytes, state FROM entity WHERE cls = $1 AND id = $2`,
		UpsertEntity: `INSERT INTO entity (cls, id, bytes, state) VALUES ($1, $2, $3, $4)
			ON CONFLICT (cls, id) DO UPDATE SET bytes = EXCLUDED.bytes, state = EXCLUDED.state`,
		DeleteProperties: `DELETE FROM entity_property WHERE cls = $1 AND id = $2`,
		InsertProperty:   `INSERT INTO entity_property (cls, id, name, value) VALUES ($1, $2, $3, $4)`,
		SelectByProperty: `SELECT e.id, e.bytes, e.state FROM entity e
			JOIN entity_property p ON p.cls = e.cls AND p.id = e.id
			WHERE e.cls = $1 AND p.name = $2 AND p.value = $3`,
		SelectByPropertyRange: `SELECT e.id, e.bytes, e.state, r.value FROM entity e
			JOIN entity_property p ON p.cls = e.cls AND p.id = e.id AND p.name = $1 AND p.value = $2
			JOIN entity_property r ON r.cls = e.cls AND r.id = e.id AND r.name = $3
			WHERE e.cls = $4 AND r.value::double precision >= $5 AND r.value::double precision <= $6 AND e.id > $7
			ORDER BY r.value::double precision, e.id
			LIMIT $8`,
		ListAll: `SELECT id, bytes, state FROM entity WHERE cls = $1`,

		InsertSignal:      `INSERT INTO signal_queue (cls, id, event_cls, event_bytes) VALUES ($1, $2, $3, $4) RETURNING seq`,
		SelectSignalBySeq: `SELECT 1 FROM signal_queue WHERE seq = $1`,
		DeleteSignal:      `DELETE FROM signal_queue WHERE seq = $1`,
		SelectAllSignals:  `SELECT seq, cls, id, event_cls, event_bytes FROM signal_queue ORDER BY seq`,

		DeleteDelayedByKey: `DELETE FROM delayed_signal_queue WHERE from_cls = $1 AND from_id = $2 AND cls = $3 AND id = $4`,
		InsertDelayed: `INSERT INTO delayed_signal_queue (from_cls, from_id, cls, id, event_cls, event_bytes, times)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`,
		SelectDelayedBySeq: `SELECT 1 FROM delayed_signal_queue WHERE seq = $1`,
		DeleteDelayed:      `DELETE FROM delayed_signal_queue WHERE seq = $1`,
		SelectAllDelayed:   `SELECT seq, from_cls, from_id, cls, id, event_cls, event_bytes, times FROM delayed_signal_queue ORDER BY seq`,

		AppendSignalStore: `INSERT INTO signal_store (cls, id, event_cls, event_bytes) VALUES ($1, $2, $3, $4)`,
		ReturningSeq:       true,
	}
}
