// Package store implements the Entity Store (spec.md §4.D): reading and
// saving an entity's bytes+state, and rebuilding its property index rows on
// every save. Grounded on internal/server/storage.Store's CRUD methods
// (UpsertHost, GetHost, ListHosts), generalized from fixed tables to the
// generic entity / entity_property schema, and on Store.Flush's
// single-round-trip batching discipline for SaveProperties's
// delete-then-insert rebuild.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/txn"
)

// ErrNotFound is returned by ReadEntity when no row exists for (class, id).
var ErrNotFound = errors.New("store: entity not found")

// Entity is the raw, still-serialized form of an entity record.
type Entity struct {
	Bytes []byte
	State string
}

// Store is the Entity Store. It holds no connection state of its own —
// every operation is handed the txn.Tx for the in-flight apply cycle (or a
// txn.Queryer for a one-off read), matching spec.md §5's "fresh connection
// per apply cycle and per read query."
type Store struct {
	sql catalog.Statements
}

// New returns a Store using the given SQL catalog.
func New(stmts catalog.Statements) *Store {
	return &Store{sql: stmts}
}

// ReadEntity returns the entity row for (class, id), or ErrNotFound if none
// exists.
func (s *Store) ReadEntity(ctx context.Context, q txn.Queryer, class, id string) (Entity, error) {
	var e Entity
	err := q.QueryRowContext(ctx, s.sql.ReadEntity, class, id).Scan(&e.Bytes, &e.State)
	if err != nil {
		if txn.IsNoRows(err) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, &fsmerr.StorageError{Op: "read entity", Err: err}
	}
	return e, nil
}

// SaveEntity inserts or updates the entity row for (class, id). It is
// idempotent with respect to (class, id): calling it twice with the same
// arguments leaves the row unchanged on the second call.
func (s *Store) SaveEntity(ctx context.Context, tx txn.Tx, class, id string, bytes []byte, state string) error {
	if err := tx.ExecContext(ctx, s.sql.UpsertEntity, class, id, bytes, state); err != nil {
		return &fsmerr.StorageError{Op: "save entity", Err: err}
	}
	return nil
}

// SaveProperties rebuilds the property index rows for (class, id): every
// existing row is deleted, then one row is inserted per map entry. An empty
// map leaves the entity with no property rows, matching spec.md §3's
// invariant that property rows always exactly equal propertiesFactory(E).
func (s *Store) SaveProperties(ctx context.Context, tx txn.Tx, class, id string, props map[string]string) error {
	if err := tx.ExecContext(ctx, s.sql.DeleteProperties, class, id); err != nil {
		return &fsmerr.StorageError{Op: "delete properties", Err: err}
	}
	for name, value := range props {
		if err := tx.ExecContext(ctx, s.sql.InsertProperty, class, id, name, value); err != nil {
			return &fsmerr.StorageError{Op: "insert property", Err: err}
		}
	}
	return nil
}

// ListAll returns every (id, Entity) pair for class.
func (s *Store) ListAll(ctx context.Context, q txn.Queryer, class string) ([]IDEntity, error) {
	rows, err := q.QueryContext(ctx, s.sql.ListAll, class)
	if err != nil {
		return nil, &fsmerr.StorageError{Op: "list all", Err: err}
	}
	defer rows.Close()

	var out []IDEntity
	for rows.Next() {
		var ie IDEntity
		if err := rows.Scan(&ie.ID, &ie.Entity.Bytes, &ie.Entity.State); err != nil {
			return nil, &fsmerr.StorageError{Op: "scan entity row", Err: err}
		}
		out = append(out, ie)
	}
	if err := rows.Err(); err != nil {
		return nil, &fsmerr.StorageError{Op: "iterate entity rows", Err: err}
	}
	return out, nil
}

// IDEntity pairs an entity id with its raw Entity row.
type IDEntity struct {
	ID     string
	Entity Entity
}

// GetByProperty returns every entity of class with a property row
// (name, value).
func (s *Store) GetByProperty(ctx context.Context, q txn.Queryer, class, name, value string) ([]IDEntity, error) {
	rows, err := q.QueryContext(ctx, s.sql.SelectByProperty, class, name, value)
	if err != nil {
		return nil, &fsmerr.StorageError{Op: "select by property", Err: err}
	}
	defer rows.Close()

	var out []IDEntity
	for rows.Next() {
		var ie IDEntity
		if err := rows.Scan(&ie.ID, &ie.Entity.Bytes, &ie.Entity.State); err != nil {
			return nil, &fsmerr.StorageError{Op: "scan property row", Err: err}
		}
		out = append(out, ie)
	}
	return out, rows.Err()
}

// RangeRow is one row returned by SelectByPropertyRange: an entity plus the
// numeric value of the ranged property, used for deterministic ordering.
type RangeRow struct {
	ID         string
	Entity     Entity
	RangeValue float64
}

// GetByPropertyWithRange returns entities of class with property
// (name, value) whose second, numeric property (rangeName) falls within
// [start, end], ordered by that numeric value then id, paginated by
// (limit, lastID exclusive).
func (s *Store) GetByPropertyWithRange(
	ctx context.Context, q txn.Queryer,
	class, name, value, rangeName string,
	start, end float64,
	lastID string, limit int,
) ([]RangeRow, error) {
	rows, err := q.QueryContext(ctx, s.sql.SelectByPropertyRange,
		name, value, rangeName, class, start, end, lastID, limit)
	if err != nil {
		return nil, &fsmerr.StorageError{Op: "select by property range", Err: err}
	}
	defer rows.Close()

	var out []RangeRow
	for rows.Next() {
		var r RangeRow
		var rangeStr string
		if err := rows.Scan(&r.ID, &r.Entity.Bytes, &r.Entity.State, &rangeStr); err != nil {
			return nil, &fsmerr.StorageError{Op: "scan range row", Err: err}
		}
		if _, err := fmt.Sscanf(rangeStr, "%g", &r.RangeValue); err != nil {
			return nil, &fsmerr.StorageError{Op: "parse range value", Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
