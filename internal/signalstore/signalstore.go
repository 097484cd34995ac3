// Package signalstore implements the optional Signal Store (spec.md §4.E):
// an append-only record of every signal ever applied, written in the same
// transaction as the apply cycle that processed it. Grounded on
// internal/audit.Logger's Open/Append shape, generalized from a
// hash-chained local file to a plain append table written through the
// apply cycle's txn.Tx — the runtime's durability already comes from the
// relational transaction, so the hash chain (which existed to detect
// tampering with a file outside that transaction) has no role here.
package signalstore

import (
	"context"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/txn"
)

// Store is the Signal Store. A nil *Store is valid and Append on it is a
// no-op. Runtime always constructs a real one; whether it is written to is
// decided by apply.Engine.StoreSignals (set from WithStoreSignals).
type Store struct {
	sql catalog.Statements
}

// New returns a Store using the given SQL catalog.
func New(stmts catalog.Statements) *Store {
	return &Store{sql: stmts}
}

// Append records that event was delivered to (class, id). The Apply Engine
// calls it once per event applied in a cycle (the input event and each
// cascaded self-signal), inside the same transaction that applied it.
func (s *Store) Append(ctx context.Context, tx txn.Tx, class, id, eventClass string, eventBytes []byte) error {
	if s == nil {
		return nil
	}
	if err := tx.ExecContext(ctx, s.sql.AppendSignalStore, class, id, eventClass, eventBytes); err != nil {
		return &fsmerr.StorageError{Op: "append signal store", Err: err}
	}
	return nil
}
