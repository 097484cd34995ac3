// Package delayedqueue implements the Delayed Signal Queue (spec.md §4.G):
// signals scheduled to fire at a future instant, keyed for cancellation by
// (fromClass, fromId, class, id) so a machine can only ever have one
// outstanding delayed signal addressed to a given target from a given
// source. Grounded on the same internal/queue.SQLiteQueue durability model
// as signalqueue, generalized with the unique cancellation-key index from
// catalog's schema (delete-then-insert replaces any prior timer instead of
// stacking a second one).
package delayedqueue

import (
	"context"
	"time"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/txn"
)

// Entry is one scheduled delayed signal.
type Entry struct {
	Seq        int64
	FromClass  string
	FromID     string
	Class      string
	ID         string
	EventClass string
	EventBytes []byte
	FireAt     time.Time
}

// Queue is the Delayed Signal Queue.
type Queue struct {
	sql catalog.Statements
}

// New returns a Queue using the given SQL catalog.
func New(stmts catalog.Statements) *Queue {
	return &Queue{sql: stmts}
}

// Insert replaces any existing delayed signal sharing the cancellation key
// (fromClass, fromId, class, id) with a new one firing at fireAt, and
// returns its assigned sequence number.
func (q *Queue) Insert(
	ctx context.Context, tx txn.Tx,
	fromClass, fromID, class, id, eventClass string, eventBytes []byte,
	fireAt time.Time,
) (int64, error) {
	if err := tx.ExecContext(ctx, q.sql.DeleteDelayedByKey, fromClass, fromID, class, id); err != nil {
		return 0, &fsmerr.StorageError{Op: "cancel prior delayed signal", Err: err}
	}
	seq, err := tx.ExecReturningSeq(ctx, q.sql.InsertDelayed, q.sql.ReturningSeq,
		fromClass, fromID, class, id, eventClass, eventBytes, fireAt)
	if err != nil {
		return 0, &fsmerr.StorageError{Op: "insert delayed signal", Err: err}
	}
	return seq, nil
}

// CancelByKey removes any delayed signal sharing the cancellation key
// (fromClass, fromId, class, id), used when a machine explicitly cancels a
// timer it previously scheduled rather than replacing it.
func (q *Queue) CancelByKey(ctx context.Context, tx txn.Tx, fromClass, fromID, class, id string) error {
	if err := tx.ExecContext(ctx, q.sql.DeleteDelayedByKey, fromClass, fromID, class, id); err != nil {
		return &fsmerr.StorageError{Op: "cancel delayed signal", Err: err}
	}
	return nil
}

// Exists reports whether seq is still pending.
func (q *Queue) Exists(ctx context.Context, query txn.Queryer, seq int64) (bool, error) {
	var one int
	err := query.QueryRowContext(ctx, q.sql.SelectDelayedBySeq, seq).Scan(&one)
	if err != nil {
		if txn.IsNoRows(err) {
			return false, nil
		}
		return false, &fsmerr.StorageError{Op: "check delayed signal exists", Err: err}
	}
	return true, nil
}

// Delete removes seq from the queue once it has fired.
func (q *Queue) Delete(ctx context.Context, tx txn.Tx, seq int64) error {
	if err := tx.ExecContext(ctx, q.sql.DeleteDelayed, seq); err != nil {
		return &fsmerr.StorageError{Op: "delete delayed signal", Err: err}
	}
	return nil
}

// SelectAll returns every scheduled delayed signal in ascending seq order,
// used by Runtime.Initialize to rebuild the Drain Scheduler's timer set.
func (q *Queue) SelectAll(ctx context.Context, query txn.Queryer) ([]Entry, error) {
	rows, err := query.QueryContext(ctx, q.sql.SelectAllDelayed)
	if err != nil {
		return nil, &fsmerr.StorageError{Op: "select all delayed signals", Err: err}
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.FromClass, &e.FromID, &e.Class, &e.ID, &e.EventClass, &e.EventBytes, &e.FireAt); err != nil {
			return nil, &fsmerr.StorageError{Op: "scan delayed signal row", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
