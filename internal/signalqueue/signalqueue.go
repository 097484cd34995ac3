// Package signalqueue implements the Signal Queue (spec.md §4.F): the
// durable, transactionally-enqueued work list the Drain Scheduler consumes.
// Grounded on internal/queue.SQLiteQueue's Enqueue/Dequeue/Ack shape,
// generalized from a single local table behind its own *sql.DB to rows
// living in the shared catalog.Statements schema and written through the
// in-flight apply-cycle txn.Tx instead of a dedicated queue connection.
package signalqueue

import (
	"context"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/txn"
)

// Entry is one pending signal: a target entity plus the event addressed to
// it, still in serialized form.
type Entry struct {
	Seq        int64
	Class      string
	ID         string
	EventClass string
	EventBytes []byte
}

// Queue is the Signal Queue. Like Store it holds no connection of its own.
type Queue struct {
	sql catalog.Statements
}

// New returns a Queue using the given SQL catalog.
func New(stmts catalog.Statements) *Queue {
	return &Queue{sql: stmts}
}

// Enqueue inserts a pending signal for (class, id) and returns its assigned
// sequence number, used by the Drain Scheduler as the work-item handle.
func (q *Queue) Enqueue(ctx context.Context, tx txn.Tx, class, id, eventClass string, eventBytes []byte) (int64, error) {
	seq, err := tx.ExecReturningSeq(ctx, q.sql.InsertSignal, q.sql.ReturningSeq, class, id, eventClass, eventBytes)
	if err != nil {
		return 0, &fsmerr.StorageError{Op: "enqueue signal", Err: err}
	}
	return seq, nil
}

// Exists reports whether seq is still pending. The Apply Engine checks this
// at the start of every cycle, since a prior attempt (or a prior
// crash-recovery pass) may have already applied the signal.
func (q *Queue) Exists(ctx context.Context, query txn.Queryer, seq int64) (bool, error) {
	var one int
	err := query.QueryRowContext(ctx, q.sql.SelectSignalBySeq, seq).Scan(&one)
	if err != nil {
		if txn.IsNoRows(err) {
			return false, nil
		}
		return false, &fsmerr.StorageError{Op: "check signal exists", Err: err}
	}
	return true, nil
}

// Delete removes seq from the queue; called as part of the same apply-cycle
// transaction that processed it.
func (q *Queue) Delete(ctx context.Context, tx txn.Tx, seq int64) error {
	if err := tx.ExecContext(ctx, q.sql.DeleteSignal, seq); err != nil {
		return &fsmerr.StorageError{Op: "delete signal", Err: err}
	}
	return nil
}

// SelectAll returns every pending signal in ascending seq order, used by
// Runtime.Initialize to requeue work left behind by a prior process.
func (q *Queue) SelectAll(ctx context.Context, query txn.Queryer) ([]Entry, error) {
	rows, err := query.QueryContext(ctx, q.sql.SelectAllSignals)
	if err != nil {
		return nil, &fsmerr.StorageError{Op: "select all signals", Err: err}
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.Class, &e.ID, &e.EventClass, &e.EventBytes); err != nil {
			return nil, &fsmerr.StorageError{Op: "scan signal row", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
