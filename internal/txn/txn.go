// Package txn abstracts the single connection the Apply Engine acquires for
// one transactional cycle (spec.md §4.I), and the single connection the
// Query API acquires per read (spec.md §4.K / §5: "the connection factory
// produces a fresh connection per apply cycle and per read query"). Two
// concrete backends are provided: sqlitetx (the embedded-engine default,
// database/sql + modernc.org/sqlite) and pgxtx (pgx/pgxpool, exercised by
// the integration test suite).
package txn

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Row is satisfied by both a single-row and multi-row SQL result.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row SQL result, closed by the caller when done.
type Rows interface {
	Row
	Next() bool
	Close() error
	Err() error
}

// Queryer is the read-only surface used by the Query API: a fresh,
// non-transactional connection good for one or more reads.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
}

// Tx is a single connection scoped to one Apply Engine cycle, with
// autocommit off: either Commit succeeds and every write on it becomes
// visible, or Rollback (or an unreleased connection) discards all of them.
type Tx interface {
	Queryer

	// ExecContext executes a statement with no result rows expected.
	ExecContext(ctx context.Context, query string, args ...any) error

	// ExecReturningSeq executes an INSERT into an auto-increment column and
	// returns the assigned sequence number. When returningSeq is true the
	// statement is expected to end in a Postgres-style RETURNING clause and
	// is executed via QueryRow; otherwise the driver's LastInsertId is used
	// (the SQLite-catalog case).
	ExecReturningSeq(ctx context.Context, query string, returningSeq bool, args ...any) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens a fresh Tx for one apply cycle. Implementations must hand
// back a connection that has not been shared with any other goroutine.
type Factory func(ctx context.Context) (Tx, error)

// QueryFactory opens a fresh Queryer (and a release func) for one read.
type QueryFactory func(ctx context.Context) (Queryer, func(), error)

// IsNoRows recognizes the "no matching row" sentinel from either backend a
// Queryer or Tx may be implemented by.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
