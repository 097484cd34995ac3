package txn

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// OpenSQLite opens (or creates) the embedded-engine database at path in
// WAL mode, the same pragma sequence internal/queue.SQLiteQueue used for
// the teacher's local alert queue, generalized here to back the whole
// persistence schema rather than one table.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("txn: open sqlite %q: %w", path, err)
	}
	// SQLite allows only one writer at a time; a single pooled connection
	// serializes writers instead of surfacing "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("txn: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("txn: set synchronous=NORMAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("txn: set foreign_keys=ON: %w", err)
	}
	return db, nil
}

// SQLiteFactory returns a txn.Factory that opens one *sql.Tx per apply
// cycle against db.
func SQLiteFactory(db *sql.DB) Factory {
	return func(ctx context.Context) (Tx, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("txn: begin: %w", err)
		}
		return &sqliteTx{tx: tx}, nil
	}
}

// SQLiteQueryFactory returns a txn.QueryFactory that reuses db's pool for
// one-off reads; release is a no-op since database/sql manages pooling.
func SQLiteQueryFactory(db *sql.DB) QueryFactory {
	return func(ctx context.Context) (Queryer, func(), error) {
		return &sqliteQueryer{db: db}, func() {}, nil
	}
}

type sqliteQueryer struct{ db *sql.DB }

func (q *sqliteQueryer) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (q *sqliteQueryer) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return q.db.QueryRowContext(ctx, query, args...)
}

type sqliteTx struct{ tx *sql.Tx }

func (t *sqliteTx) ExecContext(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *sqliteTx) ExecReturningSeq(ctx context.Context, query string, returningSeq bool, args ...any) (int64, error) {
	if returningSeq {
		var seq int64
		if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
			return 0, err
		}
		return seq, nil
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqliteTx) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (t *sqliteTx) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqliteTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

// sqlRows adapts *sql.Rows to Rows (identical method set; this type exists
// so the package doesn't leak database/sql types through the Rows
// interface's zero value semantics).
type sqlRows struct{ *sql.Rows }
