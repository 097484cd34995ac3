package txn

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxFactory returns a txn.Factory that opens one pgx.Tx per apply cycle
// against pool, the Postgres-catalog analog of SQLiteFactory. Grounded on
// storage.Store's use of pgxpool.Pool, generalized from a shared pool
// performing ad-hoc Exec/Query calls to pool.Begin-scoped transactions.
func PgxFactory(pool *pgxpool.Pool) Factory {
	return func(ctx context.Context) (Tx, error) {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("txn: pgx begin: %w", err)
		}
		return &pgxTx{tx: tx}, nil
	}
}

// PgxQueryFactory returns a txn.QueryFactory backed by pool directly; no
// per-call acquisition is needed since pgxpool already pools connections.
func PgxQueryFactory(pool *pgxpool.Pool) QueryFactory {
	return func(ctx context.Context) (Queryer, func(), error) {
		return &pgxQueryer{pool: pool}, func() {}, nil
	}
}

type pgxQueryer struct{ pool *pgxpool.Pool }

func (q *pgxQueryer) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (q *pgxQueryer) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return q.pool.QueryRow(ctx, query, args...)
}

type pgxTx struct{ tx pgx.Tx }

func (t *pgxTx) ExecContext(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t *pgxTx) ExecReturningSeq(ctx context.Context, query string, returningSeq bool, args ...any) (int64, error) {
	// Postgres catalog statements always carry RETURNING seq; returningSeq
	// is honored for parity with the SQLite backend but pgx has no
	// LastInsertId equivalent, so a non-RETURNING statement is an error.
	if !returningSeq {
		return 0, fmt.Errorf("txn: pgx backend requires a RETURNING seq statement")
	}
	var seq int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (t *pgxTx) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (t *pgxTx) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return t.tx.QueryRow(ctx, query, args...)
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgxRows adapts pgx.Rows to Rows.
type pgxRows struct{ pgx.Rows }

func (r pgxRows) Close() error {
	r.Rows.Close()
	return nil
}
