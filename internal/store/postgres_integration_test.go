//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/store/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/store"
	"github.com/signalforge/fsmrt/internal/txn"
)

// setupPostgres starts a PostgreSQL container, applies the Postgres catalog's
// schema, and returns a Store plus a txn.Factory/cleanup pair.
func setupPostgres(t *testing.T) (*store.Store, txn.Factory, func()) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("fsmrt_test"),
		tcpostgres.WithUsername("fsmrt"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("connect: %v", err)
	}

	sql := catalog.Postgres()
	for _, stmt := range strings.Split(sql.Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			_ = pgContainer.Terminate(ctx)
			t.Fatalf("bootstrap schema: %v", err)
		}
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return store.New(sql), txn.PgxFactory(pool), cleanup
}

func TestStore_Postgres_SaveAndReadEntityRoundTrips(t *testing.T) {
	ctx := context.Background()
	s, conn, cleanup := setupPostgres(t)
	defer cleanup()

	tx, err := conn(ctx)
	if err != nil {
		t.Fatalf("open tx: %v", err)
	}
	if err := s.SaveEntity(ctx, tx, "Basket", "b1", []byte(`{"items":[]}`), "Empty"); err != nil {
		t.Fatalf("save entity: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2, err := conn(ctx)
	if err != nil {
		t.Fatalf("open tx: %v", err)
	}
	defer tx2.Rollback(ctx)
	got, err := s.ReadEntity(ctx, tx2, "Basket", "b1")
	if err != nil {
		t.Fatalf("read entity: %v", err)
	}
	if got.State != "Empty" || string(got.Bytes) != `{"items":[]}` {
		t.Fatalf("unexpected entity: %+v", got)
	}
}

func TestStore_Postgres_GetByPropertyWithRangeOrdersByNumericValue(t *testing.T) {
	ctx := context.Background()
	s, conn, cleanup := setupPostgres(t)
	defer cleanup()

	tx, err := conn(ctx)
	if err != nil {
		t.Fatalf("open tx: %v", err)
	}
	for id, score := range map[string]string{"low": "1", "mid": "5", "high": "9"} {
		if err := s.SaveEntity(ctx, tx, "Basket", id, []byte(`{}`), "Open"); err != nil {
			t.Fatalf("save entity: %v", err)
		}
		if err := s.SaveProperties(ctx, tx, "Basket", id, map[string]string{"kind": "cart", "score": score}); err != nil {
			t.Fatalf("save properties: %v", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2, err := conn(ctx)
	if err != nil {
		t.Fatalf("open tx: %v", err)
	}
	defer tx2.Rollback(ctx)
	rows, err := s.GetByPropertyWithRange(ctx, tx2, "Basket", "kind", "cart", "score", 0, 10, "", 10)
	if err != nil {
		t.Fatalf("get by property with range: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].ID != "low" || rows[1].ID != "mid" || rows[2].ID != "high" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}
