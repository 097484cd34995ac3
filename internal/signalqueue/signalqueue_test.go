package signalqueue_test

import (
	"context"
	"strings"
	"testing"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/signalqueue"
	"github.com/signalforge/fsmrt/internal/txn"
)

func newQueue(t *testing.T) (*signalqueue.Queue, txn.Factory) {
	t.Helper()
	db, err := txn.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sql := catalog.Default()
	for _, stmt := range strings.Split(sql.Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("bootstrap schema: %v", err)
		}
	}

	return signalqueue.New(sql), txn.SQLiteFactory(db)
}

func TestQueue_EnqueueAssignsIncreasingSeq(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)

	tx, _ := conn(ctx)
	first, err := q.Enqueue(ctx, tx, "Basket", "b1", "Create", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := q.Enqueue(ctx, tx, "Basket", "b1", "Checkout", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	tx.Commit(ctx)

	if second <= first {
		t.Fatalf("expected increasing seq, got first=%d second=%d", first, second)
	}
}

func TestQueue_ExistsReflectsDeletion(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)

	tx, _ := conn(ctx)
	seq, err := q.Enqueue(ctx, tx, "Basket", "b1", "Create", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	tx.Commit(ctx)

	tx2, _ := conn(ctx)
	ok, err := q.Exists(ctx, tx2, seq)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatal("expected signal to exist before deletion")
	}
	if err := q.Delete(ctx, tx2, seq); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tx2.Commit(ctx)

	tx3, _ := conn(ctx)
	defer tx3.Rollback(ctx)
	ok, err = q.Exists(ctx, tx3, seq)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("expected signal to be gone after deletion")
	}
}

func TestQueue_ExistsFalseForUnknownSeq(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)

	tx, _ := conn(ctx)
	defer tx.Rollback(ctx)
	ok, err := q.Exists(ctx, tx, 99999)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("expected false for an unknown seq")
	}
}

func TestQueue_SelectAllReturnsAscendingOrder(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)

	tx, _ := conn(ctx)
	q.Enqueue(ctx, tx, "Basket", "b1", "Create", nil)
	q.Enqueue(ctx, tx, "Basket", "b2", "Create", nil)
	q.Enqueue(ctx, tx, "Basket", "b1", "Checkout", []byte(`{}`))
	tx.Commit(ctx)

	tx2, _ := conn(ctx)
	defer tx2.Rollback(ctx)
	entries, err := q.SelectAll(ctx, tx2)
	if err != nil {
		t.Fatalf("select all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("expected ascending seq order, got %+v", entries)
		}
	}
	if entries[2].EventClass != "Checkout" || entries[2].ID != "b1" {
		t.Fatalf("unexpected last entry: %+v", entries[2])
	}
}
