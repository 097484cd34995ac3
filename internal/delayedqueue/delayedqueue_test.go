package delayedqueue_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/delayedqueue"
	"github.com/signalforge/fsmrt/internal/txn"
)

func newQueue(t *testing.T) (*delayedqueue.Queue, txn.Factory) {
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

	return delayedqueue.New(sql), txn.SQLiteFactory(db)
}

func TestQueue_InsertReplacesSameCancellationKey(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)
	fireAt := time.Unix(1000, 0).UTC()

	tx, _ := conn(ctx)
	first, err := q.Insert(ctx, tx, "Basket", "b1", "Basket", "b1", "Timeout", nil, fireAt)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	tx.Commit(ctx)

	tx2, _ := conn(ctx)
	second, err := q.Insert(ctx, tx2, "Basket", "b1", "Basket", "b1", "Timeout", nil, fireAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	tx2.Commit(ctx)

	if second == first {
		t.Fatalf("expected a new seq for the replacement, got the same %d", first)
	}

	tx3, _ := conn(ctx)
	defer tx3.Rollback(ctx)
	entries, err := q.SelectAll(ctx, tx3)
	if err != nil {
		t.Fatalf("select all: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 surviving delayed signal, got %d", len(entries))
	}
	if entries[0].Seq != second {
		t.Fatalf("expected the surviving row to be the replacement, got seq=%d", entries[0].Seq)
	}
}

func TestQueue_CancelByKeyRemovesEntry(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)
	fireAt := time.Unix(1000, 0).UTC()

	tx, _ := conn(ctx)
	seq, err := q.Insert(ctx, tx, "Basket", "b1", "Basket", "b1", "Timeout", nil, fireAt)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	tx.Commit(ctx)

	tx2, _ := conn(ctx)
	if err := q.CancelByKey(ctx, tx2, "Basket", "b1", "Basket", "b1"); err != nil {
		t.Fatalf("cancel by key: %v", err)
	}
	tx2.Commit(ctx)

	tx3, _ := conn(ctx)
	defer tx3.Rollback(ctx)
	ok, err := q.Exists(ctx, tx3, seq)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("expected delayed signal to be gone after cancellation")
	}
}

func TestQueue_DifferentTargetsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)
	fireAt := time.Unix(1000, 0).UTC()

	tx, _ := conn(ctx)
	q.Insert(ctx, tx, "Basket", "b1", "Basket", "b1", "Timeout", nil, fireAt)
	q.Insert(ctx, tx, "Basket", "b2", "Basket", "b2", "Timeout", nil, fireAt)
	tx.Commit(ctx)

	tx2, _ := conn(ctx)
	defer tx2.Rollback(ctx)
	entries, err := q.SelectAll(ctx, tx2)
	if err != nil {
		t.Fatalf("select all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 independent delayed signals, got %d", len(entries))
	}
}

func TestQueue_DeleteRemovesFiredEntry(t *testing.T) {
	ctx := context.Background()
	q, conn := newQueue(t)
	fireAt := time.Unix(1000, 0).UTC()

	tx, _ := conn(ctx)
	seq, err := q.Insert(ctx, tx, "Basket", "b1", "Basket", "b1", "Timeout", nil, fireAt)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	tx.Commit(ctx)

	tx2, _ := conn(ctx)
	if err := q.Delete(ctx, tx2, seq); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tx2.Commit(ctx)

	tx3, _ := conn(ctx)
	defer tx3.Rollback(ctx)
	ok, err := q.Exists(ctx, tx3, seq)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("expected delayed signal to be gone after firing")
	}
}
