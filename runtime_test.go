package fsmrt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalforge/fsmrt"
	"github.com/signalforge/fsmrt/internal/behavior"
	"github.com/signalforge/fsmrt/internal/codec"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/testfsm"
	"github.com/signalforge/fsmrt/internal/txn"
)

const basketClass = "Basket"

// syncExecutor runs every drain task and timer inline, making Signal's
// asynchronous drain deterministic for these tests.
type syncExecutor struct{}

func (syncExecutor) Go(f func())                       { f() }
func (syncExecutor) Schedule(d time.Duration, f func()) { f() }

func newRuntime(t *testing.T) *fsmrt.Runtime {
	t.Helper()
	db, err := txn.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rt, err := fsmrt.New(
		fsmrt.WithBehaviorFactory(behavior.MapFactory{basketClass: testfsm.New(basketClass, nil)}),
		fsmrt.WithConnectionFactory(txn.SQLiteFactory(db), txn.SQLiteQueryFactory(db)),
		fsmrt.WithEntitySerializer(codec.NewJSON(testfsm.EntityTypes(basketClass))),
		fsmrt.WithEventSerializer(codec.NewJSON(testfsm.EventTypes())),
		fsmrt.WithExecutor(syncExecutor{}),
		fsmrt.WithStoreSignals(false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rt
}

func TestNew_RequiresBehaviorFactory(t *testing.T) {
	db, err := txn.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	_, err = fsmrt.New(fsmrt.WithConnectionFactory(txn.SQLiteFactory(db), txn.SQLiteQueryFactory(db)))
	var cfgErr *fsmerr.ConfigurationError
	if err == nil || !errors.As(err, &cfgErr) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "BehaviorFactory" {
		t.Fatalf("Field = %q, want BehaviorFactory", cfgErr.Field)
	}
}

func TestNew_RequiresConnectionFactory(t *testing.T) {
	_, err := fsmrt.New(fsmrt.WithBehaviorFactory(behavior.MapFactory{basketClass: testfsm.New(basketClass, nil)}))
	var cfgErr *fsmerr.ConfigurationError
	if err == nil || !errors.As(err, &cfgErr) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "ConnectionFactory" {
		t.Fatalf("Field = %q, want ConnectionFactory", cfgErr.Field)
	}
}

func TestRuntime_SignalDrivesCreateToEmpty(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	if err := rt.Signal(ctx, basketClass, "b1", behavior.Create); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	_, state, ok, err := rt.GetWithState(ctx, basketClass, "b1")
	if err != nil {
		t.Fatalf("GetWithState: %v", err)
	}
	if !ok {
		t.Fatal("expected the basket to exist after Create")
	}
	if state.String() != "Empty" {
		t.Fatalf("state = %q, want Empty", state.String())
	}
}

func TestRuntime_SignalFullHappyPath(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	steps := []behavior.Event{
		behavior.Create,
		{Class: testfsm.ChangeClass, Value: testfsm.Change{Items: []string{"mug", "saucer"}}},
		{Class: testfsm.CheckoutClass},
		{Class: testfsm.PaymentClass},
	}
	for _, evt := range steps {
		if err := rt.Signal(ctx, basketClass, "b1", evt); err != nil {
			t.Fatalf("Signal(%s): %v", evt.Class, err)
		}
	}

	value, state, ok, err := rt.GetWithState(ctx, basketClass, "b1")
	if err != nil {
		t.Fatalf("GetWithState: %v", err)
	}
	if !ok {
		t.Fatal("expected the basket to exist")
	}
	if state.String() != "Paid" {
		t.Fatalf("state = %q, want Paid", state.String())
	}
	basket, ok := value.(*testfsm.Basket)
	if !ok {
		t.Fatalf("value is %T, want *testfsm.Basket", value)
	}
	if len(basket.Items) != 2 || basket.Items[0] != "mug" {
		t.Fatalf("unexpected items: %+v", basket.Items)
	}
}

func TestRuntime_InitializeRecoversPendingSignalsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	db, err := txn.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	newForDB := func() *fsmrt.Runtime {
		rt, err := fsmrt.New(
			fsmrt.WithBehaviorFactory(behavior.MapFactory{basketClass: testfsm.New(basketClass, nil)}),
			fsmrt.WithConnectionFactory(txn.SQLiteFactory(db), txn.SQLiteQueryFactory(db)),
			fsmrt.WithEntitySerializer(codec.NewJSON(testfsm.EntityTypes(basketClass))),
			fsmrt.WithEventSerializer(codec.NewJSON(testfsm.EventTypes())),
			fsmrt.WithExecutor(noopExecutor{}),
			fsmrt.WithStoreSignals(false),
		)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return rt
	}

	first := newForDB()
	if err := first.Create(ctx); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// noopExecutor never actually drains the signal, simulating a process
	// that published work and crashed before the drain loop ran.
	if err := first.Signal(ctx, basketClass, "b1", behavior.Create); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	if _, _, ok, err := first.GetWithState(ctx, basketClass, "b1"); err != nil {
		t.Fatalf("GetWithState: %v", err)
	} else if ok {
		t.Fatal("expected no entity row before the signal is drained")
	}

	second, err := fsmrt.New(
		fsmrt.WithBehaviorFactory(behavior.MapFactory{basketClass: testfsm.New(basketClass, nil)}),
		fsmrt.WithConnectionFactory(txn.SQLiteFactory(db), txn.SQLiteQueryFactory(db)),
		fsmrt.WithEntitySerializer(codec.NewJSON(testfsm.EntityTypes(basketClass))),
		fsmrt.WithEventSerializer(codec.NewJSON(testfsm.EventTypes())),
		fsmrt.WithExecutor(syncExecutor{}),
		fsmrt.WithStoreSignals(false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, state, ok, err := second.GetWithState(ctx, basketClass, "b1")
	if err != nil {
		t.Fatalf("GetWithState: %v", err)
	}
	if !ok {
		t.Fatal("expected the recovered signal to have been drained")
	}
	if state.String() != "Empty" {
		t.Fatalf("state = %q, want Empty", state.String())
	}
}

// noopExecutor never runs its callback, leaving offered work permanently
// pending until a later Scheduler drains it via Initialize.
type noopExecutor struct{}

func (noopExecutor) Go(f func())                       {}
func (noopExecutor) Schedule(d time.Duration, f func()) {}

func TestRuntime_CreateSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	if err := rt.Create(ctx); err != nil {
		t.Fatalf("second Create call should be a no-op, got %v", err)
	}
}
