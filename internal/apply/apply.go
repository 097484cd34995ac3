// Package apply implements the Apply Engine (spec.md §4.I): the
// transactional cycle that reads one entity, drives its state machine
// through a cascade of self-signals, and persists the result together with
// any newly emitted outbound signals. Grounded structurally on
// storage.Store's acquire-operate-release connection discipline, adapted
// from a shared pgxpool.Pool to a fresh txn.Factory-produced connection per
// cycle. The self-signal cascade is an explicit container/list deque, never
// recursion, per the "cooperative self-signal cascade" design note.
package apply

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalforge/fsmrt/internal/behavior"
	"github.com/signalforge/fsmrt/internal/codec"
	"github.com/signalforge/fsmrt/internal/delayedqueue"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/signalqueue"
	"github.com/signalforge/fsmrt/internal/signalstore"
	"github.com/signalforge/fsmrt/internal/store"
	"github.com/signalforge/fsmrt/internal/txn"
)

// PropertiesFactory projects an entity value into its secondary-index
// property rows. The default (zero value) returns an empty map.
type PropertiesFactory func(entity any) map[string]string

// Signal is the in-memory handle the Drain Scheduler hands to Apply: the
// numbered queue row, already known to the caller, plus the information
// needed to re-verify and remove it from the correct table.
type Signal struct {
	Seq        int64
	Delayed    bool
	Class      string
	ID         string
	EventClass string
	EventBytes []byte
}

// Produced is one newly emitted outbound signal, reported back so the
// Drain Scheduler can offer it to itself (non-delayed) or to a timer
// (delayed).
type Produced struct {
	Seq          int64
	Delayed      bool
	Class        string
	ID           string
	EventClass   string
	EventBytes   []byte
	FireAtMillis int64 // meaningful only when Delayed
}

// Result is the outcome of one successful Apply call.
type Result struct {
	Produced []Produced
}

// Engine is the Apply Engine. It is stateless across calls: every
// dependency is a value handed in at construction, and every call acquires
// its own transaction via Conn.
type Engine struct {
	Conn         txn.Factory
	Store        *store.Store
	SignalQueue  *signalqueue.Queue
	DelayedQueue *delayedqueue.Queue
	SignalStore  *signalstore.Store
	Behaviors    behavior.Factory
	EntityCodec  codec.Serializer
	EventCodec   codec.Serializer
	Properties   PropertiesFactory
	StoreSignals bool

	// Log receives the engine's Debug trace of committed cycles. The zero
	// zerolog.Logger value has no writer attached and discards every event.
	Log zerolog.Logger

	// PersistenceContext is installed as the active behavior.ContextFrom
	// value around every Behavior invocation in this cycle. It is typically
	// set, after construction, to whatever implements the narrow interface
	// a Behavior needs to reach back into the runtime (e.g. to publish a
	// signal of its own) — kept as `any` here so this package never depends
	// on the root runtime package, per the cyclic-structure design note.
	PersistenceContext any
}

// Apply runs the ten-step transactional cycle for sig. When the signal no
// longer exists in its queue (already processed by a prior attempt), it
// returns an empty Result and a nil error and does no work; a committed
// cancellation, or a cycle that emits nothing, also returns an empty Result.
func (e *Engine) Apply(ctx context.Context, sig Signal) (Result, error) {
	tx, err := e.Conn(ctx)
	if err != nil {
		return Result{}, &fsmerr.StorageError{Op: "open apply transaction", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	// Step 1: verify the input signal still exists.
	exists, err := e.exists(ctx, tx, sig)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, nil
	}

	// Step 2: distinguished cancellation event short-circuits the whole cycle.
	var evt behavior.Event
	if sig.EventClass == behavior.CancelTimedSignalClass {
		cancel, err := behavior.DecodeCancelTimedSignal(sig.EventBytes)
		if err != nil {
			return Result{}, &fsmerr.SerializationError{Class: sig.EventClass, Err: err}
		}
		if err := e.DelayedQueue.CancelByKey(ctx, tx, cancel.FromClass, cancel.FromID, sig.Class, sig.ID); err != nil {
			return Result{}, err
		}
		if err := e.deleteInput(ctx, tx, sig); err != nil {
			return Result{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Result{}, &fsmerr.StorageError{Op: "commit cancellation", Err: err}
		}
		committed = true
		return Result{}, nil
	}
	evt = behavior.Event{Class: sig.EventClass}
	if sig.EventClass != behavior.CreateClass && len(sig.EventBytes) > 0 {
		value, err := e.EventCodec.Deserialize(sig.EventClass, sig.EventBytes)
		if err != nil {
			return Result{}, err
		}
		evt.Value = value
	}

	release := behavior.WithContext(e.PersistenceContext)
	defer release()

	// Step 3: resolve Behavior, read the entity.
	b, ok := e.Behaviors.Resolve(sig.Class)
	if !ok {
		return Result{}, &fsmerr.BehaviorResolutionError{Class: sig.Class}
	}
	existing, err := e.Store.ReadEntity(ctx, tx, sig.Class, sig.ID)
	var machine behavior.Machine
	switch {
	case errors.Is(err, store.ErrNotFound):
		machine = b.Create(sig.ID)
	case err != nil:
		return Result{}, err
	default:
		stateValue, err := b.From(existing.State)
		if err != nil {
			return Result{}, err
		}
		entityValue, err := e.EntityCodec.Deserialize(sig.Class, existing.Bytes)
		if err != nil {
			return Result{}, err
		}
		machine = b.Rehydrate(sig.ID, entityValue, stateValue)
	}

	// Step 5: cooperative self-signal cascade, seeded with the input event.
	// container/list is used as an explicit deque so the cascade never
	// recurses. Step 6 (append to the signal store) happens inside this
	// loop: every event that reaches the entity — the input event and each
	// cascaded self-signal — is appended exactly once, in the order it was
	// applied, per §8 property 6.
	self := list.New()
	self.PushBack(evt)
	var other []behavior.OtherSignal

	first := true
	for self.Len() > 0 {
		front := self.Front()
		self.Remove(front)
		current := front.Value.(behavior.Event)

		if e.StoreSignals {
			eventBytes, err := e.signalStoreBytes(sig, current, first)
			if err != nil {
				return Result{}, err
			}
			if err := e.SignalStore.Append(ctx, tx, sig.Class, sig.ID, current.Class, eventBytes); err != nil {
				return Result{}, err
			}
		}
		first = false

		next, err := machine.Signal(current)
		if err != nil {
			return Result{}, err
		}
		machine = next

		pendingSelf := machine.PendingSelfSignals()
		for i := len(pendingSelf) - 1; i >= 0; i-- {
			self.PushFront(pendingSelf[i])
		}
		other = append(other, machine.PendingOtherSignals()...)
	}

	// Step 7: insert or schedule every outbound signal.
	var produced []Produced
	for _, os := range other {
		eventBytes, err := e.encodeEvent(os.Event)
		if err != nil {
			return Result{}, err
		}
		if os.FireAtMillis == nil {
			seq, err := e.SignalQueue.Enqueue(ctx, tx, os.TargetClass, os.TargetID, os.Event.Class, eventBytes)
			if err != nil {
				return Result{}, err
			}
			produced = append(produced, Produced{
				Seq: seq, Delayed: false, Class: os.TargetClass, ID: os.TargetID,
				EventClass: os.Event.Class, EventBytes: eventBytes,
			})
			continue
		}
		seq, err := e.DelayedQueue.Insert(ctx, tx, sig.Class, sig.ID, os.TargetClass, os.TargetID,
			os.Event.Class, eventBytes, time.UnixMilli(*os.FireAtMillis))
		if err != nil {
			return Result{}, err
		}
		produced = append(produced, Produced{
			Seq: seq, Delayed: true, Class: os.TargetClass, ID: os.TargetID,
			EventClass: os.Event.Class, EventBytes: eventBytes, FireAtMillis: *os.FireAtMillis,
		})
	}

	// Step 8: delete the input signal row.
	if err := e.deleteInput(ctx, tx, sig); err != nil {
		return Result{}, err
	}

	// Step 9: save the entity and rebuild its property rows, if present.
	if entity, ok := machine.Current(); ok {
		bytes, err := e.EntityCodec.Serialize(entity)
		if err != nil {
			return Result{}, err
		}
		if err := e.Store.SaveEntity(ctx, tx, sig.Class, sig.ID, bytes, machine.State().String()); err != nil {
			return Result{}, err
		}
		props := map[string]string{}
		if e.Properties != nil {
			props = e.Properties(entity)
		}
		if err := e.Store.SaveProperties(ctx, tx, sig.Class, sig.ID, props); err != nil {
			return Result{}, err
		}
	}

	// Step 10: commit.
	if err := tx.Commit(ctx); err != nil {
		return Result{}, &fsmerr.StorageError{Op: "commit apply cycle", Err: err}
	}
	committed = true

	e.Log.Debug().Str("class", sig.Class).Str("id", sig.ID).Str("event", sig.EventClass).
		Int("produced", len(produced)).Msg("apply committed")

	return Result{Produced: produced}, nil
}

// encodeEvent serializes evt.Value for wire storage. The distinguished
// CancelTimedSignal event always round-trips through behavior's own plain
// JSON encoding (it is decoded the same way in step 2), regardless of the
// configured EventCodec — routing it through a non-JSON EventCodec would
// break cancellation on replay. CreateClass carries no payload.
func (e *Engine) encodeEvent(evt behavior.Event) ([]byte, error) {
	switch evt.Class {
	case behavior.CancelTimedSignalClass:
		cancel, ok := behavior.IsCancelTimedSignal(evt)
		if !ok {
			return nil, &fsmerr.SerializationError{Class: evt.Class, Err: fmt.Errorf("value is not a CancelTimedSignal")}
		}
		return behavior.EncodeCancelTimedSignal(cancel)
	case behavior.CreateClass:
		return nil, nil
	default:
		return e.EventCodec.Serialize(evt.Value)
	}
}

// signalStoreBytes returns the wire bytes to record in the signal store for
// evt, one cascade step at a time. The first event in a cascade is the
// input signal and already carries its original wire bytes; every cascaded
// self-signal is re-encoded the same way an outbound signal would be.
func (e *Engine) signalStoreBytes(sig Signal, evt behavior.Event, first bool) ([]byte, error) {
	if first {
		return sig.EventBytes, nil
	}
	return e.encodeEvent(evt)
}

func (e *Engine) exists(ctx context.Context, tx txn.Tx, sig Signal) (bool, error) {
	if sig.Delayed {
		return e.DelayedQueue.Exists(ctx, tx, sig.Seq)
	}
	return e.SignalQueue.Exists(ctx, tx, sig.Seq)
}

func (e *Engine) deleteInput(ctx context.Context, tx txn.Tx, sig Signal) error {
	if sig.Delayed {
		return e.DelayedQueue.Delete(ctx, tx, sig.Seq)
	}
	return e.SignalQueue.Delete(ctx, tx, sig.Seq)
}

// String satisfies fmt.Stringer so callers constructing error text can
// format a Signal without reaching into its fields.
func (s Signal) String() string {
	return fmt.Sprintf("%s/%s(%s)", s.Class, s.ID, s.EventClass)
}
