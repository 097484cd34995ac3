// Package behavior defines the interfaces the Apply Engine uses to drive a
// per-class finite-state machine: Behavior (create/rehydrate a Machine, and
// parse persisted state names) and Machine (the pure transition surface).
// Concrete entity types, and the authoring DSL for declaring their states
// and transitions, are out of scope for this library; external callers (or
// this repo's own internal/testfsm test fixture) implement Behavior
// directly.
package behavior

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event is a value delivered to a Machine. Class is the event's registered
// class name, used for serialization and for matching the distinguished
// events below.
type Event struct {
	Class string
	Value any
}

// CreateClass is the class name of the distinguished creation event. The
// Apply Engine does not synthesize it: a signal addressed to an entity with
// no row is applied, as it is, to the fresh machine from Behavior.Create.
const CreateClass = "fsmrt.Create"

// Create is the distinguished creation event.
var Create = Event{Class: CreateClass}

// CancelTimedSignalClass is the class name of the distinguished
// cancellation event.
const CancelTimedSignalClass = "fsmrt.CancelTimedSignal"

// CancelTimedSignal is the distinguished event that removes a matching
// delayed row before any FSM invocation. FromClass/FromID identify the
// entity that originally scheduled the timed signal; together with the
// signal's own target class/id they form the cancellation key.
type CancelTimedSignal struct {
	FromClass string
	FromID    string
}

// IsCancelTimedSignal reports whether evt is a CancelTimedSignal and
// returns its payload.
func IsCancelTimedSignal(evt Event) (CancelTimedSignal, bool) {
	if evt.Class != CancelTimedSignalClass {
		return CancelTimedSignal{}, false
	}
	c, ok := evt.Value.(CancelTimedSignal)
	return c, ok
}

// EncodeCancelTimedSignal and DecodeCancelTimedSignal serialize the
// distinguished cancellation event's payload. This is always plain JSON,
// independent of whatever Serializer a caller configured for its own event
// classes: the cancellation event is internal runtime plumbing that no
// external Behavior ever needs to decode, so the Apply Engine must be able
// to read it back regardless of the user's chosen event codec.
func EncodeCancelTimedSignal(c CancelTimedSignal) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCancelTimedSignal(data []byte) (CancelTimedSignal, error) {
	var c CancelTimedSignal
	err := json.Unmarshal(data, &c)
	return c, err
}

// OtherSignal is a signal a Machine emits to an entity other than itself,
// optionally delayed. A nil FireAtMillis means deliver as soon as possible.
type OtherSignal struct {
	TargetClass  string
	TargetID     string
	Event        Event
	FireAtMillis *int64
}

// Machine is a pure, immutable snapshot of one entity's state machine
// mid-apply. Signal produces a new snapshot; it never mutates m in place.
type Machine interface {
	// Signal advances the machine by one event, returning the resulting
	// snapshot. The returned machine's PendingSelfSignals/PendingOther
	// Signals report what this single transition emitted.
	Signal(evt Event) (Machine, error)

	// Current returns the entity value carried by this snapshot, or
	// (nil, false) if the machine holds no entity (e.g. before Create).
	Current() (any, bool)

	// State returns the machine's internal state value. Its String() form
	// is the name persisted to the entity row and later round-tripped
	// through Behavior.From.
	State() fmt.Stringer

	// PendingSelfSignals returns, in emission order, events this machine
	// produced that target itself.
	PendingSelfSignals() []Event

	// PendingOtherSignals returns, in emission order, signals this machine
	// produced that target other entities.
	PendingOtherSignals() []OtherSignal

	// Class returns the entity class this machine belongs to.
	Class() string

	// ID returns the entity id this machine belongs to.
	ID() string
}

// Behavior is the per-class adapter the Apply Engine resolves by class
// name. Implementations must be referentially transparent (no hidden
// mutable state shared across invocations) and safe to call from the
// drain worker goroutine.
type Behavior interface {
	// Create returns a fresh, unsignaled machine for id.
	Create(id string) Machine

	// Rehydrate returns a machine positioned at state, carrying entity as
	// its current value.
	Rehydrate(id string, entity any, state fmt.Stringer) Machine

	// From parses a persisted state name back into the internal state
	// value understood by this Behavior.
	From(stateName string) (fmt.Stringer, error)
}

// Factory resolves the Behavior registered for a class name.
type Factory interface {
	Resolve(class string) (Behavior, bool)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(class string) (Behavior, bool)

// Resolve implements Factory.
func (f FactoryFunc) Resolve(class string) (Behavior, bool) { return f(class) }

// MapFactory is a Factory backed by a fixed map, the common case for
// registering a handful of entity classes.
type MapFactory map[string]Behavior

// Resolve implements Factory.
func (m MapFactory) Resolve(class string) (Behavior, bool) {
	b, ok := m[class]
	return b, ok
}

// Neither Behavior nor Machine take a context.Context — Signal is a pure
// function of an event — so the "process-wide current persistence context"
// design note (spec.md §9) is realized as a literal package-level slot
// rather than a context.Context value, guarded by a mutex since a Behavior
// may be invoked from any goroutine a caller's Executor chooses to run the
// drain worker on.
var (
	currentMu sync.RWMutex
	current   any
)

// WithContext installs persistenceCtx as the active persistence context for
// the duration of one apply cycle and returns a release func that must be
// deferred immediately so the slot is cleared on every exit path, including
// a panic or an early return on error.
func WithContext(persistenceCtx any) (release func()) {
	currentMu.Lock()
	current = persistenceCtx
	currentMu.Unlock()
	return func() {
		currentMu.Lock()
		current = nil
		currentMu.Unlock()
	}
}

// ContextFrom retrieves the active persistence context set by WithContext,
// or (nil, false) if none is set — e.g. a Behavior invoked outside an apply
// cycle.
func ContextFrom() (any, bool) {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current, current != nil
}
