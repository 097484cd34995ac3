// Package testfsm is a hand-written Behavior implementation for a
// shopping-basket entity, used only to drive the Apply Engine and Drain
// Scheduler test suites (spec.md §8, scenarios S1-S6). It implements
// behavior.Behavior and behavior.Machine directly, with no authoring DSL,
// since the DSL itself is out of scope for this library (spec.md's
// Out-of-scope list names "example shopping-basket FSM" explicitly).
//
// States: Created -> Empty -> Changed -> CheckedOut -> Paid, with a
// self-scheduled Timeout (fired one day after the most recent Change) that
// reverts Changed or CheckedOut to TimedOut.
package testfsm

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalforge/fsmrt/internal/behavior"
	"github.com/signalforge/fsmrt/internal/clock"
)

// State is the basket's persisted state value.
type State int

const (
	StateCreated State = iota
	StateEmpty
	StateChanged
	StateCheckedOut
	StatePaid
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateEmpty:
		return "Empty"
	case StateChanged:
		return "Changed"
	case StateCheckedOut:
		return "CheckedOut"
	case StatePaid:
		return "Paid"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// ParseState parses a state name persisted by a prior cycle back into a
// State, the inverse of String.
func ParseState(name string) (State, error) {
	switch name {
	case "Created":
		return StateCreated, nil
	case "Empty":
		return StateEmpty, nil
	case "Changed":
		return StateChanged, nil
	case "CheckedOut":
		return StateCheckedOut, nil
	case "Paid":
		return StatePaid, nil
	case "TimedOut":
		return StateTimedOut, nil
	default:
		return 0, fmt.Errorf("testfsm: unknown state %q", name)
	}
}

// Basket is the entity value.
type Basket struct {
	ID    string
	Items []string
}

// Event classes understood by this Behavior, beyond the distinguished
// behavior.CreateClass/CancelTimedSignalClass the engine already handles.
const (
	ClearClass    = "testfsm.Clear"
	ChangeClass   = "testfsm.Change"
	TimeoutClass  = "testfsm.Timeout"
	CheckoutClass = "testfsm.Checkout"
	PaymentClass  = "testfsm.Payment"
)

// Change is the payload of a ChangeClass event.
type Change struct {
	Items []string
}

// TimeoutWindow is how long after a Change a basket times out.
const TimeoutWindow = 24 * time.Hour

var errInvalidTransition = errors.New("testfsm: invalid transition")

// Behavior is the testfsm Behavior, parameterized by the class name it is
// registered under (so emitted self-targeted signals address the right
// class) and a Clock used to compute the Timeout's fire-at.
type Behavior struct {
	ClassName string
	Clock     clock.Clock
}

// New returns a Behavior registered as className, using clk (clock.System{}
// if nil) to schedule Timeout.
func New(className string, clk clock.Clock) Behavior {
	if clk == nil {
		clk = clock.System{}
	}
	return Behavior{ClassName: className, Clock: clk}
}

// EntityTypes returns the codec.JSON constructor registry entry for Basket.
func EntityTypes(className string) map[string]func() any {
	return map[string]func() any{className: func() any { return &Basket{} }}
}

// EventTypes returns the codec.JSON constructor registry for the event
// classes this Behavior consumes.
func EventTypes() map[string]func() any {
	return map[string]func() any{ChangeClass: func() any { return &Change{} }}
}

func (b Behavior) Create(id string) behavior.Machine {
	return &machine{class: b.ClassName, id: id, clock: b.Clock}
}

func (b Behavior) Rehydrate(id string, entity any, state fmt.Stringer) behavior.Machine {
	var basket *Basket
	switch v := entity.(type) {
	case *Basket:
		basket = v
	case Basket:
		basket = &v
	}
	st, _ := state.(State)
	return &machine{class: b.ClassName, id: id, clock: b.Clock, state: st, basket: basket}
}

func (b Behavior) From(stateName string) (fmt.Stringer, error) {
	return ParseState(stateName)
}

type machine struct {
	class string
	id    string
	clock clock.Clock

	state  State
	basket *Basket

	self  []behavior.Event
	other []behavior.OtherSignal
}

func (m *machine) Class() string { return m.class }
func (m *machine) ID() string    { return m.id }

func (m *machine) Current() (any, bool) {
	if m.basket == nil {
		return nil, false
	}
	return m.basket, true
}

func (m *machine) State() fmt.Stringer { return m.state }

func (m *machine) PendingSelfSignals() []behavior.Event        { return m.self }
func (m *machine) PendingOtherSignals() []behavior.OtherSignal { return m.other }

func (m *machine) Signal(evt behavior.Event) (behavior.Machine, error) {
	next := &machine{class: m.class, id: m.id, clock: m.clock, state: m.state, basket: m.basket}

	switch evt.Class {
	case behavior.CreateClass:
		if m.basket != nil {
			return nil, fmt.Errorf("%w: Create on existing basket %s", errInvalidTransition, m.id)
		}
		next.basket = &Basket{ID: m.id}
		next.state = StateCreated
		next.self = []behavior.Event{{Class: ClearClass}}

	case ClearClass:
		if m.state != StateCreated {
			return nil, fmt.Errorf("%w: Clear from %s", errInvalidTransition, m.state)
		}
		next.state = StateEmpty

	case ChangeClass:
		if m.state != StateEmpty && m.state != StateChanged {
			return nil, fmt.Errorf("%w: Change from %s", errInvalidTransition, m.state)
		}
		var change Change
		switch v := evt.Value.(type) {
		case *Change:
			if v != nil {
				change = *v
			}
		case Change:
			change = v
		}
		basket := *m.basket
		basket.Items = change.Items
		next.basket = &basket
		next.state = StateChanged
		fireAt := m.clock.NowMillis() + TimeoutWindow.Milliseconds()
		next.other = []behavior.OtherSignal{{
			TargetClass:  m.class,
			TargetID:     m.id,
			Event:        behavior.Event{Class: TimeoutClass},
			FireAtMillis: &fireAt,
		}}

	case CheckoutClass:
		if m.state != StateChanged {
			return nil, fmt.Errorf("%w: Checkout from %s", errInvalidTransition, m.state)
		}
		next.state = StateCheckedOut
		next.other = []behavior.OtherSignal{{
			TargetClass: m.class,
			TargetID:    m.id,
			Event: behavior.Event{
				Class: behavior.CancelTimedSignalClass,
				Value: behavior.CancelTimedSignal{FromClass: m.class, FromID: m.id},
			},
		}}

	case PaymentClass:
		if m.state != StateCheckedOut {
			return nil, fmt.Errorf("%w: Payment from %s", errInvalidTransition, m.state)
		}
		next.state = StatePaid

	case TimeoutClass:
		if m.state != StateChanged && m.state != StateCheckedOut {
			return nil, fmt.Errorf("%w: Timeout from %s", errInvalidTransition, m.state)
		}
		next.state = StateTimedOut

	default:
		return nil, fmt.Errorf("testfsm: unrecognized event class %q", evt.Class)
	}

	return next, nil
}
