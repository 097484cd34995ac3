package behavior_test

import (
	"fmt"
	"testing"

	"github.com/signalforge/fsmrt/internal/behavior"
)

type stubBehavior struct{}

func (stubBehavior) Create(id string) behavior.Machine { return nil }
func (stubBehavior) Rehydrate(id string, entity any, state fmt.Stringer) behavior.Machine {
	return nil
}
func (stubBehavior) From(stateName string) (fmt.Stringer, error) { return nil, nil }

func TestMapFactory_ResolveFoundAndMissing(t *testing.T) {
	f := behavior.MapFactory{"Basket": stubBehavior{}}

	if _, ok := f.Resolve("Basket"); !ok {
		t.Fatal("expected Basket to resolve")
	}
	if _, ok := f.Resolve("Widget"); ok {
		t.Fatal("expected Widget to be unresolved")
	}
}

func TestFactoryFunc_Resolve(t *testing.T) {
	f := behavior.FactoryFunc(func(class string) (behavior.Behavior, bool) {
		if class == "Basket" {
			return stubBehavior{}, true
		}
		return nil, false
	})
	if _, ok := f.Resolve("Basket"); !ok {
		t.Fatal("expected Basket to resolve via FactoryFunc")
	}
}

func TestCancelTimedSignal_EncodeDecodeRoundTrip(t *testing.T) {
	c := behavior.CancelTimedSignal{FromClass: "Basket", FromID: "b1"}
	b, err := behavior.EncodeCancelTimedSignal(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := behavior.DecodeCancelTimedSignal(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestIsCancelTimedSignal(t *testing.T) {
	c := behavior.CancelTimedSignal{FromClass: "Basket", FromID: "b1"}
	evt := behavior.Event{Class: behavior.CancelTimedSignalClass, Value: c}

	got, ok := behavior.IsCancelTimedSignal(evt)
	if !ok || got != c {
		t.Fatalf("expected to recognize CancelTimedSignal, got ok=%v val=%+v", ok, got)
	}

	if _, ok := behavior.IsCancelTimedSignal(behavior.Event{Class: "something.else"}); ok {
		t.Fatal("expected a non-matching event class to report false")
	}
}

func TestWithContext_InstallsAndClearsOnRelease(t *testing.T) {
	if _, ok := behavior.ContextFrom(); ok {
		t.Fatal("expected no active context before WithContext")
	}

	release := behavior.WithContext("marker")
	v, ok := behavior.ContextFrom()
	if !ok || v != "marker" {
		t.Fatalf("expected active context 'marker', got %v (ok=%v)", v, ok)
	}

	release()
	if _, ok := behavior.ContextFrom(); ok {
		t.Fatal("expected context to be cleared after release")
	}
}
