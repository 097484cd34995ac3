// Package codec provides the opaque bytes<->value Serializer used to
// persist entities and events. The runtime treats the produced bytes as
// opaque; two independently configured instances are used, one for
// entities and one for events.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/signalforge/fsmrt/internal/fsmerr"
)

// Serializer converts values of a registered class to and from bytes.
// Deserialize returns the decoded value directly (spec.md §4.B:
// "deserialize(class, bytes) → value") rather than filling a caller-owned
// destination, since the Apply Engine itself never knows the concrete Go
// type behind a class name — only the Serializer's own class registry does.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(class string, data []byte) (any, error)
}

// JSON is the default Serializer, backed by encoding/json. No repo in the
// reference corpus reaches for a third-party codec (protobuf-for-values,
// msgpack, cbor) for this kind of payload; encoding/json is what every pack
// repo uses for structured JSON payloads. Types maps a class name to a
// constructor returning a pointer to a fresh zero value of that class;
// Deserialize unmarshals into it and hands the pointer back. A class with
// no registered constructor decodes into a generic map[string]any — usable
// by a Behavior that inspects raw JSON itself, but callers that want a
// concrete Go type back must register one.
type JSON struct {
	Types map[string]func() any
}

// NewJSON returns a JSON codec with the given class->constructor registry.
func NewJSON(types map[string]func() any) JSON {
	return JSON{Types: types}
}

// Serialize implements Serializer.
func (j JSON) Serialize(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &fsmerr.SerializationError{Class: fmt.Sprintf("%T", v), Err: err}
	}
	return b, nil
}

// Deserialize implements Serializer.
func (j JSON) Deserialize(class string, data []byte) (any, error) {
	ctor, ok := j.Types[class]
	if !ok {
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, &fsmerr.SerializationError{Class: class, Err: err}
		}
		return generic, nil
	}
	v := ctor()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, &fsmerr.SerializationError{Class: class, Err: err}
	}
	return v, nil
}
