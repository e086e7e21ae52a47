package event

import (
	"encoding/json"
	"fmt"
)

// Decoder turns a serialized payload into a concrete integration event.
type Decoder func(payload []byte) (IntegrationEvent, error)

// Registry maps event type names to decoders. It is built once during
// application start-up and treated as read-only afterwards; the set of event
// types a process can receive is closed and known at compile time.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register adds a decoder for the event type T under T's type name.
// It panics if a name is registered twice; duplicate registration is a wiring
// bug, not a runtime condition.
func Register[T IntegrationEvent](r *Registry) {
	var zero T
	name := zero.EventType()
	if _, ok := r.decoders[name]; ok {
		panic(fmt.Sprintf("event type '%s' is already registered", name))
	}
	r.decoders[name] = func(payload []byte) (IntegrationEvent, error) {
		var evt T
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event '%s': %w", name, err)
		}
		return evt, nil
	}
}

// RegisterDecoder adds a custom decoder for one event type, for payloads that
// are not plain JSON. The same duplicate rules as Register apply.
func (r *Registry) RegisterDecoder(eventType string, decode Decoder) {
	if _, ok := r.decoders[eventType]; ok {
		panic(fmt.Sprintf("event type '%s' is already registered", eventType))
	}
	r.decoders[eventType] = decode
}

// Known reports whether the given event type name has a registered decoder.
func (r *Registry) Known(eventType string) bool {
	_, ok := r.decoders[eventType]
	return ok
}

// Decode instantiates the concrete event for the given type name from its
// serialized payload. It returns an error if the type name has not been
// registered.
func (r *Registry) Decode(eventType string, payload []byte) (IntegrationEvent, error) {
	decode, ok := r.decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("event type '%s' is not registered", eventType)
	}
	return decode(payload)
}
