package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evermart/eventflow/event"
)

// Handler processes one inbound integration event. Handlers must be
// idempotent: delivery is at-least-once and a redelivered message reaches
// every handler again.
type Handler func(ctx context.Context, evt event.IntegrationEvent) error

// ReceiveFunc is invoked by a Transport for each inbound message frame. The
// message is acknowledged to the broker only if it returns nil.
type ReceiveFunc func(ctx context.Context, eventName string, payload []byte) error

// Transport abstracts the message broker. Each frame carries a type-name
// label used for routing and a serialized payload; delivery durability is the
// broker's guarantee, not re-verified here.
type Transport interface {
	// Publish sends a serialized event labeled with its type name and returns
	// once the broker acknowledges receipt.
	Publish(ctx context.Context, eventName string, payload []byte) error
	// Subscribe creates a durable subscription for one event type and feeds
	// inbound frames to receive.
	Subscribe(ctx context.Context, eventName, subscriberID string, receive ReceiveFunc) error
	// Close gracefully shuts down the broker connection.
	Close()
}

// Bus routes integration events between the application and the broker.
// Handler registration happens at process start-up; after Start the handler
// table is read-only and dispatch needs no locking.
type Bus struct {
	transport    Transport
	registry     *event.Registry
	subscriberID string
	handlers     map[string][]Handler
	started      bool
}

// New creates a Bus. subscriberID names this consumer for durable
// subscriptions, so a restarted process resumes where it left off.
func New(transport Transport, registry *event.Registry, subscriberID string) *Bus {
	return &Bus{
		transport:    transport,
		registry:     registry,
		subscriberID: subscriberID,
		handlers:     make(map[string][]Handler),
	}
}

// Publish serializes the event and sends it labeled with its type name.
func (b *Bus) Publish(ctx context.Context, evt event.IntegrationEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.EventID(), err)
	}
	return b.transport.Publish(ctx, evt.EventType(), payload)
}

// PublishSerialized sends an already-serialized payload, as drained from the
// event log, without a decode round-trip.
func (b *Bus) PublishSerialized(ctx context.Context, eventName string, payload []byte) error {
	return b.transport.Publish(ctx, eventName, payload)
}

// Subscribe registers a handler for an event type. Multiple handlers may be
// registered for the same type; all of them are invoked for each received
// message. Must be called before Start.
func (b *Bus) Subscribe(eventName string, handler Handler) error {
	if b.started {
		return fmt.Errorf("cannot subscribe to '%s': bus already started", eventName)
	}
	if !b.registry.Known(eventName) {
		return fmt.Errorf("cannot subscribe to '%s': event type not registered", eventName)
	}
	b.handlers[eventName] = append(b.handlers[eventName], handler)
	return nil
}

// Start opens one transport subscription per registered event type.
func (b *Bus) Start(ctx context.Context) error {
	if b.started {
		return fmt.Errorf("bus already started")
	}
	for eventName := range b.handlers {
		if err := b.transport.Subscribe(ctx, eventName, b.subscriberID, b.dispatch); err != nil {
			return fmt.Errorf("failed to subscribe to '%s': %w", eventName, err)
		}
	}
	b.started = true
	return nil
}

// Close shuts down the underlying transport.
func (b *Bus) Close() {
	b.transport.Close()
}
