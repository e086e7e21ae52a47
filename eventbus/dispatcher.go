package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// dispatch routes one inbound frame: resolve the concrete type by its name
// label, deserialize the payload once, and invoke every registered handler
// with the same instance. A non-nil return means the frame is not
// acknowledged and the broker may redeliver it.
func (b *Bus) dispatch(ctx context.Context, eventName string, payload []byte) error {
	handlers, ok := b.handlers[eventName]
	if !ok || !b.registry.Known(eventName) {
		// Unroutable message: drop it, never crash the dispatcher.
		slog.WarnContext(ctx, "No handler registered for event type, dropping message", "eventType", eventName)
		return nil
	}

	evt, err := b.registry.Decode(eventName, payload)
	if err != nil {
		return fmt.Errorf("failed to decode inbound event '%s': %w", eventName, err)
	}

	// Every handler sees the message, even if an earlier one failed; the
	// joined error drives redelivery for the whole frame.
	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, evt); err != nil {
			slog.ErrorContext(
				ctx,
				"Handler failed to process event",
				"error",
				err,
				"eventID",
				evt.EventID(),
				"eventType",
				eventName,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
