package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/evermart/eventflow/eventbus"
)

// headerEventType carries the type-name label used for routing and
// deserialization on the consumer side.
const headerEventType = "Event-Type"

// Transport is an implementation of the eventbus.Transport interface using
// NATS JetStream. Each event type maps to its own stream.
type Transport struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewTransport connects to NATS and sets up a JetStream context.
func NewTransport(url string) (*Transport, error) {
	nc, err := nats.Connect(
		url,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Transport{conn: nc, js: js}, nil
}

// ensureStream creates the stream for an event type if it does not exist yet.
func (t *Transport) ensureStream(ctx context.Context, eventName string) error {
	_, err := t.js.StreamInfo(eventName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info for %s: %w", eventName, err)
	}

	slog.InfoContext(ctx, "Stream not found, creating it", "stream", eventName)
	_, err = t.js.AddStream(&nats.StreamConfig{
		Name:     eventName,
		Subjects: []string{fmt.Sprintf("%s.*", eventName)},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", eventName, err)
	}
	return nil
}

// Publish sends a serialized event to the stream for its type. It returns
// once JetStream acknowledges the message.
func (t *Transport) Publish(ctx context.Context, eventName string, payload []byte) error {
	if err := t.ensureStream(ctx, eventName); err != nil {
		return err
	}

	msg := nats.NewMsg(fmt.Sprintf("%s.event", eventName))
	msg.Header.Set(headerEventType, eventName)
	msg.Data = payload

	if _, err := t.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	slog.DebugContext(ctx, "Event published", "eventType", eventName, "subject", msg.Subject)
	return nil
}

// Subscribe creates a durable, pull-based subscription for one event type.
// A restarted consumer resumes from where it left off.
func (t *Transport) Subscribe(
	ctx context.Context,
	eventName, subscriberID string,
	receive eventbus.ReceiveFunc,
) error {
	if err := t.ensureStream(ctx, eventName); err != nil {
		return err
	}

	consumerName := fmt.Sprintf("%s-%s", eventName, subscriberID)
	sub, err := t.js.PullSubscribe(
		fmt.Sprintf("%s.*", eventName),
		consumerName,
		nats.PullMaxWaiting(128),
	)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	go func() {
		slog.InfoContext(ctx, "Subscriber started", "eventType", eventName, "subscriberID", subscriberID)
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Subscriber stopping", "eventType", eventName, "subscriberID", subscriberID)
				return
			default:
				msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
				if err != nil {
					if err != nats.ErrTimeout {
						slog.ErrorContext(ctx, "Failed to fetch messages", "error", err, "eventType", eventName)
					}
					continue
				}

				for _, msg := range msgs {
					name := msg.Header.Get(headerEventType)
					if name == "" {
						name = eventName
					}

					// Ack only when all handlers for the frame completed;
					// a Nak'd message is expected to be redelivered.
					if err := receive(ctx, name, msg.Data); err != nil {
						slog.ErrorContext(ctx, "Failed to process message", "error", err, "eventType", name)
						msg.Nak()
					} else {
						msg.Ack()
					}
				}
			}
		}
	}()

	return nil
}

// Close gracefully closes the NATS connection.
func (t *Transport) Close() {
	if t.conn != nil {
		t.conn.Close()
	}
}
