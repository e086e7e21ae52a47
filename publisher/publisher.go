// Package publisher drains the event log through the event bus. Capturing an
// event is transactional with the business mutation; delivering it is
// best-effort per entry, with failures recorded for a later sweep.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evermart/eventflow/event"
	"github.com/evermart/eventflow/eventlog"
)

// EventBus is the publishing side of the bus as the orchestrator needs it.
type EventBus interface {
	PublishSerialized(ctx context.Context, eventName string, payload []byte) error
}

// Publisher orchestrates the event log and the event bus.
type Publisher struct {
	store eventlog.Store
	bus   EventBus
}

func New(store eventlog.Store, bus EventBus) *Publisher {
	return &Publisher{store: store, bus: bus}
}

// AddAndSave captures an integration event in the event log, bound to the
// caller's active transaction. This is the only sanctioned way to create
// event-log entries: the entry and the domain mutation commit or roll back
// together.
func (p *Publisher) AddAndSave(ctx context.Context, evt event.IntegrationEvent, transactionID uuid.UUID) error {
	entry, err := eventlog.NewEntry(evt, transactionID)
	if err != nil {
		return fmt.Errorf("failed to capture event %s: %w", evt.EventID(), err)
	}
	return p.store.Append(ctx, entry)
}

// PublishPending drains the entries captured by one committed transaction, in
// creation order. A failure on one entry is recorded and does not abort the
// rest of the batch. Called by the transaction's initiator right after
// commit; it does not run inside a database transaction itself.
func (p *Publisher) PublishPending(ctx context.Context, transactionID uuid.UUID) error {
	entries, err := p.store.PendingForTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to fetch pending events for transaction %s: %w", transactionID, err)
	}
	p.drain(ctx, entries)
	return nil
}

// drain attempts to publish each entry, isolating failures per entry.
func (p *Publisher) drain(ctx context.Context, entries []eventlog.Entry) {
	for _, entry := range entries {
		if err := p.store.MarkInProgress(ctx, entry.EventID); err != nil {
			slog.ErrorContext(
				ctx,
				"Failed to mark event in progress, skipping",
				"error",
				err,
				"eventID",
				entry.EventID,
				"eventType",
				entry.EventTypeName,
			)
			continue
		}

		slog.InfoContext(ctx, "Publishing event", "eventID", entry.EventID, "eventType", entry.EventTypeName)

		if err := p.bus.PublishSerialized(ctx, entry.EventTypeName, entry.Content); err != nil {
			slog.ErrorContext(
				ctx,
				"Failed to publish event",
				"error",
				err,
				"eventID",
				entry.EventID,
				"eventType",
				entry.EventTypeName,
			)
			if err := p.store.MarkFailed(ctx, entry.EventID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark event as failed", "error", err, "eventID", entry.EventID)
			}
			continue
		}

		if err := p.store.MarkPublished(ctx, entry.EventID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark event as published", "error", err, "eventID", entry.EventID)
			continue
		}

		slog.InfoContext(ctx, "Event published", "eventID", entry.EventID, "eventType", entry.EventTypeName)
	}
}
