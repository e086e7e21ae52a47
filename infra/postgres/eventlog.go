package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evermart/eventflow/eventlog"
)

// EventLogStore implements the eventlog.Store interface for PostgreSQL.
type EventLogStore struct {
	db *DB
}

func NewEventLogStore(db *DB) *EventLogStore {
	return &EventLogStore{db: db}
}

// Append writes one entry into the event log. It must be called within a
// transaction so the entry shares fate with the business mutation.
func (s *EventLogStore) Append(ctx context.Context, entry eventlog.Entry) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return fmt.Errorf("Append must be called within a transaction")
	}

	stmt := `
        INSERT INTO event_log (event_id, event_type_name, content, transaction_id, state, times_sent, creation_time)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := tx.Exec(
		ctx,
		stmt,
		entry.EventID,
		entry.EventTypeName,
		entry.Content,
		entry.TransactionID,
		entry.State,
		entry.TimesSent,
		entry.CreationTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s into event log: %w", entry.EventID, err)
	}
	return nil
}

// PendingForTransaction returns the entries appended by one transaction in
// creation order.
func (s *EventLogStore) PendingForTransaction(
	ctx context.Context,
	transactionID uuid.UUID,
) ([]eventlog.Entry, error) {
	query := `
        SELECT event_id, event_type_name, content, transaction_id, state, times_sent, creation_time
        FROM event_log
        WHERE transaction_id = $1 AND state = $2
        ORDER BY seq
    `
	rows, err := s.db.Querier(ctx).Query(ctx, query, transactionID, eventlog.StateNotPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowToStructByPos[eventlog.Entry])
}

// PendingForRetry fetches up to limit failed or stale-unpublished entries,
// locking them so concurrent sweepers never pick the same row.
func (s *EventLogStore) PendingForRetry(
	ctx context.Context,
	limit int,
	stale time.Duration,
) ([]eventlog.Entry, error) {
	query := `
        SELECT event_id, event_type_name, content, transaction_id, state, times_sent, creation_time
        FROM event_log
        WHERE state = $1 OR (state = $2 AND creation_time < $3)
        ORDER BY seq
        LIMIT $4
        FOR UPDATE SKIP LOCKED
    `
	cutoff := time.Now().UTC().Add(-stale)
	rows, err := s.db.Querier(ctx).
		Query(ctx, query, eventlog.StatePublishedFailed, eventlog.StateNotPublished, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log for retry: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowToStructByPos[eventlog.Entry])
}

// MarkInProgress moves an entry into InProgress and counts the attempt.
func (s *EventLogStore) MarkInProgress(ctx context.Context, eventID uuid.UUID) error {
	return s.transition(ctx, eventID, eventlog.StateInProgress, true)
}

// MarkPublished records a successful publish.
func (s *EventLogStore) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	return s.transition(ctx, eventID, eventlog.StatePublished, false)
}

// MarkFailed records a failed publish attempt.
func (s *EventLogStore) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	return s.transition(ctx, eventID, eventlog.StatePublishedFailed, false)
}

func (s *EventLogStore) transition(
	ctx context.Context,
	eventID uuid.UUID,
	state eventlog.State,
	countAttempt bool,
) error {
	query := `UPDATE event_log SET state = $1 WHERE event_id = $2`
	if countAttempt {
		query = `UPDATE event_log SET state = $1, times_sent = times_sent + 1 WHERE event_id = $2`
	}

	cmdTag, err := s.db.Querier(ctx).Exec(ctx, query, state, eventID)
	if err != nil {
		return fmt.Errorf("failed to transition event %s to %s: %w", eventID, state, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", eventID, eventlog.ErrNotFound)
	}
	return nil
}
