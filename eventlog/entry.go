package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/evermart/eventflow/event"
)

// State tracks where an event-log entry is in its publish lifecycle.
// Transitions move forward only, except that a failed entry may re-enter
// InProgress on a later retry sweep.
type State string

const (
	StateNotPublished    State = "NotPublished"
	StateInProgress      State = "InProgress"
	StatePublished       State = "Published"
	StatePublishedFailed State = "PublishedFailed"
)

// ErrNotFound is returned by state-transition operations when no entry exists
// for the given event id.
var ErrNotFound = errors.New("event log entry not found")

// Entry is one outbox row: an integration event captured in the same
// transaction as the state change it describes. Entries are never deleted;
// the log doubles as an audit trail of everything the service has announced.
type Entry struct {
	EventID       uuid.UUID
	EventTypeName string
	Content       json.RawMessage
	TransactionID uuid.UUID
	State         State
	TimesSent     int
	CreationTime  time.Time
}

// NewEntry captures an integration event for the given originating
// transaction. Serialization happens here so the entry is self-contained
// once the transaction commits.
func NewEntry(evt event.IntegrationEvent, transactionID uuid.UUID) (Entry, error) {
	content, err := json.Marshal(evt)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		EventID:       evt.EventID(),
		EventTypeName: evt.EventType(),
		Content:       content,
		TransactionID: transactionID,
		State:         StateNotPublished,
		TimesSent:     0,
		CreationTime:  evt.CreationTime(),
	}, nil
}

// Store is the persistence contract for the event log.
//
// Append must run inside the caller's transaction (threaded through the
// context) so the entry and the business mutation share fate. The state
// transitions run outside any transaction; they are driven by the publisher
// after the originating transaction has committed.
type Store interface {
	// Append writes one entry with state NotPublished inside the
	// caller-supplied transaction context.
	Append(ctx context.Context, entry Entry) error

	// PendingForTransaction returns the entries appended by one transaction,
	// in creation order.
	PendingForTransaction(ctx context.Context, transactionID uuid.UUID) ([]Entry, error)

	// PendingForRetry fetches and locks up to limit entries that failed to
	// publish, or that were left NotPublished longer than stale (the
	// producing process died between commit and drain). Safe to call from
	// multiple sweeper instances concurrently.
	PendingForRetry(ctx context.Context, limit int, stale time.Duration) ([]Entry, error)

	// MarkInProgress moves an entry into InProgress and increments its
	// attempt counter. Returns ErrNotFound for an unknown event id.
	MarkInProgress(ctx context.Context, eventID uuid.UUID) error

	// MarkPublished records a successful publish. Returns ErrNotFound for an
	// unknown event id.
	MarkPublished(ctx context.Context, eventID uuid.UUID) error

	// MarkFailed records a failed publish attempt. Returns ErrNotFound for an
	// unknown event id.
	MarkFailed(ctx context.Context, eventID uuid.UUID) error
}
