package event

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationEvent is the interface all cross-service notifications implement.
// An integration event describes something that already happened inside the
// producing service's boundary.
type IntegrationEvent interface {
	EventID() uuid.UUID
	CreationTime() time.Time
	EventType() string
}

// BaseEvent provides a common implementation for the IntegrationEvent interface.
// Concrete events embed this struct to reduce boilerplate.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBaseEvent assigns the immutable identity of a fresh integration event:
// a new id and a UTC creation timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
	}
}

func (b BaseEvent) EventID() uuid.UUID      { return b.ID }
func (b BaseEvent) CreationTime() time.Time { return b.CreatedAt }
