// Package idempotency keeps redelivered commands from causing duplicate
// business effects. A command id is recorded, inside the command's own
// transaction, before any mutation runs; at-least-once delivery then degrades
// to at-most-once effects.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateRequest signals that a command with the same correlation id has
// already been accepted. Callers must treat this as "already handled" and
// skip business effects, not as a fault.
var ErrDuplicateRequest = errors.New("duplicate client request")

// ClientRequest is the persisted idempotency marker. Created once per
// accepted command, never updated; its existence is the sole duplicate signal.
type ClientRequest struct {
	ID   uuid.UUID
	Name string
	Time time.Time
}

// Guard tracks processed command identifiers.
type Guard interface {
	// Exists probes whether the command id has been recorded.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// CreateForCommand records the command id, returning ErrDuplicateRequest
	// if it was recorded before. The insert is atomic: concurrent duplicate
	// deliveries resolve to exactly one success.
	CreateForCommand(ctx context.Context, commandName string, id uuid.UUID) error
}
