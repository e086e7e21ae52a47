package idempotency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermart/eventflow/idempotency"
)

// memoryGuard is an in-memory Guard where the insert is the atomic check,
// mirroring the unique-constraint behavior of the real store.
type memoryGuard struct {
	requests map[uuid.UUID]string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{requests: make(map[uuid.UUID]string)}
}

func (g *memoryGuard) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := g.requests[id]
	return ok, nil
}

func (g *memoryGuard) CreateForCommand(ctx context.Context, commandName string, id uuid.UUID) error {
	if _, ok := g.requests[id]; ok {
		return idempotency.ErrDuplicateRequest
	}
	g.requests[id] = commandName
	return nil
}

// memoryTransactor runs fn directly and rolls the guard back to its previous
// state when fn fails, imitating transactional fate-sharing.
type memoryTransactor struct {
	guard *memoryGuard
}

func (t *memoryTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[uuid.UUID]string, len(t.guard.requests))
	for k, v := range t.guard.requests {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		t.guard.requests = snapshot
		return err
	}
	return nil
}

type testCommand struct {
	id uuid.UUID
}

func (c testCommand) CommandID() uuid.UUID { return c.id }
func (c testCommand) CommandName() string  { return "TestCommand" }

func TestCommandHandler_RunsBusinessLogicOnce(t *testing.T) {
	// GIVEN
	guard := newMemoryGuard()
	transactor := &memoryTransactor{guard: guard}
	calls := 0
	handler := idempotency.NewCommandHandler(guard, transactor, func(ctx context.Context, cmd testCommand) error {
		calls++
		return nil
	})
	cmd := testCommand{id: uuid.New()}

	// WHEN the command is delivered twice
	require.NoError(t, handler.Handle(context.Background(), cmd))
	require.NoError(t, handler.Handle(context.Background(), cmd), "a duplicate is not an error for the caller")

	// THEN business effects happened exactly once
	assert.Equal(t, 1, calls)
}

func TestCommandHandler_FailedAttemptLeavesNoMarker(t *testing.T) {
	// GIVEN business logic that keeps failing
	guard := newMemoryGuard()
	transactor := &memoryTransactor{guard: guard}
	boom := errors.New("inventory service down")
	calls := 0
	handler := idempotency.NewCommandHandler(
		guard,
		transactor,
		func(ctx context.Context, cmd testCommand) error {
			calls++
			return boom
		},
		idempotency.WithMaxElapsedTime[testCommand](300*time.Millisecond),
	)
	cmd := testCommand{id: uuid.New()}

	// WHEN
	err := handler.Handle(context.Background(), cmd)

	// THEN the failure surfaces after retries, and the rolled-back marker
	// leaves the command eligible for a clean redelivery
	require.ErrorIs(t, err, boom)
	assert.GreaterOrEqual(t, calls, 1)

	exists, err := guard.Exists(context.Background(), cmd.CommandID())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCommandHandler_RetriesUntilSuccess(t *testing.T) {
	// GIVEN business logic that fails twice before succeeding
	guard := newMemoryGuard()
	transactor := &memoryTransactor{guard: guard}
	calls := 0
	handler := idempotency.NewCommandHandler(
		guard,
		transactor,
		func(ctx context.Context, cmd testCommand) error {
			calls++
			if calls < 3 {
				return errors.New("transient hiccup")
			}
			return nil
		},
		idempotency.WithMaxElapsedTime[testCommand](10*time.Second),
	)
	cmd := testCommand{id: uuid.New()}

	// WHEN
	err := handler.Handle(context.Background(), cmd)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	exists, err := guard.Exists(context.Background(), cmd.CommandID())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCommandHandler_DuplicateRejectedBeforeBusinessEffects(t *testing.T) {
	// GIVEN a command id that was already accepted
	guard := newMemoryGuard()
	transactor := &memoryTransactor{guard: guard}
	cmd := testCommand{id: uuid.New()}
	require.NoError(t, guard.CreateForCommand(context.Background(), cmd.CommandName(), cmd.CommandID()))

	calls := 0
	handler := idempotency.NewCommandHandler(guard, transactor, func(ctx context.Context, cmd testCommand) error {
		calls++
		return nil
	})

	// WHEN
	err := handler.Handle(context.Background(), cmd)

	// THEN the caller sees success, business logic never ran
	require.NoError(t, err)
	assert.Zero(t, calls)
}
