package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Transactor defines an interface for an object that can execute a function
// within a transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Command is a request to change state, carrying the correlation id used for
// deduplication.
type Command interface {
	CommandID() uuid.UUID
	CommandName() string
}

// CommandHandler is a decorator that wraps a business logic handler with the
// idempotency guard and retry logic. The guard insert is the first action
// inside the handler's transaction, so a redelivered command is rejected
// before it can cause a second effect.
type CommandHandler[C Command] struct {
	guard          Guard
	transactor     Transactor
	handler        func(ctx context.Context, cmd C) error
	maxElapsedTime time.Duration
}

// HandlerOption configures a CommandHandler.
type HandlerOption[C Command] func(*CommandHandler[C])

// WithMaxElapsedTime bounds the total time spent retrying one command.
func WithMaxElapsedTime[C Command](maxElapsedTime time.Duration) HandlerOption[C] {
	return func(h *CommandHandler[C]) {
		h.maxElapsedTime = maxElapsedTime
	}
}

// NewCommandHandler creates a new idempotent command handler.
func NewCommandHandler[C Command](
	guard Guard,
	transactor Transactor,
	handler func(ctx context.Context, cmd C) error,
	opts ...HandlerOption[C],
) *CommandHandler[C] {
	h := &CommandHandler[C]{
		guard:          guard,
		transactor:     transactor,
		handler:        handler,
		maxElapsedTime: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes a command with deduplication and retry logic.
func (h *CommandHandler[C]) Handle(ctx context.Context, cmd C) error {
	operation := func() (any, error) {
		txErr := h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			// Record the command id before any business mutation. A duplicate
			// rolls the whole transaction back with no effect.
			if err := h.guard.CreateForCommand(txCtx, cmd.CommandName(), cmd.CommandID()); err != nil {
				return err
			}
			if err := h.handler(txCtx, cmd); err != nil {
				return fmt.Errorf("handler business logic failed: %w", err)
			}
			return nil
		})

		if txErr != nil && (errors.Is(txErr, ErrDuplicateRequest) || errors.Is(txErr, context.Canceled)) {
			return nil, backoff.Permanent(txErr)
		}
		return nil, txErr
	}

	bo := backoff.NewExponentialBackOff()

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(h.maxElapsedTime))
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			slog.WarnContext(
				ctx,
				"Command already handled, skipping",
				"commandID",
				cmd.CommandID(),
				"command",
				cmd.CommandName(),
			)
			return nil
		}
		slog.ErrorContext(
			ctx,
			"Failed to process command after multiple retries",
			"error",
			err,
			"commandID",
			cmd.CommandID(),
			"command",
			cmd.CommandName(),
		)
		return err
	}

	slog.InfoContext(ctx, "Command processed", "commandID", cmd.CommandID(), "command", cmd.CommandName())
	return nil
}
