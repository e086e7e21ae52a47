package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRetriesExhausted is returned when a transaction kept failing with
// transient infrastructure faults until the retry budget ran out.
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// ResilientTransactor retries an entire transaction, including re-opening it,
// when it fails with a transient infrastructure fault. Business errors are
// never retried. Because retry restarts from Begin, the wrapped function must
// be safe to execute more than once up to the point of successful commit.
type ResilientTransactor struct {
	db             *DB
	maxElapsedTime time.Duration
}

// TransactorOption configures a ResilientTransactor.
type TransactorOption func(*ResilientTransactor)

// WithMaxElapsedTime bounds the total time spent retrying one transaction.
func WithMaxElapsedTime(maxElapsedTime time.Duration) TransactorOption {
	return func(t *ResilientTransactor) {
		t.maxElapsedTime = maxElapsedTime
	}
}

// NewResilientTransactor creates a transactor with exponential backoff and a
// default retry budget of 30 seconds.
func NewResilientTransactor(db *DB, opts ...TransactorOption) *ResilientTransactor {
	t := &ResilientTransactor{
		db:             db,
		maxElapsedTime: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTransaction implements the Transactor contract with retry semantics.
func (t *ResilientTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	operation := func() (any, error) {
		err := t.db.WithTransaction(ctx, fn)
		if err == nil {
			return nil, nil
		}
		if !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "Transient fault in transaction, will retry", "error", err)
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(t.maxElapsedTime))
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	return err
}

// IsTransient classifies an error as a transient infrastructure fault:
// connectivity loss, serialization conflicts and deadlocks. Anything else is
// treated as a business or persistence error and surfaced immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"57P03": // cannot_connect_now
			return true
		}
		// Class 08: connection exceptions.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
