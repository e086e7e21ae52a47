package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Transactor defines an interface for an object that can execute a function
// within a transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sweeper is a background worker that re-drives event-log entries whose
// publish failed, and entries left unpublished by a producer that died
// between commit and drain. Each batch is fetched and locked inside a
// transaction, so multiple sweeper instances never pick the same entry.
type Sweeper struct {
	publisher  *Publisher
	transactor Transactor
	batchSize  int
	interval   time.Duration
	stale      time.Duration
	wg         sync.WaitGroup
	quit       chan struct{}
}

// NewSweeper creates a new Sweeper. stale is the age past which a
// NotPublished entry is presumed orphaned and eligible for the sweep.
func NewSweeper(
	publisher *Publisher,
	transactor Transactor,
	batchSize int,
	interval, stale time.Duration,
) *Sweeper {
	return &Sweeper{
		publisher:  publisher,
		transactor: transactor,
		batchSize:  batchSize,
		interval:   interval,
		stale:      stale,
		quit:       make(chan struct{}),
	}
}

// Start begins the sweeper's polling process in a separate goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.InfoContext(ctx, "Event log sweeper started")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.sweep(ctx); err != nil {
					slog.ErrorContext(ctx, "Failed to sweep event log", "error", err)
				}
			case <-s.quit:
				slog.InfoContext(ctx, "Event log sweeper shutting down")
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, event log sweeper shutting down")
				return
			}
		}
	}()
}

// sweep re-drives one batch. The row locks taken by PendingForRetry are held
// until the surrounding transaction commits, covering the whole drain.
func (s *Sweeper) sweep(ctx context.Context) error {
	return s.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := s.publisher.store.PendingForRetry(txCtx, s.batchSize, s.stale)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		slog.DebugContext(txCtx, "Retrying failed events", "count", len(entries))
		s.publisher.drain(txCtx, entries)
		return nil
	})
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.quit)
	s.wg.Wait()
}
