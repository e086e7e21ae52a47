package ordering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evermart/eventflow/event"
	"github.com/evermart/eventflow/idempotency"
	"github.com/evermart/eventflow/publisher"
)

// SetPaidCommand marks an order as paid. Its correlation id is the id of the
// payment event that triggered it, so a redelivered event maps to the same
// command and is rejected by the idempotency guard.
type SetPaidCommand struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	TransactionID uuid.UUID
}

func (c SetPaidCommand) CommandID() uuid.UUID { return c.ID }
func (c SetPaidCommand) CommandName() string  { return "SetPaid" }

// Service drives the sample order flow: placing an order captures the
// OrderStarted event atomically with the order row; marking it paid runs
// through the idempotent command handler and captures the paid event the same
// way. Both paths drain their own batch right after commit.
type Service struct {
	orders      *Store
	publisher   *publisher.Publisher
	transactor  idempotency.Transactor
	paidHandler *idempotency.CommandHandler[SetPaidCommand]
}

func NewService(
	orders *Store,
	pub *publisher.Publisher,
	transactor idempotency.Transactor,
	guard idempotency.Guard,
) *Service {
	s := &Service{
		orders:     orders,
		publisher:  pub,
		transactor: transactor,
	}
	s.paidHandler = idempotency.NewCommandHandler(guard, transactor, s.setPaid)
	return s
}

// PlaceOrder persists a new order and its OrderStarted event in one
// transaction, then publishes the batch.
func (s *Service) PlaceOrder(ctx context.Context, buyerID string, lines []OrderLine) (uuid.UUID, error) {
	orderID := uuid.New()
	transactionID := uuid.New()

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Units))))
	}

	err := s.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		order := Order{
			ID:        orderID,
			BuyerID:   buyerID,
			Status:    StatusSubmitted,
			Total:     total,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}

		evt := OrderStarted{
			BaseEvent: event.NewBaseEvent(),
			OrderID:   orderID,
			BuyerID:   buyerID,
			Lines:     lines,
		}
		return s.publisher.AddAndSave(txCtx, evt, transactionID)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to place order: %w", err)
	}

	// Best effort: anything left behind here is picked up by the sweeper.
	if err := s.publisher.PublishPending(ctx, transactionID); err != nil {
		slog.WarnContext(ctx, "Failed to drain order events", "error", err, "orderID", orderID)
	}

	slog.InfoContext(ctx, "Order placed", "orderID", orderID, "buyerID", buyerID, "total", total)
	return orderID, nil
}

// SetPaid applies the payment outcome to an order, deduplicated on the
// command id.
func (s *Service) SetPaid(ctx context.Context, cmd SetPaidCommand) error {
	cmd.TransactionID = uuid.New()
	if err := s.paidHandler.Handle(ctx, cmd); err != nil {
		return err
	}
	if err := s.publisher.PublishPending(ctx, cmd.TransactionID); err != nil {
		slog.WarnContext(ctx, "Failed to drain payment events", "error", err, "orderID", cmd.OrderID)
	}
	return nil
}

// setPaid is the business logic executed inside the command transaction.
func (s *Service) setPaid(ctx context.Context, cmd SetPaidCommand) error {
	if err := s.orders.SetStatus(ctx, cmd.OrderID, StatusPaid); err != nil {
		return err
	}

	order, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}

	evt := OrderStatusChangedToPaid{
		BaseEvent: event.NewBaseEvent(),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Total:     order.Total,
	}
	return s.publisher.AddAndSave(ctx, evt, cmd.TransactionID)
}
