package ordering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evermart/eventflow/infra/postgres"
)

// Order statuses.
const (
	StatusSubmitted = "Submitted"
	StatusPaid      = "Paid"
)

// Order is the sample domain record.
type Order struct {
	ID        uuid.UUID
	BuyerID   string
	Status    string
	Total     decimal.Decimal
	CreatedAt time.Time
}

// Store persists orders. All operations join an enclosing transaction when
// one is present in the context.
type Store struct {
	db *postgres.DB
}

func NewStore(db *postgres.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, order Order) error {
	query := `INSERT INTO orders (id, buyer_id, status, total, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Querier(ctx).
		Exec(ctx, query, order.ID, order.BuyerID, order.Status, order.Total, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	query := `UPDATE orders SET status = $1 WHERE id = $2`
	cmdTag, err := s.db.Querier(ctx).Exec(ctx, query, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("order %s does not exist", orderID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, orderID uuid.UUID) (Order, error) {
	var order Order
	query := `SELECT id, buyer_id, status, total, created_at FROM orders WHERE id = $1`
	err := s.db.Querier(ctx).QueryRow(ctx, query, orderID).
		Scan(&order.ID, &order.BuyerID, &order.Status, &order.Total, &order.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return order, nil
}
