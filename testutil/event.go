package testutil

import (
	"github.com/google/uuid"

	"github.com/evermart/eventflow/event"
)

// StockConfirmed is a minimal integration event used across tests.
type StockConfirmed struct {
	event.BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	SKU     string    `json:"sku"`
}

func (StockConfirmed) EventType() string { return "StockConfirmed" }
