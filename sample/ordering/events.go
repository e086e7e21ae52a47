package ordering

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evermart/eventflow/event"
)

// OrderLine is one purchased item inside an order event payload.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Units     int             `json:"units"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderStarted announces that a buyer submitted a new order.
type OrderStarted struct {
	event.BaseEvent
	OrderID uuid.UUID   `json:"order_id"`
	BuyerID string      `json:"buyer_id"`
	Lines   []OrderLine `json:"lines"`
}

func (OrderStarted) EventType() string { return "OrderStarted" }

// OrderStatusChangedToPaid announces that payment for an order succeeded.
type OrderStatusChangedToPaid struct {
	event.BaseEvent
	OrderID uuid.UUID       `json:"order_id"`
	BuyerID string          `json:"buyer_id"`
	Total   decimal.Decimal `json:"total"`
}

func (OrderStatusChangedToPaid) EventType() string { return "OrderStatusChangedToPaid" }

// RegisterEvents adds the ordering event decoders to a registry.
func RegisterEvents(r *event.Registry) {
	event.Register[OrderStarted](r)
	event.Register[OrderStatusChangedToPaid](r)
}
