// Package notifications bridges bus events to the in-process fan-out hub so
// presentation-layer listeners (e.g. open connections for a buyer) learn
// about order status changes.
package notifications

import (
	"context"
	"fmt"

	"github.com/evermart/eventflow/event"
	"github.com/evermart/eventflow/eventbus"
	"github.com/evermart/eventflow/notify"
	"github.com/evermart/eventflow/sample/ordering"
)

// Notifier pushes order status changes to everyone subscribed under the
// buyer's key.
type Notifier struct {
	hub *notify.Hub
}

func New(hub *notify.Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Subscribe registers a callback for one buyer. The returned handle removes
// it again; a buyer may hold several subscriptions at once.
func (n *Notifier) Subscribe(buyerID string, callback notify.Callback) *notify.Subscription {
	return n.hub.Subscribe(buyerID, callback)
}

// OrderPaidHandler fans the paid notification out to the buyer's
// subscriptions.
func (n *Notifier) OrderPaidHandler() eventbus.Handler {
	return func(ctx context.Context, evt event.IntegrationEvent) error {
		paid, ok := evt.(ordering.OrderStatusChangedToPaid)
		if !ok {
			return fmt.Errorf("unexpected event %T for order paid handler", evt)
		}
		n.hub.Notify(ctx, paid.BuyerID)
		return nil
	}
}
