package ordering

import (
	"context"
	"fmt"

	"github.com/evermart/eventflow/event"
	"github.com/evermart/eventflow/eventbus"
)

// PaymentHandler reacts to OrderStarted by settling payment immediately (the
// sample has no real payment provider) and marking the order paid. The
// command id is the event id, so broker redelivery of the same event cannot
// pay an order twice.
func PaymentHandler(service *Service) eventbus.Handler {
	return func(ctx context.Context, evt event.IntegrationEvent) error {
		started, ok := evt.(OrderStarted)
		if !ok {
			return fmt.Errorf("unexpected event %T for payment handler", evt)
		}
		return service.SetPaid(ctx, SetPaidCommand{
			ID:      started.EventID(),
			OrderID: started.OrderID,
		})
	}
}
