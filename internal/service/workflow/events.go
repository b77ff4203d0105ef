package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// orderEvent задаёт payload outbox-сообщения об изменении заказа.
type orderEvent struct {
	OrderID         string    `json:"order_id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	TotalAmount     string    `json:"total_amount"`
	RefundReference string    `json:"refund_reference,omitempty"`
	SellerID        string    `json:"seller_id,omitempty"`
	ItemID          string    `json:"item_id,omitempty"`
	ItemStatus      string    `json:"item_status,omitempty"`
	ReturnRequestID string    `json:"return_request_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func eventFor(order domain.Order) orderEvent {
	return orderEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		TotalAmount:     order.TotalAmount.StringFixed(2),
		RefundReference: order.RefundReference,
	}
}

func itemEventFor(order domain.Order, item domain.OrderItem) orderEvent {
	event := eventFor(order)
	event.SellerID = item.SellerID
	event.ItemID = item.ID
	event.ItemStatus = string(item.Status)
	return event
}

// emit пишет outbox-сообщение и запись timeline в текущую транзакцию.
func (e *Engine) emit(ctx context.Context, tx *txn, eventType domain.EventType, event orderEvent) error {
	event.OccurredAt = e.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if _, err := tx.Outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            e.newID(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   event.OrderID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	if err := tx.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  event.OrderID,
		Type:     string(eventType),
		Reason:   event.Reason,
		Occurred: event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("append %s to timeline: %w", eventType, err)
	}

	tx.events++
	return nil
}
