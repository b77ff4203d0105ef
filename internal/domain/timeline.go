package domain

import "time"

// EventType задаёт тип события жизненного цикла заказа (outbox + timeline).
type EventType string

const (
	EventOrderCreated        EventType = "order.created"
	EventOrderStatusOverride EventType = "order.status_overridden"
	EventOrderCanceled       EventType = "order.canceled"
	EventOrderSellerCanceled EventType = "order.canceled_by_seller"
	EventOrderDeleted        EventType = "order.deleted"
	EventItemStatusChanged   EventType = "item.status_changed"
	EventItemRefunded        EventType = "item.refunded"
	EventReturnRequested     EventType = "return.requested"
	EventReturnApproved      EventType = "return.approved"
	EventReturnRejected      EventType = "return.rejected"
	EventRefundManualReview  EventType = "refund.manual_review_required"
)

// AggregateOrder задаёт тип агрегата в outbox-сообщениях.
const AggregateOrder = "order"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
