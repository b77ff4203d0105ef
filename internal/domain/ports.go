package domain

import (
	"context"
	"encoding/json"
	"time"
)

// PaymentGateway описывает взаимодействие с внешним платёжным провайдером.
type PaymentGateway interface {
	// ResolveCheckoutSession возвращает идентификатор платежа, привязанного к checkout-сессии.
	ResolveCheckoutSession(ctx context.Context, sessionID string) (string, error)
	// CreateRefund создаёт возврат по прямой ссылке на платёж.
	CreateRefund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// CartService — внешняя корзина пользователя.
type CartService interface {
	Lines(ctx context.Context, userID string) ([]CartLine, error)
	Clear(ctx context.Context, userID string) error
}

// AddressResolver находит адрес доставки пользователя; для чужого или отсутствующего адреса возвращает ErrNotFound.
type AddressResolver interface {
	Resolve(ctx context.Context, userID, addressID string) (Address, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// DeadLetter описывает содержимое сообщения в DLQ: исходное событие и причина отказа публикации.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// Message восстанавливает исходное outbox-сообщение.
func (d DeadLetter) Message() OutboxMessage {
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
