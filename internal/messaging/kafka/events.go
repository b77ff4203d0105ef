package kafka

import (
	"encoding/json"
	"time"
)

// Topics сервиса.
const (
	TopicOrderEvents     = "fulfillment.order.events"
	TopicDeadLetterQueue = "fulfillment.dlq"
)

// Заголовки, с которыми публикуются события.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
)

// Envelope — формат сообщения в topic событий заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}
