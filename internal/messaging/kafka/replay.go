package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const defaultReplayIdleTimeout = 2 * time.Second

// ErrNotDeadLetter означает, что сообщение в DLQ не содержит исходного события.
var ErrNotDeadLetter = errors.New("message is not an outbox dead letter")

// NewConsumer создаёт consumer для чтения партиций напрямую, без consumer group.
func NewConsumer(brokers []string, clientID string) (sarama.Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return consumer, nil
}

// DecodeDeadLetter разбирает Envelope из DLQ и достаёт из него исходное событие.
func DecodeDeadLetter(value []byte) (domain.DeadLetter, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("decode dlq envelope: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return domain.DeadLetter{}, ErrNotDeadLetter
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if letter.OutboxID == "" || len(letter.Payload) == 0 {
		return domain.DeadLetter{}, ErrNotDeadLetter
	}
	return letter, nil
}

// ReplayStats хранит итоги прохода по DLQ.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

// Replayer перечитывает DLQ и возвращает события в topic через publisher.
type Replayer struct {
	consumer    sarama.Consumer
	publisher   domain.OutboxPublisher
	topic       string
	idleTimeout time.Duration
	logger      *log.Entry
}

// NewReplayer создаёт Replayer для topic; nil publisher означает dry-run.
func NewReplayer(consumer sarama.Consumer, publisher domain.OutboxPublisher, topic string, idleTimeout time.Duration) *Replayer {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if idleTimeout <= 0 {
		idleTimeout = defaultReplayIdleTimeout
	}
	return &Replayer{
		consumer:    consumer,
		publisher:   publisher,
		topic:       topic,
		idleTimeout: idleTimeout,
		logger:      log.WithField("component", "dlq-replayer"),
	}
}

// Replay читает не больше limit сообщений с начала партиций DLQ.
// Партиция считается вычитанной, когда новых сообщений нет дольше idleTimeout.
func (r *Replayer) Replay(ctx context.Context, limit int) (ReplayStats, error) {
	var stats ReplayStats
	if limit <= 0 {
		return stats, fmt.Errorf("limit must be > 0")
	}

	partitions, err := r.consumer.Partitions(r.topic)
	if err != nil {
		return stats, fmt.Errorf("get partitions for topic %s: %w", r.topic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if stats.Processed >= limit {
			break
		}
		if err := r.replayPartition(ctx, partition, limit, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (r *Replayer) replayPartition(ctx context.Context, partition int32, limit int, stats *ReplayStats) error {
	pc, err := r.consumer.ConsumePartition(r.topic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	messages, consumerErrors := pc.Messages(), pc.Errors()
	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cerr, ok := <-consumerErrors:
			if !ok {
				consumerErrors = nil
				continue
			}
			return fmt.Errorf("partition %d consumer error: %w", partition, cerr)
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := r.handle(msg, stats); err != nil {
				return err
			}
		case <-time.After(r.idleTimeout):
			return nil
		}
	}
	return nil
}

func (r *Replayer) handle(msg *sarama.ConsumerMessage, stats *ReplayStats) error {
	stats.Processed++
	entry := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	letter, err := DecodeDeadLetter(msg.Value)
	if err != nil {
		stats.Skipped++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"outbox_id":     letter.OutboxID,
		"event_type":    letter.EventType,
		"publish_error": letter.PublishError,
	})
	if r.publisher == nil {
		stats.Replayed++
		entry.Info("dlq replay candidate")
		return nil
	}

	if err := r.publisher.Publish(letter.Message()); err != nil {
		return fmt.Errorf("replay outbox message %s: %w", letter.OutboxID, err)
	}
	stats.Replayed++
	entry.Info("dlq message replayed")
	return nil
}
