package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepository пишет в снимок транзакции.
type outboxRepository struct {
	st *state
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	records := r.pending()
	if len(records) > limit {
		records = records[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	records := r.pending()
	stats := domain.OutboxStats{PendingCount: len(records)}
	if len(records) > 0 {
		stats.OldestPendingAt = records[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	record, ok := r.st.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.st.outbox[id] = record
	return nil
}

func (r *outboxRepository) pending() []outboxRecord {
	records := make([]outboxRecord, 0)
	for _, rec := range r.st.outbox {
		if rec.status == outboxStatusPending {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].createdAt.Equal(records[j].createdAt) {
			return records[i].createdAt.Before(records[j].createdAt)
		}
		return records[i].msg.ID < records[j].msg.ID
	})
	return records
}

// lockedOutbox даёт воркеру доступ к outbox вне транзакций.
type lockedOutbox struct {
	store *Store
}

func (l *lockedOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	var out domain.OutboxMessage
	err := l.store.withState(func(st *state) error {
		var err error
		out, err = (&outboxRepository{st: st}).Enqueue(ctx, msg)
		return err
	})
	return out, err
}

func (l *lockedOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := l.store.withState(func(st *state) error {
		var err error
		out, err = (&outboxRepository{st: st}).PullPending(ctx, limit)
		return err
	})
	return out, err
}

func (l *lockedOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var out domain.OutboxStats
	err := l.store.withState(func(st *state) error {
		var err error
		out, err = (&outboxRepository{st: st}).Stats(ctx)
		return err
	})
	return out, err
}

func (l *lockedOutbox) MarkSent(ctx context.Context, id string) error {
	return l.store.withState(func(st *state) error {
		return (&outboxRepository{st: st}).MarkSent(ctx, id)
	})
}

func (l *lockedOutbox) MarkFailed(ctx context.Context, id string) error {
	return l.store.withState(func(st *state) error {
		return (&outboxRepository{st: st}).MarkFailed(ctx, id)
	})
}

var (
	_ domain.OutboxRepository = (*outboxRepository)(nil)
	_ domain.OutboxRepository = (*lockedOutbox)(nil)
)
