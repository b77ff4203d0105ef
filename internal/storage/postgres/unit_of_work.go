package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Do выполняет fn в одной транзакции READ COMMITTED.
// Заказ внутри транзакции читается с блокировкой строки (FOR UPDATE),
// поэтому операции над одним заказом сериализуются.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(txCtx, repositoriesFor(tx, true)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// View выполняет fn в READ ONLY транзакции без FOR UPDATE, поэтому чтение
// не ждёт транзакций, которые держат блокировку заказа.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(txCtx, repositoriesFor(tx, false))
}

// Outbox возвращает outbox-репозиторий вне транзакций (для воркера публикации).
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: s.db, standalone: true}
}

// Carts возвращает корзины пользователей.
func (s *Store) Carts() domain.CartService {
	return &cartService{db: s.db}
}

// Addresses возвращает справочник адресов.
func (s *Store) Addresses() domain.AddressResolver {
	return &addressResolver{db: s.db}
}

func repositoriesFor(q queryer, lock bool) domain.Repositories {
	return domain.Repositories{
		Orders:   &orderRepository{q: q, lock: lock},
		Products: &productRepository{q: q},
		Returns:  &returnRequestRepository{q: q, lock: lock},
		Outbox:   &outboxRepository{q: q},
		Timeline: &timelineRepository{q: q},
	}
}

var _ domain.UnitOfWork = (*Store)(nil)
