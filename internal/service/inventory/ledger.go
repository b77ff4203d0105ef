package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// StockObserver получает уведомления об изменении остатков (метрики).
type StockObserver interface {
	StockReserved(units int)
	StockRestored(units int)
}

// Ledger единственный меняет остатки товаров в сценариях заказа и возврата.
// Все методы работают внутри транзакции вызывающего: им передаётся ProductRepository,
// привязанный к текущему UnitOfWork.
type Ledger struct {
	logger   *log.Entry
	observer StockObserver
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver подключает наблюдателя за остатками.
func WithObserver(observer StockObserver) Option {
	return func(l *Ledger) {
		l.observer = observer
	}
}

// NewLedger создаёт Ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{logger: log.WithField("component", "inventory-ledger")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve списывает остаток под каждую строку. Ошибка любой строки возвращается как есть,
// откат уже списанных строк обеспечивает транзакция.
func (l *Ledger) Reserve(ctx context.Context, products domain.ProductRepository, lines []domain.CartLine) error {
	units := 0
	for _, line := range lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %s must be positive", domain.ErrInvalidArgument, line.ProductID)
		}
		if err := products.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			l.logger.WithFields(log.Fields{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			}).WithError(err).Warn("stock reservation rejected")
			return fmt.Errorf("reserve stock: %w", err)
		}
		units += line.Quantity
	}

	if l.observer != nil {
		l.observer.StockReserved(units)
	}
	return nil
}

// Restore возвращает qty единиц товара на склад.
func (l *Ledger) Restore(ctx context.Context, products domain.ProductRepository, productID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := products.IncrementStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("restore stock for product %s: %w", productID, err)
	}

	l.logger.WithFields(log.Fields{
		"product_id": productID,
		"quantity":   qty,
	}).Debug("stock restored")
	if l.observer != nil {
		l.observer.StockRestored(qty)
	}
	return nil
}

// RestoreItem возвращает на склад количество позиции заказа.
func (l *Ledger) RestoreItem(ctx context.Context, products domain.ProductRepository, item domain.OrderItem) error {
	return l.Restore(ctx, products, item.ProductID, item.Quantity)
}
