package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus описывает состояние отдельной позиции заказа.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusPreparing ItemStatus = "PREPARING"
	ItemStatusShipped   ItemStatus = "SHIPPED"
	ItemStatusDelivered ItemStatus = "DELIVERED"
	ItemStatusCancelled ItemStatus = "CANCELLED"
	ItemStatusRefunded  ItemStatus = "REFUNDED"
	ItemStatusReturned  ItemStatus = "RETURNED"
)

// itemTransitions — допустимые прямые переходы. DELIVERED и терминальные статусы
// не имеют исходящих рёбер: из DELIVERED выводит только сценарий возврата.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusPending:   {ItemStatusPreparing, ItemStatusCancelled},
	ItemStatusPreparing: {ItemStatusShipped, ItemStatusCancelled},
	ItemStatusShipped:   {ItemStatusDelivered, ItemStatusCancelled},
}

// Valid проверяет, что статус входит в перечисление.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusPreparing, ItemStatusShipped, ItemStatusDelivered,
		ItemStatusCancelled, ItemStatusRefunded, ItemStatusReturned:
		return true
	default:
		return false
	}
}

// IsActive сообщает, находится ли позиция в работе у продавца.
func (s ItemStatus) IsActive() bool {
	return s == ItemStatusPending || s == ItemStatusPreparing || s == ItemStatusShipped
}

// IsTerminal сообщает, что из статуса нет никаких переходов.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusCancelled || s == ItemStatusRefunded || s == ItemStatusReturned
}

// ParseItemStatus разбирает строковое представление статуса позиции.
func ParseItemStatus(raw string) (ItemStatus, error) {
	status := ItemStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown item status %q", ErrInvalidArgument, raw)
	}
	return status, nil
}

// CanTransition проверяет ребро по таблице прямых переходов.
func CanTransition(from, to ItemStatus) bool {
	for _, allowed := range itemTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition возвращает ErrInvalidTransition для ребра вне таблицы.
// Переход в PENDING запрещён из любого статуса.
func ValidateTransition(from, to ItemStatus) error {
	if to == ItemStatusPending {
		return fmt.Errorf("%w: no status can revert to %s", ErrInvalidTransition, ItemStatusPending)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	// SellerID фиксируется при оформлении вместе с ценой.
	SellerID string
	Quantity int
	// UnitPrice — цена за единицу на момент покупки, не меняется.
	UnitPrice        decimal.Decimal
	Status           ItemStatus
	Refunded         bool
	RefundDate       *time.Time
	RefundReason     string
	HasReturnRequest bool
	CreatedAt        time.Time
}

// Subtotal возвращает стоимость позиции: цена × количество.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MarkRefunded переводит позицию в REFUNDED и проставляет реквизиты возврата.
func (i *OrderItem) MarkRefunded(reason string, at time.Time) {
	refundDate := at
	i.Status = ItemStatusRefunded
	i.Refunded = true
	i.RefundDate = &refundDate
	i.RefundReason = reason
}
