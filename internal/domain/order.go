package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает агрегированный статус заказа.
type OrderStatus string

const (
	// OrderStatusReceived: хотя бы одна позиция ещё в работе (PENDING/PREPARING/SHIPPED).
	OrderStatusReceived OrderStatus = "RECEIVED"
	// OrderStatusDelivered: активных позиций нет, есть доставленные.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCanceled: заказ отменён.
	OrderStatusCanceled OrderStatus = "CANCELED"
	// OrderStatusRefunded выставляется только административно.
	OrderStatusRefunded OrderStatus = "REFUNDED"
	// OrderStatusReturned: все позиции возвращены или по ним оформлен возврат средств.
	OrderStatusReturned OrderStatus = "RETURNED"
)

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusDelivered, OrderStatusCanceled, OrderStatusRefunded, OrderStatusReturned:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает строковое представление статуса заказа.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidArgument, raw)
	}
	return status, nil
}

// Order агрегирует состояние заказа и его позиции.
// Позиции и заявки на возврат принадлежат заказу и удаляются вместе с ним.
type Order struct {
	ID               string
	UserID           string
	AddressID        string
	Status           OrderStatus
	TotalAmount      decimal.Decimal
	Items            []OrderItem
	PaymentReference string
	RefundReference  string
	HasReturnRequest bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone возвращает копию заказа с собственным срезом позиций.
func (o Order) Clone() Order {
	clone := o
	if o.Items != nil {
		clone.Items = make([]OrderItem, len(o.Items))
		copy(clone.Items, o.Items)
	}
	return clone
}

// Item возвращает указатель на позицию заказа по идентификатору.
func (o *Order) Item(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// HasSeller сообщает, есть ли в заказе позиции продавца.
func (o Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// Paid сообщает, привязан ли к заказу платёж.
func (o Order) Paid() bool {
	return o.PaymentReference != ""
}

// ActiveTotal суммирует стоимость всех неотменённых позиций.
func (o Order) ActiveTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		if item.Status == ItemStatusCancelled {
			continue
		}
		total = total.Add(item.Subtotal())
	}
	return total
}

// RecomputeStatus пересчитывает агрегированный статус по позициям.
// Заказ без позиций сохраняет текущий статус.
func (o *Order) RecomputeStatus() {
	if status, ok := DeriveAggregateStatus(o.Items); ok {
		o.Status = status
	}
}

// DeriveAggregateStatus вычисляет статус заказа по правилу "побеждает наименее продвинутая позиция".
// Второе значение false, если позиций нет.
func DeriveAggregateStatus(items []OrderItem) (OrderStatus, bool) {
	if len(items) == 0 {
		return "", false
	}

	var delivered, cancelled bool
	for _, item := range items {
		switch {
		case item.Status.IsActive():
			return OrderStatusReceived, true
		case item.Status == ItemStatusDelivered:
			delivered = true
		case item.Status == ItemStatusCancelled:
			cancelled = true
		}
	}

	switch {
	case delivered:
		return OrderStatusDelivered, true
	case cancelled:
		return OrderStatusCanceled, true
	default:
		return OrderStatusReturned, true
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	// После полной отмены сумма остаётся исходной: по ней выполнен полный возврат.
	if o.Status != OrderStatusCanceled && !o.ActiveTotal().Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
