package workflow

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const sellerRefundReason = "Refunded by seller"

// loadItem находит заказ по позиции. Если orderID задан, позиция обязана ему принадлежать.
func loadItem(ctx context.Context, tx *txn, orderID, itemID string) (domain.Order, *domain.OrderItem, error) {
	order, err := tx.Orders.GetByItem(ctx, itemID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if orderID != "" && order.ID != orderID {
		return domain.Order{}, nil, fmt.Errorf("order item %s in order %s: %w", itemID, orderID, domain.ErrNotFound)
	}
	item, ok := order.Item(itemID)
	if !ok {
		return domain.Order{}, nil, fmt.Errorf("order item %s: %w", itemID, domain.ErrNotFound)
	}
	return order, item, nil
}

// UpdateItemStatus переводит позицию продавца по таблице переходов. Отмена возвращает
// остаток и стоимость строки, DELIVERED -> REFUNDED оформляет возврат средств продавцом.
// Агрегированный статус заказа пересчитывается в той же транзакции.
func (e *Engine) UpdateItemStatus(ctx context.Context, req UpdateItemStatusRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { e.observe("update_item_status", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}
	target, err := domain.ParseItemStatus(req.Status)
	if err != nil {
		return domain.Order{}, err
	}

	var previous domain.ItemStatus
	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		var item *domain.OrderItem
		order, item, err = loadItem(ctx, tx, req.OrderID, req.ItemID)
		if err != nil {
			return err
		}
		if item.SellerID != req.SellerID {
			return fmt.Errorf("%w: item %s belongs to another seller", domain.ErrForbidden, item.ID)
		}
		previous = item.Status
		now := e.now().UTC()

		eventType := domain.EventItemStatusChanged
		switch {
		case item.Status == domain.ItemStatusDelivered && target == domain.ItemStatusRefunded:
			if item.Refunded {
				return fmt.Errorf("%w: item %s", domain.ErrAlreadyRefunded, item.ID)
			}
			if err := e.ledger.RestoreItem(ctx, tx.Products, *item); err != nil {
				return err
			}
			if order.Paid() {
				description := fmt.Sprintf("Seller refund for item %s of order %s", item.ID, order.ID)
				if !e.refunds.IssuePartialRefund(ctx, order, item.Subtotal(), description) {
					return fmt.Errorf("%w: item %s of order %s", domain.ErrRefundFailed, item.ID, order.ID)
				}
			}
			reason := req.Reason
			if reason == "" {
				reason = sellerRefundReason
			}
			item.MarkRefunded(reason, now)
			eventType = domain.EventItemRefunded

		default:
			if err := domain.ValidateTransition(item.Status, target); err != nil {
				return err
			}
			if target == domain.ItemStatusCancelled {
				if err := e.ledger.RestoreItem(ctx, tx.Products, *item); err != nil {
					return err
				}
				if order.Paid() {
					description := fmt.Sprintf("Seller canceled item %s of order %s", item.ID, order.ID)
					if !e.refunds.IssuePartialRefund(ctx, order, item.Subtotal(), description) {
						return fmt.Errorf("%w: item %s of order %s", domain.ErrRefundFailed, item.ID, order.ID)
					}
				}
			}
			item.Status = target
		}

		event := itemEventFor(order, *item)
		event.Reason = fmt.Sprintf("%s -> %s", previous, item.Status)

		if target == domain.ItemStatusCancelled && !allCancelled(order) {
			order.TotalAmount = order.ActiveTotal()
		}
		order.RecomputeStatus()
		order.UpdatedAt = now
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}

		event.Status = string(order.Status)
		event.TotalAmount = order.TotalAmount.StringFixed(2)
		return e.emit(ctx, tx, eventType, event)
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"item_id":  req.ItemID,
		"from":     previous,
		"to":       target,
	}).Info("item status updated")
	return order, nil
}

// RefundOrderItem возвращает покупателю стоимость доставленной позиции.
// Если шлюз не подтвердил возврат, позиция остаётся DELIVERED.
func (e *Engine) RefundOrderItem(ctx context.Context, req RefundItemRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { e.observe("refund_order_item", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		var item *domain.OrderItem
		order, item, err = loadItem(ctx, tx, req.OrderID, req.ItemID)
		if err != nil {
			return err
		}
		if order.UserID != req.UserID {
			return fmt.Errorf("%w: order %s belongs to another user", domain.ErrForbidden, order.ID)
		}
		if item.Refunded {
			return fmt.Errorf("%w: item %s", domain.ErrAlreadyRefunded, item.ID)
		}
		if item.Status != domain.ItemStatusDelivered {
			return fmt.Errorf("%w: item %s is %s, refund requires %s",
				domain.ErrInvalidTransition, item.ID, item.Status, domain.ItemStatusDelivered)
		}

		if err := e.ledger.RestoreItem(ctx, tx.Products, *item); err != nil {
			return err
		}
		description := fmt.Sprintf("Refund for item %s of order %s", item.ID, order.ID)
		if !e.refunds.IssuePartialRefund(ctx, order, item.Subtotal(), description) {
			return fmt.Errorf("%w: item %s of order %s", domain.ErrRefundFailed, item.ID, order.ID)
		}

		now := e.now().UTC()
		item.MarkRefunded(req.Reason, now)
		order.RecomputeStatus()
		order.UpdatedAt = now
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}

		event := itemEventFor(order, *item)
		event.Reason = req.Reason
		return e.emit(ctx, tx, domain.EventItemRefunded, event)
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"item_id":  req.ItemID,
	}).Info("order item refunded")
	return order, nil
}
