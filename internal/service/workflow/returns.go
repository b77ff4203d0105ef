package workflow

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// CreateReturnRequest оформляет заявку на возврат доставленной позиции.
// По позиции допускается только одна заявка.
func (e *Engine) CreateReturnRequest(ctx context.Context, req CreateReturnRequest) (request domain.ReturnRequest, err error) {
	started := time.Now()
	defer func() { e.observe("create_return_request", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.ReturnRequest{}, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		order, item, err := loadItem(ctx, tx, "", req.OrderItemID)
		if err != nil {
			return err
		}
		if order.UserID != req.UserID {
			return fmt.Errorf("%w: order %s belongs to another user", domain.ErrForbidden, order.ID)
		}
		if item.Status != domain.ItemStatusDelivered {
			return fmt.Errorf("%w: item %s is %s, return requires %s",
				domain.ErrInvalidTransition, item.ID, item.Status, domain.ItemStatusDelivered)
		}
		if item.HasReturnRequest {
			return fmt.Errorf("%w: return already requested for item %s", domain.ErrConflict, item.ID)
		}

		now := e.now().UTC()
		request = domain.ReturnRequest{
			ID:          e.newID(),
			OrderID:     order.ID,
			OrderItemID: item.ID,
			UserID:      req.UserID,
			Reason:      req.Reason,
			RequestedAt: now,
		}
		if err := tx.Returns.Create(ctx, request); err != nil {
			return err
		}

		item.HasReturnRequest = true
		order.HasReturnRequest = true
		order.UpdatedAt = now
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}

		event := itemEventFor(order, *item)
		event.ReturnRequestID = request.ID
		event.Reason = req.Reason
		return e.emit(ctx, tx, domain.EventReturnRequested, event)
	})
	if err != nil {
		return domain.ReturnRequest{}, err
	}

	e.logger.WithFields(log.Fields{
		"request_id": request.ID,
		"order_id":   request.OrderID,
		"item_id":    request.OrderItemID,
	}).Info("return requested")
	return request, nil
}

// ProcessReturnRequest фиксирует решение продавца. Одобрение переводит доставленные
// позиции в REFUNDED, возвращает остатки и запускает полный возврат оплаченного заказа.
func (e *Engine) ProcessReturnRequest(ctx context.Context, req ProcessReturnRequest) (request domain.ReturnRequest, err error) {
	started := time.Now()
	defer func() { e.observe("process_return_request", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.ReturnRequest{}, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		request, err = tx.Returns.Get(ctx, req.RequestID)
		if err != nil {
			return err
		}
		order, err := tx.Orders.Get(ctx, request.OrderID)
		if err != nil {
			return err
		}
		if !order.HasSeller(req.ActorID) {
			return fmt.Errorf("%w: %s sells nothing in order %s", domain.ErrForbidden, req.ActorID, order.ID)
		}
		if request.Processed {
			return fmt.Errorf("%w: request %s is %s", domain.ErrAlreadyProcessed, request.ID, request.State())
		}

		now := e.now().UTC()
		if !req.Approved {
			request.Reject(req.Notes, now)
			if err := tx.Returns.Save(ctx, request); err != nil {
				return err
			}
			event := eventFor(order)
			event.ItemID = request.OrderItemID
			event.ReturnRequestID = request.ID
			event.Reason = req.Notes
			return e.emit(ctx, tx, domain.EventReturnRejected, event)
		}

		request.Approve(req.Notes, now)
		reason := "Return approved: " + req.Notes
		for i := range order.Items {
			item := &order.Items[i]
			if item.Status != domain.ItemStatusDelivered {
				continue
			}
			if err := e.ledger.RestoreItem(ctx, tx.Products, *item); err != nil {
				return err
			}
			item.MarkRefunded(reason, now)
		}

		if order.Paid() && order.RefundReference == "" {
			if refundErr := e.refunds.IssueFullRefund(ctx, &order); refundErr != nil {
				if e.policy == RefundPolicyAbort {
					return refundErr
				}
				request.ProcessorNotes += manualRefundWarning
				tx.manualReview = true
				e.logger.WithError(refundErr).WithFields(log.Fields{
					"request_id": request.ID,
					"order_id":   order.ID,
				}).Warn("refund for approved return failed, manual processing required")

				event := eventFor(order)
				event.ReturnRequestID = request.ID
				event.Reason = refundErr.Error()
				if err := e.emit(ctx, tx, domain.EventRefundManualReview, event); err != nil {
					return err
				}
			}
		}

		order.RecomputeStatus()
		order.UpdatedAt = now
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}
		if err := tx.Returns.Save(ctx, request); err != nil {
			return err
		}

		event := eventFor(order)
		event.ItemID = request.OrderItemID
		event.ReturnRequestID = request.ID
		event.Reason = req.Notes
		return e.emit(ctx, tx, domain.EventReturnApproved, event)
	})
	if err != nil {
		return domain.ReturnRequest{}, err
	}

	e.logger.WithFields(log.Fields{
		"request_id": request.ID,
		"state":      request.State(),
	}).Info("return request processed")
	return request, nil
}
