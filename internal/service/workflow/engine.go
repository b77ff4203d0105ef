package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
)

// Refunder отвечает за платёжную часть сценариев отмены и возврата.
type Refunder interface {
	IssueFullRefund(ctx context.Context, order *domain.Order) error
	IssuePartialRefund(ctx context.Context, order domain.Order, amount decimal.Decimal, description string) bool
}

// Recorder принимает метрики движка.
type Recorder interface {
	ObserveOperation(operation, result string, duration time.Duration)
	RecordTimelineEvent()
	RecordOutboxEvent()
	RecordManualReview()
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) RecordTimelineEvent() {}
func (nopRecorder) RecordOutboxEvent() {}
func (nopRecorder) RecordManualReview() {}

// RefundPolicy определяет реакцию на сбой возврата при одобрении заявки.
type RefundPolicy string

const (
	// RefundPolicyFlag сохраняет одобрение и помечает заявку для ручной обработки.
	RefundPolicyFlag RefundPolicy = "flag"
	// RefundPolicyAbort откатывает одобрение с ErrRefundFailed.
	RefundPolicyAbort RefundPolicy = "abort"
)

// ParseRefundPolicy разбирает политику; пустая строка означает flag.
func ParseRefundPolicy(raw string) (RefundPolicy, error) {
	switch RefundPolicy(raw) {
	case "", RefundPolicyFlag:
		return RefundPolicyFlag, nil
	case RefundPolicyAbort:
		return RefundPolicyAbort, nil
	default:
		return "", fmt.Errorf("%w: unknown refund policy %q", domain.ErrInvalidArgument, raw)
	}
}

// manualRefundWarning дописывается к заметкам заявки, если возврат не прошёл.
const manualRefundWarning = "\n[WARNING: Payment refund failed and needs manual processing]"

// Engine выполняет сценарии жизненного цикла заказа: оформление, смена статусов позиций,
// отмены, возвраты средств и заявки на возврат товара.
type Engine struct {
	uow       domain.UnitOfWork
	carts     domain.CartService
	addresses domain.AddressResolver
	ledger    *inventory.Ledger
	refunds   Refunder

	recorder Recorder
	logger   *log.Entry
	policy   RefundPolicy
	now      func() time.Time
	newID    func() string
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder подключает метрики.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// WithRefundPolicy задаёт политику сбоя возврата при одобрении заявки.
func WithRefundPolicy(policy RefundPolicy) Option {
	return func(e *Engine) {
		if policy != "" {
			e.policy = policy
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine создаёт движок.
func NewEngine(
	uow domain.UnitOfWork,
	carts domain.CartService,
	addresses domain.AddressResolver,
	ledger *inventory.Ledger,
	refunds Refunder,
	opts ...Option,
) *Engine {
	e := &Engine{
		uow:       uow,
		carts:     carts,
		addresses: addresses,
		ledger:    ledger,
		refunds:   refunds,
		recorder:  nopRecorder{},
		logger:    log.WithField("component", "order-workflow"),
		policy:    RefundPolicyFlag,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ledger == nil {
		e.ledger = inventory.NewLedger(inventory.WithLogger(e.logger))
	}
	return e
}

// txn связывает репозитории текущей транзакции с тем, что нужно учесть после фиксации.
type txn struct {
	domain.Repositories
	events       int
	manualReview bool
}

// transact выполняет fn в одной транзакции и после фиксации учитывает события.
func (e *Engine) transact(ctx context.Context, fn func(ctx context.Context, tx *txn) error) error {
	var committed *txn
	err := e.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		tx := &txn{Repositories: repos}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed = tx
		return nil
	})
	if err != nil {
		return err
	}

	for i := 0; i < committed.events; i++ {
		e.recorder.RecordOutboxEvent()
		e.recorder.RecordTimelineEvent()
	}
	if committed.manualReview {
		e.recorder.RecordManualReview()
	}
	return nil
}

// observe учитывает длительность и результат операции.
func (e *Engine) observe(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(domain.Classify(err).Code)
	}
	e.recorder.ObserveOperation(operation, result, time.Since(started))
}

// CreateOrderFromCart оформляет заказ из корзины пользователя: фиксирует цены и продавцов,
// списывает остатки и очищает корзину после фиксации.
func (e *Engine) CreateOrderFromCart(ctx context.Context, req CreateOrderRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { e.observe("create_order", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	lines, err := e.carts.Lines(ctx, req.UserID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: cart of user %s is empty", domain.ErrInvalidState, req.UserID)
	}
	if _, err := e.addresses.Resolve(ctx, req.UserID, req.AddressID); err != nil {
		return domain.Order{}, fmt.Errorf("resolve address: %w", err)
	}

	now := e.now().UTC()
	order = domain.Order{
		ID:               e.newID(),
		UserID:           req.UserID,
		AddressID:        req.AddressID,
		Status:           domain.OrderStatusReceived,
		PaymentReference: req.PaymentReference,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		order.Items = make([]domain.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			product, err := tx.Products.Get(ctx, line.ProductID)
			if err != nil {
				return err
			}
			item := domain.OrderItem{
				ID:        e.newID(),
				OrderID:   order.ID,
				ProductID: product.ID,
				SellerID:  product.SellerID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
				Status:    domain.ItemStatusPending,
				CreatedAt: now,
			}
			order.Items = append(order.Items, item)
			total = total.Add(item.Subtotal())
		}
		order.TotalAmount = total

		if err := e.ledger.Reserve(ctx, tx.Products, lines); err != nil {
			return err
		}
		if err := checkInvariants(order); err != nil {
			return err
		}
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}
		return e.emit(ctx, tx, domain.EventOrderCreated, eventFor(order))
	})
	if err != nil {
		return domain.Order{}, err
	}

	if clearErr := e.carts.Clear(ctx, req.UserID); clearErr != nil {
		e.logger.WithError(clearErr).WithField("user_id", req.UserID).Warn("failed to clear cart after checkout")
	}

	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"items":    len(order.Items),
		"total":    order.TotalAmount.StringFixed(2),
	}).Info("order created")
	return order, nil
}

// UpdateOrderStatus административно выставляет статус заказа без проверки позиций.
func (e *Engine) UpdateOrderStatus(ctx context.Context, req UpdateOrderStatusRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { e.observe("update_order_status", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return domain.Order{}, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		order, err = tx.Orders.Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		previous := order.Status
		order.Status = status
		order.UpdatedAt = e.now().UTC()
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}

		event := eventFor(order)
		event.Reason = fmt.Sprintf("status overridden from %s", previous)
		return e.emit(ctx, tx, domain.EventOrderStatusOverride, event)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// CancelOrder отменяет заказ по запросу покупателя: активные позиции отменяются,
// остатки возвращаются. Уже доставленные позиции остаются за покупателем,
// поэтому полный возврат выполняется, только если отменены все позиции.
func (e *Engine) CancelOrder(ctx context.Context, req CancelOrderRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { e.observe("cancel_order", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		order, err = tx.Orders.Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != req.UserID {
			return fmt.Errorf("%w: order %s belongs to another user", domain.ErrForbidden, order.ID)
		}
		if order.Status != domain.OrderStatusReceived {
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, order.ID, order.Status)
		}

		cancelled := decimal.Zero
		count := 0
		for i := range order.Items {
			item := &order.Items[i]
			if !item.Status.IsActive() {
				continue
			}
			if err := e.ledger.RestoreItem(ctx, tx.Products, *item); err != nil {
				return err
			}
			item.Status = domain.ItemStatusCancelled
			cancelled = cancelled.Add(item.Subtotal())
			count++
		}

		description := fmt.Sprintf("Customer canceled %d item(s) of order %s", count, order.ID)
		if err := e.settleCancellation(ctx, &order, cancelled, description); err != nil {
			return err
		}

		order.UpdatedAt = e.now().UTC()
		if err := checkInvariants(order); err != nil {
			return err
		}
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}

		event := eventFor(order)
		event.Reason = "canceled by customer"
		return e.emit(ctx, tx, domain.EventOrderCanceled, event)
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"refund_ref": order.RefundReference,
	}).Info("order canceled by customer")
	return order, nil
}

// CancelOrderBySeller отменяет активные позиции продавца. Если отменён весь заказ,
// выполняется полный возврат, иначе возвращается стоимость отменённых строк.
func (e *Engine) CancelOrderBySeller(ctx context.Context, req SellerCancelRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { e.observe("cancel_order_by_seller", started, err) }()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *txn) error {
		order, err = tx.Orders.Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !order.HasSeller(req.SellerID) {
			return fmt.Errorf("%w: seller %s has no items in order %s", domain.ErrForbidden, req.SellerID, order.ID)
		}
		if order.Status != domain.OrderStatusReceived {
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, order.ID, order.Status)
		}

		cancelled := decimal.Zero
		count := 0
		for i := range order.Items {
			item := &order.Items[i]
			if item.SellerID != req.SellerID || !item.Status.IsActive() {
				continue
			}
			if err := e.ledger.RestoreItem(ctx, tx.Products, *item); err != nil {
				return err
			}
			item.Status = domain.ItemStatusCancelled
			cancelled = cancelled.Add(item.Subtotal())
			count++
		}
		if count == 0 {
			return fmt.Errorf("%w: seller %s has no active items in order %s", domain.ErrInvalidTransition, req.SellerID, order.ID)
		}

		description := fmt.Sprintf("Seller %s canceled %d item(s) of order %s", req.SellerID, count, order.ID)
		if err := e.settleCancellation(ctx, &order, cancelled, description); err != nil {
			return err
		}

		order.UpdatedAt = e.now().UTC()
		if err := checkInvariants(order); err != nil {
			return err
		}
		if err := tx.Orders.Save(ctx, order); err != nil {
			return err
		}

		event := eventFor(order)
		event.SellerID = req.SellerID
		event.Reason = fmt.Sprintf("%d item(s) canceled by seller", count)
		return e.emit(ctx, tx, domain.EventOrderSellerCanceled, event)
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"seller_id": req.SellerID,
		"status":    order.Status,
	}).Info("order canceled by seller")
	return order, nil
}

// DeleteOrder удаляет заказ вместе с позициями и заявками на возврат.
func (e *Engine) DeleteOrder(ctx context.Context, orderID string) (err error) {
	started := time.Now()
	defer func() { e.observe("delete_order", started, err) }()

	if orderID == "" {
		return fmt.Errorf("%w: order_id is required", domain.ErrInvalidArgument)
	}

	return e.transact(ctx, func(ctx context.Context, tx *txn) error {
		order, err := tx.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Orders.Delete(ctx, orderID); err != nil {
			return err
		}
		return e.emit(ctx, tx, domain.EventOrderDeleted, eventFor(order))
	})
}

// settleCancellation возвращает деньги за отменённые позиции. Полностью отменённый
// заказ возвращается целиком и получает статус CANCELED с исходной суммой.
// Иначе возвращается стоимость отменённых строк, а сумма и статус считаются
// по оставшимся позициям. Отказ шлюза прерывает операцию.
func (e *Engine) settleCancellation(ctx context.Context, order *domain.Order, cancelled decimal.Decimal, description string) error {
	if allCancelled(*order) {
		if order.Paid() {
			if err := e.refunds.IssueFullRefund(ctx, order); err != nil {
				return err
			}
		}
		order.Status = domain.OrderStatusCanceled
		return nil
	}

	if order.Paid() && cancelled.IsPositive() {
		if !e.refunds.IssuePartialRefund(ctx, *order, cancelled, description) {
			return fmt.Errorf("%w: partial refund of %s for order %s", domain.ErrRefundFailed, cancelled.StringFixed(2), order.ID)
		}
	}
	order.TotalAmount = order.ActiveTotal()
	order.RecomputeStatus()
	return nil
}

func allCancelled(order domain.Order) bool {
	for _, item := range order.Items {
		if item.Status != domain.ItemStatusCancelled {
			return false
		}
	}
	return true
}

func checkInvariants(order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return fmt.Errorf("%w: order %s: %v", domain.ErrInvalidArgument, order.ID, errs)
	}
	return nil
}
