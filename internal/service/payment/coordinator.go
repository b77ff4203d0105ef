package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	// DefaultTimeout ограничивает один вызов платёжного шлюза.
	DefaultTimeout = 10 * time.Second

	// ReasonRequestedByCustomer — причина возврата, которую понимает шлюз.
	ReasonRequestedByCustomer = "requested_by_customer"
)

// Виды операций для наблюдателя.
const (
	KindLookup  = "lookup"
	KindFull    = "full"
	KindPartial = "partial"
)

// Исходы операций для наблюдателя.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Observer получает результат каждого обращения к шлюзу.
type Observer interface {
	ObserveRefund(kind, outcome string, duration time.Duration)
}

// Coordinator согласует возвраты с платёжным шлюзом: разрешает checkout-сессии
// в ссылку на платёж и выпускает полные и частичные возвраты.
type Coordinator struct {
	gateway  domain.PaymentGateway
	breaker  *CircuitBreaker
	timeout  time.Duration
	logger   *log.Entry
	observer Observer
	newKey   func() string
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithTimeout задаёт таймаут одного вызова шлюза.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBreaker подменяет circuit breaker.
func WithBreaker(breaker *CircuitBreaker) Option {
	return func(c *Coordinator) {
		if breaker != nil {
			c.breaker = breaker
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver подключает метрики.
func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

// NewCoordinator создаёт координатор возвратов поверх шлюза.
func NewCoordinator(gateway domain.PaymentGateway, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway: gateway,
		timeout: DefaultTimeout,
		logger:  log.WithField("component", "refund-coordinator"),
		newKey:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreaker(5, 30*time.Second, c.logger)
	}
	return c
}

// ResolveChargeReference возвращает ссылку на платёж. Checkout-сессия разрешается
// через шлюз, любая другая ссылка возвращается без изменений.
func (c *Coordinator) ResolveChargeReference(ctx context.Context, paymentReference string) (string, error) {
	if !domain.IsCheckoutSession(paymentReference) {
		return paymentReference, nil
	}

	sessionID := domain.SessionID(paymentReference)
	started := time.Now()

	charge, err := callGateway(ctx, c, "resolve_checkout_session", func(ctx context.Context) (string, error) {
		return c.gateway.ResolveCheckoutSession(ctx, sessionID)
	})
	if err == nil && charge == "" {
		err = errors.New("session carries no payment")
	}
	if err != nil {
		c.observe(KindLookup, OutcomeFailed, started)
		c.logger.WithField("session_id", sessionID).WithError(err).Warn("checkout session lookup failed")
		return "", fmt.Errorf("%w: session %s: %w", domain.ErrGatewayLookupFailed, sessionID, err)
	}

	c.observe(KindLookup, OutcomeSucceeded, started)
	return charge, nil
}

// IssueFullRefund возвращает всю сумму заказа. Повторный вызов для заказа с
// сохранённым RefundReference ничего не делает. При успехе идентификатор
// возврата записывается в order.
func (c *Coordinator) IssueFullRefund(ctx context.Context, order *domain.Order) error {
	if order.RefundReference != "" {
		c.observe(KindFull, OutcomeSkipped, time.Now())
		return nil
	}
	if !order.Paid() {
		return fmt.Errorf("%w: order %s has no payment reference", domain.ErrRefundFailed, order.ID)
	}

	entry := c.logger.WithField("order_id", order.ID)
	started := time.Now()

	charge, err := c.ResolveChargeReference(ctx, order.PaymentReference)
	if err != nil {
		c.observe(KindFull, OutcomeFailed, started)
		return fmt.Errorf("%w: %w", domain.ErrRefundFailed, err)
	}

	result, err := c.createRefund(ctx, domain.RefundRequest{
		ChargeReference: charge,
		Reason:          ReasonRequestedByCustomer,
		IdempotencyKey:  order.ID + ":full",
	})
	if err != nil {
		c.observe(KindFull, OutcomeFailed, started)
		entry.WithError(err).Error("full refund request failed")
		return fmt.Errorf("%w: %w", domain.ErrRefundFailed, err)
	}
	if !result.Succeeded() {
		c.observe(KindFull, OutcomeFailed, started)
		entry.WithField("refund_status", result.Status).Warn("full refund not succeeded")
		return fmt.Errorf("%w: gateway reported status %q", domain.ErrRefundFailed, result.Status)
	}

	order.RefundReference = result.ID
	c.observe(KindFull, OutcomeSucceeded, started)
	entry.WithField("refund_id", result.ID).Info("full refund issued")
	return nil
}

// IssuePartialRefund возвращает amount по заказу. Повторные запросы не дедуплицируются.
// Результат true только при статусе succeeded; решение о последствиях принимает вызывающий.
func (c *Coordinator) IssuePartialRefund(ctx context.Context, order domain.Order, amount decimal.Decimal, description string) bool {
	entry := c.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"amount":   amount.StringFixed(2),
	})
	started := time.Now()

	minor := MinorUnits(amount)
	if minor <= 0 || !order.Paid() {
		c.observe(KindPartial, OutcomeFailed, started)
		entry.Warn("partial refund rejected: nothing to refund")
		return false
	}

	charge, err := c.ResolveChargeReference(ctx, order.PaymentReference)
	if err != nil {
		c.observe(KindPartial, OutcomeFailed, started)
		return false
	}

	result, err := c.createRefund(ctx, domain.RefundRequest{
		ChargeReference: charge,
		AmountMinor:     minor,
		Reason:          ReasonRequestedByCustomer,
		Description:     description,
		IdempotencyKey:  c.newKey(),
	})
	if err != nil {
		c.observe(KindPartial, OutcomeFailed, started)
		entry.WithError(err).Error("partial refund request failed")
		return false
	}
	if !result.Succeeded() {
		c.observe(KindPartial, OutcomeFailed, started)
		entry.WithField("refund_status", result.Status).Warn("partial refund not succeeded")
		return false
	}

	c.observe(KindPartial, OutcomeSucceeded, started)
	entry.WithField("refund_id", result.ID).Info("partial refund issued")
	return true
}

// MinorUnits переводит сумму в минимальные единицы валюты (центы), округляя половину вверх.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (c *Coordinator) createRefund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	return callGateway(ctx, c, "create_refund", func(ctx context.Context) (domain.RefundResult, error) {
		return c.gateway.CreateRefund(ctx, req)
	})
}

type gatewayReply[T any] struct {
	value T
	err   error
}

// callGateway выполняет обращение к шлюзу через breaker с ограничением по времени.
// Если шлюз не уважает контекст, ответ после таймаута отбрасывается.
func callGateway[T any](ctx context.Context, c *Coordinator, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var value T
	err := c.breaker.Execute(operation, func() error {
		done := make(chan gatewayReply[T], 1)
		go func() {
			v, err := fn(callCtx)
			done <- gatewayReply[T]{value: v, err: err}
		}()

		select {
		case reply := <-done:
			value = reply.value
			return reply.err
		case <-callCtx.Done():
			return fmt.Errorf("%s: %w", operation, callCtx.Err())
		}
	})
	return value, err
}

func (c *Coordinator) observe(kind, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveRefund(kind, outcome, time.Since(started))
	}
}
