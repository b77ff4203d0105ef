package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

var errStripeKeyRequired = errors.New("stripe api key is required")

// stripeAPI — используемое подмножество Stripe API.
type stripeAPI interface {
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
	GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeBackend struct{}

func (stripeBackend) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return refund.New(params)
}

func (stripeBackend) GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

// StripeGateway реализует PaymentGateway поверх Stripe.
type StripeGateway struct {
	api stripeAPI
}

// NewStripeGateway инициализирует глобальный ключ Stripe и возвращает шлюз.
func NewStripeGateway(apiKey string) (*StripeGateway, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errStripeKeyRequired
	}
	stripe.Key = apiKey
	return &StripeGateway{api: stripeBackend{}}, nil
}

// ResolveCheckoutSession возвращает payment intent, оплативший сессию.
func (g *StripeGateway) ResolveCheckoutSession(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.GetCheckoutSession(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("get checkout session: %w", err)
	}
	if s == nil || s.PaymentIntent == nil {
		return "", nil
	}
	return s.PaymentIntent.ID, nil
}

// CreateRefund создаёт возврат по payment intent. AmountMinor=0 означает полный возврат.
func (g *StripeGateway) CreateRefund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ChargeReference),
	}
	params.Context = ctx
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	if req.Description != "" {
		params.AddMetadata("description", req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := g.api.NewRefund(params)
	if err != nil {
		return domain.RefundResult{}, fmt.Errorf("create stripe refund: %w", err)
	}
	return domain.RefundResult{ID: r.ID, Status: domain.RefundStatus(r.Status)}, nil
}

var _ domain.PaymentGateway = (*StripeGateway)(nil)
