package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type fakeStripeAPI struct {
	refundParams *stripe.RefundParams
	sessionID    string
	refund       *stripe.Refund
	session      *stripe.CheckoutSession
	err          error
}

func (f *fakeStripeAPI) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.refundParams = params
	return f.refund, f.err
}

func (f *fakeStripeAPI) GetCheckoutSession(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.sessionID = id
	return f.session, f.err
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway("  ")
	require.ErrorIs(t, err, errStripeKeyRequired)
}

func TestStripeGateway_CreatePartialRefund(t *testing.T) {
	api := &fakeStripeAPI{refund: &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}}
	gateway := &StripeGateway{api: api}

	result, err := gateway.CreateRefund(context.Background(), domain.RefundRequest{
		ChargeReference: "pi_1",
		AmountMinor:     1250,
		Reason:          ReasonRequestedByCustomer,
		Description:     "Refund for item",
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "re_1", result.ID)
	require.True(t, result.Succeeded())

	params := api.refundParams
	require.Equal(t, "pi_1", *params.PaymentIntent)
	require.Equal(t, int64(1250), *params.Amount)
	require.Equal(t, string(stripe.RefundReasonRequestedByCustomer), *params.Reason)
	require.Equal(t, "Refund for item", params.Metadata["description"])
	require.Equal(t, "key-1", *params.IdempotencyKey)
	require.NotNil(t, params.Context)
}

func TestStripeGateway_FullRefundOmitsAmount(t *testing.T) {
	api := &fakeStripeAPI{refund: &stripe.Refund{ID: "re_2", Status: stripe.RefundStatusPending}}
	gateway := &StripeGateway{api: api}

	result, err := gateway.CreateRefund(context.Background(), domain.RefundRequest{ChargeReference: "pi_1"})
	require.NoError(t, err)
	require.False(t, result.Succeeded())
	require.Nil(t, api.refundParams.Amount)
}

func TestStripeGateway_ResolveCheckoutSession(t *testing.T) {
	api := &fakeStripeAPI{session: &stripe.CheckoutSession{PaymentIntent: &stripe.PaymentIntent{ID: "pi_9"}}}
	gateway := &StripeGateway{api: api}

	charge, err := gateway.ResolveCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	require.Equal(t, "pi_9", charge)
	require.Equal(t, "cs_1", api.sessionID)

	api.session = &stripe.CheckoutSession{}
	charge, err = gateway.ResolveCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	require.Empty(t, charge)

	api.err = errors.New("no such session")
	_, err = gateway.ResolveCheckoutSession(context.Background(), "cs_1")
	require.Error(t, err)
}
