package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/workflow"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingRecorder struct {
	mu           sync.Mutex
	operations   map[string]string
	events       int
	manualReview int
}

func (r *recordingRecorder) ObserveOperation(operation, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[operation] = result
}

func (r *recordingRecorder) RecordTimelineEvent() {}

func (r *recordingRecorder) RecordOutboxEvent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
}

func (r *recordingRecorder) RecordManualReview() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manualReview++
}

type EngineSuite struct {
	suite.Suite

	ctx      context.Context
	store    *memory.Store
	gateway  *payment.MockGateway
	recorder *recordingRecorder
	engine   *workflow.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.gateway = payment.NewMockGateway()
	s.recorder = &recordingRecorder{operations: make(map[string]string)}

	s.store.PutProduct(domain.Product{ID: "p1", SellerID: "s1", Name: "Kettle", Price: decimal.RequireFromString("10.50"), StockQuantity: 10})
	s.store.PutProduct(domain.Product{ID: "p2", SellerID: "s2", Name: "Mug", Price: decimal.RequireFromString("5.25"), StockQuantity: 5})
	s.store.PutAddress(domain.Address{ID: "a1", UserID: "u1", Line1: "1 Main St", City: "Riga"})
	s.store.PutAddress(domain.Address{ID: "a2", UserID: "u2", Line1: "2 Side St", City: "Riga"})

	s.engine = s.newEngine()
}

func (s *EngineSuite) newEngine(opts ...workflow.Option) *workflow.Engine {
	clock := &steppingClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	coordinator := payment.NewCoordinator(s.gateway)
	defaults := []workflow.Option{
		workflow.WithClock(clock.Now),
		workflow.WithRecorder(s.recorder),
	}
	return workflow.NewEngine(s.store, s.store.Carts(), s.store.Addresses(), inventory.NewLedger(), coordinator, append(defaults, opts...)...)
}

// placeOrder оформляет заказ u1: 2 × p1 (s1) и 1 × p2 (s2).
func (s *EngineSuite) placeOrder(paymentRef string) domain.Order {
	carts := s.store.Carts()
	carts.Add("u1", domain.CartLine{ProductID: "p1", Quantity: 2})
	carts.Add("u1", domain.CartLine{ProductID: "p2", Quantity: 1})

	order, err := s.engine.CreateOrderFromCart(s.ctx, workflow.CreateOrderRequest{
		UserID:           "u1",
		AddressID:        "a1",
		PaymentReference: paymentRef,
	})
	s.Require().NoError(err)
	return order
}

func (s *EngineSuite) setItemStatus(order domain.Order, idx int, statuses ...domain.ItemStatus) domain.Order {
	item := order.Items[idx]
	for _, status := range statuses {
		var err error
		order, err = s.engine.UpdateItemStatus(s.ctx, workflow.UpdateItemStatusRequest{
			OrderID:  order.ID,
			ItemID:   item.ID,
			SellerID: item.SellerID,
			Status:   string(status),
		})
		s.Require().NoError(err)
	}
	return order
}

func (s *EngineSuite) deliver(order domain.Order, idx int) domain.Order {
	return s.setItemStatus(order, idx, domain.ItemStatusPreparing, domain.ItemStatusShipped, domain.ItemStatusDelivered)
}

func (s *EngineSuite) stock(productID string) int {
	product, ok := s.store.Product(productID)
	s.Require().True(ok)
	return product.StockQuantity
}

func (s *EngineSuite) eventTypes(orderID string) []string {
	events, err := s.engine.Timeline(s.ctx, orderID)
	s.Require().NoError(err)
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func (s *EngineSuite) TestCreateOrderFromCart() {
	order := s.placeOrder("pi_123")

	s.Equal(domain.OrderStatusReceived, order.Status)
	s.True(order.TotalAmount.Equal(decimal.RequireFromString("26.25")))
	s.Require().Len(order.Items, 2)
	s.Equal("s1", order.Items[0].SellerID)
	s.Equal(2, order.Items[0].Quantity)
	s.True(order.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.50")))
	for _, item := range order.Items {
		s.Equal(domain.ItemStatusPending, item.Status)
		s.Equal(order.ID, item.OrderID)
	}

	s.Equal(8, s.stock("p1"))
	s.Equal(4, s.stock("p2"))

	lines, err := s.store.Carts().Lines(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(lines)

	pending, err := s.store.Outbox().PullPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(string(domain.EventOrderCreated), pending[0].EventType)
	s.Equal(order.ID, pending[0].AggregateID)

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &payload))
	s.Equal("26.25", payload["total_amount"])

	s.Equal([]string{string(domain.EventOrderCreated)}, s.eventTypes(order.ID))
	s.Equal("ok", s.recorder.operations["create_order"])
	s.Equal(1, s.recorder.events)
}

func (s *EngineSuite) TestCreateOrderEmptyCart() {
	_, err := s.engine.CreateOrderFromCart(s.ctx, workflow.CreateOrderRequest{UserID: "u1", AddressID: "a1"})
	s.ErrorIs(err, domain.ErrInvalidState)
	s.Equal(string(domain.CodeInvalidState), s.recorder.operations["create_order"])
}

func (s *EngineSuite) TestCreateOrderForeignAddress() {
	s.store.Carts().Add("u1", domain.CartLine{ProductID: "p1", Quantity: 1})

	_, err := s.engine.CreateOrderFromCart(s.ctx, workflow.CreateOrderRequest{UserID: "u1", AddressID: "a2"})
	s.ErrorIs(err, domain.ErrNotFound)
	s.Equal(10, s.stock("p1"))
}

func (s *EngineSuite) TestCreateOrderInsufficientStockRollsBack() {
	carts := s.store.Carts()
	carts.Add("u1", domain.CartLine{ProductID: "p1", Quantity: 3})
	carts.Add("u1", domain.CartLine{ProductID: "p2", Quantity: 6})

	_, err := s.engine.CreateOrderFromCart(s.ctx, workflow.CreateOrderRequest{UserID: "u1", AddressID: "a1"})
	s.ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(10, s.stock("p1"))
	s.Equal(5, s.stock("p2"))

	lines, err := carts.Lines(s.ctx, "u1")
	s.Require().NoError(err)
	s.Len(lines, 2)

	orders, err := s.engine.ListAllOrders(s.ctx)
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *EngineSuite) TestCreateOrderValidation() {
	_, err := s.engine.CreateOrderFromCart(s.ctx, workflow.CreateOrderRequest{AddressID: "a1"})
	s.ErrorIs(err, domain.ErrInvalidArgument)
	s.Contains(err.Error(), "user_id")
}

func (s *EngineSuite) TestItemLifecycleRecomputesAggregate() {
	order := s.placeOrder("")

	order = s.deliver(order, 0)
	s.Equal(domain.ItemStatusDelivered, order.Items[0].Status)
	s.Equal(domain.OrderStatusReceived, order.Status)

	order = s.deliver(order, 1)
	s.Equal(domain.OrderStatusDelivered, order.Status)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDelivered, stored.Status)
}

func (s *EngineSuite) TestUpdateItemStatusRejections() {
	order := s.placeOrder("")
	item := order.Items[0]

	tests := []struct {
		name string
		req  workflow.UpdateItemStatusRequest
		err  error
	}{
		{"foreign seller", workflow.UpdateItemStatusRequest{ItemID: item.ID, SellerID: "s2", Status: "PREPARING"}, domain.ErrForbidden},
		{"skip ahead", workflow.UpdateItemStatusRequest{ItemID: item.ID, SellerID: "s1", Status: "DELIVERED"}, domain.ErrInvalidTransition},
		{"back to pending", workflow.UpdateItemStatusRequest{ItemID: item.ID, SellerID: "s1", Status: "PENDING"}, domain.ErrInvalidTransition},
		{"unknown status", workflow.UpdateItemStatusRequest{ItemID: item.ID, SellerID: "s1", Status: "LOST"}, domain.ErrInvalidArgument},
		{"other order", workflow.UpdateItemStatusRequest{OrderID: "missing", ItemID: item.ID, SellerID: "s1", Status: "PREPARING"}, domain.ErrNotFound},
		{"unknown item", workflow.UpdateItemStatusRequest{ItemID: "missing", SellerID: "s1", Status: "PREPARING"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.UpdateItemStatus(s.ctx, tt.req)
			s.ErrorIs(err, tt.err)
		})
	}

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusPending, stored.Items[0].Status)
}

func (s *EngineSuite) TestCancelItemRestoresStockAndRefundsLine() {
	order := s.placeOrder("pi_123")

	order = s.setItemStatus(order, 0, domain.ItemStatusCancelled)
	s.Equal(domain.ItemStatusCancelled, order.Items[0].Status)
	s.Equal(10, s.stock("p1"))
	s.True(order.TotalAmount.Equal(decimal.RequireFromString("5.25")))
	s.Equal(domain.OrderStatusReceived, order.Status)

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(int64(2100), refunds[0].AmountMinor)
	s.Equal("pi_123", refunds[0].ChargeReference)
}

func (s *EngineSuite) TestCancelItemRefundFailureKeepsItem() {
	order := s.placeOrder("pi_123")
	s.gateway.SetRefundOutcome(domain.RefundStatusFailed, nil)

	_, err := s.engine.UpdateItemStatus(s.ctx, workflow.UpdateItemStatusRequest{
		ItemID: order.Items[0].ID, SellerID: "s1", Status: "CANCELLED",
	})
	s.ErrorIs(err, domain.ErrRefundFailed)
	s.Equal(8, s.stock("p1"))

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusPending, stored.Items[0].Status)
}

func (s *EngineSuite) TestSellerRefundPath() {
	order := s.deliver(s.placeOrder("pi_123"), 0)

	order = s.setItemStatus(order, 0, domain.ItemStatusRefunded)
	item := order.Items[0]
	s.Equal(domain.ItemStatusRefunded, item.Status)
	s.True(item.Refunded)
	s.NotNil(item.RefundDate)
	s.Equal("Refunded by seller", item.RefundReason)
	s.Equal(10, s.stock("p1"))

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(int64(2100), refunds[0].AmountMinor)

	_, err := s.engine.UpdateItemStatus(s.ctx, workflow.UpdateItemStatusRequest{
		ItemID: item.ID, SellerID: "s1", Status: "REFUNDED",
	})
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.Contains(s.eventTypes(order.ID), string(domain.EventItemRefunded))
}

func (s *EngineSuite) TestSellerRefundFailureLeavesDelivered() {
	order := s.deliver(s.placeOrder("pi_123"), 0)
	s.gateway.SetRefundOutcome(domain.RefundStatusPending, nil)

	_, err := s.engine.UpdateItemStatus(s.ctx, workflow.UpdateItemStatusRequest{
		ItemID: order.Items[0].ID, SellerID: "s1", Status: "REFUNDED",
	})
	s.ErrorIs(err, domain.ErrRefundFailed)
	s.Equal(8, s.stock("p1"))

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusDelivered, stored.Items[0].Status)
	s.False(stored.Items[0].Refunded)
}

func (s *EngineSuite) TestRefundOrderItem() {
	order := s.deliver(s.placeOrder("pi_123"), 0)
	itemID := order.Items[0].ID

	order, err := s.engine.RefundOrderItem(s.ctx, workflow.RefundItemRequest{
		OrderID: order.ID, ItemID: itemID, UserID: "u1", Reason: "broken",
	})
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusRefunded, order.Items[0].Status)
	s.Equal("broken", order.Items[0].RefundReason)
	s.Equal(domain.OrderStatusReceived, order.Status)
	s.Equal(10, s.stock("p1"))

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(int64(2100), refunds[0].AmountMinor)
	s.Equal(payment.ReasonRequestedByCustomer, refunds[0].Reason)

	refunded, err := s.engine.ListRefundedItems(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(refunded, 1)
	s.Equal(itemID, refunded[0].ID)

	_, err = s.engine.RefundOrderItem(s.ctx, workflow.RefundItemRequest{ItemID: itemID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrAlreadyRefunded)
	s.Equal(10, s.stock("p1"), "stock is restored once")
	s.Len(s.gateway.Refunds(), 1)
}

func (s *EngineSuite) TestRefundOrderItemRejections() {
	order := s.deliver(s.placeOrder("pi_123"), 0)

	_, err := s.engine.RefundOrderItem(s.ctx, workflow.RefundItemRequest{ItemID: order.Items[0].ID, UserID: "u2"})
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.engine.RefundOrderItem(s.ctx, workflow.RefundItemRequest{ItemID: order.Items[1].ID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrInvalidTransition)

	s.gateway.SetRefundOutcome("", errors.New("gateway down"))
	_, err = s.engine.RefundOrderItem(s.ctx, workflow.RefundItemRequest{ItemID: order.Items[0].ID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrRefundFailed)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusDelivered, stored.Items[0].Status)
	s.Equal(8, s.stock("p1"))
}

func (s *EngineSuite) TestCancelOrderIssuesFullRefund() {
	order := s.placeOrder("pi_123")

	order, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCanceled, order.Status)
	s.Equal("re_mock_1", order.RefundReference)
	for _, item := range order.Items {
		s.Equal(domain.ItemStatusCancelled, item.Status)
	}
	s.Equal(10, s.stock("p1"))
	s.Equal(5, s.stock("p2"))

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(int64(0), refunds[0].AmountMinor)
	s.Equal(order.ID+":full", refunds[0].IdempotencyKey)

	_, err = s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.Len(s.gateway.Refunds(), 1)
}

func (s *EngineSuite) TestCancelOrderWithDeliveredItemRefundsCancelledLines() {
	order := s.deliver(s.placeOrder("pi_123"), 0)

	order, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusDelivered, order.Items[0].Status)
	s.Equal(domain.ItemStatusCancelled, order.Items[1].Status)
	s.Equal(domain.OrderStatusDelivered, order.Status)
	s.True(order.TotalAmount.Equal(decimal.RequireFromString("21.00")))
	s.Empty(order.RefundReference)
	s.Equal(8, s.stock("p1"))
	s.Equal(5, s.stock("p2"))

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(int64(525), refunds[0].AmountMinor)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	derived, ok := domain.DeriveAggregateStatus(stored.Items)
	s.Require().True(ok)
	s.Equal(derived, stored.Status)

	order, err = s.engine.RefundOrderItem(s.ctx, workflow.RefundItemRequest{ItemID: order.Items[0].ID, UserID: "u1"})
	s.Require().NoError(err)
	refunds = s.gateway.Refunds()
	s.Require().Len(refunds, 2)
	s.Equal(int64(2100), refunds[1].AmountMinor)
	s.Equal(10, s.stock("p1"))

	derived, ok = domain.DeriveAggregateStatus(order.Items)
	s.Require().True(ok)
	s.Equal(derived, order.Status)
}

func (s *EngineSuite) TestCancelOrderWithDeliveredItemRefundFailureRollsBack() {
	order := s.deliver(s.placeOrder("pi_123"), 0)
	s.gateway.SetRefundOutcome(domain.RefundStatusFailed, nil)

	_, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrRefundFailed)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReceived, stored.Status)
	s.Equal(domain.ItemStatusPending, stored.Items[1].Status)
	s.Equal(4, s.stock("p2"))
}

func (s *EngineSuite) TestCancelOrderUnpaidSkipsGateway() {
	order := s.placeOrder("")

	order, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCanceled, order.Status)
	s.Empty(order.RefundReference)
	s.Zero(s.gateway.RefundCalls)
}

func (s *EngineSuite) TestCancelOrderRejections() {
	order := s.placeOrder("pi_123")

	_, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u2"})
	s.ErrorIs(err, domain.ErrForbidden)

	s.gateway.SetRefundOutcome(domain.RefundStatusFailed, nil)
	_, err = s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrRefundFailed)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReceived, stored.Status)
	s.Equal(domain.ItemStatusPending, stored.Items[0].Status)
	s.Equal(8, s.stock("p1"))
}

func (s *EngineSuite) TestCancelOrderResolvesCheckoutSession() {
	s.gateway.Sessions["cs_test_1"] = "pi_from_session"
	order := s.placeOrder("cs_test_1?redirect=1")

	_, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.Require().NoError(err)

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal("pi_from_session", refunds[0].ChargeReference)
}

func (s *EngineSuite) TestCancelOrderLookupFailure() {
	order := s.placeOrder("cs_unknown")

	_, err := s.engine.CancelOrder(s.ctx, workflow.CancelOrderRequest{OrderID: order.ID, UserID: "u1"})
	s.ErrorIs(err, domain.ErrRefundFailed)
	s.ErrorIs(err, domain.ErrGatewayLookupFailed)
	s.Zero(s.gateway.RefundCalls)
}

func (s *EngineSuite) TestCancelOrderBySellerSubsetThenRest() {
	order := s.placeOrder("pi_123")

	order, err := s.engine.CancelOrderBySeller(s.ctx, workflow.SellerCancelRequest{OrderID: order.ID, SellerID: "s1"})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReceived, order.Status)
	s.Equal(domain.ItemStatusCancelled, order.Items[0].Status)
	s.Equal(domain.ItemStatusPending, order.Items[1].Status)
	s.True(order.TotalAmount.Equal(decimal.RequireFromString("5.25")))
	s.Equal(10, s.stock("p1"))

	refunds := s.gateway.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(int64(2100), refunds[0].AmountMinor)

	_, err = s.engine.CancelOrderBySeller(s.ctx, workflow.SellerCancelRequest{OrderID: order.ID, SellerID: "s1"})
	s.ErrorIs(err, domain.ErrInvalidTransition)

	order, err = s.engine.CancelOrderBySeller(s.ctx, workflow.SellerCancelRequest{OrderID: order.ID, SellerID: "s2"})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCanceled, order.Status)
	s.NotEmpty(order.RefundReference)

	refunds = s.gateway.Refunds()
	s.Require().Len(refunds, 2)
	s.Equal(int64(0), refunds[1].AmountMinor)
	s.Equal(order.ID+":full", refunds[1].IdempotencyKey)
}

func (s *EngineSuite) TestCancelOrderBySellerRejections() {
	order := s.placeOrder("pi_123")

	_, err := s.engine.CancelOrderBySeller(s.ctx, workflow.SellerCancelRequest{OrderID: order.ID, SellerID: "s9"})
	s.ErrorIs(err, domain.ErrForbidden)

	s.gateway.SetRefundOutcome(domain.RefundStatusFailed, nil)
	_, err = s.engine.CancelOrderBySeller(s.ctx, workflow.SellerCancelRequest{OrderID: order.ID, SellerID: "s1"})
	s.ErrorIs(err, domain.ErrRefundFailed)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusPending, stored.Items[0].Status)
	s.True(stored.TotalAmount.Equal(decimal.RequireFromString("26.25")))
	s.Equal(8, s.stock("p1"))
}

func (s *EngineSuite) TestUpdateOrderStatusOverride() {
	order := s.placeOrder("")

	order, err := s.engine.UpdateOrderStatus(s.ctx, workflow.UpdateOrderStatusRequest{OrderID: order.ID, Status: "REFUNDED"})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusRefunded, order.Status)
	s.Equal(domain.ItemStatusPending, order.Items[0].Status)

	_, err = s.engine.UpdateOrderStatus(s.ctx, workflow.UpdateOrderStatusRequest{OrderID: order.ID, Status: "BOGUS"})
	s.ErrorIs(err, domain.ErrInvalidArgument)
}

func (s *EngineSuite) createReturn(order domain.Order, idx int) domain.ReturnRequest {
	request, err := s.engine.CreateReturnRequest(s.ctx, workflow.CreateReturnRequest{
		OrderItemID: order.Items[idx].ID,
		UserID:      "u1",
		Reason:      "does not fit",
	})
	s.Require().NoError(err)
	return request
}

func (s *EngineSuite) TestCreateReturnRequest() {
	order := s.deliver(s.placeOrder("pi_123"), 0)

	request := s.createReturn(order, 0)
	s.Equal(domain.ReturnStateRequested, request.State())
	s.Equal(order.ID, request.OrderID)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.True(stored.HasReturnRequest)
	s.True(stored.Items[0].HasReturnRequest)

	_, err = s.engine.CreateReturnRequest(s.ctx, workflow.CreateReturnRequest{OrderItemID: order.Items[0].ID, UserID: "u1", Reason: "again"})
	s.ErrorIs(err, domain.ErrConflict)

	_, err = s.engine.CreateReturnRequest(s.ctx, workflow.CreateReturnRequest{OrderItemID: order.Items[0].ID, UserID: "u2", Reason: "mine"})
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.engine.CreateReturnRequest(s.ctx, workflow.CreateReturnRequest{OrderItemID: order.Items[1].ID, UserID: "u1", Reason: "early"})
	s.ErrorIs(err, domain.ErrInvalidTransition)

	pending, err := s.engine.PendingReturnRequestForOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(request.ID, pending.ID)

	bySeller, err := s.engine.PendingReturnRequestsForSeller(s.ctx, "s2")
	s.Require().NoError(err)
	s.Len(bySeller, 1)
}

func (s *EngineSuite) TestApproveReturnRefundsDeliveredItems() {
	order := s.deliver(s.deliver(s.placeOrder("pi_123"), 0), 1)
	request := s.createReturn(order, 0)

	_, err := s.engine.ProcessReturnRequest(s.ctx, workflow.ProcessReturnRequest{RequestID: request.ID, ActorID: "s9", Approved: true})
	s.ErrorIs(err, domain.ErrForbidden)

	request, err = s.engine.ProcessReturnRequest(s.ctx, workflow.ProcessReturnRequest{
		RequestID: request.ID, ActorID: "s1", Approved: true, Notes: "ok",
	})
	s.Require().NoError(err)
	s.Equal(domain.ReturnStateApproved, request.State())
	s.NotNil(request.ProcessedAt)
	s.Equal("ok", request.ProcessorNotes)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReturned, stored.Status)
	s.NotEmpty(stored.RefundReference)
	for _, item := range stored.Items {
		s.Equal(domain.ItemStatusRefunded, item.Status)
		s.True(item.Refunded)
		s.Equal("Return approved: ok", item.RefundReason)
	}
	s.Equal(10, s.stock("p1"))
	s.Equal(5, s.stock("p2"))
	s.Len(s.gateway.Refunds(), 1)

	_, err = s.engine.ProcessReturnRequest(s.ctx, workflow.ProcessReturnRequest{RequestID: request.ID, ActorID: "s1", Approved: false})
	s.ErrorIs(err, domain.ErrAlreadyProcessed)
	s.Contains(s.eventTypes(order.ID), string(domain.EventReturnApproved))
}

func (s *EngineSuite) TestRejectReturnKeepsItemDelivered() {
	order := s.deliver(s.placeOrder("pi_123"), 0)
	request := s.createReturn(order, 0)

	request, err := s.engine.ProcessReturnRequest(s.ctx, workflow.ProcessReturnRequest{
		RequestID: request.ID, ActorID: "s1", Approved: false, Notes: "used item",
	})
	s.Require().NoError(err)
	s.Equal(domain.ReturnStateRejected, request.State())
	s.True(request.Rejected)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusDelivered, stored.Items[0].Status)
	s.True(stored.Items[0].HasReturnRequest)
	s.Zero(s.gateway.RefundCalls)

	_, err = s.engine.PendingReturnRequestForOrder(s.ctx, order.ID)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *EngineSuite) TestApproveReturnFlagsFailedRefund() {
	order := s.deliver(s.placeOrder("pi_123"), 0)
	request := s.createReturn(order, 0)
	s.gateway.SetRefundOutcome(domain.RefundStatusFailed, nil)

	request, err := s.engine.ProcessReturnRequest(s.ctx, workflow.ProcessReturnRequest{
		RequestID: request.ID, ActorID: "s1", Approved: true, Notes: "ok",
	})
	s.Require().NoError(err)
	s.Equal(domain.ReturnStateApproved, request.State())
	s.True(strings.HasSuffix(request.ProcessorNotes, "\n[WARNING: Payment refund failed and needs manual processing]"))
	s.Equal(1, s.recorder.manualReview)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Empty(stored.RefundReference)
	s.Equal(domain.ItemStatusRefunded, stored.Items[0].Status)
	s.Contains(s.eventTypes(order.ID), string(domain.EventRefundManualReview))
}

func (s *EngineSuite) TestApproveReturnAbortPolicy() {
	engine := s.newEngine(workflow.WithRefundPolicy(workflow.RefundPolicyAbort))
	order := s.deliver(s.placeOrder("pi_123"), 0)
	request := s.createReturn(order, 0)
	s.gateway.SetRefundOutcome(domain.RefundStatusFailed, nil)

	_, err := engine.ProcessReturnRequest(s.ctx, workflow.ProcessReturnRequest{
		RequestID: request.ID, ActorID: "s1", Approved: true,
	})
	s.ErrorIs(err, domain.ErrRefundFailed)

	pending, err := s.engine.PendingReturnRequestForOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.False(pending.Processed)

	stored, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.ItemStatusDelivered, stored.Items[0].Status)
	s.Equal(8, s.stock("p1"))
}

func (s *EngineSuite) TestQueries() {
	first := s.placeOrder("")
	second := s.placeOrder("")

	orders, err := s.engine.ListUserOrders(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(second.ID, orders[0].ID)
	s.Equal(first.ID, orders[1].ID)

	bySeller, err := s.engine.ListSellerOrders(s.ctx, "s2")
	s.Require().NoError(err)
	s.Len(bySeller, 2)

	none, err := s.engine.ListSellerOrders(s.ctx, "s9")
	s.Require().NoError(err)
	s.Empty(none)

	items, err := s.engine.ListOrderItems(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Len(items, 2)

	bought, err := s.engine.HasUserPurchasedProduct(s.ctx, "u1", "p2")
	s.Require().NoError(err)
	s.True(bought)

	bought, err = s.engine.HasUserPurchasedProduct(s.ctx, "u2", "p2")
	s.Require().NoError(err)
	s.False(bought)
}

func (s *EngineSuite) TestUserReturnRequestsNewestFirst() {
	order := s.deliver(s.deliver(s.placeOrder(""), 0), 1)
	older := s.createReturn(order, 0)
	newer := s.createReturn(order, 1)

	requests, err := s.engine.UserReturnRequests(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(requests, 2)
	s.Equal(newer.ID, requests[0].ID)
	s.Equal(older.ID, requests[1].ID)

	all, err := s.engine.ListAllReturnRequests(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *EngineSuite) TestDeleteOrderCascades() {
	order := s.deliver(s.placeOrder(""), 0)
	s.createReturn(order, 0)

	s.Require().NoError(s.engine.DeleteOrder(s.ctx, order.ID))

	_, err := s.engine.GetOrder(s.ctx, order.ID)
	s.ErrorIs(err, domain.ErrNotFound)

	requests, err := s.engine.ListAllReturnRequests(s.ctx)
	s.Require().NoError(err)
	s.Empty(requests)

	s.ErrorIs(s.engine.DeleteOrder(s.ctx, order.ID), domain.ErrNotFound)
	s.ErrorIs(s.engine.DeleteOrder(s.ctx, ""), domain.ErrInvalidArgument)
}

func (s *EngineSuite) TestTimelineRecordsLifecycle() {
	order := s.deliver(s.placeOrder("pi_123"), 0)
	s.createReturn(order, 0)

	s.Equal([]string{
		string(domain.EventOrderCreated),
		string(domain.EventItemStatusChanged),
		string(domain.EventItemStatusChanged),
		string(domain.EventItemStatusChanged),
		string(domain.EventReturnRequested),
	}, s.eventTypes(order.ID))
}

func TestParseRefundPolicy(t *testing.T) {
	policy, err := workflow.ParseRefundPolicy("")
	require.NoError(t, err)
	require.Equal(t, workflow.RefundPolicyFlag, policy)

	policy, err = workflow.ParseRefundPolicy("abort")
	require.NoError(t, err)
	require.Equal(t, workflow.RefundPolicyAbort, policy)

	_, err = workflow.ParseRefundPolicy("retry")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
