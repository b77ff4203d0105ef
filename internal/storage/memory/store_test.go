package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func newOrder(id, userID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:          id,
		UserID:      userID,
		Status:      domain.OrderStatusReceived,
		TotalAmount: decimal.RequireFromString("20"),
		Items: []domain.OrderItem{
			{
				ID:        id + "-item-1",
				OrderID:   id,
				ProductID: "product-1",
				SellerID:  "seller-1",
				Quantity:  2,
				UnitPrice: decimal.RequireFromString("10"),
				Status:    domain.ItemStatusPending,
			},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestStore_DoCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: "product-1", SellerID: "seller-1", StockQuantity: 5})

	err := store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Products.DecrementStock(ctx, "product-1", 2); err != nil {
			return err
		}
		return repos.Orders.Create(ctx, newOrder("order-1", "user-1", time.Now()))
	})
	require.NoError(t, err)

	product, ok := store.Product("product-1")
	require.True(t, ok)
	require.Equal(t, 3, product.StockQuantity)

	err = store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Len(t, order.Items, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_DoRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: "product-1", StockQuantity: 5})
	store.PutProduct(domain.Product{ID: "product-2", StockQuantity: 1})

	err := store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Products.DecrementStock(ctx, "product-1", 2); err != nil {
			return err
		}
		return repos.Products.DecrementStock(ctx, "product-2", 3)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	product, _ := store.Product("product-1")
	require.Equal(t, 5, product.StockQuantity, "first decrement must be rolled back")
	product, _ = store.Product("product-2")
	require.Equal(t, 1, product.StockQuantity)
}

func TestStore_DoRejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := memory.NewStore().Do(ctx, func(context.Context, domain.Repositories) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestStore_ViewSeesCommittedState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, newOrder("order-1", "user-1", time.Now()))
	}))

	err := store.View(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, "user-1", order.UserID)

		_, err = repos.Orders.Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ViewRunsConcurrently(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	inner := make(chan error, 1)
	err := store.View(ctx, func(context.Context, domain.Repositories) error {
		go func() {
			inner <- store.View(ctx, func(context.Context, domain.Repositories) error { return nil })
		}()
		select {
		case err := <-inner:
			return err
		case <-time.After(time.Second):
			return errors.New("second view is blocked by the first one")
		}
	})
	require.NoError(t, err)
}

func TestStore_ViewRejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := memory.NewStore().View(ctx, func(context.Context, domain.Repositories) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOrderRepository_QueriesAndCascadeDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	err := store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Orders.Create(ctx, newOrder("order-old", "user-1", now.Add(-time.Hour))))
		require.NoError(t, repos.Orders.Create(ctx, newOrder("order-new", "user-1", now)))
		require.NoError(t, repos.Orders.Create(ctx, newOrder("order-other", "user-2", now)))
		return repos.Returns.Create(ctx, domain.ReturnRequest{
			ID:          "rr-1",
			OrderID:     "order-old",
			OrderItemID: "order-old-item-1",
			UserID:      "user-1",
			RequestedAt: now,
		})
	})
	require.NoError(t, err)

	err = store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		orders, err := repos.Orders.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, orders, 2)
		require.Equal(t, "order-new", orders[0].ID)

		bySeller, err := repos.Orders.ListBySeller(ctx, "seller-1")
		require.NoError(t, err)
		require.Len(t, bySeller, 3)

		byItem, err := repos.Orders.GetByItem(ctx, "order-old-item-1")
		require.NoError(t, err)
		require.Equal(t, "order-old", byItem.ID)

		purchased, err := repos.Orders.HasUserPurchasedProduct(ctx, "user-2", "product-1")
		require.NoError(t, err)
		require.True(t, purchased)

		pending, err := repos.Returns.PendingForOrder(ctx, "order-old")
		require.NoError(t, err)
		require.Equal(t, "rr-1", pending.ID)

		return repos.Orders.Delete(ctx, "order-old")
	})
	require.NoError(t, err)

	err = store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Orders.Get(ctx, "order-old")
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repos.Returns.Get(ctx, "rr-1")
		require.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := newOrder("order-1", "user-1", time.Now())

	require.NoError(t, store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, order)
	}))
	order.Items[0].Status = domain.ItemStatusCancelled

	require.NoError(t, store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		stored, err := repos.Orders.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, domain.ItemStatusPending, stored.Items[0].Status)
		return nil
	}))
}

func TestCartAndAddresses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutAddress(domain.Address{ID: "addr-1", UserID: "user-1"})
	carts := store.Carts()
	carts.Add("user-1", domain.CartLine{ProductID: "product-1", Quantity: 2})

	lines, err := carts.Lines(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.NoError(t, carts.Clear(ctx, "user-1"))
	lines, err = carts.Lines(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, lines)

	_, err = store.Addresses().Resolve(ctx, "user-1", "addr-1")
	require.NoError(t, err)
	_, err = store.Addresses().Resolve(ctx, "user-2", "addr-1")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}
