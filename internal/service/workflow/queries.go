package workflow

import (
	"context"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// read выполняет запрос в транзакции только для чтения, без блокировки заказа.
func read[T any](ctx context.Context, e *Engine, fn func(ctx context.Context, repos domain.Repositories) (T, error)) (T, error) {
	var result T
	err := e.uow.View(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		result, err = fn(ctx, repos)
		return err
	})
	return result, err
}

// GetOrder возвращает заказ с позициями.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) (domain.Order, error) {
		return repos.Orders.Get(ctx, orderID)
	})
}

// ListUserOrders возвращает заказы пользователя, новые первыми.
func (e *Engine) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.Order, error) {
		return repos.Orders.ListByUser(ctx, userID)
	})
}

// ListSellerOrders возвращает заказы с позициями продавца.
func (e *Engine) ListSellerOrders(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.Order, error) {
		return repos.Orders.ListBySeller(ctx, sellerID)
	})
}

func (e *Engine) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.Order, error) {
		return repos.Orders.List(ctx)
	})
}

func (e *Engine) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	order, err := e.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.Items, nil
}

// ListRefundedItems возвращает позиции заказа, по которым вернули средства.
func (e *Engine) ListRefundedItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	order, err := e.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refunded := make([]domain.OrderItem, 0)
	for _, item := range order.Items {
		if item.Refunded {
			refunded = append(refunded, item)
		}
	}
	return refunded, nil
}

func (e *Engine) HasUserPurchasedProduct(ctx context.Context, userID, productID string) (bool, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) (bool, error) {
		return repos.Orders.HasUserPurchasedProduct(ctx, userID, productID)
	})
}

// PendingReturnRequestForOrder возвращает нерассмотренную заявку по заказу или ErrNotFound.
func (e *Engine) PendingReturnRequestForOrder(ctx context.Context, orderID string) (domain.ReturnRequest, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) (domain.ReturnRequest, error) {
		return repos.Returns.PendingForOrder(ctx, orderID)
	})
}

// PendingReturnRequestsForSeller возвращает нерассмотренные заявки по заказам с товарами продавца.
func (e *Engine) PendingReturnRequestsForSeller(ctx context.Context, sellerID string) ([]domain.ReturnRequest, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.ReturnRequest, error) {
		return repos.Returns.ListPendingBySeller(ctx, sellerID)
	})
}

// UserReturnRequests возвращает все заявки пользователя, новые первыми.
func (e *Engine) UserReturnRequests(ctx context.Context, userID string) ([]domain.ReturnRequest, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.ReturnRequest, error) {
		return repos.Returns.ListByUser(ctx, userID)
	})
}

func (e *Engine) ListAllReturnRequests(ctx context.Context) ([]domain.ReturnRequest, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.ReturnRequest, error) {
		return repos.Returns.List(ctx)
	})
}

// Timeline возвращает историю событий заказа в хронологическом порядке.
func (e *Engine) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	return read(ctx, e, func(ctx context.Context, repos domain.Repositories) ([]domain.TimelineEvent, error) {
		return repos.Timeline.List(ctx, orderID)
	})
}
