package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов вместе с позициями.
type OrderRepository interface {
	// Create сохраняет новый заказ и его позиции.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetByItem возвращает заказ, которому принадлежит позиция.
	GetByItem(ctx context.Context, itemID string) (Order, error)
	// Save перезаписывает заказ и состояние всех его позиций.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ каскадно: заявки на возврат, позиции, сам заказ.
	Delete(ctx context.Context, id string) error
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListBySeller возвращает заказы, содержащие позиции продавца, новые первыми.
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context) ([]Order, error)
	// HasUserPurchasedProduct сообщает, покупал ли пользователь товар.
	HasUserPurchasedProduct(ctx context.Context, userID, productID string) (bool, error)
}

// ProductRepository даёт доступ к товарам и их остаткам.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	// DecrementStock атомарно уменьшает остаток, если его хватает; иначе ErrInsufficientStock.
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

// ReturnRequestRepository хранит заявки на возврат.
type ReturnRequestRepository interface {
	Create(ctx context.Context, request ReturnRequest) error
	Get(ctx context.Context, id string) (ReturnRequest, error)
	Save(ctx context.Context, request ReturnRequest) error
	// PendingForOrder возвращает нерассмотренную заявку по заказу или ErrNotFound.
	PendingForOrder(ctx context.Context, orderID string) (ReturnRequest, error)
	ListByUser(ctx context.Context, userID string) ([]ReturnRequest, error)
	// ListPendingBySeller возвращает нерассмотренные заявки по заказам с товарами продавца.
	ListPendingBySeller(ctx context.Context, sellerID string) ([]ReturnRequest, error)
	List(ctx context.Context) ([]ReturnRequest, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// Repositories содержит набор репозиториев, привязанных к одной транзакции.
type Repositories struct {
	Orders   OrderRepository
	Products ProductRepository
	Returns  ReturnRequestRepository
	Outbox   OutboxRepository
	Timeline TimelineRepository
}

// UnitOfWork выполняет fn в одной транзакции: изменения фиксируются,
// только если fn вернула nil.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// View выполняет fn на чтение: строки не блокируются, изменения запрещены.
	View(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
