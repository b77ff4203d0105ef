package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// orderRepository работает со снимком, уже захваченным транзакцией Store.Do.
type orderRepository struct {
	st *state
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	if _, exists := r.st.orders[order.ID]; exists {
		return fmt.Errorf("%w: order %s already exists", domain.ErrConflict, order.ID)
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.st.orders[order.ID] = order.Clone()
	return nil
}

// Get возвращает заказ или ErrNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return order.Clone(), nil
}

func (r *orderRepository) GetByItem(_ context.Context, itemID string) (domain.Order, error) {
	for _, order := range r.st.orders {
		if _, ok := order.Item(itemID); ok {
			return order.Clone(), nil
		}
	}
	return domain.Order{}, fmt.Errorf("order item %s: %w", itemID, domain.ErrNotFound)
}

// Save перезаписывает заказ целиком.
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	if _, ok := r.st.orders[order.ID]; !ok {
		return fmt.Errorf("order %s: %w", order.ID, domain.ErrNotFound)
	}
	r.st.orders[order.ID] = order.Clone()
	return nil
}

// Delete удаляет заказ вместе с заявками на возврат.
func (r *orderRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.st.orders[id]; !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	for requestID, request := range r.st.returns {
		if request.OrderID == id {
			delete(r.st.returns, requestID)
		}
	}
	delete(r.st.orders, id)
	return nil
}

func (r *orderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (r *orderRepository) ListBySeller(_ context.Context, sellerID string) ([]domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.HasSeller(sellerID) }), nil
}

func (r *orderRepository) List(_ context.Context) ([]domain.Order, error) {
	return r.filter(func(domain.Order) bool { return true }), nil
}

func (r *orderRepository) HasUserPurchasedProduct(_ context.Context, userID, productID string) (bool, error) {
	for _, order := range r.st.orders {
		if order.UserID != userID {
			continue
		}
		for _, item := range order.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

// filter возвращает копии подходящих заказов, новые первыми.
func (r *orderRepository) filter(match func(domain.Order) bool) []domain.Order {
	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if match(order) {
			result = append(result, order.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result
}

var _ domain.OrderRepository = (*orderRepository)(nil)
