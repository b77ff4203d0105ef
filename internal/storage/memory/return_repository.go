package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type returnRequestRepository struct {
	st *state
}

func (r *returnRequestRepository) Create(_ context.Context, request domain.ReturnRequest) error {
	if _, exists := r.st.returns[request.ID]; exists {
		return fmt.Errorf("%w: return request %s already exists", domain.ErrConflict, request.ID)
	}
	r.st.returns[request.ID] = request
	return nil
}

func (r *returnRequestRepository) Get(_ context.Context, id string) (domain.ReturnRequest, error) {
	request, ok := r.st.returns[id]
	if !ok {
		return domain.ReturnRequest{}, fmt.Errorf("return request %s: %w", id, domain.ErrNotFound)
	}
	return request, nil
}

func (r *returnRequestRepository) Save(_ context.Context, request domain.ReturnRequest) error {
	if _, ok := r.st.returns[request.ID]; !ok {
		return fmt.Errorf("return request %s: %w", request.ID, domain.ErrNotFound)
	}
	r.st.returns[request.ID] = request
	return nil
}

func (r *returnRequestRepository) PendingForOrder(_ context.Context, orderID string) (domain.ReturnRequest, error) {
	pending := r.filter(func(req domain.ReturnRequest) bool {
		return req.OrderID == orderID && !req.Processed
	})
	if len(pending) == 0 {
		return domain.ReturnRequest{}, fmt.Errorf("pending return request for order %s: %w", orderID, domain.ErrNotFound)
	}
	return pending[0], nil
}

func (r *returnRequestRepository) ListByUser(_ context.Context, userID string) ([]domain.ReturnRequest, error) {
	return r.filter(func(req domain.ReturnRequest) bool { return req.UserID == userID }), nil
}

func (r *returnRequestRepository) ListPendingBySeller(_ context.Context, sellerID string) ([]domain.ReturnRequest, error) {
	return r.filter(func(req domain.ReturnRequest) bool {
		if req.Processed {
			return false
		}
		order, ok := r.st.orders[req.OrderID]
		return ok && order.HasSeller(sellerID)
	}), nil
}

func (r *returnRequestRepository) List(_ context.Context) ([]domain.ReturnRequest, error) {
	return r.filter(func(domain.ReturnRequest) bool { return true }), nil
}

// filter возвращает подходящие заявки, новые первыми.
func (r *returnRequestRepository) filter(match func(domain.ReturnRequest) bool) []domain.ReturnRequest {
	result := make([]domain.ReturnRequest, 0)
	for _, request := range r.st.returns {
		if match(request) {
			result = append(result, request)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].RequestedAt.After(result[j].RequestedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

var _ domain.ReturnRequestRepository = (*returnRequestRepository)(nil)
