package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type productRepository struct {
	st *state
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return product, nil
}

// DecrementStock уменьшает остаток, только если его хватает.
func (r *productRepository) DecrementStock(_ context.Context, id string, qty int) error {
	product, ok := r.st.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if product.StockQuantity < qty {
		return fmt.Errorf("product %s: requested %d, available %d: %w",
			id, qty, product.StockQuantity, domain.ErrInsufficientStock)
	}
	product.StockQuantity -= qty
	r.st.products[id] = product
	return nil
}

func (r *productRepository) IncrementStock(_ context.Context, id string, qty int) error {
	product, ok := r.st.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	product.StockQuantity += qty
	r.st.products[id] = product
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
