package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type productRepository struct {
	q queryer
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, seller_id, name, price, stock_quantity
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.SellerID, &product.Name, &product.Price, &product.StockQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// DecrementStock списывает остаток одним UPDATE с проверкой нижней границы,
// поэтому параллельные заказы не могут уйти в минус.
func (r *productRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND stock_quantity >= $1
	`, qty, id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for stock decrement: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("product %s: requested %d: %w", id, qty, domain.ErrInsufficientStock)
}

func (r *productRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $1
		WHERE id = $2
	`, qty, id)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for stock increment: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
