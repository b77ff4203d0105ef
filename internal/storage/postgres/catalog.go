package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// PutProduct создаёт или обновляет товар каталога.
func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, seller_id, name, price, stock_quantity)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET seller_id = EXCLUDED.seller_id,
		    name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    stock_quantity = EXCLUDED.stock_quantity
	`, product.ID, product.SellerID, product.Name, product.Price, product.StockQuantity); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// PutAddress создаёт или обновляет адрес доставки.
func (s *Store) PutAddress(ctx context.Context, address domain.Address) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, line1, city, postal_code, country)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    line1 = EXCLUDED.line1,
		    city = EXCLUDED.city,
		    postal_code = EXCLUDED.postal_code,
		    country = EXCLUDED.country
	`, address.ID, address.UserID, address.Line1, address.City, address.PostalCode, address.Country); err != nil {
		return fmt.Errorf("upsert address: %w", err)
	}
	return nil
}

// AddCartLine кладёт товар в корзину; повторное добавление увеличивает количество.
func (s *Store) AddCartLine(ctx context.Context, userID string, line domain.CartLine) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_lines.quantity + EXCLUDED.quantity
	`, userID, line.ProductID, line.Quantity); err != nil {
		return fmt.Errorf("add cart line: %w", err)
	}
	return nil
}
