package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// cartService читает корзины из таблицы cart_lines.
type cartService struct {
	db *sql.DB
}

func (c *cartService) Lines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY added_at, product_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func (c *cartService) Clear(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

type addressResolver struct {
	db *sql.DB
}

func (a *addressResolver) Resolve(ctx context.Context, userID, addressID string) (domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var address domain.Address
	err := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, line1, city, postal_code, country
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`, addressID, userID).Scan(
		&address.ID, &address.UserID, &address.Line1, &address.City, &address.PostalCode, &address.Country,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Address{}, fmt.Errorf("address %s of user %s: %w", addressID, userID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Address{}, fmt.Errorf("select address: %w", err)
	}
	return address, nil
}

var (
	_ domain.CartService     = (*cartService)(nil)
	_ domain.AddressResolver = (*addressResolver)(nil)
)
