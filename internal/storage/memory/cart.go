package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// CartService хранит in-memory корзины пользователей.
type CartService struct {
	store *Store
}

// Add добавляет строку в корзину пользователя.
func (c *CartService) Add(userID string, line domain.CartLine) {
	_ = c.store.withState(func(st *state) error {
		st.carts[userID] = append(st.carts[userID], line)
		return nil
	})
}

// Lines возвращает копию строк корзины.
func (c *CartService) Lines(_ context.Context, userID string) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	err := c.store.withState(func(st *state) error {
		lines = append([]domain.CartLine(nil), st.carts[userID]...)
		return nil
	})
	return lines, err
}

// Clear очищает корзину пользователя.
func (c *CartService) Clear(_ context.Context, userID string) error {
	return c.store.withState(func(st *state) error {
		delete(st.carts, userID)
		return nil
	})
}

type addressResolver struct {
	store *Store
}

func (a *addressResolver) Resolve(_ context.Context, userID, addressID string) (domain.Address, error) {
	var address domain.Address
	err := a.store.withState(func(st *state) error {
		found, ok := st.addresses[addressID]
		if !ok || found.UserID != userID {
			return fmt.Errorf("address %s of user %s: %w", addressID, userID, domain.ErrNotFound)
		}
		address = found
		return nil
	})
	return address, err
}

var (
	_ domain.CartService     = (*CartService)(nil)
	_ domain.AddressResolver = (*addressResolver)(nil)
)
