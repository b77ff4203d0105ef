package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const orderColumns = `
	id, user_id, address_id, status, total_amount, payment_reference,
	refund_reference, has_return_request, created_at, updated_at`

const itemColumns = `
	id, order_id, product_id, seller_id, quantity, unit_price, status,
	refunded, refund_date, refund_reason, has_return_request, created_at`

type orderRepository struct {
	q queryer
	// lock включает SELECT ... FOR UPDATE при чтении заказа по ключу.
	lock bool
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.UserID, order.AddressID, string(order.Status), order.TotalAmount,
		order.PaymentReference, order.RefundReference, order.HasReturnRequest,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s already exists", domain.ErrConflict, order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for pos, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (`+itemColumns+`, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			item.ID, order.ID, item.ProductID, item.SellerID, item.Quantity, item.UnitPrice,
			string(item.Status), item.Refunded, nullTime(item.RefundDate), item.RefundReason,
			item.HasReturnRequest, item.CreatedAt, pos,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if r.lock {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) GetByItem(ctx context.Context, itemID string) (domain.Order, error) {
	var orderID string
	err := r.q.QueryRowContext(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order item %s: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order item: %w", err)
	}
	return r.Get(ctx, orderID)
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    total_amount = $3,
		    payment_reference = $4,
		    refund_reference = $5,
		    has_return_request = $6,
		    updated_at = $7
		WHERE id = $1
	`,
		order.ID, string(order.Status), order.TotalAmount, order.PaymentReference,
		order.RefundReference, order.HasReturnRequest, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", order.ID, domain.ErrNotFound)
	}

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			UPDATE order_items
			SET status = $2,
			    refunded = $3,
			    refund_date = $4,
			    refund_reason = $5,
			    has_return_request = $6
			WHERE id = $1 AND order_id = $7
		`,
			item.ID, string(item.Status), item.Refunded, nullTime(item.RefundDate),
			item.RefundReason, item.HasReturnRequest, order.ID,
		); err != nil {
			return fmt.Errorf("update order item %s: %w", item.ID, err)
		}
	}

	return nil
}

// Delete явно удаляет зависимые записи: заявки, позиции, затем заказ.
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM return_requests WHERE order_id = $1`, id); err != nil {
		return fmt.Errorf("delete return requests: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *orderRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE id IN (SELECT order_id FROM order_items WHERE seller_id = $1)`, sellerID)
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, ``)
}

func (r *orderRepository) HasUserPurchasedProduct(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM order_items i
			JOIN orders o ON o.id = i.order_id
			WHERE o.user_id = $1 AND i.product_id = $2
		)
	`, userID, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query purchase: %w", err)
	}
	return exists, nil
}

func (r *orderRepository) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		`+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position, id
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item       domain.OrderItem
			status     string
			refundDate sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SellerID, &item.Quantity,
			&item.UnitPrice, &status, &item.Refunded, &refundDate, &item.RefundReason,
			&item.HasReturnRequest, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Status = domain.ItemStatus(status)
		item.RefundDate = timePtr(refundDate)
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.UserID, &order.AddressID, &status, &order.TotalAmount,
		&order.PaymentReference, &order.RefundReference, &order.HasReturnRequest,
		&order.CreatedAt, &order.UpdatedAt,
	)
	order.Status = domain.OrderStatus(status)
	return order, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ domain.OrderRepository = (*orderRepository)(nil)
