package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const returnColumns = `
	id, order_id, order_item_id, user_id, reason, requested_at,
	processed, approved, rejected, processed_at, processor_notes`

type returnRequestRepository struct {
	q    queryer
	lock bool
}

func (r *returnRequestRepository) Create(ctx context.Context, request domain.ReturnRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO return_requests (`+returnColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		request.ID, request.OrderID, request.OrderItemID, request.UserID, request.Reason,
		request.RequestedAt, request.Processed, request.Approved, request.Rejected,
		nullTime(request.ProcessedAt), request.ProcessorNotes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: open return request for item %s exists", domain.ErrConflict, request.OrderItemID)
		}
		return fmt.Errorf("insert return request: %w", err)
	}
	return nil
}

func (r *returnRequestRepository) Get(ctx context.Context, id string) (domain.ReturnRequest, error) {
	query := `SELECT ` + returnColumns + ` FROM return_requests WHERE id = $1`
	if r.lock {
		query += ` FOR UPDATE`
	}

	request, err := scanReturnRequest(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReturnRequest{}, fmt.Errorf("return request %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("select return request: %w", err)
	}
	return request, nil
}

func (r *returnRequestRepository) Save(ctx context.Context, request domain.ReturnRequest) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE return_requests
		SET processed = $2,
		    approved = $3,
		    rejected = $4,
		    processed_at = $5,
		    processor_notes = $6
		WHERE id = $1
	`,
		request.ID, request.Processed, request.Approved, request.Rejected,
		nullTime(request.ProcessedAt), request.ProcessorNotes,
	)
	if err != nil {
		return fmt.Errorf("update return request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for return request: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("return request %s: %w", request.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *returnRequestRepository) PendingForOrder(ctx context.Context, orderID string) (domain.ReturnRequest, error) {
	requests, err := r.list(ctx, `WHERE order_id = $1 AND processed = FALSE`, orderID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if len(requests) == 0 {
		return domain.ReturnRequest{}, fmt.Errorf("pending return request for order %s: %w", orderID, domain.ErrNotFound)
	}
	return requests[0], nil
}

func (r *returnRequestRepository) ListByUser(ctx context.Context, userID string) ([]domain.ReturnRequest, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *returnRequestRepository) ListPendingBySeller(ctx context.Context, sellerID string) ([]domain.ReturnRequest, error) {
	return r.list(ctx, `
		WHERE processed = FALSE
		  AND order_id IN (SELECT order_id FROM order_items WHERE seller_id = $1)
	`, sellerID)
}

func (r *returnRequestRepository) List(ctx context.Context) ([]domain.ReturnRequest, error) {
	return r.list(ctx, ``)
}

func (r *returnRequestRepository) list(ctx context.Context, where string, args ...any) ([]domain.ReturnRequest, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+returnColumns+`
		FROM return_requests
		`+where+`
		ORDER BY requested_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ReturnRequest, 0)
	for rows.Next() {
		request, err := scanReturnRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		result = append(result, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate return requests: %w", err)
	}
	return result, nil
}

func scanReturnRequest(row rowScanner) (domain.ReturnRequest, error) {
	var (
		request     domain.ReturnRequest
		processedAt sql.NullTime
	)
	err := row.Scan(
		&request.ID, &request.OrderID, &request.OrderItemID, &request.UserID, &request.Reason,
		&request.RequestedAt, &request.Processed, &request.Approved, &request.Rejected,
		&processedAt, &request.ProcessorNotes,
	)
	request.ProcessedAt = timePtr(processedAt)
	return request, err
}

var _ domain.ReturnRequestRepository = (*returnRequestRepository)(nil)
