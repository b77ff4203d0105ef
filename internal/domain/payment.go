package domain

import "strings"

// CheckoutSessionPrefix отличает ссылку на checkout-сессию от прямой ссылки на платёж.
const CheckoutSessionPrefix = "cs_"

// RefundStatus — статус возврата, который сообщает платёжный шлюз.
type RefundStatus string

const (
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusFailed    RefundStatus = "failed"
	RefundStatusCanceled  RefundStatus = "canceled"
)

// RefundRequest описывает запрос на возврат в шлюз.
type RefundRequest struct {
	// ChargeReference — прямая ссылка на платёж (payment intent).
	ChargeReference string
	// AmountMinor — сумма в минимальных единицах; 0 означает полный возврат.
	AmountMinor    int64
	Reason         string
	Description    string
	IdempotencyKey string
}

// RefundResult содержит ответ шлюза на запрос возврата.
type RefundResult struct {
	ID     string
	Status RefundStatus
}

// Succeeded сообщает, что возврат завершён успешно.
func (r RefundResult) Succeeded() bool {
	return r.Status == RefundStatusSucceeded
}

// IsCheckoutSession сообщает, является ли ссылка checkout-сессией.
func IsCheckoutSession(reference string) bool {
	return strings.HasPrefix(reference, CheckoutSessionPrefix)
}

// SessionID отбрасывает query-суффикс, который возвращается в redirect URL.
func SessionID(reference string) string {
	if idx := strings.IndexByte(reference, '?'); idx >= 0 {
		return reference[:idx]
	}
	return reference
}
