package domain

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound возвращается для отсутствующей сущности.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: вызывающий не владеет заказом или товаром.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition означает переход, запрещённый машиной состояний.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState: не выполнено предусловие операции (например, пустая корзина).
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict возвращается, если по позиции уже оформлялась заявка на возврат.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyProcessed: заявка на возврат уже рассмотрена.
	ErrAlreadyProcessed = errors.New("return request already processed")
	// ErrAlreadyRefunded: средства по позиции уже возвращены.
	ErrAlreadyRefunded = errors.New("item already refunded")
	// ErrInsufficientStock означает, что остатка товара не хватает на заказ.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrRefundFailed означает, что платёжный шлюз не подтвердил возврат.
	ErrRefundFailed = errors.New("refund failed")
	// ErrGatewayLookupFailed: не удалось получить платёж по checkout-сессии.
	ErrGatewayLookupFailed = errors.New("payment gateway lookup failed")
	// ErrInvalidArgument возвращается для запроса, не прошедшего валидацию.
	ErrInvalidArgument = errors.New("invalid argument")

	// Ошибки инвариантов заказа.
	ErrUserRequired     = errors.New("user_id is required")
	ErrItemsRequired    = errors.New("order must contain at least one item")
	ErrAmountNegative   = errors.New("total amount must be non-negative")
	ErrItemQtyInvalid   = errors.New("item quantity must be greater than zero")
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	ErrAmountMismatch   = errors.New("order total does not match items sum")

	// ErrOutboxPublish сигнализирует об ошибке публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorCode задаёт стабильный код ошибки для внешнего слоя.
type ErrorCode string

const (
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	CodeInvalidState        ErrorCode = "INVALID_STATE"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeAlreadyProcessed    ErrorCode = "ALREADY_PROCESSED"
	CodeAlreadyRefunded     ErrorCode = "ALREADY_REFUNDED"
	CodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	CodeRefundFailed        ErrorCode = "REFUND_FAILED"
	CodeGatewayLookupFailed ErrorCode = "GATEWAY_LOOKUP_FAILED"
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// ErrorMetadata описывает, как ошибку показывать вызывающей стороне.
type ErrorMetadata struct {
	Code          ErrorCode
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

type classifiedError struct {
	target error
	meta   ErrorMetadata
}

// Порядок важен: ошибка возврата может одновременно оборачивать ErrGatewayLookupFailed.
var classification = []classifiedError{
	{ErrNotFound, ErrorMetadata{CodeNotFound, http.StatusNotFound, false, "resource not found"}},
	{ErrForbidden, ErrorMetadata{CodeForbidden, http.StatusForbidden, false, "operation not permitted"}},
	{ErrInvalidArgument, ErrorMetadata{CodeValidation, http.StatusBadRequest, false, "validation failed"}},
	{ErrInvalidTransition, ErrorMetadata{CodeInvalidTransition, http.StatusConflict, false, "status transition not allowed"}},
	{ErrInvalidState, ErrorMetadata{CodeInvalidState, http.StatusUnprocessableEntity, false, "operation precondition not met"}},
	{ErrConflict, ErrorMetadata{CodeConflict, http.StatusConflict, false, "conflicting request"}},
	{ErrAlreadyProcessed, ErrorMetadata{CodeAlreadyProcessed, http.StatusConflict, false, "return request already processed"}},
	{ErrAlreadyRefunded, ErrorMetadata{CodeAlreadyRefunded, http.StatusConflict, false, "item already refunded"}},
	{ErrInsufficientStock, ErrorMetadata{CodeInsufficientStock, http.StatusConflict, false, "insufficient stock"}},
	{ErrRefundFailed, ErrorMetadata{CodeRefundFailed, http.StatusBadGateway, true, "payment refund failed"}},
	{ErrGatewayLookupFailed, ErrorMetadata{CodeGatewayLookupFailed, http.StatusBadGateway, true, "payment lookup failed"}},
}

var internalMetadata = ErrorMetadata{CodeInternal, http.StatusInternalServerError, true, "internal error"}

// Classify сопоставляет ошибку с кодом и HTTP-статусом.
// Всё, что не относится к доменным ошибкам, считается внутренней ошибкой.
func Classify(err error) ErrorMetadata {
	for _, c := range classification {
		if errors.Is(err, c.target) {
			return c.meta
		}
	}
	return internalMetadata
}

// IsDomainError сообщает, является ли ошибка нарушением бизнес-правила.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Code != CodeInternal
}
