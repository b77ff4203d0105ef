package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// CreateOrderRequest описывает оформление заказа из корзины.
type CreateOrderRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	AddressID        string `json:"address_id" validate:"required"`
	PaymentReference string `json:"payment_reference" validate:"omitempty,max=255"`
}

// UpdateOrderStatusRequest задаёт административную смену статуса заказа.
type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

// CancelOrderRequest описывает отмену заказа покупателем.
type CancelOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
}

// SellerCancelRequest описывает отмену позиций продавца.
type SellerCancelRequest struct {
	OrderID  string `json:"order_id" validate:"required"`
	SellerID string `json:"seller_id" validate:"required"`
}

// UpdateItemStatusRequest задаёт смену статуса позиции продавцом.
// OrderID необязателен; если задан, позиция должна принадлежать этому заказу.
type UpdateItemStatusRequest struct {
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id" validate:"required"`
	SellerID string `json:"seller_id" validate:"required"`
	Status   string `json:"status" validate:"required"`
	Reason   string `json:"reason" validate:"max=1000"`
}

// RefundItemRequest запрашивает возврат средств за доставленную позицию по запросу покупателя.
type RefundItemRequest struct {
	OrderID string `json:"order_id"`
	ItemID  string `json:"item_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=1000"`
}

// CreateReturnRequest открывает заявку покупателя на возврат позиции.
type CreateReturnRequest struct {
	OrderItemID string `json:"order_item_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	Reason      string `json:"reason" validate:"required,max=1000"`
}

// ProcessReturnRequest несёт решение продавца по заявке.
type ProcessReturnRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
	Approved  bool   `json:"approved"`
	Notes     string `json:"notes" validate:"max=1000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest проверяет запрос и приводит ошибки к ErrInvalidArgument.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(problems, "; "))
}
