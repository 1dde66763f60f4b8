package order

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/payment"
)

// CheckoutRequest is the input of Service.Checkout.
type CheckoutRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=128"`
	Caller         Caller `json:"-"`

	OrderType       fulfillment.Type `json:"order_type" validate:"required,oneof=collection delivery"`
	CollectionSlot  *time.Time       `json:"collection_slot"`
	DeliveryAddress *Address         `json:"delivery_address"`
	Contact         Contact          `json:"contact"`

	PaymentMethod payment.Method `json:"payment_method" validate:"required,oneof=cash card"`
	PaymentToken  string         `json:"payment_token" validate:"required_if=PaymentMethod card,max=256"`

	// DiscountCode overrides the code stored on the cart when non-nil. An
	// empty string checks out without a discount.
	DiscountCode *string `json:"discount_code" validate:"omitempty,max=64"`
}

// CheckoutResult is the output of Service.Checkout.
type CheckoutResult struct {
	Order *Order
	// Replayed is true when the idempotency key matched an existing order.
	Replayed bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (r *CheckoutRequest) validate(now time.Time) error {
	if r.Caller.AccountID == "" && r.Caller.SessionID == "" {
		return apperr.Validation("session", "a session or an account is required")
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return apperr.Validation("", err.Error())
	}

	switch r.OrderType {
	case fulfillment.Delivery:
		if r.DeliveryAddress == nil {
			return apperr.Validation("delivery_address", "delivery address is required for delivery orders")
		}
		if r.CollectionSlot != nil {
			return apperr.Validation("collection_slot", "collection slot is only valid for collection orders")
		}
	case fulfillment.Collection:
		if r.DeliveryAddress != nil {
			return apperr.Validation("delivery_address", "delivery address is only valid for delivery orders")
		}
		if r.CollectionSlot != nil && r.CollectionSlot.Before(now) {
			return apperr.Validation("collection_slot", "collection slot must be in the future")
		}
	}
	return nil
}

func fieldError(fe validator.FieldError) *apperr.Error {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	var msg string
	switch fe.Tag() {
	case "required", "required_if":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "oneof":
		msg = "must be one of: " + fe.Param()
	case "min", "max":
		bound := "at least "
		if fe.Tag() == "max" {
			bound = "at most "
		}
		msg = "must be " + bound + fe.Param()
		if fe.Kind() == reflect.String {
			msg += " characters"
		}
	default:
		msg = "is invalid"
	}
	return apperr.Validation(ns, ns+" "+msg)
}
