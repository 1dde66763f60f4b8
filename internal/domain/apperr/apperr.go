// Package apperr defines the error taxonomy shared by the checkout domain.
//
// Every failure a caller can act on is an *Error carrying a machine-readable
// Kind. Transport layers map kinds to status codes with HTTPStatus; anything
// that is not an *Error is treated as an internal error.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation              Kind = "VALIDATION_ERROR"
	KindDiscountInvalidCode     Kind = "DISCOUNT_INVALID_CODE"
	KindDiscountExpired         Kind = "DISCOUNT_EXPIRED_CODE"
	KindDiscountNotYetValid     Kind = "DISCOUNT_NOT_YET_VALID"
	KindDiscountMinimumNotMet   Kind = "DISCOUNT_MINIMUM_NOT_MET"
	KindDiscountUsageLimit      Kind = "DISCOUNT_USAGE_LIMIT_REACHED"
	KindDiscountCustomerLimit   Kind = "DISCOUNT_CUSTOMER_LIMIT_REACHED"
	KindDiscountNotApplicable   Kind = "DISCOUNT_NOT_APPLICABLE"
	KindItemUnavailable         Kind = "ITEM_UNAVAILABLE"
	KindStockUnavailable        Kind = "STOCK_UNAVAILABLE"
	KindDeliveryUnavailable     Kind = "DELIVERY_UNAVAILABLE"
	KindInvalidStatusTransition Kind = "INVALID_STATUS_TRANSITION"
	KindStatusConflict          Kind = "STATUS_CONFLICT"
	KindCartChanged             Kind = "CART_CHANGED"
	KindPaymentDeclined         Kind = "PAYMENT_DECLINED"
	KindNotFound                Kind = "NOT_FOUND"
	KindUnauthorized            Kind = "UNAUTHORIZED"
	KindUserNotFound            Kind = "USER_NOT_FOUND"
	KindTicketGenerationFailed  Kind = "TICKET_GENERATION_FAILED"
	KindInternal                Kind = "INTERNAL_ERROR"
)

// HTTPStatus returns the response status code for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation,
		KindDiscountInvalidCode,
		KindDiscountExpired,
		KindDiscountNotYetValid,
		KindDiscountMinimumNotMet,
		KindDiscountUsageLimit,
		KindDiscountCustomerLimit,
		KindDiscountNotApplicable,
		KindDeliveryUnavailable,
		KindInvalidStatusTransition:
		return http.StatusBadRequest
	case KindItemUnavailable, KindStockUnavailable, KindStatusConflict, KindCartChanged:
		return http.StatusConflict
	case KindPaymentDeclined:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized, KindUserNotFound:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// IsDiscount reports whether the kind is one of the discount rejection reasons.
func (k Kind) IsDiscount() bool {
	switch k {
	case KindDiscountInvalidCode,
		KindDiscountExpired,
		KindDiscountNotYetValid,
		KindDiscountMinimumNotMet,
		KindDiscountUsageLimit,
		KindDiscountCustomerLimit,
		KindDiscountNotApplicable:
		return true
	}
	return false
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string

	// Optional context. Zero values are omitted from responses.
	Field  string
	ItemID string
	From   string
	To     string

	Err error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.ItemID != "":
		s = fmt.Sprintf("%s: %s (item %s)", e.Kind, e.Message, e.ItemID)
	case e.Field != "":
		s = fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Message, e.Field)
	case e.From != "" || e.To != "":
		s = fmt.Sprintf("%s: %s (%s -> %s)", e.Kind, e.Message, e.From, e.To)
	default:
		s = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is like New with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a VALIDATION_ERROR for field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field}
}

// ItemUnavailable returns an ITEM_UNAVAILABLE error naming the item.
func ItemUnavailable(itemID, msg string) *Error {
	return &Error{Kind: KindItemUnavailable, Message: msg, ItemID: itemID}
}

// StockUnavailable returns a STOCK_UNAVAILABLE error naming the item.
func StockUnavailable(itemID string) *Error {
	return &Error{Kind: KindStockUnavailable, Message: "not enough stock", ItemID: itemID}
}

// InvalidTransition returns an INVALID_STATUS_TRANSITION error.
func InvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidStatusTransition,
		Message: fmt.Sprintf("cannot move order from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

// NotFound returns a NOT_FOUND error for the named resource.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// Internal wraps err as an INTERNAL_ERROR with a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal if err is unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
