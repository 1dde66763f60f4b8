package account

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/money"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

// Account is a registered customer.
type Account struct {
	ID            string
	Email         string
	Name          string
	HasOrdered    bool
	LoyaltyPoints int64
}

// Repository provides read access to accounts. Writes happen inside the
// order transaction.
type Repository interface {
	Get(ctx context.Context, id string) (*Account, error)
}

// Points returns the loyalty points earned for an order total: perUnit points
// for each whole currency unit, rounded down.
func Points(total money.Amount, perUnit int64) int64 {
	if perUnit <= 0 {
		return 0
	}
	return total.Units() * perUnit
}
