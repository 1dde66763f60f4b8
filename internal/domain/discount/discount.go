package discount

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// Percentage takes Value percent off the eligible order value.
	Percentage Type = "percentage"
	// Fixed takes Value major currency units off, capped at the eligible value.
	Fixed Type = "fixed"
)

// ErrNotFound is returned by repositories when no code matches.
var ErrNotFound = errors.New("discount code not found")

// Code is a discount code and its eligibility rules.
//
// Zero values of the optional limits mean "no limit". Empty filter sets mean
// "no restriction".
type Code struct {
	Code        string
	Type        Type
	Value       decimal.Decimal
	Description string
	Active      bool

	ValidFrom  time.Time
	ValidUntil *time.Time

	MinimumOrderValue money.Amount
	TotalUsageLimit   int
	TotalUsedCount    int
	PerCustomerLimit  int
	FirstOrderOnly    bool

	OrderTypes  []fulfillment.Type
	CategoryIDs []string
	ItemIDs     []string
}

// Restricted reports whether the code only applies to some lines.
func (c *Code) Restricted() bool {
	return len(c.CategoryIDs) > 0 || len(c.ItemIDs) > 0
}

// Matches reports whether a line falls under the code's item and category
// filters.
func (c *Code) Matches(l Line) bool {
	if !c.Restricted() {
		return true
	}
	return slices.Contains(c.ItemIDs, l.ItemID) || slices.Contains(c.CategoryIDs, l.CategoryID)
}

// AllowsOrderType reports whether t passes the order type filter.
func (c *Code) AllowsOrderType(t fulfillment.Type) bool {
	return len(c.OrderTypes) == 0 || slices.Contains(c.OrderTypes, t)
}

// Line is the discount-relevant view of a priced cart line.
type Line struct {
	ItemID     string
	CategoryID string
	Value      money.Amount
}

// Repository provides lookup of discount codes and per-customer usage.
type Repository interface {
	// FindByCode returns the code matching the normalized code, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Code, error)
	// CountUsage returns how many orders the owner has placed with the code.
	CountUsage(ctx context.Context, code, ownerID string) (int, error)
}

// NormalizeCode canonicalizes user input for case-insensitive lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
