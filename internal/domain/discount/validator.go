package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
)

// Request is the input of a discount evaluation.
type Request struct {
	Code       string
	OrderType  fulfillment.Type
	OrderValue money.Amount
	Lines      []Line

	// OwnerID is empty for guests. Per-customer checks only run for known
	// owners.
	OwnerID         string
	OwnerHasOrdered bool
}

// Decision is the outcome of a discount evaluation.
type Decision struct {
	Valid       bool
	Code        string
	Amount      money.Amount
	Description string

	// Per-customer limits of the code, re-checked when the usage is
	// recorded.
	PerCustomerLimit int
	FirstOrderOnly   bool

	// Set when Valid is false.
	Reason  apperr.Kind
	Message string
}

// Err returns the rejection as an *apperr.Error, or nil for a valid decision.
func (d *Decision) Err() error {
	if d == nil || d.Valid {
		return nil
	}
	return &apperr.Error{Kind: d.Reason, Message: d.Message, Field: "discount_code"}
}

// Validator evaluates discount codes against a request.
type Validator interface {
	Validate(ctx context.Context, req Request) (*Decision, error)
}

// RepoValidator implements Validator on top of a Repository. It never writes:
// usage counters are only touched by the order transaction.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate runs the eligibility checks in order and stops at the first
// failure. The returned error is non-nil only for lookup failures.
func (v *RepoValidator) Validate(ctx context.Context, req Request) (*Decision, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return reject(code, apperr.KindDiscountInvalidCode, "Enter a discount code."), nil
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(code, apperr.KindDiscountInvalidCode,
				fmt.Sprintf("Discount code %s does not exist.", code)), nil
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}

	now := v.now()
	switch {
	case !c.Active:
		return reject(code, apperr.KindDiscountExpired,
			fmt.Sprintf("Discount code %s is no longer active.", code)), nil
	case now.Before(c.ValidFrom):
		return reject(code, apperr.KindDiscountNotYetValid,
			fmt.Sprintf("Discount code %s is valid from %s.", code, c.ValidFrom.Format("2 Jan 2006"))), nil
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		return reject(code, apperr.KindDiscountExpired,
			fmt.Sprintf("Discount code %s expired on %s.", code, c.ValidUntil.Format("2 Jan 2006"))), nil
	}

	if c.MinimumOrderValue > 0 && req.OrderValue < c.MinimumOrderValue {
		return reject(code, apperr.KindDiscountMinimumNotMet,
			fmt.Sprintf("Add %s more to use %s (minimum order %s).",
				c.MinimumOrderValue-req.OrderValue, code, c.MinimumOrderValue)), nil
	}

	if c.TotalUsageLimit > 0 && c.TotalUsedCount >= c.TotalUsageLimit {
		return reject(code, apperr.KindDiscountUsageLimit,
			fmt.Sprintf("Discount code %s has been fully redeemed.", code)), nil
	}

	if req.OwnerID != "" {
		if c.FirstOrderOnly && req.OwnerHasOrdered {
			return reject(code, apperr.KindDiscountCustomerLimit,
				fmt.Sprintf("Discount code %s is only valid on your first order.", code)), nil
		}
		if c.PerCustomerLimit > 0 {
			used, err := v.repo.CountUsage(ctx, code, req.OwnerID)
			if err != nil {
				return nil, errors.Wrap(err, "count discount usage")
			}
			if used >= c.PerCustomerLimit {
				return reject(code, apperr.KindDiscountCustomerLimit,
					fmt.Sprintf("You have already used %s the maximum number of times.", code)), nil
			}
		}
	}

	if !c.AllowsOrderType(req.OrderType) {
		return reject(code, apperr.KindDiscountNotApplicable,
			fmt.Sprintf("Discount code %s is not valid for %s orders.", code, req.OrderType)), nil
	}

	eligible := req.OrderValue
	if c.Restricted() {
		eligible = 0
		for _, l := range req.Lines {
			if c.Matches(l) {
				eligible += l.Value
			}
		}
		if eligible == 0 {
			return reject(code, apperr.KindDiscountNotApplicable,
				fmt.Sprintf("Discount code %s does not apply to the items in your cart.", code)), nil
		}
	}

	return &Decision{
		Valid:       true,
		Code:        code,
		Amount:      Amount(c, eligible, req.OrderValue),
		Description: c.Description,

		PerCustomerLimit: c.PerCustomerLimit,
		FirstOrderOnly:   c.FirstOrderOnly,
	}, nil
}

// Amount computes the discount for the eligible value in minor units.
// Percentages round half up. The result never exceeds the eligible value
// nor the order value.
func Amount(c *Code, eligible, orderValue money.Amount) money.Amount {
	var amt money.Amount
	switch c.Type {
	case Percentage:
		amt = eligible.ApplyBPS(money.PercentToBPS(c.Value))
	case Fixed:
		amt = money.FromDecimal(c.Value)
	}
	if amt < 0 {
		return 0
	}
	return money.Min(money.Min(amt, eligible), orderValue)
}

func reject(code string, reason apperr.Kind, msg string) *Decision {
	return &Decision{Code: code, Reason: reason, Message: msg}
}
