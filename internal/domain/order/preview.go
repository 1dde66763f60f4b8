package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
)

// PreviewDiscount evaluates code against the caller's current cart without
// reserving anything. A rejected code comes back as an invalid Decision, not
// as an error. Usage limits may still be hit at checkout.
func (s *Service) PreviewDiscount(ctx context.Context, c Caller, code string, t fulfillment.Type) (*discount.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "order.PreviewDiscount")
	defer span.End()

	if c.AccountID == "" && c.SessionID == "" {
		return nil, apperr.Validation("session", "a session or an account is required")
	}
	code = discount.NormalizeCode(code)
	if code == "" {
		return nil, apperr.Validation("discount_code", "discount code is required")
	}
	if !t.Valid() {
		return nil, apperr.Validation("order_type", "order_type must be one of: collection delivery")
	}

	var acct *account.Account
	if c.AccountID != "" {
		a, err := s.accounts.Get(ctx, c.AccountID)
		if errors.Is(err, account.ErrNotFound) {
			return nil, apperr.New(apperr.KindUserNotFound, "account no longer exists")
		}
		if err != nil {
			return nil, errors.Wrap(err, "get account")
		}
		acct = a
	}

	resolved, err := s.resolver.Resolve(ctx, c.CartKey())
	if err != nil {
		return nil, err
	}
	d, err := s.discounts.Validate(ctx, discountRequest(code, t, resolved, acct))
	if err != nil {
		return nil, errors.Wrap(err, "validate discount")
	}
	return d, nil
}

func discountRequest(code string, t fulfillment.Type, r *cart.Resolved, acct *account.Account) discount.Request {
	req := discount.Request{
		Code:       code,
		OrderType:  t,
		OrderValue: r.Subtotal(),
		Lines:      make([]discount.Line, len(r.Lines)),
	}
	for i, l := range r.Lines {
		req.Lines[i] = discount.Line{ItemID: l.ItemID, CategoryID: l.CategoryID, Value: l.LineTotal}
	}
	if acct != nil {
		req.OwnerID = acct.ID
		req.OwnerHasOrdered = acct.HasOrdered
	}
	return req
}
