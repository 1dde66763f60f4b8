package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/money"
)

// ResolvedLine is a cart line priced against the live menu.
type ResolvedLine struct {
	ItemID     string
	Name       string
	CategoryID string
	Quantity   int
	Options    []menu.Option
	UnitPrice  money.Amount
	LineTotal  money.Amount
}

// Resolved is a cart with live prices.
type Resolved struct {
	Key          Key
	Version      int64
	DiscountCode string
	Lines        []ResolvedLine
}

// Subtotal sums the line totals.
func (r *Resolved) Subtotal() money.Amount {
	var total money.Amount
	for _, l := range r.Lines {
		total += l.LineTotal
	}
	return total
}

// Demand returns the total quantity requested per item.
func (r *Resolved) Demand() map[string]int {
	d := make(map[string]int, len(r.Lines))
	for _, l := range r.Lines {
		d[l.ItemID] += l.Quantity
	}
	return d
}

// Resolver loads carts and prices them from the live menu. It never writes
// the stored cart.
type Resolver struct {
	store Store
	menu  menu.Repository
}

// NewResolver creates a Resolver.
func NewResolver(store Store, menu menu.Repository) *Resolver {
	return &Resolver{store: store, menu: menu}
}

// Resolve returns the priced cart for key. Lines referencing a missing or
// deactivated item, or an option no longer offered, fail with
// ITEM_UNAVAILABLE naming the item.
func (r *Resolver) Resolve(ctx context.Context, key Key) (*Resolved, error) {
	if !key.Valid() {
		return nil, apperr.Validation("cart", "cart owner is required")
	}

	c, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.Empty() {
		return nil, apperr.Validation("cart", "cart is empty")
	}

	ids := make([]string, 0, len(c.Lines))
	seen := make(map[string]struct{}, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		ids = append(ids, l.ItemID)
	}

	items, err := r.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get menu items")
	}
	byID := menu.Index(items)

	out := &Resolved{
		Key:          key,
		Version:      c.Version,
		DiscountCode: c.DiscountCode,
		Lines:        make([]ResolvedLine, 0, len(c.Lines)),
	}
	for _, l := range c.Lines {
		if l.Quantity <= 0 {
			return nil, apperr.Validation("quantity", "quantity must be greater than 0")
		}
		item, ok := byID[l.ItemID]
		if !ok || !item.Active {
			return nil, apperr.ItemUnavailable(l.ItemID, "item is no longer available")
		}
		price, options, err := item.PriceWith(l.Options)
		if err != nil {
			return nil, apperr.ItemUnavailable(l.ItemID, err.Error())
		}
		out.Lines = append(out.Lines, ResolvedLine{
			ItemID:     item.ID,
			Name:       item.Name,
			CategoryID: item.CategoryID,
			Quantity:   l.Quantity,
			Options:    options,
			UnitPrice:  price,
			LineTotal:  price.Mul(l.Quantity),
		})
	}
	return out, nil
}
