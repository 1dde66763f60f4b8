package memory

import (
	"context"
	"slices"
	"time"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

// tx operates on the DB state while DB.mu is held by InTx.
type tx struct {
	st *state
}

var _ order.Tx = (*tx)(nil)

func (t *tx) Lock(_ context.Context, ids []string) (map[string]stock.Entry, error) {
	out := make(map[string]stock.Entry, len(ids))
	for _, id := range ids {
		if e, ok := t.st.stock[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (t *tx) Decrement(_ context.Context, itemID string, qty int) error {
	e, ok := t.st.stock[itemID]
	if !ok || !e.Tracked {
		return nil
	}
	if e.Quantity < qty {
		return apperr.StockUnavailable(itemID)
	}
	e.Quantity -= qty
	t.st.stock[itemID] = e
	return nil
}

func (t *tx) TicketExists(_ context.Context, ticket string) (bool, error) {
	_, ok := t.st.byTicket[ticket]
	return ok, nil
}

func (t *tx) Insert(_ context.Context, o *order.Order) error {
	if _, ok := t.st.byKey[o.IdempotencyKey]; ok {
		return order.ErrDuplicateIdempotencyKey
	}
	if id, ok := o.Owner.ID(); ok {
		if _, exists := t.st.accounts[id]; !exists {
			return apperr.New(apperr.KindUserNotFound, "account no longer exists")
		}
	}
	for _, l := range o.Lines {
		if _, ok := t.st.menu[l.ItemID]; !ok {
			return apperr.ItemUnavailable(l.ItemID, "item is no longer available")
		}
	}

	t.st.seq++
	o.Number = t.st.seq
	stored := *o
	stored.Lines = slices.Clone(o.Lines)
	t.st.orders[o.ID] = stored
	t.st.byKey[o.IdempotencyKey] = o.ID
	t.st.byTicket[o.Ticket] = o.ID
	return nil
}

func (t *tx) AppendHistory(_ context.Context, orderID string, e order.HistoryEntry) error {
	h := slices.Clone(t.st.history[orderID])
	t.st.history[orderID] = append(h, e)
	return nil
}

func (t *tx) IncrementDiscountUsage(_ context.Context, code string) error {
	c, ok := t.st.discounts[code]
	if !ok {
		return apperr.New(apperr.KindDiscountInvalidCode, "discount code no longer exists")
	}
	if c.TotalUsageLimit > 0 && c.TotalUsedCount >= c.TotalUsageLimit {
		return apperr.New(apperr.KindDiscountUsageLimit, "discount code "+code+" has been fully redeemed")
	}
	c.TotalUsedCount++
	t.st.discounts[code] = c
	return nil
}

func (t *tx) RecordDiscountUsage(_ context.Context, u order.DiscountUsage) error {
	a, ok := t.st.accounts[u.OwnerID]
	if !ok {
		return apperr.New(apperr.KindUserNotFound, "account no longer exists")
	}
	if u.FirstOrderOnly && a.HasOrdered {
		return customerLimitReached(u.Code)
	}
	if u.PerCustomerLimit > 0 {
		var used int
		for _, row := range t.st.usage {
			if row.Code == u.Code && row.OwnerID == u.OwnerID {
				used++
			}
		}
		if used >= u.PerCustomerLimit {
			return customerLimitReached(u.Code)
		}
	}
	t.st.usage = append(t.st.usage, UsageRow{Code: u.Code, OrderID: u.OrderID, OwnerID: u.OwnerID})
	return nil
}

func customerLimitReached(code string) error {
	return &apperr.Error{
		Kind:    apperr.KindDiscountCustomerLimit,
		Message: "discount code " + code + " was already used on another order",
		Field:   "discount_code",
	}
}

func (t *tx) MarkOrdered(_ context.Context, ownerID string) error {
	a, ok := t.st.accounts[ownerID]
	if !ok {
		return apperr.New(apperr.KindUserNotFound, "account no longer exists")
	}
	a.HasOrdered = true
	t.st.accounts[ownerID] = a
	return nil
}

func (t *tx) AccrueLoyalty(_ context.Context, ownerID string, points int64) error {
	a, ok := t.st.accounts[ownerID]
	if !ok {
		return apperr.New(apperr.KindUserNotFound, "account no longer exists")
	}
	a.LoyaltyPoints += points
	t.st.accounts[ownerID] = a
	return nil
}

func (t *tx) CompareAndSetStatus(_ context.Context, orderID string, from, to order.Status, at time.Time) (bool, error) {
	o, ok := t.st.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	t.st.orders[orderID] = o
	return true, nil
}
