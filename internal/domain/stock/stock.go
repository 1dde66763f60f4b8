// Package stock tracks per-item inventory.
//
// Writes that belong to an order go through a Ledger bound to the order
// transaction. Stock administration goes through Repository.
package stock

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/apperr"
)

// ErrNotFound is returned when an item has no stock entry.
var ErrNotFound = errors.New("stock entry not found")

// Entry is the stock level of one item. Untracked items are always
// available and never decremented.
type Entry struct {
	ItemID       string
	Quantity     int
	LowThreshold int
	Tracked      bool
}

// Low reports whether a tracked entry is at or below its threshold.
func (e Entry) Low() bool {
	return e.Tracked && e.Quantity <= e.LowThreshold
}

// Ledger is the transaction-scoped view of stock used during checkout.
type Ledger interface {
	// Lock locks the entries for ids until the transaction ends and returns
	// them keyed by item id. Items without an entry are omitted.
	Lock(ctx context.Context, ids []string) (map[string]Entry, error)
	// Decrement subtracts qty from a tracked entry. It must never let the
	// quantity go negative.
	Decrement(ctx context.Context, itemID string, qty int) error
}

// Repository is the administrative surface for stock levels.
type Repository interface {
	Get(ctx context.Context, itemID string) (*Entry, error)
	Set(ctx context.Context, e Entry) error
	ListLow(ctx context.Context) ([]Entry, error)
}

// SortedIDs returns the item ids of demand in ascending order. Locking rows in
// a fixed order keeps concurrent checkouts from deadlocking.
func SortedIDs(demand map[string]int) []string {
	ids := make([]string, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Reserve locks the entries touched by demand, verifies availability and
// decrements tracked items. Failure names the first item that cannot be
// served; the caller is expected to roll back the surrounding transaction.
func Reserve(ctx context.Context, l Ledger, demand map[string]int) error {
	ids := SortedIDs(demand)
	entries, err := l.Lock(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "lock stock")
	}

	for _, id := range ids {
		e, ok := entries[id]
		if !ok || !e.Tracked {
			continue
		}
		if e.Quantity < demand[id] {
			return apperr.StockUnavailable(id)
		}
	}

	for _, id := range ids {
		e, ok := entries[id]
		if !ok || !e.Tracked {
			continue
		}
		if err := l.Decrement(ctx, id, demand[id]); err != nil {
			return err
		}
	}
	return nil
}
