package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/stock"
)

var (
	// ErrNotFound is returned when no order matches a lookup.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdempotencyKey is returned by Tx.Insert when another order
	// already committed with the same idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// DiscountUsage is one redemption of a code by a known owner.
type DiscountUsage struct {
	Code             string
	OrderID          string
	OwnerID          string
	PerCustomerLimit int
	FirstOrderOnly   bool
}

// Store persists orders. Every write goes through a Tx obtained from InTx.
type Store interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	FindByTicket(ctx context.Context, ticket string) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)

	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise, including on context
	// cancellation.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transaction-scoped handle for order writes.
type Tx interface {
	stock.Ledger

	TicketExists(ctx context.Context, ticket string) (bool, error)
	// Insert writes the order and its lines and fills o.Number.
	Insert(ctx context.Context, o *Order) error
	AppendHistory(ctx context.Context, orderID string, e HistoryEntry) error

	// IncrementDiscountUsage bumps the code's usage counter, failing with
	// DISCOUNT_USAGE_LIMIT_REACHED when the cap was reached concurrently.
	IncrementDiscountUsage(ctx context.Context, code string) error
	// RecordDiscountUsage locks the owner's account, re-checks the code's
	// per-customer limits against committed usage and records the usage.
	// It fails with DISCOUNT_CUSTOMER_LIMIT_REACHED when a concurrent
	// order took the last allowed use.
	RecordDiscountUsage(ctx context.Context, u DiscountUsage) error
	MarkOrdered(ctx context.Context, ownerID string) error
	AccrueLoyalty(ctx context.Context, ownerID string, points int64) error

	// CompareAndSetStatus moves the order to `to` only if it is still in
	// `from`, reporting whether the update happened.
	CompareAndSetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) (bool, error)
}
