package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/money"
)

// ErrVersionConflict is returned by Store.Save when the stored cart has moved
// past the expected version.
var ErrVersionConflict = errors.New("cart version conflict")

// OwnerKind distinguishes account carts from anonymous session carts.
type OwnerKind string

const (
	OwnerAccount OwnerKind = "account"
	OwnerSession OwnerKind = "session"
)

// Key identifies a cart.
type Key struct {
	Kind OwnerKind
	ID   string
}

// AccountKey returns the cart key for an authenticated account.
func AccountKey(id string) Key { return Key{Kind: OwnerAccount, ID: id} }

// SessionKey returns the cart key for an anonymous session.
func SessionKey(id string) Key { return Key{Kind: OwnerSession, ID: id} }

func (k Key) String() string { return string(k.Kind) + ":" + k.ID }

// Valid reports whether the key names a cart.
func (k Key) Valid() bool {
	return (k.Kind == OwnerAccount || k.Kind == OwnerSession) && k.ID != ""
}

// Line is a stored cart line. UnitPrice is the price seen when the line was
// added; checkout always reprices from the live menu.
type Line struct {
	ItemID    string       `json:"item_id"`
	Quantity  int          `json:"quantity"`
	Options   []string     `json:"options,omitempty"`
	UnitPrice money.Amount `json:"unit_price"`
}

func (l Line) sameChoice(itemID string, options []string) bool {
	if l.ItemID != itemID || len(l.Options) != len(options) {
		return false
	}
	a := slices.Clone(l.Options)
	b := slices.Clone(options)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Cart is a customer's pending selection.
type Cart struct {
	Key          Key       `json:"-"`
	Lines        []Line    `json:"lines"`
	DiscountCode string    `json:"discount_code,omitempty"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.Lines) == 0 }

// Store persists carts by key with optimistic concurrency.
type Store interface {
	// Get returns the cart for key. A missing cart is returned empty with
	// Version 0.
	Get(ctx context.Context, key Key) (*Cart, error)
	// Save writes c if the stored version equals expected, then sets
	// c.Version to expected+1. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, c *Cart, expected int64) error
	// Delete removes the cart for key. Deleting a missing cart is not an error.
	Delete(ctx context.Context, key Key) error
}
