package order

import (
	"time"

	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/payment"
	"github.com/xenking/food-checkout/internal/domain/pricing"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

// Owner is the optional account that placed an order. The zero value is a
// guest.
type Owner struct {
	id string
}

// AccountOwner returns an Owner for a known account.
func AccountOwner(id string) Owner { return Owner{id: id} }

// ID returns the account id and whether the owner is known.
func (o Owner) ID() (string, bool) { return o.id, o.id != "" }

// Known reports whether the order belongs to an account.
func (o Owner) Known() bool { return o.id != "" }

// Caller identifies who is checking out.
type Caller struct {
	// AccountID is set for authenticated customers.
	AccountID string
	// SessionID identifies an anonymous browser session.
	SessionID string
}

// Owner returns the order owner implied by the caller.
func (c Caller) Owner() Owner { return AccountOwner(c.AccountID) }

// CartKey returns the cart the caller checks out.
func (c Caller) CartKey() cart.Key {
	if c.AccountID != "" {
		return cart.AccountKey(c.AccountID)
	}
	return cart.SessionKey(c.SessionID)
}

// Contact is the customer contact snapshot taken at checkout.
type Contact struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

// Address is a delivery address.
type Address struct {
	Line1    string           `json:"line1" validate:"required,max=200"`
	Line2    string           `json:"line2" validate:"max=200"`
	City     string           `json:"city" validate:"required,max=100"`
	Postcode string           `json:"postcode" validate:"max=20"`
	Location zone.Coordinates `json:"location" validate:"required"`
}

// Order is a committed customer order.
type Order struct {
	ID     string
	Number int64
	Owner  Owner
	// SessionID is the anonymous session a guest order was placed from.
	SessionID string

	Type            fulfillment.Type
	CollectionSlot  *time.Time
	DeliveryAddress *Address
	ZoneID          string
	Contact         Contact

	Lines        []Line
	Breakdown    pricing.Breakdown
	DiscountCode string

	Status        Status
	Ticket        string
	TrackingToken string

	PaymentMethod  payment.Method
	PaymentRef     string
	IdempotencyKey string
	LoyaltyPoints  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is an immutable order line.
type Line struct {
	ItemID    string       `json:"item_id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	Options   []LineOption `json:"options,omitempty"`
	LineTotal money.Amount `json:"line_total"`
}

// LineOption is the snapshot of a chosen customization.
type LineOption struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Surcharge money.Amount `json:"surcharge"`
}

// HistoryEntry records a status change.
type HistoryEntry struct {
	Status Status
	At     time.Time
	Actor  string
}

// Actors recorded in status history.
const (
	ActorCustomer = "customer"
	ActorSystem   = "system"
)
