// Package pricing derives the monetary breakdown of an order.
//
// Calculate is a pure function over minor-unit amounts. Tax is charged on the
// discounted subtotal plus delivery fee and rounded half up at the minor unit.
package pricing

import (
	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

// Line is a priced cart line.
type Line struct {
	UnitPrice money.Amount
	Quantity  int
}

// Input holds everything the calculator needs.
type Input struct {
	Lines     []Line
	OrderType fulfillment.Type
	Discount  money.Amount
	// Zone is the resolved delivery zone. Ignored for collection orders.
	Zone       *zone.Zone
	TaxRateBPS int64
}

// Breakdown is the monetary summary of an order.
// Total == Subtotal - Discount + DeliveryFee + Tax, all non-negative.
type Breakdown struct {
	Subtotal    money.Amount
	Discount    money.Amount
	DeliveryFee money.Amount
	Tax         money.Amount
	Total       money.Amount
}

// Subtotal sums unit price times quantity over lines.
func Subtotal(lines []Line) money.Amount {
	var total money.Amount
	for _, l := range lines {
		total += l.UnitPrice.Mul(l.Quantity)
	}
	return total
}

// Calculate computes the breakdown for in.
func Calculate(in Input) (Breakdown, error) {
	if !in.OrderType.Valid() {
		return Breakdown{}, apperr.Validation("order_type", "order type must be collection or delivery")
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 {
			return Breakdown{}, apperr.Validation("quantity", "quantity must be greater than 0")
		}
		if l.UnitPrice < 0 {
			return Breakdown{}, apperr.Validation("unit_price", "unit price must not be negative")
		}
	}

	b := Breakdown{Subtotal: Subtotal(in.Lines)}
	b.Discount = money.Min(max(in.Discount, 0), b.Subtotal)

	if in.OrderType == fulfillment.Delivery {
		if in.Zone == nil {
			return Breakdown{}, apperr.New(apperr.KindDeliveryUnavailable, "we do not deliver to this address")
		}
		if in.Zone.MinimumOrder > 0 && b.Subtotal < in.Zone.MinimumOrder {
			return Breakdown{}, apperr.Newf(apperr.KindDeliveryUnavailable,
				"minimum order for delivery to %s is %s", in.Zone.Name, in.Zone.MinimumOrder)
		}
		b.DeliveryFee = max(in.Zone.DeliveryFee, 0)
	}

	taxable := b.Subtotal - b.Discount + b.DeliveryFee
	b.Tax = taxable.ApplyBPS(in.TaxRateBPS)
	b.Total = taxable + b.Tax
	return b, nil
}
