// Package fulfillment enumerates how an order reaches the customer.
package fulfillment

// Type is the fulfillment type of an order.
type Type string

const (
	Collection Type = "collection"
	Delivery   Type = "delivery"
)

// Valid reports whether t is a known fulfillment type.
func (t Type) Valid() bool {
	return t == Collection || t == Delivery
}

func (t Type) String() string { return string(t) }
