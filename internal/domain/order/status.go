package order

import (
	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusReceived       Status = "received"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusPreparing, StatusReady, StatusOutForDelivery, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// next returns the forward successor of from for the fulfillment type.
func next(t fulfillment.Type, from Status) Status {
	switch from {
	case StatusReceived:
		return StatusPreparing
	case StatusPreparing:
		if t == fulfillment.Delivery {
			return StatusOutForDelivery
		}
		return StatusReady
	case StatusReady:
		if t == fulfillment.Collection {
			return StatusCompleted
		}
	case StatusOutForDelivery:
		if t == fulfillment.Delivery {
			return StatusCompleted
		}
	}
	return ""
}

// Transition validates moving an order of type t from one status to another.
//
//	received -> preparing -> ready (collection) | out_for_delivery (delivery) -> completed
//
// Any non-terminal status may move to cancelled.
func Transition(t fulfillment.Type, from, to Status) error {
	if !to.Valid() {
		return apperr.Validation("status", "unknown status "+string(to))
	}
	if from.Terminal() {
		return apperr.InvalidTransition(string(from), string(to))
	}
	if to == StatusCancelled {
		return nil
	}
	if n := next(t, from); n != "" && n == to {
		return nil
	}
	return apperr.InvalidTransition(string(from), string(to))
}
