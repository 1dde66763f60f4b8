package order

import "context"

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is dispatched after an order change has committed.
type Event struct {
	Type  EventType
	Order *Order
	// Previous is set for status changes.
	Previous Status
}

// Publisher dispatches order events to notification channels.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Invoicer creates the invoice for a committed order.
type Invoicer interface {
	Generate(ctx context.Context, o *Order) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopInvoicer struct{}

func (nopInvoicer) Generate(context.Context, *Order) error { return nil }
