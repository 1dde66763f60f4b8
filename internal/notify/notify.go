// Package notify dispatches order and stock events to external channels.
//
// Every channel implements order.Publisher. Dispatch is best effort: the
// order service logs failures and never rolls an order back because a
// notification could not be delivered.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

// EventStockLow is published for every tracked item at or below its
// low-stock threshold.
const EventStockLow = "stock.low"

// StockAlerter is notified about items running low.
type StockAlerter interface {
	StockLow(ctx context.Context, entries []stock.Entry) error
}

var (
	_ order.Publisher = Multi{}
	_ StockAlerter    = Multi{}
)

// Multi fans events out to every channel. All channels are attempted and
// their errors are combined.
type Multi []order.Publisher

func (m Multi) Publish(ctx context.Context, e order.Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, e))
	}
	return err
}

// StockLow forwards to the channels that handle stock alerts.
func (m Multi) StockLow(ctx context.Context, entries []stock.Entry) error {
	var err error
	for _, p := range m {
		if a, ok := p.(StockAlerter); ok {
			err = multierr.Append(err, a.StockLow(ctx, entries))
		}
	}
	return err
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, order.Event) error { return nil }

func (Nop) StockLow(context.Context, []stock.Entry) error { return nil }

// Log writes events to the context logger. It is the channel used when no
// broker is configured.
type Log struct{}

func (Log) Publish(ctx context.Context, e order.Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(e.Type)),
		zap.String("order_id", e.Order.ID),
		zap.String("ticket", e.Order.Ticket),
		zap.String("status", string(e.Order.Status)),
	}
	if e.Previous != "" {
		fields = append(fields, zap.String("previous_status", string(e.Previous)))
	}
	zctx.From(ctx).Info("Order event", fields...)
	return nil
}

func (Log) StockLow(ctx context.Context, entries []stock.Entry) error {
	lg := zctx.From(ctx)
	for _, e := range entries {
		lg.Warn("Stock low",
			zap.String("item_id", e.ItemID),
			zap.Int("quantity", e.Quantity),
			zap.Int("threshold", e.LowThreshold),
		)
	}
	return nil
}
