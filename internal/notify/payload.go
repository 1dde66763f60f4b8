package notify

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

// EncodeEvent renders the wire form of an order event. Payment details and
// the tracking token never leave the service.
func EncodeEvent(e order.Event, at time.Time) []byte {
	o := e.Order
	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("type", func(w *jx.Encoder) { w.Str(string(e.Type)) })
		w.Field("occurred_at", func(w *jx.Encoder) { w.Str(at.UTC().Format(time.RFC3339Nano)) })
		w.Field("order_id", func(w *jx.Encoder) { w.Str(o.ID) })
		w.Field("number", func(w *jx.Encoder) { w.Int64(o.Number) })
		w.Field("ticket", func(w *jx.Encoder) { w.Str(o.Ticket) })
		w.Field("order_type", func(w *jx.Encoder) { w.Str(string(o.Type)) })
		w.Field("status", func(w *jx.Encoder) { w.Str(string(o.Status)) })
		if e.Previous != "" {
			w.Field("previous_status", func(w *jx.Encoder) { w.Str(string(e.Previous)) })
		}
		if id, ok := o.Owner.ID(); ok {
			w.Field("account_id", func(w *jx.Encoder) { w.Str(id) })
		}
		if e.Type != order.EventCreated {
			return
		}
		w.Field("contact", func(w *jx.Encoder) {
			w.Obj(func(w *jx.Encoder) {
				w.Field("name", func(w *jx.Encoder) { w.Str(o.Contact.Name) })
				w.Field("email", func(w *jx.Encoder) { w.Str(o.Contact.Email) })
				if o.Contact.Phone != "" {
					w.Field("phone", func(w *jx.Encoder) { w.Str(o.Contact.Phone) })
				}
			})
		})
		w.Field("lines", func(w *jx.Encoder) {
			w.Arr(func(w *jx.Encoder) {
				for _, l := range o.Lines {
					w.Obj(func(w *jx.Encoder) {
						w.Field("item_id", func(w *jx.Encoder) { w.Str(l.ItemID) })
						w.Field("name", func(w *jx.Encoder) { w.Str(l.Name) })
						w.Field("quantity", func(w *jx.Encoder) { w.Int(l.Quantity) })
						w.Field("line_total", func(w *jx.Encoder) { w.Str(l.LineTotal.String()) })
					})
				}
			})
		})
		b := o.Breakdown
		w.Field("breakdown", func(w *jx.Encoder) {
			w.Obj(func(w *jx.Encoder) {
				w.Field("subtotal", func(w *jx.Encoder) { w.Str(b.Subtotal.String()) })
				w.Field("discount", func(w *jx.Encoder) { w.Str(b.Discount.String()) })
				w.Field("delivery_fee", func(w *jx.Encoder) { w.Str(b.DeliveryFee.String()) })
				w.Field("tax", func(w *jx.Encoder) { w.Str(b.Tax.String()) })
				w.Field("total", func(w *jx.Encoder) { w.Str(b.Total.String()) })
			})
		})
		if o.DiscountCode != "" {
			w.Field("discount_code", func(w *jx.Encoder) { w.Str(o.DiscountCode) })
		}
	})
	return w.Bytes()
}

// EncodeStockLow renders the wire form of a low-stock alert for one item.
func EncodeStockLow(e stock.Entry, at time.Time) []byte {
	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("type", func(w *jx.Encoder) { w.Str(EventStockLow) })
		w.Field("occurred_at", func(w *jx.Encoder) { w.Str(at.UTC().Format(time.RFC3339Nano)) })
		w.Field("item_id", func(w *jx.Encoder) { w.Str(e.ItemID) })
		w.Field("quantity", func(w *jx.Encoder) { w.Int(e.Quantity) })
		w.Field("threshold", func(w *jx.Encoder) { w.Int(e.LowThreshold) })
	})
	return w.Bytes()
}
