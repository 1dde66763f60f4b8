package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/payment"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

const maxBody = 64 << 10

// decodeBody reads a JSON object from the request body and hands every key to
// field. Unknown keys must be skipped by field.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return apperr.Validation("body", "request body is too large or unreadable")
	}
	if len(body) == 0 {
		return apperr.Validation("body", "request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		if ae, ok := apperr.As(err); ok {
			return ae
		}
		return apperr.Validation("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func decodeCheckout(d *jx.Decoder, key string, req *order.CheckoutRequest) error {
	switch key {
	case "order_type":
		s, err := d.Str()
		req.OrderType = fulfillment.Type(s)
		return err
	case "collection_slot":
		t, err := decodeOptTime(d, "collection_slot")
		req.CollectionSlot = t
		return err
	case "delivery_address":
		if d.Next() == jx.Null {
			return d.Null()
		}
		req.DeliveryAddress = &order.Address{}
		return decodeAddress(d, req.DeliveryAddress)
	case "contact":
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				req.Contact.Name, err = d.Str()
			case "email":
				req.Contact.Email, err = d.Str()
			case "phone":
				req.Contact.Phone, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	case "payment_method":
		s, err := d.Str()
		req.PaymentMethod = payment.Method(s)
		return err
	case "payment_token":
		s, err := d.Str()
		req.PaymentToken = s
		return err
	case "discount_code":
		// null keeps the cart code, "" checks out without one.
		if d.Next() == jx.Null {
			return d.Null()
		}
		s, err := d.Str()
		req.DiscountCode = &s
		return err
	default:
		return d.Skip()
	}
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "line1":
			a.Line1, err = d.Str()
		case "line2":
			a.Line2, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "postcode":
			a.Postcode, err = d.Str()
		case "location":
			err = decodeCoordinates(d, &a.Location)
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeCoordinates(d *jx.Decoder, c *zone.Coordinates) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "lat":
			c.Lat, err = d.Float64()
		case "lng":
			c.Lng, err = d.Float64()
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeOptTime(d *jx.Decoder, field string) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperr.Validation(field, field+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("number", func(e *jx.Encoder) { e.Int64(o.Number) })
		e.Field("ticket", func(e *jx.Encoder) { e.Str(o.Ticket) })
		e.Field("tracking_token", func(e *jx.Encoder) { e.Str(o.TrackingToken) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("order_type", func(e *jx.Encoder) { e.Str(string(o.Type)) })
		if o.CollectionSlot != nil {
			e.Field("collection_slot", func(e *jx.Encoder) { encodeTime(e, *o.CollectionSlot) })
		}
		if a := o.DeliveryAddress; a != nil {
			e.Field("delivery_address", func(e *jx.Encoder) { encodeAddress(e, a) })
		}
		e.Field("contact", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Contact.Name) })
				e.Field("email", func(e *jx.Encoder) { e.Str(o.Contact.Email) })
				optStr(e, "phone", o.Contact.Phone)
			})
		})
		e.Field("lines", func(e *jx.Encoder) { encodeLines(e, o.Lines) })
		e.Field("breakdown", func(e *jx.Encoder) { encodeBreakdown(e, o) })
		optStr(e, "discount_code", o.DiscountCode)
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		if o.Owner.Known() {
			e.Field("loyalty_points", func(e *jx.Encoder) { e.Int64(o.LoyaltyPoints) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	})
}

// encodeTracking renders the guest-safe order view. Contact, address and
// payment details are left out.
func encodeTracking(e *jx.Encoder, t *order.Tracking) {
	o := t.Order
	e.Obj(func(e *jx.Encoder) {
		e.Field("ticket", func(e *jx.Encoder) { e.Str(o.Ticket) })
		e.Field("number", func(e *jx.Encoder) { e.Int64(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("order_type", func(e *jx.Encoder) { e.Str(string(o.Type)) })
		if o.CollectionSlot != nil {
			e.Field("collection_slot", func(e *jx.Encoder) { encodeTime(e, *o.CollectionSlot) })
		}
		e.Field("lines", func(e *jx.Encoder) { encodeLines(e, o.Lines) })
		e.Field("breakdown", func(e *jx.Encoder) { encodeBreakdown(e, o) })
		e.Field("history", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, h := range t.History {
					e.Obj(func(e *jx.Encoder) {
						e.Field("status", func(e *jx.Encoder) { e.Str(string(h.Status)) })
						e.Field("at", func(e *jx.Encoder) { encodeTime(e, h.At) })
					})
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	})
}

func encodeLines(e *jx.Encoder, lines []order.Line) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			e.Obj(func(e *jx.Encoder) {
				e.Field("item_id", func(e *jx.Encoder) { e.Str(l.ItemID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
				e.Field("unit_price", func(e *jx.Encoder) { e.Str(l.UnitPrice.String()) })
				if len(l.Options) > 0 {
					e.Field("options", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, opt := range l.Options {
								e.Obj(func(e *jx.Encoder) {
									e.Field("id", func(e *jx.Encoder) { e.Str(opt.ID) })
									e.Field("name", func(e *jx.Encoder) { e.Str(opt.Name) })
									e.Field("surcharge", func(e *jx.Encoder) { e.Str(opt.Surcharge.String()) })
								})
							}
						})
					})
				}
				e.Field("line_total", func(e *jx.Encoder) { e.Str(l.LineTotal.String()) })
			})
		}
	})
}

func encodeBreakdown(e *jx.Encoder, o *order.Order) {
	b := o.Breakdown
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(b.Subtotal.String()) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(b.Discount.String()) })
		e.Field("delivery_fee", func(e *jx.Encoder) { e.Str(b.DeliveryFee.String()) })
		e.Field("tax", func(e *jx.Encoder) { e.Str(b.Tax.String()) })
		e.Field("total", func(e *jx.Encoder) { e.Str(b.Total.String()) })
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
		optStr(e, "line2", a.Line2)
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		optStr(e, "postcode", a.Postcode)
		e.Field("location", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("lat", func(e *jx.Encoder) { e.Float64(a.Location.Lat) })
				e.Field("lng", func(e *jx.Encoder) { e.Float64(a.Location.Lng) })
			})
		})
	})
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i, l := range c.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("index", func(e *jx.Encoder) { e.Int(i) })
						e.Field("item_id", func(e *jx.Encoder) { e.Str(l.ItemID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("options", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, id := range l.Options {
									e.Str(id)
								}
							})
						})
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(l.UnitPrice.String()) })
					})
				}
			})
		})
		optStr(e, "discount_code", c.DiscountCode)
		e.Field("version", func(e *jx.Encoder) { e.Int64(c.Version) })
		if !c.UpdatedAt.IsZero() {
			e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, c.UpdatedAt) })
		}
	})
}

func encodeDecision(e *jx.Encoder, d *discount.Decision) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("valid", func(e *jx.Encoder) { e.Bool(d.Valid) })
		e.Field("code", func(e *jx.Encoder) { e.Str(d.Code) })
		if d.Valid {
			e.Field("amount", func(e *jx.Encoder) { e.Str(d.Amount.String()) })
			optStr(e, "description", d.Description)
			return
		}
		e.Field("reason", func(e *jx.Encoder) { e.Str(string(d.Reason)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(d.Message) })
	})
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
