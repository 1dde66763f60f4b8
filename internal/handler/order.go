package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/order"
)

// Checkout converts the caller's cart into an order. A replayed idempotency
// key answers 200 with the original order instead of 201.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req := order.CheckoutRequest{
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
		Caller:         callerFrom(r.Context()),
	}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		return decodeCheckout(d, key, &req)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set(HeaderReplayed, "true")
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

// Track returns the guest-safe view of an order identified by ticket and
// tracking token.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := h.orders.Track(r.Context(), q.Get("ticket"), q.Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTracking(e, t) })
}

// UpdateStatus moves an order through the status machine on behalf of the
// authenticated staff key.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var to order.Status
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		to = order.Status(s)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if to == "" {
		writeError(w, r, apperr.Validation("status", "status is required"))
		return
	}

	actor := order.ActorSystem
	if k := apiKeyFrom(r.Context()); k != nil {
		actor = "staff:" + k.Name
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), to, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("ticket", func(e *jx.Encoder) { e.Str(o.Ticket) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
		})
	})
}
