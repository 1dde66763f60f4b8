package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), callerFrom(r.Context()).CartKey())
	h.respondCart(w, r, c, err)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), callerFrom(r.Context()).CartKey()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	var in cart.AddLine
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "item_id":
			in.ItemID, err = d.Str()
		case "quantity":
			in.Quantity, err = d.Int()
		case "options":
			in.Options, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.AddLine(r.Context(), callerFrom(r.Context()).CartKey(), in)
	h.respondCart(w, r, c, err)
}

func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	index, err := lineIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var qty int
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.UpdateQuantity(r.Context(), callerFrom(r.Context()).CartKey(), index, qty)
	h.respondCart(w, r, c, err)
}

func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	index, err := lineIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.RemoveLine(r.Context(), callerFrom(r.Context()).CartKey(), index)
	h.respondCart(w, r, c, err)
}

// ApplyDiscount stores a code on the cart. An empty code removes it. The code
// is only validated at checkout or through ValidateDiscount.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var code string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.ApplyCode(r.Context(), callerFrom(r.Context()).CartKey(), code)
	h.respondCart(w, r, c, err)
}

// ValidateDiscount previews a code against the caller's current cart.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var (
		code string
		typ  = fulfillment.Collection
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			code = s
			return err
		case "order_type":
			s, err := d.Str()
			typ = fulfillment.Type(s)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	dec, err := h.orders.PreviewDiscount(r.Context(), callerFrom(r.Context()), code, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDecision(e, dec) })
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, c *cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func lineIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return 0, apperr.Validation("index", "index must be a non-negative integer")
	}
	return index, nil
}
