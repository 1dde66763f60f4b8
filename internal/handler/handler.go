package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/order"
)

// OrderService is the order surface used by the handlers. *order.Service
// implements it.
type OrderService interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error)
	UpdateStatus(ctx context.Context, orderID string, to order.Status, actor string) (*order.Order, error)
	Track(ctx context.Context, ticket, token string) (*order.Tracking, error)
	PreviewDiscount(ctx context.Context, c order.Caller, code string, t fulfillment.Type) (*discount.Decision, error)
}

// CartService is the cart surface used by the handlers. *cart.Service
// implements it.
type CartService interface {
	Get(ctx context.Context, key cart.Key) (*cart.Cart, error)
	AddLine(ctx context.Context, key cart.Key, in cart.AddLine) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, key cart.Key, index, qty int) (*cart.Cart, error)
	RemoveLine(ctx context.Context, key cart.Key, index int) (*cart.Cart, error)
	ApplyCode(ctx context.Context, key cart.Key, code string) (*cart.Cart, error)
	Clear(ctx context.Context, key cart.Key) error
}

// TokenVerifier resolves a customer bearer token to an account id.
// *auth.Tokens implements it.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// Header names read by the API.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderSessionID      = "X-Session-ID"
	HeaderAPIKey         = "api_key"
	HeaderReplayed       = "Idempotent-Replayed"
)

const maxSessionID = 128

// Handler serves the checkout API.
type Handler struct {
	orders   OrderService
	carts    CartService
	tokens   TokenVerifier
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderService, carts CartService, tokens TokenVerifier, security *SecurityHandler) *Handler {
	return &Handler{
		orders:   orders,
		carts:    carts,
		tokens:   tokens,
		security: security,
	}
}

// Mount registers the API routes on r under /api. Middlewares installed on r
// before Mount apply to every route.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.identify)

			r.Post("/checkout", h.Checkout)
			r.Post("/discounts/validate", h.ValidateDiscount)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/lines", h.AddCartLine)
			r.Patch("/cart/lines/{index}", h.UpdateCartLine)
			r.Delete("/cart/lines/{index}", h.RemoveCartLine)
			r.Put("/cart/discount", h.ApplyDiscount)
		})

		r.Get("/orders/track", h.Track)
		r.With(h.security.Require(auth.ScopeOrderStatus)).
			Post("/orders/{id}/status", h.UpdateStatus)
	})
}

type callerKey struct{}

func callerFrom(ctx context.Context) order.Caller {
	c, _ := ctx.Value(callerKey{}).(order.Caller)
	return c
}

// identify resolves the caller from an optional bearer token and the session
// header. A present but invalid token is rejected rather than downgraded to
// a guest.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c order.Caller
		if raw := r.Header.Get("Authorization"); raw != "" {
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok {
				writeError(w, r, apperr.New(apperr.KindUnauthorized, "authorization must be a bearer token"))
				return
			}
			id, err := h.tokens.Verify(strings.TrimSpace(token))
			if err != nil {
				writeError(w, r, apperr.New(apperr.KindUnauthorized, "invalid or expired token"))
				return
			}
			c.AccountID = id
		}

		c.SessionID = r.Header.Get(HeaderSessionID)
		if len(c.SessionID) > maxSessionID {
			writeError(w, r, apperr.Validation("session", "session id is too long"))
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
