package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/payment"
	"github.com/xenking/food-checkout/internal/domain/zone"
	"github.com/xenking/food-checkout/internal/storage/memory"
	"github.com/xenking/food-checkout/pkg/httpmiddleware"
)

var pepper = []byte("test-pepper")

// --- Mock implementations ---

type mockOrderService struct {
	OrderService
	err error
}

func (m *mockOrderService) Checkout(context.Context, order.CheckoutRequest) (*order.CheckoutResult, error) {
	return nil, m.err
}

// --- Helpers ---

type testAPI struct {
	t      *testing.T
	srv    http.Handler
	orders *order.Service
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := memory.New()
	carts := memory.NewCartStore()
	db.PutMenuItem(menu.Item{ID: "wrap", Name: "Chicken Wrap", CategoryID: "mains", Price: money.MustParse("8.50"), Active: true})
	db.PutZone(zone.Zone{ID: "centre", Center: zone.Coordinates{Lat: 53.3498, Lng: -6.2603}, RadiusKM: 5,
		DeliveryFee: money.MustParse("2.50"), Active: true})
	db.PutAccount(account.Account{ID: "acc", Name: "Ann", Email: "ann@example.com"})
	db.PutDiscount(discount.Code{Code: "SAVE10", Type: discount.Percentage, Value: decimal.NewFromInt(10), Active: true})
	db.PutAPIKey(auth.APIKeyInfo{ID: "k1", Name: "kitchen", KeyHash: auth.HashKey(pepper, "staff-key"),
		Scopes: []string{auth.ScopeOrderStatus}})
	db.PutAPIKey(auth.APIKeyInfo{ID: "k2", Name: "reader", KeyHash: auth.HashKey(pepper, "read-key")})

	svc, err := order.NewService(order.Config{TaxRateBPS: 2300, Currency: "EUR", LoyaltyPointsPerUnit: 1}, order.Deps{
		Orders:    db,
		Carts:     carts,
		Resolver:  cart.NewResolver(carts, db.Menu()),
		Discounts: discount.NewRepoValidator(db.Discounts()),
		Zones:     zone.NewLocator(db.Zones()),
		Accounts:  db.Accounts(),
		Payments:  payment.NewSimulated(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	tokens := auth.NewTokens([]byte("jwt-secret"))
	h := NewHandler(svc, cart.NewService(carts, db.Menu()), tokens, NewSecurityHandler(db.APIKeys(), pepper))
	return &testAPI{t: t, srv: mount(h), orders: svc, tokens: tokens}
}

func mount(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return httpmiddleware.Wrap(r, httpmiddleware.RequestID())
}

func (a *testAPI) do(method, target, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func session(id string) map[string]string { return map[string]string{HeaderSessionID: id} }

func with(h map[string]string, k, v string) map[string]string {
	out := map[string]string{k: v}
	for kk, vv := range h {
		out[kk] = vv
	}
	return out
}

const collectionBody = `{"order_type":"collection","contact":{"name":"Ann","email":"ann@example.com"},"payment_method":"cash"}`

func (a *testAPI) checkout(h map[string]string, key string) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	w, _ := a.do(http.MethodPost, "/api/cart/lines", `{"item_id":"wrap","quantity":2}`, h)
	require.Equal(a.t, http.StatusOK, w.Code)
	return a.do(http.MethodPost, "/api/checkout", collectionBody, with(h, HeaderIdempotencyKey, key))
}

// --- Tests ---

func TestCheckout_GuestAndReplay(t *testing.T) {
	api := newTestAPI(t)
	h := session("s1")

	w, body := api.checkout(h, "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "received", body["status"])
	assert.Len(t, body["ticket"], order.TicketLength)
	breakdown := body["breakdown"].(map[string]any)
	assert.Equal(t, "17.00", breakdown["subtotal"])
	assert.Equal(t, "3.91", breakdown["tax"])
	assert.Equal(t, "20.91", breakdown["total"])
	assert.NotContains(t, body, "loyalty_points")

	w, replay := api.do(http.MethodPost, "/api/checkout", collectionBody, with(h, HeaderIdempotencyKey, "key-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(HeaderReplayed))
	assert.Equal(t, body["id"], replay["id"])
}

func TestCheckout_Member(t *testing.T) {
	api := newTestAPI(t)
	token, err := api.tokens.Issue("acc", time.Hour)
	require.NoError(t, err)

	w, body := api.checkout(map[string]string{"Authorization": "Bearer " + token}, "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 20, body["loyalty_points"])
}

func TestCheckout_Unauthorized(t *testing.T) {
	api := newTestAPI(t)

	for _, auth := range []string{"Bearer not-a-jwt", "Basic abc"} {
		w, body := api.do(http.MethodPost, "/api/checkout", collectionBody,
			map[string]string{"Authorization": auth, HeaderIdempotencyKey: "k"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", body["kind"])
	}
}

func TestCheckout_Errors(t *testing.T) {
	api := newTestAPI(t)

	t.Run("MissingIdempotencyKey", func(t *testing.T) {
		w, body := api.do(http.MethodPost, "/api/checkout", collectionBody, session("s1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", body["kind"])
		assert.Equal(t, "idempotency_key", body["field"])
		assert.Equal(t, w.Header().Get("X-Request-ID"), body["correlation_id"])
	})
	t.Run("MalformedBody", func(t *testing.T) {
		w, body := api.do(http.MethodPost, "/api/checkout", `{"order_type":`, with(session("s1"), HeaderIdempotencyKey, "k"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "body", body["field"])
	})
	t.Run("BadSlot", func(t *testing.T) {
		w, body := api.do(http.MethodPost, "/api/checkout", `{"collection_slot":"tomorrow"}`, with(session("s1"), HeaderIdempotencyKey, "k"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "collection_slot", body["field"])
	})
	t.Run("EmptyCart", func(t *testing.T) {
		w, body := api.do(http.MethodPost, "/api/checkout", collectionBody, with(session("empty"), HeaderIdempotencyKey, "k"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "cart", body["field"])
	})
	t.Run("OutsideZone", func(t *testing.T) {
		h := session("far")
		w, _ := api.do(http.MethodPost, "/api/cart/lines", `{"item_id":"wrap","quantity":1}`, h)
		require.Equal(t, http.StatusOK, w.Code)
		w, body := api.do(http.MethodPost, "/api/checkout", `{"order_type":"delivery",
			"delivery_address":{"line1":"1 Patrick St","city":"Cork","location":{"lat":51.8985,"lng":-8.4756}},
			"contact":{"name":"Ann","email":"ann@example.com"},"payment_method":"cash"}`, with(h, HeaderIdempotencyKey, "k"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "DELIVERY_UNAVAILABLE", body["kind"])
	})
	t.Run("Internal", func(t *testing.T) {
		h := NewHandler(&mockOrderService{err: errors.New("db down")}, nil, auth.NewTokens(nil), nil)
		srv := mount(h)
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(collectionBody))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"kind":"INTERNAL_ERROR","message":"internal error","correlation_id":"`+
			w.Header().Get("X-Request-ID")+`"}`, w.Body.String())
	})
}

func TestCheckout_DiscountOverride(t *testing.T) {
	api := newTestAPI(t)
	h := session("s1")

	w, _ := api.do(http.MethodPut, "/api/cart/discount", `{"code":"save10"}`, h)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := api.checkout(h, "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "SAVE10", body["discount_code"])
	assert.Equal(t, "1.70", body["breakdown"].(map[string]any)["discount"])

	w, _ = api.do(http.MethodPost, "/api/cart/lines", `{"item_id":"wrap","quantity":2}`, h)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(http.MethodPut, "/api/cart/discount", `{"code":"SAVE10"}`, h)
	require.Equal(t, http.StatusOK, w.Code)
	w, body = api.do(http.MethodPost, "/api/checkout",
		`{"order_type":"collection","contact":{"name":"Ann","email":"ann@example.com"},"payment_method":"cash","discount_code":""}`,
		with(h, HeaderIdempotencyKey, "key-2"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, body, "discount_code")
}

func TestCart(t *testing.T) {
	api := newTestAPI(t)
	h := session("s1")

	w, body := api.do(http.MethodGet, "/api/cart", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["lines"])
	assert.EqualValues(t, 0, body["version"])

	w, body = api.do(http.MethodPost, "/api/cart/lines", `{"item_id":"wrap","quantity":1,"options":[]}`, h)
	require.Equal(t, http.StatusOK, w.Code)
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "8.50", lines[0].(map[string]any)["unit_price"])

	w, body = api.do(http.MethodPatch, "/api/cart/lines/0", `{"quantity":4}`, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, body["lines"].([]any)[0].(map[string]any)["quantity"])

	w, body = api.do(http.MethodPatch, "/api/cart/lines/7", `{"quantity":1}`, h)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["kind"])

	w, body = api.do(http.MethodDelete, "/api/cart/lines/x", "", h)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "index", body["field"])

	w, body = api.do(http.MethodDelete, "/api/cart/lines/0", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["lines"])

	w, body = api.do(http.MethodPost, "/api/cart/lines", `{"item_id":"ghost","quantity":1}`, h)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ITEM_UNAVAILABLE", body["kind"])

	w, _ = api.do(http.MethodDelete, "/api/cart", "", h)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body = api.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cart", body["field"])
}

func TestValidateDiscount(t *testing.T) {
	api := newTestAPI(t)
	h := session("s1")
	w, _ := api.do(http.MethodPost, "/api/cart/lines", `{"item_id":"wrap","quantity":2}`, h)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := api.do(http.MethodPost, "/api/discounts/validate", `{"code":"save10"}`, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "1.70", body["amount"])

	w, body = api.do(http.MethodPost, "/api/discounts/validate", `{"code":"NOPE","order_type":"delivery"}`, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "DISCOUNT_INVALID_CODE", body["reason"])
}

func TestTrackAndUpdateStatus(t *testing.T) {
	api := newTestAPI(t)
	w, created := api.checkout(session("s1"), "key-1")
	require.Equal(t, http.StatusCreated, w.Code)
	id := created["id"].(string)

	q := url.Values{"ticket": {created["ticket"].(string)}, "token": {created["tracking_token"].(string)}}
	w, body := api.do(http.MethodGet, "/api/orders/track?"+q.Encode(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "received", body["status"])
	assert.Len(t, body["history"], 1)
	assert.NotContains(t, body, "contact")
	assert.NotContains(t, body, "payment_method")
	assert.NotContains(t, body, "tracking_token")

	q.Set("token", "wrong")
	w, _ = api.do(http.MethodGet, "/api/orders/track?"+q.Encode(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	path := "/api/orders/" + id + "/status"
	w, _ = api.do(http.MethodPost, path, `{"status":"preparing"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = api.do(http.MethodPost, path, `{"status":"preparing"}`, map[string]string{HeaderAPIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = api.do(http.MethodPost, path, `{"status":"preparing"}`, map[string]string{HeaderAPIKey: "read-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	staff := map[string]string{HeaderAPIKey: "staff-key"}
	w, body = api.do(http.MethodPost, path, `{"status":"preparing"}`, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "preparing", body["status"])

	w, body = api.do(http.MethodPost, path, `{"status":"out_for_delivery"}`, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", body["kind"])
	assert.Equal(t, "preparing", body["from"])
	assert.Equal(t, "out_for_delivery", body["to"])

	w, body = api.do(http.MethodPost, path, `{}`, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status", body["field"])

	w, _ = api.do(http.MethodPost, "/api/orders/missing/status", `{"status":"preparing"}`, staff)
	assert.Equal(t, http.StatusNotFound, w.Code)

	tr, err := api.orders.Track(context.Background(), created["ticket"].(string), created["tracking_token"].(string))
	require.NoError(t, err)
	require.Len(t, tr.History, 2)
	assert.Equal(t, "staff:kitchen", tr.History[1].Actor)
	assert.Equal(t, fulfillment.Collection, tr.Order.Type)
}
