package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveCORS(cfg CORSConfig, req *http.Request) (*httptest.ResponseRecorder, bool) {
	var reached bool
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, reached
}

func preflight(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodOptions, "/api/cart/lines/0", nil)
	r.Header.Set("Origin", origin)
	r.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	r.Header.Set("Access-Control-Request-Headers", "X-Session-ID")
	return r
}

func TestCORS_Preflight(t *testing.T) {
	w, reached := serveCORS(CORSConfig{MaxAge: 600}, preflight("https://shop.example.com"))

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	assert.Equal(t, "X-Session-ID", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_ConfiguredHeaders(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins: []string{"https://Shop.Example.com"},
		AllowHeaders: []string{"Content-Type", "Idempotency-Key"},
		MaxAge:       -1,
	}
	w, _ := serveCORS(cfg, preflight("https://shop.example.com"))

	assert.Equal(t, "https://Shop.Example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type, Idempotency-Key", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "0", w.Header().Get("Access-Control-Max-Age"))
	assert.ElementsMatch(t,
		[]string{"Origin", "Access-Control-Request-Method", "Access-Control-Request-Headers"},
		w.Header().Values("Vary"))
}

func TestCORS_RejectedOrigin(t *testing.T) {
	cfg := CORSConfig{AllowOrigins: []string{"https://shop.example.com"}}

	w, reached := serveCORS(cfg, preflight("https://evil.example.net"))
	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	r.Header.Set("Origin", "https://evil.example.net")
	w, reached = serveCORS(cfg, r)
	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardSubdomain(t *testing.T) {
	cfg := CORSConfig{AllowOrigins: []string{"https://*.example.com"}}

	for origin, want := range map[string]string{
		"https://kiosk.example.com":    "https://kiosk.example.com",
		"https://a.b.example.com":      "https://a.b.example.com",
		"https://example.com":          "",
		"http://kiosk.example.com":     "",
		"https://kiosk.example.com.io": "",
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		r.Header.Set("Origin", origin)
		w, _ := serveCORS(cfg, r)
		assert.Equal(t, want, w.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestCORS_ActualRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	r.Header.Set("Origin", "https://shop.example.com")

	w, reached := serveCORS(CORSConfig{AllowCredentials: true}, r)
	require.True(t, reached)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Idempotent-Replayed")
	assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))
}

func TestCORS_NoOrigin(t *testing.T) {
	w, reached := serveCORS(CORSConfig{}, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Values("Vary"))
}
