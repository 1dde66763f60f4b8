package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. An entry may use one leading
	// wildcard label, e.g. "https://*.example.com". Empty or "*" allows any
	// origin.
	AllowOrigins []string
	// AllowMethods defaults to DefaultCORSMethods.
	AllowMethods []string
	// AllowHeaders lists accepted request headers. Empty echoes the
	// preflight's Access-Control-Request-Headers.
	AllowHeaders []string
	// ExposeHeaders defaults to DefaultCORSExposeHeaders.
	ExposeHeaders []string
	// AllowCredentials disables the "*" response; the caller's origin is
	// echoed instead.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0".
	MaxAge int
}

// DefaultCORSMethods covers every method the checkout API routes.
var DefaultCORSMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// DefaultCORSExposeHeaders are the response headers browser clients read.
var DefaultCORSExposeHeaders = []string{
	"X-Request-ID",
	"Idempotent-Replayed",
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

type corsPolicy struct {
	anyOrigin   bool
	credentials bool
	exact       map[string]string // lowercase -> configured spelling
	suffixes    []originSuffix

	methods string
	headers string
	expose  string
	maxAge  string
}

// originSuffix matches "scheme://*.domain" entries.
type originSuffix struct {
	scheme string
	domain string // ".example.com"
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		anyOrigin:   len(cfg.AllowOrigins) == 0,
		credentials: cfg.AllowCredentials,
		exact:       make(map[string]string, len(cfg.AllowOrigins)),
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		lower := strings.ToLower(o)
		if scheme, host, ok := strings.Cut(lower, "://*."); ok {
			p.suffixes = append(p.suffixes, originSuffix{scheme: scheme, domain: "." + host})
			continue
		}
		p.exact[lower] = o
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	expose := cfg.ExposeHeaders
	if expose == nil {
		expose = DefaultCORSExposeHeaders
	}
	p.methods = strings.Join(methods, ", ")
	p.headers = strings.Join(cfg.AllowHeaders, ", ")
	p.expose = strings.Join(expose, ", ")

	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is rejected.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin {
		if p.credentials {
			return origin
		}
		return "*"
	}
	lower := strings.ToLower(origin)
	if o, ok := p.exact[lower]; ok {
		return o
	}
	scheme, host, ok := strings.Cut(lower, "://")
	if !ok {
		return ""
	}
	for _, s := range p.suffixes {
		if s.scheme == scheme && strings.HasSuffix(host, s.domain) && len(host) > len(s.domain) {
			return origin
		}
	}
	return ""
}

// varies reports whether responses depend on the Origin header.
func (p *corsPolicy) varies() bool {
	return !p.anyOrigin || p.credentials
}

// CORS returns a middleware that answers preflight requests and decorates
// cross-origin responses.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if p.varies() {
				h.Add("Vary", "Origin")
			}
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allow := p.allowOrigin(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allow != "" {
					h.Set("Access-Control-Allow-Origin", allow)
					h.Set("Access-Control-Allow-Methods", p.methods)
					if p.headers != "" {
						h.Set("Access-Control-Allow-Headers", p.headers)
					} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
						h.Set("Access-Control-Allow-Headers", req)
					}
					if p.credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if p.maxAge != "" {
						h.Set("Access-Control-Max-Age", p.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if p.expose != "" {
					h.Set("Access-Control-Expose-Headers", p.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
