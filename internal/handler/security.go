package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/auth"
)

// SecurityHandler authenticates staff requests via HMAC-SHA256 hashed API
// keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

var errUnauthorized = errors.New("unauthorized")

// Authenticate hashes key, looks it up and compares the stored hash in
// constant time.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hexHash := auth.HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if errors.Is(err, auth.ErrKeyNotFound) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}

	hash, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}

type apiKeyCtx struct{}

func apiKeyFrom(ctx context.Context) *auth.APIKeyInfo {
	k, _ := ctx.Value(apiKeyCtx{}).(*auth.APIKeyInfo)
	return k
}

// Require rejects requests whose API key is missing, unknown or lacks scope.
func (s *SecurityHandler) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := s.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
			if errors.Is(err, errUnauthorized) {
				writeError(w, r, apperr.New(apperr.KindUnauthorized, "a valid api key is required"))
				return
			}
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !info.HasScope(scope) {
				zctx.From(r.Context()).Info("API key lacks scope",
					zap.String("key_id", info.ID),
					zap.String("scope", scope),
				)
				writeError(w, r, apperr.New(apperr.KindUnauthorized, "api key is not allowed to do this"))
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyCtx{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
