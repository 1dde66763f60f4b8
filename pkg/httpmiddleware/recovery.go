package httpmiddleware

import (
	"errors"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery turns handler panics into a logged 500 error envelope.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverPanic(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func recoverPanic(w http.ResponseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}
	if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
		panic(rec)
	}
	zctx.From(r.Context()).Error("Panic recovered",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Any("panic", rec),
		zap.Stack("stack"),
	)
	w.Header().Set("Connection", "close")
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}
