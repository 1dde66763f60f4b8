package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/pkg/httpmiddleware"
)

// writeJSON writes a JSON body produced by enc.
func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	var e jx.Encoder
	enc(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps err to the error envelope. Errors without a kind are
// logged with the correlation id and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok || ae.Kind == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		ae = &apperr.Error{Kind: apperr.KindInternal, Message: "internal error"}
	}
	id := httpmiddleware.RequestIDFromContext(r.Context())

	writeJSON(w, ae.Kind.HTTPStatus(), func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("kind", func(e *jx.Encoder) { e.Str(string(ae.Kind)) })
			e.Field("message", func(e *jx.Encoder) { e.Str(ae.Message) })
			optStr(e, "field", ae.Field)
			optStr(e, "item_id", ae.ItemID)
			optStr(e, "from", ae.From)
			optStr(e, "to", ae.To)
			optStr(e, "correlation_id", id)
		})
	})
}

func optStr(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}
