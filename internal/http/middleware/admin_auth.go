package middleware

import (
	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/http/respond"
)

// AdminOnly rejects callers without elevated scope. It must run after
// BearerAuth.
func AdminOnly(w *respond.Writer) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			sc, ok := httpctx.ScopeFromCtx(ctx)
			if !ok {
				w.Error(ctx, apperr.Unauthenticated("not authenticated", nil))
				return
			}
			if err := sc.RequireElevated(string(ctx.Path())); err != nil {
				w.Error(ctx, err)
				return
			}
			next(ctx)
		}
	}
}
