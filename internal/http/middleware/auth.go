package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/identity"
	"pulsemetrics/internal/scope"
)

// BearerAuth verifies the bearer token with the identity service and sets
// the caller's identity and scope on the context. Any verification failure
// rejects the request.
func BearerAuth(v identity.Verifier, adminRole string, w *respond.Writer) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				w.Error(ctx, apperr.Unauthenticated("missing Authorization header", nil))
				return
			}

			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				w.Error(ctx, apperr.Unauthenticated("invalid Authorization header", nil))
				return
			}

			token := strings.TrimSpace(string(auth[len(prefix):]))
			if token == "" {
				w.Error(ctx, apperr.Unauthenticated("empty bearer token", nil))
				return
			}

			id, err := v.Verify(httpctx.Context(ctx), token)
			if err != nil {
				if !apperr.Is(err, apperr.KindAuthentication) {
					err = apperr.Unauthenticated("token verification failed", err)
				}
				w.Error(ctx, err)
				return
			}

			httpctx.SetUserToken(ctx, token)
			httpctx.SetIdentity(ctx, id)
			httpctx.SetScope(ctx, scope.Resolve(id.ID, id.Role, adminRole))
			next(ctx)
		}
	}
}
