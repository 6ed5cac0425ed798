package ctx

import (
	"context"

	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/identity"
	"pulsemetrics/internal/scope"
)

const (
	IdentityKey  = "identity"
	ScopeKey     = "scope"
	UserTokenKey = "userToken"
)

func SetUserToken(ctx *fasthttp.RequestCtx, token string) {
	ctx.SetUserValue(UserTokenKey, token)
}

func UserTokenFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(UserTokenKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func SetIdentity(ctx *fasthttp.RequestCtx, id identity.Identity) {
	ctx.SetUserValue(IdentityKey, id)
}

func IdentityFromCtx(ctx *fasthttp.RequestCtx) (identity.Identity, bool) {
	v, ok := ctx.UserValue(IdentityKey).(identity.Identity)
	return v, ok
}

func SetScope(ctx *fasthttp.RequestCtx, sc scope.Scope) {
	ctx.SetUserValue(ScopeKey, sc)
}

// ScopeFromCtx returns the scope set by the auth middleware. ok is false on
// routes that are not authenticated.
func ScopeFromCtx(ctx *fasthttp.RequestCtx) (scope.Scope, bool) {
	v, ok := ctx.UserValue(ScopeKey).(scope.Scope)
	return v, ok
}

const TraceContextKey = "traceContext"

// SetContext stores the request-scoped context carrying the server span.
func SetContext(ctx *fasthttp.RequestCtx, c context.Context) {
	ctx.SetUserValue(TraceContextKey, c)
}

// Context returns the context to pass to services: the one carrying the
// server span when instrumentation ran, else the request itself.
func Context(ctx *fasthttp.RequestCtx) context.Context {
	if c, ok := ctx.UserValue(TraceContextKey).(context.Context); ok {
		return c
	}
	return ctx
}
