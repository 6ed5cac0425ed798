package middleware

import (
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/http/respond"
)

// RequestLogger logs method, path, status, duration and remote address of
// every request.
func RequestLogger(log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			log.Info("request",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", ctx.RemoteIP().String()),
			)
		}
	}
}

// Recover turns a panic in a handler into a 500 response.
func Recover(w *respond.Writer) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if r := recover(); r != nil {
					ctx.Response.Reset()
					w.Error(ctx, apperr.Unknown(fmt.Errorf("panic: %v", r)))
				}
			}()
			next(ctx)
		}
	}
}

// Chain applies middleware so that the first one listed runs outermost.
func Chain(h fasthttp.RequestHandler, mws ...func(fasthttp.RequestHandler) fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
