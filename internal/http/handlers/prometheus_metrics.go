package handlers

import (
	"bytes"
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/metrics"
)

// Exposition serves the live metrics registry in the Prometheus text format.
// It is unauthenticated.
func Exposition(reg *metrics.Registry, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var buf bytes.Buffer
		if err := reg.WriteText(&buf); err != nil {
			w.Error(ctx, apperr.Unknown(err))
			return
		}
		ctx.SetContentType(metrics.ContentType)
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the liveness probe. It always answers 200; a store that does
// not respond is reported in the body.
func Health(service, version string, store Pinger, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		status, database := "ok", "ok"
		if store != nil {
			pctx, cancel := context.WithTimeout(httpctx.Context(ctx), 2*time.Second)
			defer cancel()
			if err := store.Ping(pctx); err != nil {
				status, database = "degraded", "unavailable"
			}
		}
		w.OK(ctx, map[string]any{
			"service":  service,
			"version":  version,
			"status":   status,
			"database": database,
			"time":     time.Now().UTC(),
		})
	}
}
