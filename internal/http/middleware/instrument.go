package middleware

import (
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/telemetry"
)

// headerCarrier adapts fasthttp request headers for trace propagation.
type headerCarrier struct {
	h *fasthttp.RequestHeader
}

func (c headerCarrier) Get(key string) string { return string(c.h.Peek(key)) }

func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }

func (c headerCarrier) Keys() []string {
	var keys []string
	c.h.VisitAll(func(k, _ []byte) { keys = append(keys, string(k)) })
	return keys
}

// route is the matched route template, so high-cardinality paths such as
// /ai-tracking/update/{requestId} collapse into one series.
func route(ctx *fasthttp.RequestCtx) string {
	if r, ok := ctx.UserValue(router.MatchedRoutePathParam).(string); ok && r != "" {
		return r
	}
	return string(ctx.Path())
}

// spanName is "{method} {route}" once a route has matched and just the
// method otherwise.
func spanName(method string, ctx *fasthttp.RequestCtx) string {
	if r, ok := ctx.UserValue(router.MatchedRoutePathParam).(string); ok && r != "" {
		return method + " " + r
	}
	return method
}

// Instrument opens a server span for each request, continuing any trace
// propagated by the caller, and records the service's own request count and
// latency. Both are no-ops when telemetry is not configured.
func Instrument() func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	tracer := telemetry.Tracer("pulsemetrics/http")
	meter := telemetry.Meter("pulsemetrics/http")
	requests, _ := meter.Int64Counter("http.server.request_count")
	duration, _ := meter.Float64Histogram("http.server.duration", metric.WithUnit("ms"))

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			parent := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{&ctx.Request.Header})
			method := string(ctx.Method())
			spanCtx, span := tracer.Start(parent, method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(method),
					semconv.URLPath(string(ctx.Path())),
				),
			)
			defer span.End()
			httpctx.SetContext(ctx, spanCtx)

			start := time.Now()
			next(ctx)
			elapsed := time.Since(start)

			status := ctx.Response.StatusCode()
			span.SetName(spanName(method, ctx))
			span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route(ctx)))
			if status >= fasthttp.StatusInternalServerError {
				span.SetStatus(codes.Error, strconv.Itoa(status))
			}
			if sc, ok := httpctx.ScopeFromCtx(ctx); ok {
				span.SetAttributes(attribute.String("pulsemetrics.actor_id", sc.ActorID))
			}

			attrs := metric.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.route", route(ctx)),
				attribute.String("http.status_code", strconv.Itoa(status)),
			)
			if requests != nil {
				requests.Add(spanCtx, 1, attrs)
			}
			if duration != nil {
				duration.Record(spanCtx, float64(elapsed.Microseconds())/1000, attrs)
			}
		}
	}
}
