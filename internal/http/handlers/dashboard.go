package handlers

import (
	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/query"
	"pulsemetrics/internal/schema"
)

// Dashboard handles GET /metrics/dashboard.
func Dashboard(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, "", "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := eng.Dashboard(httpctx.Context(ctx), sc, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}

// Summary handles GET /metrics/summary?groupBy=hour|day|week|month.
func Summary(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, "", "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		g, err := query.ParseGranularity(arg(ctx, "groupBy"))
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := eng.Summary(httpctx.Context(ctx), sc, g, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}

// TopMetrics handles GET /metrics/top-metrics?metric=&limit=.
func TopMetrics(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		metric := query.TopMetric(arg(ctx, "metric"))
		if metric == "" {
			w.Error(ctx, apperr.Invalid("metric", "required", "metric is required"))
			return
		}
		f, err := filterFrom(ctx, "", "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		n, err := intArg(ctx, "limit", query.DefaultTopN)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := eng.Top(httpctx.Context(ctx), sc, metric, n, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, map[string]any{"metric": metric, "limit": n, "items": out})
	}
}

// Comparison handles GET /metrics/comparison?metric=&currentStart=&
// currentEnd=&previousStart=&previousEnd=.
func Comparison(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		d, ok := schema.ParseDomain(arg(ctx, "metric"))
		if !ok {
			w.Error(ctx, apperr.Invalid("metric", "oneof", "metric must be one of ai, engagement, sales, performance"))
			return
		}

		var (
			windows [2]query.Window
			fields  []apperr.FieldError
		)
		for i, name := range []string{"currentStart", "currentEnd", "previousStart", "previousEnd"} {
			t, fe := parseTime(name, arg(ctx, name), i%2 == 1)
			if fe != nil {
				fields = append(fields, *fe)
				continue
			}
			if t == nil {
				continue
			}
			if i%2 == 0 {
				windows[i/2].Start = *t
			} else {
				windows[i/2].End = *t
			}
		}
		if len(fields) > 0 {
			w.Error(ctx, apperr.Validation("invalid comparison windows", fields...))
			return
		}

		f, err := filterFrom(ctx, d, "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f.Start, f.End = nil, nil
		out, err := eng.Compare(httpctx.Context(ctx), sc, d, windows[0], windows[1], f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}
