package handlers

import (
	"context"

	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/query"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
	"pulsemetrics/internal/sysinfo"
)

func domainStats(ctx context.Context, eng *query.Engine, sc scope.Scope, d schema.Domain, f query.Filter) (any, error) {
	switch d {
	case schema.DomainAI:
		return eng.AIStats(ctx, sc, f)
	case schema.DomainEngagement:
		return eng.EngagementStats(ctx, sc, f)
	case schema.DomainSales:
		return eng.SalesStats(ctx, sc, f)
	case schema.DomainPerformance:
		return eng.PerformanceStats(ctx, sc, f)
	}
	return nil, apperr.Invalid("metric", "oneof", "unknown domain "+string(d))
}

// Stats serves the caller's own statistics for domain d. Elevated callers
// may name another actor with userId.
func Stats(eng *query.Engine, d schema.Domain, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, d, sc.ActorID)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := domainStats(httpctx.Context(ctx), eng, sc, d, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}

// AdminStats serves statistics across every actor, or one actor when
// userId is given. It is mounted behind AdminOnly.
func AdminStats(eng *query.Engine, d schema.Domain, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, d, "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := domainStats(httpctx.Context(ctx), eng, sc, d, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}

// History handles GET /ai-tracking/history?page=&limit=.
func History(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, schema.DomainAI, sc.ActorID)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		page, err := intArg(ctx, "page", 1)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		limit, err := intArg(ctx, "limit", query.DefaultPageSize)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := eng.History(httpctx.Context(ctx), sc, f, page, limit)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}

const defaultJourneyLimit = 50

// Journey handles GET /analytics/engagement/journey?userId=&sessionId=&limit=.
func Journey(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, schema.DomainEngagement, "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		limit, err := intArg(ctx, "limit", defaultJourneyLimit)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		userID := sc.Apply(f.UserID)
		events, err := eng.Journey(httpctx.Context(ctx), sc, userID, arg(ctx, "sessionId"), limit, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, map[string]any{"userId": userID, "events": events, "count": len(events)})
	}
}

// SlowestEndpoints handles GET /performance/slowest-endpoints?limit=.
func SlowestEndpoints(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return endpointRanking(w, eng.SlowestEndpoints)
}

// ErrorRates handles GET /performance/error-rates?limit=.
func ErrorRates(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return endpointRanking(w, eng.ErrorRates)
}

type rankFunc func(ctx context.Context, sc scope.Scope, n int, f query.Filter) ([]query.EndpointStat, error)

func endpointRanking(w *respond.Writer, rank rankFunc) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, schema.DomainPerformance, "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		n, err := intArg(ctx, "limit", query.DefaultTopN)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := rank(httpctx.Context(ctx), sc, n, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, out)
	}
}

// SystemResources handles GET /performance/system-resources?groupBy=.
func SystemResources(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, schema.DomainPerformance, "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		g, err := query.ParseGranularity(arg(ctx, "groupBy"))
		if err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := eng.SystemResources(httpctx.Context(ctx), sc, g, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, map[string]any{"groupBy": g, "points": out})
	}
}

// CurrentSystem handles GET /performance/current-system, a live reading of
// the host this service runs on.
func CurrentSystem(r *sysinfo.Reader, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		snap, err := r.Read(httpctx.Context(ctx))
		if err != nil {
			w.Error(ctx, apperr.Upstream("host metrics unavailable", err))
			return
		}
		w.OK(ctx, snap)
	}
}

// Alerts handles GET /performance/admin/alerts with optional
// errorRateThreshold and responseTimeThreshold.
func Alerts(eng *query.Engine, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		f, err := filterFrom(ctx, schema.DomainPerformance, "")
		if err != nil {
			w.Error(ctx, err)
			return
		}
		t := query.DefaultThresholds
		if t.ErrorRate, err = floatArg(ctx, "errorRateThreshold", t.ErrorRate); err != nil {
			w.Error(ctx, err)
			return
		}
		if t.ResponseTime, err = floatArg(ctx, "responseTimeThreshold", t.ResponseTime); err != nil {
			w.Error(ctx, err)
			return
		}
		out, err := eng.Alerts(httpctx.Context(ctx), sc, t, f)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, map[string]any{
			"thresholds": map[string]float64{"errorRate": t.ErrorRate, "responseTime": t.ResponseTime},
			"alerts":     out,
			"count":      len(out),
		})
	}
}
