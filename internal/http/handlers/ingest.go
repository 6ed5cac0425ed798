package handlers

import (
	"github.com/valyala/fasthttp"

	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/ingest"
	"pulsemetrics/internal/schema"
)

// TrackAI handles POST /ai-tracking/track.
func TrackAI(svc *ingest.Service, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		var in schema.AIRequestInput
		if err := decodeBody(ctx, &in); err != nil {
			w.Error(ctx, err)
			return
		}
		row, err := svc.TrackAI(httpctx.Context(ctx), sc, &in)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.JSON(ctx, fasthttp.StatusCreated, row)
	}
}

// UpdateAI handles PUT /ai-tracking/update/{requestId}.
func UpdateAI(svc *ingest.Service, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		var upd schema.AIRequestUpdate
		if err := decodeBody(ctx, &upd); err != nil {
			w.Error(ctx, err)
			return
		}
		row, err := svc.UpdateAI(httpctx.Context(ctx), sc, pathParam(ctx, "requestId"), &upd)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, row)
	}
}

// TrackEngagement handles POST /analytics/engagement/track. The request's
// User-Agent header is used when the payload carries none.
func TrackEngagement(svc *ingest.Service, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		var in schema.EngagementInput
		if err := decodeBody(ctx, &in); err != nil {
			w.Error(ctx, err)
			return
		}
		row, err := svc.TrackEngagement(httpctx.Context(ctx), sc, &in, string(ctx.UserAgent()))
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.JSON(ctx, fasthttp.StatusCreated, row)
	}
}

// TrackSale handles POST /analytics/sales/track.
func TrackSale(svc *ingest.Service, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		var in schema.SalesInput
		if err := decodeBody(ctx, &in); err != nil {
			w.Error(ctx, err)
			return
		}
		row, err := svc.TrackSale(httpctx.Context(ctx), sc, &in)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.JSON(ctx, fasthttp.StatusCreated, row)
	}
}

// UpdateSale handles PUT /analytics/sales/update/{transactionId}.
func UpdateSale(svc *ingest.Service, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		var upd schema.SalesUpdate
		if err := decodeBody(ctx, &upd); err != nil {
			w.Error(ctx, err)
			return
		}
		row, err := svc.UpdateSale(httpctx.Context(ctx), sc, pathParam(ctx, "transactionId"), &upd)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.OK(ctx, row)
	}
}

// TrackPerformance handles POST /performance/track.
func TrackPerformance(svc *ingest.Service, w *respond.Writer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sc, err := mustScope(ctx)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		var in schema.PerformanceInput
		if err := decodeBody(ctx, &in); err != nil {
			w.Error(ctx, err)
			return
		}
		row, err := svc.TrackPerformance(httpctx.Context(ctx), sc, &in)
		if err != nil {
			w.Error(ctx, err)
			return
		}
		w.JSON(ctx, fasthttp.StatusCreated, row)
	}
}
