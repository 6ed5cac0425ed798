package handlers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/http/middleware"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/identity"
	"pulsemetrics/internal/ingest"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/query"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/sysinfo"
)

// Deps are the components the routes are served from.
type Deps struct {
	Ingest   *ingest.Service
	Query    *query.Engine
	Metrics  *metrics.Registry
	System   *sysinfo.Reader
	Store    Pinger
	Verifier identity.Verifier
	Writer   *respond.Writer

	AdminRole string
	Service   string
	Version   string
}

// Routes builds the route table. Everything except /health and /metrics
// requires a bearer token; admin routes also require the elevated role.
func Routes(d Deps) *router.Router {
	r := router.New()
	r.SaveMatchedRoutePath = true
	w := d.Writer

	auth := middleware.BearerAuth(d.Verifier, d.AdminRole, w)
	admin := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return auth(middleware.AdminOnly(w)(h))
	}

	r.GET("/health", Health(d.Service, d.Version, d.Store, w))
	r.GET("/metrics", Exposition(d.Metrics, w))

	r.POST("/ai-tracking/track", auth(TrackAI(d.Ingest, w)))
	r.PUT("/ai-tracking/update/{requestId}", auth(UpdateAI(d.Ingest, w)))
	r.GET("/ai-tracking/stats", auth(Stats(d.Query, schema.DomainAI, w)))
	r.GET("/ai-tracking/history", auth(History(d.Query, w)))
	r.GET("/ai-tracking/admin/stats", admin(AdminStats(d.Query, schema.DomainAI, w)))

	r.POST("/analytics/engagement/track", auth(TrackEngagement(d.Ingest, w)))
	r.GET("/analytics/engagement/stats", auth(Stats(d.Query, schema.DomainEngagement, w)))
	r.GET("/analytics/engagement/journey", auth(Journey(d.Query, w)))
	r.POST("/analytics/sales/track", auth(TrackSale(d.Ingest, w)))
	r.PUT("/analytics/sales/update/{transactionId}", auth(UpdateSale(d.Ingest, w)))
	r.GET("/analytics/sales/stats", auth(Stats(d.Query, schema.DomainSales, w)))
	r.GET("/analytics/admin/engagement/stats", admin(AdminStats(d.Query, schema.DomainEngagement, w)))
	r.GET("/analytics/admin/sales/stats", admin(AdminStats(d.Query, schema.DomainSales, w)))

	r.POST("/performance/track", auth(TrackPerformance(d.Ingest, w)))
	r.GET("/performance/stats", auth(Stats(d.Query, schema.DomainPerformance, w)))
	r.GET("/performance/slowest-endpoints", auth(SlowestEndpoints(d.Query, w)))
	r.GET("/performance/error-rates", auth(ErrorRates(d.Query, w)))
	r.GET("/performance/system-resources", auth(SystemResources(d.Query, w)))
	r.GET("/performance/current-system", auth(CurrentSystem(d.System, w)))
	r.GET("/performance/admin/stats", admin(AdminStats(d.Query, schema.DomainPerformance, w)))
	r.GET("/performance/admin/alerts", admin(Alerts(d.Query, w)))

	r.GET("/metrics/dashboard", auth(Dashboard(d.Query, w)))
	r.GET("/metrics/summary", auth(Summary(d.Query, w)))
	r.GET("/metrics/top-metrics", auth(TopMetrics(d.Query, w)))
	r.GET("/metrics/comparison", auth(Comparison(d.Query, w)))

	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		w.Error(ctx, apperr.NotFound("route not found"))
	}
	return r
}
