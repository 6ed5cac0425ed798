// Package query is the aggregation engine. It reads the scoped, filtered
// rows of a collection in (timestamp, id) order and computes statistics,
// rankings, series and comparisons over them in memory, so every result is
// deterministic for a given data set.
package query

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
	"pulsemetrics/internal/telemetry"
)

// Store is the read side of the durable store.
type Store interface {
	ListAIRequests(ctx context.Context, f db.Filter, p db.Page) ([]db.AIRequest, error)
	CountAIRequests(ctx context.Context, f db.Filter) (int64, error)
	ListEngagementEvents(ctx context.Context, f db.Filter, p db.Page) ([]db.EngagementEvent, error)
	ListSalesTransactions(ctx context.Context, f db.Filter, p db.Page) ([]db.SalesTransaction, error)
	ListPerformanceSamples(ctx context.Context, f db.Filter, p db.Page) ([]db.PerformanceSample, error)
}

// Filter is the caller-supplied part of a query. Start and End are
// inclusive. Dimensions are exact matches on the domain's dimension tags.
type Filter struct {
	Start      *time.Time
	End        *time.Time
	UserID     string
	Dimensions map[string]string
}

// dimensionColumns whitelists the filterable tags of each domain.
var dimensionColumns = map[schema.Domain]map[string]string{
	schema.DomainAI: {
		"model":      "model",
		"status":     "status",
		"feature":    "feature",
		"complexity": "complexity",
		"language":   "language",
		"userPlan":   "user_plan",
	},
	schema.DomainEngagement: {
		"event":      "event",
		"feature":    "feature",
		"page":       "page",
		"sessionId":  "session_id",
		"deviceType": "device_type",
		"browser":    "browser",
		"os":         "os",
		"userPlan":   "user_plan",
	},
	schema.DomainSales: {
		"type":          "type",
		"status":        "status",
		"currency":      "currency",
		"paymentMethod": "payment_method",
		"plan":          "plan",
	},
	schema.DomainPerformance: {
		"service":    "service",
		"endpoint":   "endpoint",
		"method":     "method",
		"statusCode": "status_code",
	},
}

// Dimensions lists the filterable dimension names of d in sorted order.
func Dimensions(d schema.Domain) []string {
	out := make([]string, 0, len(dimensionColumns[d]))
	for name := range dimensionColumns[d] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Engine answers aggregate queries. It holds no state beyond its
// dependencies and is safe for concurrent use.
type Engine struct {
	store    Store
	log      *zap.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	hist, err := telemetry.Meter("pulsemetrics/query").Float64Histogram(
		"pulsemetrics.query.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Aggregation query latency."),
	)
	if err != nil {
		log.Warn("query duration histogram unavailable", zap.Error(err))
	}
	return &Engine{
		store:    store,
		log:      log,
		tracer:   telemetry.Tracer("pulsemetrics/query"),
		duration: hist,
	}
}

// observe opens a span for op and returns the function that closes it.
func (e *Engine) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "query."+op)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		}
		span.End()
		if e.duration != nil {
			e.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000,
				metric.WithAttributes(attribute.String("op", op)))
		}
	}
}

// resolve validates f for domain d and merges the caller's scope into it.
// A standard caller's actor replaces whatever actor was requested.
func resolve(d schema.Domain, sc scope.Scope, f Filter) (db.Filter, error) {
	var fields []apperr.FieldError
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		fields = append(fields, apperr.FieldError{Field: "endDate", Rule: "gtefield", Message: "endDate must not be before startDate"})
	}

	out := db.Filter{Start: f.Start, End: f.End, UserID: sc.Apply(f.UserID)}
	columns := dimensionColumns[d]
	names := make([]string, 0, len(f.Dimensions))
	for name := range f.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := f.Dimensions[name]
		col, ok := columns[name]
		if !ok {
			fields = append(fields, apperr.FieldError{Field: name, Rule: "dimension", Message: "not a filterable dimension of " + string(d)})
			continue
		}
		if out.Equals == nil {
			out.Equals = make(map[string]any, len(f.Dimensions))
		}
		if name == "statusCode" {
			code, err := strconv.Atoi(value)
			if err != nil {
				fields = append(fields, apperr.FieldError{Field: name, Rule: "numeric", Message: "statusCode must be an integer"})
				continue
			}
			out.Equals[col] = code
			continue
		}
		out.Equals[col] = value
	}
	if len(fields) > 0 {
		return db.Filter{}, apperr.Validation("invalid filter", fields...)
	}
	return out, nil
}

func (e *Engine) storeErr(op string, err error) error {
	e.log.Error("store read failed", zap.String("op", op), zap.Error(err))
	return apperr.Upstream("storage unavailable", err)
}

func (e *Engine) aiRows(ctx context.Context, sc scope.Scope, f Filter) ([]db.AIRequest, error) {
	df, err := resolve(schema.DomainAI, sc, f)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListAIRequests(ctx, df, db.Page{})
	if err != nil {
		return nil, e.storeErr("ai", err)
	}
	return rows, nil
}

func (e *Engine) engagementRows(ctx context.Context, sc scope.Scope, f Filter) ([]db.EngagementEvent, error) {
	df, err := resolve(schema.DomainEngagement, sc, f)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListEngagementEvents(ctx, df, db.Page{})
	if err != nil {
		return nil, e.storeErr("engagement", err)
	}
	return rows, nil
}

func (e *Engine) salesRows(ctx context.Context, sc scope.Scope, f Filter) ([]db.SalesTransaction, error) {
	df, err := resolve(schema.DomainSales, sc, f)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListSalesTransactions(ctx, df, db.Page{})
	if err != nil {
		return nil, e.storeErr("sales", err)
	}
	return rows, nil
}

func (e *Engine) performanceRows(ctx context.Context, sc scope.Scope, f Filter) ([]db.PerformanceSample, error) {
	df, err := resolve(schema.DomainPerformance, sc, f)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListPerformanceSamples(ctx, df, db.Page{})
	if err != nil {
		return nil, e.storeErr("performance", err)
	}
	return rows, nil
}
