package query

import (
	"context"
	"sort"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

const (
	MinTopN     = 1
	MaxTopN     = 50
	DefaultTopN = 10
)

// TopMetric names a ranking.
type TopMetric string

const (
	TopAIModels  TopMetric = "ai-models"
	TopFeatures  TopMetric = "features"
	TopEndpoints TopMetric = "endpoints"
	TopUsers     TopMetric = "users"
	TopRevenue   TopMetric = "revenue"
)

// TopMetrics lists the rankings in a fixed order.
var TopMetrics = []TopMetric{TopAIModels, TopFeatures, TopEndpoints, TopUsers, TopRevenue}

func (m TopMetric) valid() bool {
	for _, t := range TopMetrics {
		if t == m {
			return true
		}
	}
	return false
}

// crossActor reports whether the ranking compares actors or rolls up
// revenue, which standard callers may not see.
func (m TopMetric) crossActor() bool {
	return m == TopUsers || m == TopRevenue
}

// Ranked is one group of a ranking. Value is the metric the ranking is
// sorted by; Metrics carries secondary figures of the group.
type Ranked struct {
	Group   map[string]string  `json:"group"`
	Value   float64            `json:"value"`
	Count   int64              `json:"count"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// groups keeps accumulators in order of first appearance.
type groups[A any] struct {
	order []*A
	byKey map[string]*A
}

func newGroups[A any]() *groups[A] {
	return &groups[A]{byKey: map[string]*A{}}
}

func (g *groups[A]) get(key string, init func() *A) *A {
	if a, ok := g.byKey[key]; ok {
		return a
	}
	a := init()
	g.byKey[key] = a
	g.order = append(g.order, a)
	return a
}

// sortRanked orders by Value descending. The sort is stable, so equal
// values keep the order in which their groups first appeared.
func sortRanked(items []Ranked, limit int) []Ranked {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Value > items[j].Value })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func checkLimit(n int) error {
	if n < MinTopN || n > MaxTopN {
		return apperr.Invalid("limit", "range", "limit must be between 1 and 50")
	}
	return nil
}

// Top ranks groups of the given metric and returns the first n.
func (e *Engine) Top(ctx context.Context, sc scope.Scope, metric TopMetric, n int, f Filter) (_ []Ranked, err error) {
	ctx, done := e.observe(ctx, "top")
	defer func() { done(err) }()

	if !metric.valid() {
		return nil, apperr.Invalid("metric", "oneof", "metric must be one of ai-models, features, endpoints, users, revenue")
	}
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	if metric.crossActor() {
		if err := sc.RequireElevated("ranking " + string(metric)); err != nil {
			return nil, err
		}
	}

	switch metric {
	case TopAIModels:
		rows, err := e.aiRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return topAIBy(rows, "model", func(r *db.AIRequest) string { return r.Model }, n), nil
	case TopUsers:
		rows, err := e.aiRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return topAIBy(rows, "userId", func(r *db.AIRequest) string { return r.UserID }, n), nil
	case TopFeatures:
		rows, err := e.engagementRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return topFeatures(rows, n), nil
	case TopEndpoints:
		rows, err := e.performanceRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return topEndpoints(rows, n), nil
	default:
		rows, err := e.salesRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return topRevenue(rows, n), nil
	}
}

// topAIBy ranks AI requests by count per key.
func topAIBy(rows []db.AIRequest, label string, key func(*db.AIRequest) string, n int) []Ranked {
	type acc struct {
		key    string
		count  int64
		cost   decimalSum
		tokens int64
	}
	g := newGroups[acc]()
	for i := range rows {
		r := &rows[i]
		k := key(r)
		a := g.get(k, func() *acc { return &acc{key: k} })
		a.count++
		a.cost.add(r.Cost)
		a.tokens += r.Tokens.Total
	}
	out := make([]Ranked, 0, len(g.order))
	for _, a := range g.order {
		out = append(out, Ranked{
			Group: map[string]string{label: a.key},
			Value: float64(a.count),
			Count: a.count,
			Metrics: map[string]float64{
				"totalCost":   a.cost.float(),
				"totalTokens": float64(a.tokens),
			},
		})
	}
	return sortRanked(out, n)
}

// topFeatures ranks engagement features by event count. Events without a
// feature are not ranked.
func topFeatures(rows []db.EngagementEvent, n int) []Ranked {
	type acc struct {
		feature string
		count   int64
		users   distinct
	}
	g := newGroups[acc]()
	for _, r := range rows {
		if r.Feature == "" {
			continue
		}
		feature := r.Feature
		a := g.get(feature, func() *acc { return &acc{feature: feature, users: distinct{}} })
		a.count++
		a.users.add(r.UserID)
	}
	out := make([]Ranked, 0, len(g.order))
	for _, a := range g.order {
		out = append(out, Ranked{
			Group:   map[string]string{"feature": a.feature},
			Value:   float64(a.count),
			Count:   a.count,
			Metrics: map[string]float64{"uniqueUsers": float64(a.users.count())},
		})
	}
	return sortRanked(out, n)
}

func topEndpoints(rows []db.PerformanceSample, n int) []Ranked {
	stats := endpointStats(rows)
	out := make([]Ranked, 0, len(stats))
	for _, s := range stats {
		out = append(out, Ranked{
			Group: s.group(),
			Value: float64(s.TotalRequests),
			Count: s.TotalRequests,
			Metrics: map[string]float64{
				"avgResponseTime": s.AvgResponseTime,
				"errorRate":       s.ErrorRate,
			},
		})
	}
	return sortRanked(out, n)
}

// topRevenue ranks plans by completed revenue.
func topRevenue(rows []db.SalesTransaction, n int) []Ranked {
	type acc struct {
		plan    string
		count   int64
		revenue decimalSum
	}
	g := newGroups[acc]()
	for _, r := range rows {
		if r.Status != schema.SaleCompleted {
			continue
		}
		plan := r.Plan
		a := g.get(plan, func() *acc { return &acc{plan: plan} })
		a.count++
		a.revenue.add(r.Amount)
	}
	out := make([]Ranked, 0, len(g.order))
	for _, a := range g.order {
		out = append(out, Ranked{
			Group:   map[string]string{"plan": a.plan},
			Value:   a.revenue.float(),
			Count:   a.count,
			Metrics: map[string]float64{"avgOrderValue": a.revenue.avg(a.count)},
		})
	}
	return sortRanked(out, n)
}

// EndpointStat aggregates the samples of one (service, endpoint, method).
type EndpointStat struct {
	Service         string  `json:"service"`
	Endpoint        string  `json:"endpoint"`
	Method          string  `json:"method"`
	TotalRequests   int64   `json:"totalRequests"`
	ErrorCount      int64   `json:"errorCount"`
	ErrorRate       float64 `json:"errorRate"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	MaxResponseTime float64 `json:"maxResponseTime"`
	P95ResponseTime float64 `json:"p95ResponseTime"`
}

func (s EndpointStat) group() map[string]string {
	return map[string]string{"service": s.Service, "endpoint": s.Endpoint, "method": s.Method}
}

// endpointStats groups samples by route in order of first appearance.
func endpointStats(rows []db.PerformanceSample) []EndpointStat {
	type acc struct {
		stat EndpointStat
		rt   spread
	}
	g := newGroups[acc]()
	for i := range rows {
		r := &rows[i]
		a := g.get(routeKey(r), func() *acc {
			return &acc{stat: EndpointStat{Service: r.Service, Endpoint: r.Endpoint, Method: r.Method}}
		})
		a.stat.TotalRequests++
		if isError(r.StatusCode) {
			a.stat.ErrorCount++
		}
		a.rt.add(r.ResponseTime)
	}
	out := make([]EndpointStat, 0, len(g.order))
	for _, a := range g.order {
		s := a.stat
		s.ErrorRate = percent(s.ErrorCount, s.TotalRequests)
		s.AvgResponseTime = a.rt.avg()
		s.MaxResponseTime = a.rt.max
		s.P95ResponseTime = a.rt.pct(95)
		out = append(out, s)
	}
	return out
}

// ErrorRates ranks routes by error rate, highest first.
func (e *Engine) ErrorRates(ctx context.Context, sc scope.Scope, n int, f Filter) (_ []EndpointStat, err error) {
	ctx, done := e.observe(ctx, "error_rates")
	defer func() { done(err) }()
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	rows, err := e.performanceRows(ctx, sc, f)
	if err != nil {
		return nil, err
	}
	stats := endpointStats(rows)
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].ErrorRate > stats[j].ErrorRate })
	return head(stats, n), nil
}

// SlowestEndpoints ranks routes by average response time, slowest first.
func (e *Engine) SlowestEndpoints(ctx context.Context, sc scope.Scope, n int, f Filter) (_ []EndpointStat, err error) {
	ctx, done := e.observe(ctx, "slowest_endpoints")
	defer func() { done(err) }()
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	rows, err := e.performanceRows(ctx, sc, f)
	if err != nil {
		return nil, err
	}
	stats := endpointStats(rows)
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].AvgResponseTime > stats[j].AvgResponseTime })
	return head(stats, n), nil
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

const (
	DefaultErrorRateThreshold    = 5.0
	DefaultResponseTimeThreshold = 2000.0
)

// Thresholds select which routes raise an alert. ResponseTime applies to
// the route's p95 response time in milliseconds.
type Thresholds struct {
	ErrorRate    float64
	ResponseTime float64
}

// DefaultThresholds are 5% errors and 2000ms p95.
var DefaultThresholds = Thresholds{ErrorRate: DefaultErrorRateThreshold, ResponseTime: DefaultResponseTimeThreshold}

// Alert is a route that crossed at least one threshold.
type Alert struct {
	EndpointStat
	Reasons []string `json:"reasons"`
}

// Alerts returns the routes whose error rate or p95 response time reaches
// its threshold, sorted by error rate then p95 response time, both
// descending.
func (e *Engine) Alerts(ctx context.Context, sc scope.Scope, t Thresholds, f Filter) (_ []Alert, err error) {
	ctx, done := e.observe(ctx, "alerts")
	defer func() { done(err) }()
	if t.ErrorRate < 0 || t.ResponseTime < 0 {
		return nil, apperr.Invalid("threshold", "gte", "thresholds must not be negative")
	}
	rows, err := e.performanceRows(ctx, sc, f)
	if err != nil {
		return nil, err
	}
	out := []Alert{}
	for _, s := range endpointStats(rows) {
		var reasons []string
		if s.ErrorRate >= t.ErrorRate {
			reasons = append(reasons, "error_rate")
		}
		if s.P95ResponseTime >= t.ResponseTime {
			reasons = append(reasons, "response_time")
		}
		if len(reasons) > 0 {
			out = append(out, Alert{EndpointStat: s, Reasons: reasons})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ErrorRate != out[j].ErrorRate {
			return out[i].ErrorRate > out[j].ErrorRate
		}
		return out[i].P95ResponseTime > out[j].P95ResponseTime
	})
	return out, nil
}
