package query

import (
	"context"

	"pulsemetrics/internal/db"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// AIStats summarizes AI requests. Durations are in milliseconds and cover
// only requests that reached a terminal state.
type AIStats struct {
	TotalRequests int64   `json:"totalRequests"`
	Pending       int64   `json:"pending"`
	Processing    int64   `json:"processing"`
	Completed     int64   `json:"completed"`
	Failed        int64   `json:"failed"`
	Cancelled     int64   `json:"cancelled"`
	SuccessRate   float64 `json:"successRate"`
	ErrorRate     float64 `json:"errorRate"`
	TotalCost     float64 `json:"totalCost"`
	AvgCost       float64 `json:"avgCost"`
	InputTokens   int64   `json:"inputTokens"`
	OutputTokens  int64   `json:"outputTokens"`
	TotalTokens   int64   `json:"totalTokens"`
	AvgTokens     float64 `json:"avgTokens"`
	AvgDuration   float64 `json:"avgDuration"`
	MinDuration   float64 `json:"minDuration"`
	MaxDuration   float64 `json:"maxDuration"`
	P95Duration   float64 `json:"p95Duration"`
	P99Duration   float64 `json:"p99Duration"`
	UniqueUsers   int64   `json:"uniqueUsers"`
}

// Fields flattens the numeric fields for comparisons and series.
func (s AIStats) Fields() map[string]float64 {
	return map[string]float64{
		"totalRequests": float64(s.TotalRequests),
		"pending":       float64(s.Pending),
		"processing":    float64(s.Processing),
		"completed":     float64(s.Completed),
		"failed":        float64(s.Failed),
		"cancelled":     float64(s.Cancelled),
		"successRate":   s.SuccessRate,
		"errorRate":     s.ErrorRate,
		"totalCost":     s.TotalCost,
		"avgCost":       s.AvgCost,
		"inputTokens":   float64(s.InputTokens),
		"outputTokens":  float64(s.OutputTokens),
		"totalTokens":   float64(s.TotalTokens),
		"avgTokens":     s.AvgTokens,
		"avgDuration":   s.AvgDuration,
		"minDuration":   s.MinDuration,
		"maxDuration":   s.MaxDuration,
		"p95Duration":   s.P95Duration,
		"p99Duration":   s.P99Duration,
		"uniqueUsers":   float64(s.UniqueUsers),
	}
}

func aiStats(rows []db.AIRequest) AIStats {
	var (
		s     AIStats
		cost  decimalSum
		dur   spread
		users = distinct{}
	)
	for _, r := range rows {
		s.TotalRequests++
		switch r.Status {
		case schema.AIPending:
			s.Pending++
		case schema.AIProcessing:
			s.Processing++
		case schema.AICompleted:
			s.Completed++
		case schema.AIFailed:
			s.Failed++
		case schema.AICancelled:
			s.Cancelled++
		}
		cost.add(r.Cost)
		s.InputTokens += r.Tokens.Input
		s.OutputTokens += r.Tokens.Output
		s.TotalTokens += r.Tokens.Total
		if r.Performance.Duration != nil {
			dur.add(float64(*r.Performance.Duration))
		}
		users.add(r.UserID)
	}
	s.SuccessRate = percent(s.Completed, s.TotalRequests)
	s.ErrorRate = percent(s.Failed, s.TotalRequests)
	s.TotalCost = cost.float()
	s.AvgCost = cost.avg(s.TotalRequests)
	s.AvgTokens = ratio(float64(s.TotalTokens), float64(s.TotalRequests))
	s.AvgDuration, s.MinDuration, s.MaxDuration = dur.avg(), dur.min, dur.max
	s.P95Duration, s.P99Duration = dur.pct(95), dur.pct(99)
	s.UniqueUsers = users.count()
	return s
}

// EngagementStats summarizes engagement events.
type EngagementStats struct {
	TotalEvents      int64            `json:"totalEvents"`
	UniqueUsers      int64            `json:"uniqueUsers"`
	UniqueSessions   int64            `json:"uniqueSessions"`
	TotalValue       float64          `json:"totalValue"`
	AvgValue         float64          `json:"avgValue"`
	EventsPerSession float64          `json:"eventsPerSession"`
	EventsPerUser    float64          `json:"eventsPerUser"`
	ByEvent          map[string]int64 `json:"byEvent"`
	ByDevice         map[string]int64 `json:"byDevice"`
}

func (s EngagementStats) Fields() map[string]float64 {
	return map[string]float64{
		"totalEvents":      float64(s.TotalEvents),
		"uniqueUsers":      float64(s.UniqueUsers),
		"uniqueSessions":   float64(s.UniqueSessions),
		"totalValue":       s.TotalValue,
		"avgValue":         s.AvgValue,
		"eventsPerSession": s.EventsPerSession,
		"eventsPerUser":    s.EventsPerUser,
	}
}

func engagementStats(rows []db.EngagementEvent) EngagementStats {
	s := EngagementStats{ByEvent: map[string]int64{}, ByDevice: map[string]int64{}}
	var (
		value    spread
		users    = distinct{}
		sessions = distinct{}
	)
	for _, r := range rows {
		s.TotalEvents++
		value.add(r.Value)
		users.add(r.UserID)
		sessions.add(r.SessionID)
		s.ByEvent[r.Event]++
		s.ByDevice[r.DeviceType]++
	}
	s.UniqueUsers, s.UniqueSessions = users.count(), sessions.count()
	s.TotalValue, s.AvgValue = value.sum, value.avg()
	s.EventsPerSession = ratio(float64(s.TotalEvents), float64(s.UniqueSessions))
	s.EventsPerUser = ratio(float64(s.TotalEvents), float64(s.UniqueUsers))
	return s
}

// SalesStats summarizes transactions. Revenue counts completed
// transactions only.
type SalesStats struct {
	TotalTransactions int64              `json:"totalTransactions"`
	Completed         int64              `json:"completed"`
	Pending           int64              `json:"pending"`
	Failed            int64              `json:"failed"`
	Cancelled         int64              `json:"cancelled"`
	Refunded          int64              `json:"refunded"`
	SuccessRate       float64            `json:"successRate"`
	TotalRevenue      float64            `json:"totalRevenue"`
	AvgOrderValue     float64            `json:"avgOrderValue"`
	MinAmount         float64            `json:"minAmount"`
	MaxAmount         float64            `json:"maxAmount"`
	RefundedAmount    float64            `json:"refundedAmount"`
	UniqueCustomers   int64              `json:"uniqueCustomers"`
	RevenueByPlan     map[string]float64 `json:"revenueByPlan"`
}

func (s SalesStats) Fields() map[string]float64 {
	return map[string]float64{
		"totalTransactions": float64(s.TotalTransactions),
		"completed":         float64(s.Completed),
		"pending":           float64(s.Pending),
		"failed":            float64(s.Failed),
		"cancelled":         float64(s.Cancelled),
		"refunded":          float64(s.Refunded),
		"successRate":       s.SuccessRate,
		"totalRevenue":      s.TotalRevenue,
		"avgOrderValue":     s.AvgOrderValue,
		"minAmount":         s.MinAmount,
		"maxAmount":         s.MaxAmount,
		"refundedAmount":    s.RefundedAmount,
		"uniqueCustomers":   float64(s.UniqueCustomers),
	}
}

func salesStats(rows []db.SalesTransaction) SalesStats {
	s := SalesStats{RevenueByPlan: map[string]float64{}}
	var (
		revenue   decimalSum
		refunded  decimalSum
		amounts   spread
		byPlan    = map[string]*decimalSum{}
		planOrder []string
		customers = distinct{}
	)
	for _, r := range rows {
		s.TotalTransactions++
		customers.add(r.UserID)
		switch r.Status {
		case schema.SaleCompleted:
			s.Completed++
			revenue.add(r.Amount)
			amounts.add(r.Amount)
			p, ok := byPlan[r.Plan]
			if !ok {
				p = &decimalSum{}
				byPlan[r.Plan] = p
				planOrder = append(planOrder, r.Plan)
			}
			p.add(r.Amount)
		case schema.SalePending:
			s.Pending++
		case schema.SaleFailed:
			s.Failed++
		case schema.SaleCancelled:
			s.Cancelled++
		case schema.SaleRefunded:
			s.Refunded++
			if r.Refund.Amount != nil {
				refunded.add(*r.Refund.Amount)
			} else {
				refunded.add(r.Amount)
			}
		}
	}
	s.SuccessRate = percent(s.Completed, s.TotalTransactions)
	s.TotalRevenue = revenue.float()
	s.AvgOrderValue = revenue.avg(s.Completed)
	s.MinAmount, s.MaxAmount = amounts.min, amounts.max
	s.RefundedAmount = refunded.float()
	s.UniqueCustomers = customers.count()
	for _, plan := range planOrder {
		s.RevenueByPlan[plan] = byPlan[plan].float()
	}
	return s
}

// PerformanceStats summarizes HTTP samples. A sample is an error when its
// status code is 400 or above. Response times are in milliseconds.
type PerformanceStats struct {
	TotalRequests   int64   `json:"totalRequests"`
	SuccessCount    int64   `json:"successCount"`
	ErrorCount      int64   `json:"errorCount"`
	ErrorRate       float64 `json:"errorRate"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	MinResponseTime float64 `json:"minResponseTime"`
	MaxResponseTime float64 `json:"maxResponseTime"`
	P50ResponseTime float64 `json:"p50ResponseTime"`
	P95ResponseTime float64 `json:"p95ResponseTime"`
	P99ResponseTime float64 `json:"p99ResponseTime"`
	AvgCPU          float64 `json:"avgCpu"`
	AvgMemory       float64 `json:"avgMemory"`
	AvgDisk         float64 `json:"avgDisk"`
	AvgQueryTime    float64 `json:"avgQueryTime"`
	AvgCacheHitRate float64 `json:"avgCacheHitRate"`
	UniqueEndpoints int64   `json:"uniqueEndpoints"`
}

func (s PerformanceStats) Fields() map[string]float64 {
	return map[string]float64{
		"totalRequests":   float64(s.TotalRequests),
		"successCount":    float64(s.SuccessCount),
		"errorCount":      float64(s.ErrorCount),
		"errorRate":       s.ErrorRate,
		"avgResponseTime": s.AvgResponseTime,
		"minResponseTime": s.MinResponseTime,
		"maxResponseTime": s.MaxResponseTime,
		"p50ResponseTime": s.P50ResponseTime,
		"p95ResponseTime": s.P95ResponseTime,
		"p99ResponseTime": s.P99ResponseTime,
		"avgCpu":          s.AvgCPU,
		"avgMemory":       s.AvgMemory,
		"avgDisk":         s.AvgDisk,
		"avgQueryTime":    s.AvgQueryTime,
		"avgCacheHitRate": s.AvgCacheHitRate,
		"uniqueEndpoints": float64(s.UniqueEndpoints),
	}
}

func isError(statusCode int) bool { return statusCode >= 400 }

func routeKey(p *db.PerformanceSample) string {
	return p.Service + " " + p.Method + " " + p.Endpoint
}

func performanceStats(rows []db.PerformanceSample) PerformanceStats {
	var (
		s                          PerformanceStats
		rt, cpu, mem, disk, qt, ch spread
		routes                     = distinct{}
	)
	for i := range rows {
		r := &rows[i]
		s.TotalRequests++
		if isError(r.StatusCode) {
			s.ErrorCount++
		} else {
			s.SuccessCount++
		}
		rt.add(r.ResponseTime)
		addOpt(&cpu, r.System.CPU)
		addOpt(&mem, r.System.Memory)
		addOpt(&disk, r.System.Disk)
		addOpt(&qt, r.Database.QueryTime)
		addOpt(&ch, r.Cache.HitRate)
		routes.add(routeKey(r))
	}
	s.ErrorRate = percent(s.ErrorCount, s.TotalRequests)
	s.AvgResponseTime, s.MinResponseTime, s.MaxResponseTime = rt.avg(), rt.min, rt.max
	s.P50ResponseTime, s.P95ResponseTime, s.P99ResponseTime = rt.pct(50), rt.pct(95), rt.pct(99)
	s.AvgCPU, s.AvgMemory, s.AvgDisk = cpu.avg(), mem.avg(), disk.avg()
	s.AvgQueryTime, s.AvgCacheHitRate = qt.avg(), ch.avg()
	s.UniqueEndpoints = routes.count()
	return s
}

func addOpt(s *spread, v *float64) {
	if v != nil {
		s.add(*v)
	}
}

func (e *Engine) AIStats(ctx context.Context, sc scope.Scope, f Filter) (_ AIStats, err error) {
	ctx, done := e.observe(ctx, "ai_stats")
	defer func() { done(err) }()
	rows, err := e.aiRows(ctx, sc, f)
	if err != nil {
		return AIStats{}, err
	}
	return aiStats(rows), nil
}

func (e *Engine) EngagementStats(ctx context.Context, sc scope.Scope, f Filter) (_ EngagementStats, err error) {
	ctx, done := e.observe(ctx, "engagement_stats")
	defer func() { done(err) }()
	rows, err := e.engagementRows(ctx, sc, f)
	if err != nil {
		return engagementStats(nil), err
	}
	return engagementStats(rows), nil
}

// SalesStats is scoped like every other query; revenue rollups across
// actors are reserved for elevated callers by the routes that expose them.
func (e *Engine) SalesStats(ctx context.Context, sc scope.Scope, f Filter) (_ SalesStats, err error) {
	ctx, done := e.observe(ctx, "sales_stats")
	defer func() { done(err) }()
	rows, err := e.salesRows(ctx, sc, f)
	if err != nil {
		return salesStats(nil), err
	}
	return salesStats(rows), nil
}

func (e *Engine) PerformanceStats(ctx context.Context, sc scope.Scope, f Filter) (_ PerformanceStats, err error) {
	ctx, done := e.observe(ctx, "performance_stats")
	defer func() { done(err) }()
	rows, err := e.performanceRows(ctx, sc, f)
	if err != nil {
		return PerformanceStats{}, err
	}
	return performanceStats(rows), nil
}

// Stats runs the statistics of domain d and returns the numeric fields.
func (e *Engine) Stats(ctx context.Context, sc scope.Scope, d schema.Domain, f Filter) (map[string]float64, error) {
	switch d {
	case schema.DomainAI:
		s, err := e.AIStats(ctx, sc, f)
		return s.Fields(), err
	case schema.DomainEngagement:
		s, err := e.EngagementStats(ctx, sc, f)
		return s.Fields(), err
	case schema.DomainSales:
		s, err := e.SalesStats(ctx, sc, f)
		return s.Fields(), err
	case schema.DomainPerformance:
		s, err := e.PerformanceStats(ctx, sc, f)
		return s.Fields(), err
	}
	return nil, unknownDomain(d)
}
