// Package metrics is the live metrics registry: process-local counters,
// gauges and histograms updated after every successful durable write and
// scraped through the text exposition endpoint. State starts empty on every
// process start and is never reconciled with storage.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const unknownLabel = "unknown"

// Registry owns one isolated set of domain metrics. Every method is safe for
// concurrent use; the underlying vectors are lock-free per series.
type Registry struct {
	domain  *prometheus.Registry
	runtime *prometheus.Registry

	aiRequests *prometheus.CounterVec
	aiDuration *prometheus.HistogramVec
	aiTokens   *prometheus.CounterVec
	aiCost     *prometheus.CounterVec

	engagementEvents *prometheus.CounterVec
	engagementValue  *prometheus.CounterVec

	salesTransactions *prometheus.CounterVec
	salesRevenue      *prometheus.CounterVec
	salesLastAmount   *prometheus.GaugeVec

	httpRequests     *prometheus.CounterVec
	httpResponseTime *prometheus.HistogramVec
	systemCPU        *prometheus.GaugeVec
	systemMemory     *prometheus.GaugeVec
	systemDisk       *prometheus.GaugeVec
	cacheHitRate     *prometheus.GaugeVec
	dbQueryTime      *prometheus.HistogramVec
}

// New builds an empty registry. Runtime collectors (Go, process) are kept
// apart from the domain metrics so Snapshot only reports domain series.
func New() *Registry {
	r := &Registry{
		domain:  prometheus.NewRegistry(),
		runtime: prometheus.NewRegistry(),

		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "AI requests by model, status, feature and plan.",
		}, []string{"model", "status", "feature", "user_plan"}),
		aiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Duration of completed AI requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model", "feature"}),
		aiTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Tokens consumed by completed AI requests.",
		}, []string{"model", "type"}),
		aiCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_cost_total",
			Help: "Cost of completed AI requests.",
		}, []string{"model", "user_plan"}),

		engagementEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_events_total",
			Help: "Engagement events by kind, feature, plan and device.",
		}, []string{"event", "feature", "user_plan", "device_type"}),
		engagementValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_value_total",
			Help: "Sum of positive engagement event values.",
		}, []string{"event"}),

		salesTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sales_transactions_total",
			Help: "Sales transactions by type, status, plan and payment method.",
		}, []string{"type", "status", "plan", "payment_method"}),
		salesRevenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sales_revenue_total",
			Help: "Revenue from completed transactions.",
		}, []string{"plan", "currency"}),
		salesLastAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sales_last_transaction_amount",
			Help: "Amount of the most recent transaction.",
		}, []string{"plan", "currency"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Sampled HTTP requests by service, endpoint, method and status code.",
		}, []string{"service", "endpoint", "method", "status_code"}),
		httpResponseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Sampled HTTP response times in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"service", "endpoint", "method"}),
		systemCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Last reported CPU usage per service.",
		}, []string{"service"}),
		systemMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_memory_usage_percent",
			Help: "Last reported memory usage per service.",
		}, []string{"service"}),
		systemDisk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_disk_usage_percent",
			Help: "Last reported disk usage per service.",
		}, []string{"service"}),
		cacheHitRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cache_hit_rate",
			Help: "Last reported cache hit rate per service.",
		}, []string{"service"}),
		dbQueryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "database_query_seconds",
			Help:    "Reported database query time in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"service"}),
	}

	r.domain.MustRegister(
		r.aiRequests, r.aiDuration, r.aiTokens, r.aiCost,
		r.engagementEvents, r.engagementValue,
		r.salesTransactions, r.salesRevenue, r.salesLastAmount,
		r.httpRequests, r.httpResponseTime,
		r.systemCPU, r.systemMemory, r.systemDisk, r.cacheHitRate, r.dbQueryTime,
	)
	r.runtime.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func label(v string) string {
	if v == "" {
		return unknownLabel
	}
	return v
}

// AILabels are the dimension tags of an AI request.
type AILabels struct {
	Model    string
	Status   string
	Feature  string
	UserPlan string
}

// AICompletion carries the observations recorded when a request completes.
type AICompletion struct {
	Duration     time.Duration
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// ObserveAIRequest counts one AI request create or status update. done is
// non-nil only when the request has just completed.
func (r *Registry) ObserveAIRequest(l AILabels, done *AICompletion) {
	model, feature, plan := label(l.Model), label(l.Feature), label(l.UserPlan)
	r.aiRequests.WithLabelValues(model, label(l.Status), feature, plan).Inc()
	if done == nil {
		return
	}
	r.aiDuration.WithLabelValues(model, feature).Observe(done.Duration.Seconds())
	r.aiTokens.WithLabelValues(model, "input").Add(float64(done.InputTokens))
	r.aiTokens.WithLabelValues(model, "output").Add(float64(done.OutputTokens))
	r.aiCost.WithLabelValues(model, plan).Add(done.Cost)
}

// EngagementLabels are the dimension tags of an engagement event.
type EngagementLabels struct {
	Event      string
	Feature    string
	UserPlan   string
	DeviceType string
}

// ObserveEngagement counts one engagement event. Counters never decrease, so
// only positive values are summed.
func (r *Registry) ObserveEngagement(l EngagementLabels, value float64) {
	r.engagementEvents.WithLabelValues(label(l.Event), label(l.Feature), label(l.UserPlan), label(l.DeviceType)).Inc()
	if value > 0 {
		r.engagementValue.WithLabelValues(label(l.Event)).Add(value)
	}
}

// SaleLabels are the dimension tags of a sales transaction.
type SaleLabels struct {
	Type          string
	Status        string
	Plan          string
	PaymentMethod string
	Currency      string
}

// ObserveSale counts one transaction create or status update. revenue is
// true when the transaction has just become completed.
func (r *Registry) ObserveSale(l SaleLabels, amount float64, revenue bool) {
	plan, currency := label(l.Plan), label(l.Currency)
	r.salesTransactions.WithLabelValues(label(l.Type), label(l.Status), plan, label(l.PaymentMethod)).Inc()
	r.salesLastAmount.WithLabelValues(plan, currency).Set(amount)
	if revenue && amount > 0 {
		r.salesRevenue.WithLabelValues(plan, currency).Add(amount)
	}
}

// PerformanceObservation is one HTTP sample as seen by the registry.
// Optional readings are nil when the sample did not carry them.
type PerformanceObservation struct {
	Service        string
	Endpoint       string
	Method         string
	StatusCode     int
	ResponseTimeMs float64
	CPU            *float64
	Memory         *float64
	Disk           *float64
	QueryTimeMs    *float64
	CacheHitRate   *float64
}

// ObservePerformance records one performance sample.
func (r *Registry) ObservePerformance(o PerformanceObservation) {
	service := label(o.Service)
	r.httpRequests.WithLabelValues(service, label(o.Endpoint), label(o.Method), strconv.Itoa(o.StatusCode)).Inc()
	r.httpResponseTime.WithLabelValues(service, label(o.Endpoint), label(o.Method)).Observe(o.ResponseTimeMs / 1000)
	if o.CPU != nil {
		r.systemCPU.WithLabelValues(service).Set(*o.CPU)
	}
	if o.Memory != nil {
		r.systemMemory.WithLabelValues(service).Set(*o.Memory)
	}
	if o.Disk != nil {
		r.systemDisk.WithLabelValues(service).Set(*o.Disk)
	}
	if o.CacheHitRate != nil {
		r.cacheHitRate.WithLabelValues(service).Set(*o.CacheHitRate)
	}
	if o.QueryTimeMs != nil {
		r.dbQueryTime.WithLabelValues(service).Observe(*o.QueryTimeMs / 1000)
	}
}
