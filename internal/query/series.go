package query

import (
	"context"
	"sort"
	"time"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// Granularity is the width of a series bucket.
type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity defaults an empty value to day.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return Day, nil
	case Hour, Day, Week, Month:
		return g, nil
	}
	return "", apperr.Invalid("groupBy", "oneof", "groupBy must be one of hour, day, week, month")
}

// Truncate returns the start of the UTC bucket containing t. Weeks start on
// Monday.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case Hour:
		return t.Truncate(time.Hour)
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

// Point is one non-empty bucket of a series. Values holds the domain's
// statistics over the bucket's records.
type Point struct {
	Bucket time.Time          `json:"bucket"`
	Count  int64              `json:"count"`
	Values map[string]float64 `json:"values"`
}

// bucketize splits rows into buckets in ascending order. Only buckets with
// at least one row are produced.
func bucketize[T any](rows []T, g Granularity, ts func(*T) time.Time, stats func([]T) map[string]float64) []Point {
	byBucket := map[int64][]T{}
	var keys []int64
	for i := range rows {
		b := g.Truncate(ts(&rows[i])).Unix()
		if _, ok := byBucket[b]; !ok {
			keys = append(keys, b)
		}
		byBucket[b] = append(byBucket[b], rows[i])
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Point, 0, len(keys))
	for _, k := range keys {
		members := byBucket[k]
		out = append(out, Point{Bucket: time.Unix(k, 0).UTC(), Count: int64(len(members)), Values: stats(members)})
	}
	return out
}

// Series buckets the records of domain d by g.
func (e *Engine) Series(ctx context.Context, sc scope.Scope, d schema.Domain, g Granularity, f Filter) (_ []Point, err error) {
	ctx, done := e.observe(ctx, "series")
	defer func() { done(err) }()

	switch d {
	case schema.DomainAI:
		rows, err := e.aiRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return bucketize(rows, g,
			func(r *db.AIRequest) time.Time { return r.Timestamp },
			func(rs []db.AIRequest) map[string]float64 { return aiStats(rs).Fields() }), nil
	case schema.DomainEngagement:
		rows, err := e.engagementRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return bucketize(rows, g,
			func(r *db.EngagementEvent) time.Time { return r.Timestamp },
			func(rs []db.EngagementEvent) map[string]float64 { return engagementStats(rs).Fields() }), nil
	case schema.DomainSales:
		rows, err := e.salesRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return bucketize(rows, g,
			func(r *db.SalesTransaction) time.Time { return r.Timestamp },
			func(rs []db.SalesTransaction) map[string]float64 { return salesStats(rs).Fields() }), nil
	case schema.DomainPerformance:
		rows, err := e.performanceRows(ctx, sc, f)
		if err != nil {
			return nil, err
		}
		return bucketize(rows, g,
			func(r *db.PerformanceSample) time.Time { return r.Timestamp },
			func(rs []db.PerformanceSample) map[string]float64 { return performanceStats(rs).Fields() }), nil
	}
	return nil, unknownDomain(d)
}

func unknownDomain(d schema.Domain) error {
	return apperr.Invalid("metric", "oneof", "unknown domain "+string(d))
}

// Summary is the bucketed view of every domain the caller may see. Sales is
// nil for standard callers.
type Summary struct {
	GroupBy     Granularity `json:"groupBy"`
	AI          []Point     `json:"ai"`
	Engagement  []Point     `json:"engagement"`
	Sales       []Point     `json:"sales,omitempty"`
	Performance []Point     `json:"performance"`
}

// Summary runs Series for each domain.
func (e *Engine) Summary(ctx context.Context, sc scope.Scope, g Granularity, f Filter) (Summary, error) {
	out := Summary{GroupBy: g}
	var err error
	if out.AI, err = e.Series(ctx, sc, schema.DomainAI, g, timeOnly(f)); err != nil {
		return Summary{}, err
	}
	if out.Engagement, err = e.Series(ctx, sc, schema.DomainEngagement, g, timeOnly(f)); err != nil {
		return Summary{}, err
	}
	if out.Performance, err = e.Series(ctx, sc, schema.DomainPerformance, g, timeOnly(f)); err != nil {
		return Summary{}, err
	}
	if sc.Elevated {
		if out.Sales, err = e.Series(ctx, sc, schema.DomainSales, g, timeOnly(f)); err != nil {
			return Summary{}, err
		}
	}
	return out, nil
}

// timeOnly drops the dimension filters, which differ between domains.
func timeOnly(f Filter) Filter {
	return Filter{Start: f.Start, End: f.End, UserID: f.UserID}
}

// ResourcePoint is the average host usage reported in one bucket.
type ResourcePoint struct {
	Bucket    time.Time `json:"bucket"`
	Samples   int64     `json:"samples"`
	AvgCPU    float64   `json:"avgCpu"`
	AvgMemory float64   `json:"avgMemory"`
	AvgDisk   float64   `json:"avgDisk"`
	MaxCPU    float64   `json:"maxCpu"`
	MaxMemory float64   `json:"maxMemory"`
}

// SystemResources buckets the system readings attached to performance
// samples. Samples without a reading are ignored.
func (e *Engine) SystemResources(ctx context.Context, sc scope.Scope, g Granularity, f Filter) (_ []ResourcePoint, err error) {
	ctx, done := e.observe(ctx, "system_resources")
	defer func() { done(err) }()

	rows, err := e.performanceRows(ctx, sc, f)
	if err != nil {
		return nil, err
	}
	type acc struct {
		bucket         time.Time
		n              int64
		cpu, mem, disk spread
	}
	gr := newGroups[acc]()
	for i := range rows {
		r := &rows[i]
		sys := r.System
		if sys.CPU == nil && sys.Memory == nil && sys.Disk == nil {
			continue
		}
		b := g.Truncate(r.Timestamp)
		a := gr.get(b.Format(time.RFC3339), func() *acc { return &acc{bucket: b} })
		a.n++
		addOpt(&a.cpu, sys.CPU)
		addOpt(&a.mem, sys.Memory)
		addOpt(&a.disk, sys.Disk)
	}
	out := make([]ResourcePoint, 0, len(gr.order))
	for _, a := range gr.order {
		out = append(out, ResourcePoint{
			Bucket:    a.bucket,
			Samples:   a.n,
			AvgCPU:    a.cpu.avg(),
			AvgMemory: a.mem.avg(),
			AvgDisk:   a.disk.avg(),
			MaxCPU:    a.cpu.max,
			MaxMemory: a.mem.max,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}
