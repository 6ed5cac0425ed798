package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pulsemetrics/internal/db"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// TrackPerformance records a write-once HTTP sample. A missing requestId is
// generated. Elevated callers may record samples with no owning actor.
func (s *Service) TrackPerformance(ctx context.Context, sc scope.Scope, in *schema.PerformanceInput) (row *db.PerformanceSample, err error) {
	ctx, span := s.start(ctx, "track_performance",
		attribute.String("service", in.Service),
		attribute.String("endpoint", in.Endpoint))
	defer func() { finish(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	requestID := in.RequestID
	if requestID == "" {
		requestID = s.newID()
	} else if err := s.ensureAbsent(ctx, "track_performance", s.store.PerformanceSampleExists, requestID); err != nil {
		return nil, err
	}

	owner := sc.OwnerFor(in.UserID)
	if sc.Elevated && in.UserID == "" {
		owner = ""
	}

	now := s.clock()
	row = &db.PerformanceSample{
		RequestID:    requestID,
		UserID:       owner,
		Service:      in.Service,
		Endpoint:     in.Endpoint,
		Method:       in.Method,
		StatusCode:   in.StatusCode,
		ResponseTime: *in.ResponseTime,
		RequestSize:  in.RequestSize,
		ResponseSize: in.ResponseSize,
		Timestamp:    now,
		ExpiresAt:    s.retention.ExpiresAt(schema.DomainPerformance, now),
	}
	if sys := in.System; sys != nil {
		row.System = db.SystemReading{CPU: f64(sys.CPU), Memory: f64(sys.Memory), Disk: f64(sys.Disk)}
	}
	if d := in.Database; d != nil {
		pool := d.ConnectionPool
		row.Database = db.DatabaseReading{QueryTime: f64(d.QueryTime), ConnectionPool: &pool}
	}
	if c := in.Cache; c != nil {
		hits, misses := c.Hits, c.Misses
		row.Cache = db.CacheReading{Hits: &hits, Misses: &misses, HitRate: f64(c.Rate())}
	}

	if err := s.store.CreatePerformanceSample(ctx, row); err != nil {
		return nil, s.storeErr("track_performance", err)
	}

	s.metrics.ObservePerformance(metrics.PerformanceObservation{
		Service:        row.Service,
		Endpoint:       row.Endpoint,
		Method:         row.Method,
		StatusCode:     row.StatusCode,
		ResponseTimeMs: row.ResponseTime,
		CPU:            row.System.CPU,
		Memory:         row.System.Memory,
		Disk:           row.System.Disk,
		QueryTimeMs:    row.Database.QueryTime,
		CacheHitRate:   row.Cache.HitRate,
	})
	return row, nil
}

func f64(v float64) *float64 { return &v }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
