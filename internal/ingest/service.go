// Package ingest is the write path: validate, enforce natural-key
// uniqueness, persist, then fan out to the live metrics registry.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/telemetry"
)

// Store is the subset of the durable store the write path uses.
type Store interface {
	AIRequestExists(ctx context.Context, requestID string) (bool, error)
	CreateAIRequest(ctx context.Context, r *db.AIRequest) error
	FindAIRequest(ctx context.Context, requestID, userID string) (*db.AIRequest, error)
	SaveAIRequest(ctx context.Context, r *db.AIRequest) error

	CreateEngagementEvent(ctx context.Context, e *db.EngagementEvent) error

	SalesTransactionExists(ctx context.Context, transactionID string) (bool, error)
	CreateSalesTransaction(ctx context.Context, t *db.SalesTransaction) error
	FindSalesTransaction(ctx context.Context, transactionID, userID string) (*db.SalesTransaction, error)
	SaveSalesTransaction(ctx context.Context, t *db.SalesTransaction) error

	PerformanceSampleExists(ctx context.Context, requestID string) (bool, error)
	CreatePerformanceSample(ctx context.Context, p *db.PerformanceSample) error
}

// Service ingests events for all four domains. The registry is only touched
// after the durable write has succeeded.
type Service struct {
	store     Store
	metrics   *metrics.Registry
	retention db.Retention
	log       *zap.Logger
	tracer    trace.Tracer

	now   func() time.Time
	newID func() string
}

func NewService(store Store, reg *metrics.Registry, retention db.Retention, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		metrics:   reg,
		retention: retention,
		log:       log,
		tracer:    telemetry.Tracer("pulsemetrics/ingest"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// clock returns the write timestamp, in UTC with millisecond precision so
// that durations derived from it are exact.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ingest."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

// storeErr maps a store failure onto the error taxonomy.
func (s *Service) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, db.ErrDuplicate):
		return apperr.Conflict("a record with this id already exists")
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("record not found")
	}
	s.log.Error("store failure", zap.String("op", op), zap.Error(err))
	return apperr.Upstream("storage unavailable", err)
}

// ensureAbsent is the uniqueness pre-check; the insert itself remains the
// authority and maps a racing duplicate onto the same conflict.
func (s *Service) ensureAbsent(ctx context.Context, op string, exists func(context.Context, string) (bool, error), key string) error {
	found, err := exists(ctx, key)
	if err != nil {
		return s.storeErr(op, err)
	}
	if found {
		return apperr.Conflict("a record with this id already exists")
	}
	return nil
}
