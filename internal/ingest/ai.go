package ingest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// TrackAI records a new AI request in the pending state.
func (s *Service) TrackAI(ctx context.Context, sc scope.Scope, in *schema.AIRequestInput) (row *db.AIRequest, err error) {
	ctx, span := s.start(ctx, "track_ai", attribute.String("request_id", in.RequestID))
	defer func() { finish(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureAbsent(ctx, "track_ai", s.store.AIRequestExists, in.RequestID); err != nil {
		return nil, err
	}

	now := s.clock()
	row = &db.AIRequest{
		RequestID:   in.RequestID,
		UserID:      sc.OwnerFor(in.UserID),
		Model:       in.Model,
		PromptRef:   in.PromptRef,
		ResponseRef: in.ResponseRef,
		Cost:        in.Cost,
		Status:      schema.AIPending,
		Feature:     in.Feature,
		Complexity:  in.Complexity,
		Language:    in.Language,
		UserPlan:    in.UserPlan,
		Performance: db.Timing{StartTime: now},
		Timestamp:   now,
		ExpiresAt:   s.retention.ExpiresAt(schema.DomainAI, now),
	}
	if in.Tokens != nil {
		row.Tokens.Input, row.Tokens.Output = in.Tokens.Input, in.Tokens.Output
	}
	row.Tokens.Total = row.Tokens.Input + row.Tokens.Output

	if err := s.store.CreateAIRequest(ctx, row); err != nil {
		return nil, s.storeErr("track_ai", err)
	}

	s.metrics.ObserveAIRequest(aiLabels(row), nil)
	return row, nil
}

// UpdateAI applies a partial update to a request owned by the caller. A
// request owned by someone else is reported as not found.
func (s *Service) UpdateAI(ctx context.Context, sc scope.Scope, requestID string, upd *schema.AIRequestUpdate) (row *db.AIRequest, err error) {
	ctx, span := s.start(ctx, "update_ai", attribute.String("request_id", requestID))
	defer func() { finish(span, err) }()

	if requestID == "" {
		return nil, apperr.Invalid("requestId", "required", "requestId is required")
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	row, err = s.store.FindAIRequest(ctx, requestID, sc.ActorID)
	if err != nil {
		return nil, s.storeErr("update_ai", err)
	}

	prev := row.Status
	if prev.Terminal() {
		return nil, apperr.Invalid("status", "terminal", fmt.Sprintf("request is %s and accepts no further updates", prev))
	}
	if upd.Status != nil {
		next := schema.AIStatus(*upd.Status)
		if !prev.CanTransition(next) {
			return nil, apperr.Invalid("status", "transition", fmt.Sprintf("cannot move from %s to %s", prev, next))
		}
		row.Status = next
	}
	if upd.ResponseRef != nil {
		row.ResponseRef = *upd.ResponseRef
	}
	if upd.Tokens != nil {
		row.Tokens.Input, row.Tokens.Output = upd.Tokens.Input, upd.Tokens.Output
	}
	row.Tokens.Total = row.Tokens.Input + row.Tokens.Output
	if upd.Cost != nil {
		row.Cost = *upd.Cost
	}
	if upd.Error != nil {
		row.ErrorCode, row.ErrorMessage = upd.Error.Code, upd.Error.Message
	}

	if row.Status.Terminal() && row.Performance.EndTime == nil {
		end := s.clock()
		d := end.Sub(row.Performance.StartTime).Milliseconds()
		row.Performance.EndTime = &end
		row.Performance.Duration = &d
	}

	if err := s.store.SaveAIRequest(ctx, row); err != nil {
		return nil, s.storeErr("update_ai", err)
	}

	var done *metrics.AICompletion
	if row.Status == schema.AICompleted && prev != schema.AICompleted {
		done = &metrics.AICompletion{
			InputTokens:  row.Tokens.Input,
			OutputTokens: row.Tokens.Output,
			Cost:         row.Cost,
		}
		if row.Performance.Duration != nil {
			done.Duration = time.Duration(*row.Performance.Duration) * time.Millisecond
		}
	}
	s.metrics.ObserveAIRequest(aiLabels(row), done)
	return row, nil
}

func aiLabels(r *db.AIRequest) metrics.AILabels {
	return metrics.AILabels{
		Model:    r.Model,
		Status:   string(r.Status),
		Feature:  r.Feature,
		UserPlan: r.UserPlan,
	}
}
