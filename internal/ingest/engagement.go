package ingest

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"pulsemetrics/internal/db"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// TrackEngagement appends an engagement event. The device, browser and OS
// come from the payload's userAgent, falling back to the request header.
func (s *Service) TrackEngagement(ctx context.Context, sc scope.Scope, in *schema.EngagementInput, headerUA string) (row *db.EngagementEvent, err error) {
	ctx, span := s.start(ctx, "track_engagement", attribute.String("event", in.Event))
	defer func() { finish(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	ua := in.UserAgent
	if ua == "" {
		ua = headerUA
	}
	device, browser, os := schema.ParseUserAgent(ua)

	var props datatypes.JSONMap
	if len(in.Properties) > 0 {
		props = datatypes.JSONMap(in.Properties)
	}

	now := s.clock()
	row = &db.EngagementEvent{
		EventID:    s.newID(),
		UserID:     sc.OwnerFor(in.UserID),
		SessionID:  in.SessionID,
		Event:      in.Event,
		Feature:    in.Feature,
		Page:       in.Page,
		Value:      in.Value,
		Properties: props,
		DeviceType: device,
		Browser:    browser,
		OS:         os,
		UserPlan:   in.UserPlan,
		Timestamp:  now,
		ExpiresAt:  s.retention.ExpiresAt(schema.DomainEngagement, now),
	}
	if err := s.store.CreateEngagementEvent(ctx, row); err != nil {
		return nil, s.storeErr("track_engagement", err)
	}

	s.metrics.ObserveEngagement(metrics.EngagementLabels{
		Event:      row.Event,
		Feature:    row.Feature,
		UserPlan:   row.UserPlan,
		DeviceType: row.DeviceType,
	}, row.Value)
	return row, nil
}
