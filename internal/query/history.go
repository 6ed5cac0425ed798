package query

import (
	"context"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// HistoryPage is one page of AI requests, newest first.
type HistoryPage struct {
	Items      []db.AIRequest `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int64          `json:"total"`
	TotalPages int64          `json:"totalPages"`
}

func checkPaging(page, limit int) error {
	var fields []apperr.FieldError
	if page < 1 {
		fields = append(fields, apperr.FieldError{Field: "page", Rule: "gte", Message: "page must be at least 1"})
	}
	if limit < 1 || limit > MaxPageSize {
		fields = append(fields, apperr.FieldError{Field: "limit", Rule: "range", Message: "limit must be between 1 and 100"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid paging", fields...)
	}
	return nil
}

// History lists AI requests page by page.
func (e *Engine) History(ctx context.Context, sc scope.Scope, f Filter, page, limit int) (_ HistoryPage, err error) {
	ctx, done := e.observe(ctx, "history")
	defer func() { done(err) }()

	if err := checkPaging(page, limit); err != nil {
		return HistoryPage{}, err
	}
	df, err := resolve(schema.DomainAI, sc, f)
	if err != nil {
		return HistoryPage{}, err
	}
	total, err := e.store.CountAIRequests(ctx, df)
	if err != nil {
		return HistoryPage{}, e.storeErr("history", err)
	}
	items, err := e.store.ListAIRequests(ctx, df, db.Page{Offset: (page - 1) * limit, Limit: limit, Desc: true})
	if err != nil {
		return HistoryPage{}, e.storeErr("history", err)
	}
	if items == nil {
		items = []db.AIRequest{}
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return HistoryPage{Items: items, Page: page, Limit: limit, Total: total, TotalPages: pages}, nil
}

// Journey returns the engagement events of one user in the order they
// happened, optionally narrowed to one session.
func (e *Engine) Journey(ctx context.Context, sc scope.Scope, userID, sessionID string, limit int, f Filter) (_ []db.EngagementEvent, err error) {
	ctx, done := e.observe(ctx, "journey")
	defer func() { done(err) }()

	if limit < 1 || limit > MaxPageSize {
		return nil, apperr.Invalid("limit", "range", "limit must be between 1 and 100")
	}
	f.UserID = userID
	if sessionID != "" {
		dims := make(map[string]string, len(f.Dimensions)+1)
		for k, v := range f.Dimensions {
			dims[k] = v
		}
		dims["sessionId"] = sessionID
		f.Dimensions = dims
	}
	df, err := resolve(schema.DomainEngagement, sc, f)
	if err != nil {
		return nil, err
	}
	if df.UserID == "" {
		return nil, apperr.Invalid("userId", "required", "userId is required")
	}
	rows, err := e.store.ListEngagementEvents(ctx, df, db.Page{Limit: limit})
	if err != nil {
		return nil, e.storeErr("journey", err)
	}
	if rows == nil {
		rows = []db.EngagementEvent{}
	}
	return rows, nil
}
