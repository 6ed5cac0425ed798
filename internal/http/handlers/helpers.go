package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
	httpctx "pulsemetrics/internal/http/ctx"
	"pulsemetrics/internal/query"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// mustScope returns the caller's scope set by BearerAuth.
func mustScope(ctx *fasthttp.RequestCtx) (scope.Scope, error) {
	sc, ok := httpctx.ScopeFromCtx(ctx)
	if !ok {
		return scope.Scope{}, apperr.Unauthenticated("not authenticated", nil)
	}
	return sc, nil
}

func decodeBody(ctx *fasthttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return apperr.Invalid("body", "required", "request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Invalid("body", "json", "request body is not valid JSON: "+err.Error())
	}
	return nil
}

func arg(ctx *fasthttp.RequestCtx, name string) string {
	return string(ctx.QueryArgs().Peek(name))
}

// parseTime accepts RFC 3339 timestamps and plain dates. A plain date used
// as the end of a range covers the whole day.
func parseTime(field, raw string, endOfDay bool) (*time.Time, *apperr.FieldError) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		return &t, nil
	}
	return nil, &apperr.FieldError{Field: field, Rule: "datetime", Message: field + " must be an RFC 3339 timestamp or a YYYY-MM-DD date"}
}

// filterFrom reads startDate, endDate, userId and the dimension tags of d
// from the query string. defaultUser applies when userId is absent.
func filterFrom(ctx *fasthttp.RequestCtx, d schema.Domain, defaultUser string) (query.Filter, error) {
	var (
		f      query.Filter
		fields []apperr.FieldError
		fe     *apperr.FieldError
	)
	if f.Start, fe = parseTime("startDate", arg(ctx, "startDate"), false); fe != nil {
		fields = append(fields, *fe)
	}
	if f.End, fe = parseTime("endDate", arg(ctx, "endDate"), true); fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		return query.Filter{}, apperr.Validation("invalid query", fields...)
	}

	f.UserID = arg(ctx, "userId")
	if f.UserID == "" {
		f.UserID = defaultUser
	}
	for _, name := range query.Dimensions(d) {
		if v := arg(ctx, name); v != "" {
			if f.Dimensions == nil {
				f.Dimensions = map[string]string{}
			}
			f.Dimensions[name] = v
		}
	}
	return f, nil
}

func intArg(ctx *fasthttp.RequestCtx, name string, def int) (int, error) {
	raw := arg(ctx, name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid(name, "int", name+" must be an integer")
	}
	return n, nil
}

func floatArg(ctx *fasthttp.RequestCtx, name string, def float64) (float64, error) {
	raw := arg(ctx, name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Invalid(name, "number", name+" must be a number")
	}
	return v, nil
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
