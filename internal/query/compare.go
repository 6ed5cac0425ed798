package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// Window is a closed time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) validate(name string) []apperr.FieldError {
	var out []apperr.FieldError
	if w.Start.IsZero() {
		out = append(out, apperr.FieldError{Field: name + "Start", Rule: "required", Message: name + "Start is required"})
	}
	if w.End.IsZero() {
		out = append(out, apperr.FieldError{Field: name + "End", Rule: "required", Message: name + "End is required"})
	}
	if len(out) == 0 && w.End.Before(w.Start) {
		out = append(out, apperr.FieldError{Field: name + "End", Rule: "gtefield", Message: name + "End must not be before " + name + "Start"})
	}
	return out
}

// Comparison holds the same statistics over two windows and the percentage
// change of every numeric field.
type Comparison struct {
	Metric   schema.Domain      `json:"metric"`
	Current  map[string]float64 `json:"current"`
	Previous map[string]float64 `json:"previous"`
	Change   map[string]float64 `json:"change"`
	Windows  struct {
		Current  Window `json:"current"`
		Previous Window `json:"previous"`
	} `json:"windows"`
}

// Compare runs the statistics of d over both windows concurrently. Revenue
// comparisons are reserved for elevated callers.
func (e *Engine) Compare(ctx context.Context, sc scope.Scope, d schema.Domain, current, previous Window, f Filter) (_ Comparison, err error) {
	ctx, done := e.observe(ctx, "compare")
	defer func() { done(err) }()

	fields := append(current.validate("current"), previous.validate("previous")...)
	if len(fields) > 0 {
		return Comparison{}, apperr.Validation("invalid comparison windows", fields...)
	}
	if d == schema.DomainSales {
		if err := sc.RequireElevated("revenue comparison"); err != nil {
			return Comparison{}, err
		}
	}

	window := func(w Window) Filter {
		out := f
		out.Start, out.End = &w.Start, &w.End
		return out
	}

	var cur, prev map[string]float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cur, err = e.Stats(gctx, sc, d, window(current))
		return err
	})
	g.Go(func() error {
		var err error
		prev, err = e.Stats(gctx, sc, d, window(previous))
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	out := Comparison{Metric: d, Current: cur, Previous: prev, Change: make(map[string]float64, len(cur))}
	out.Windows.Current, out.Windows.Previous = current, previous
	for name, c := range cur {
		if p, ok := prev[name]; ok {
			out.Change[name] = PercentChange(c, p)
		}
	}
	return out, nil
}

// Dashboard is every domain's statistics over one filter. Sales is nil for
// standard callers.
type Dashboard struct {
	AI          AIStats          `json:"ai"`
	Engagement  EngagementStats  `json:"engagement"`
	Sales       *SalesStats      `json:"sales,omitempty"`
	Performance PerformanceStats `json:"performance"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Dashboard computes the domain statistics concurrently.
func (e *Engine) Dashboard(ctx context.Context, sc scope.Scope, f Filter) (_ Dashboard, err error) {
	ctx, done := e.observe(ctx, "dashboard")
	defer func() { done(err) }()

	f = timeOnly(f)
	var out Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.AI, err = e.AIStats(gctx, sc, f)
		return err
	})
	g.Go(func() error {
		var err error
		out.Engagement, err = e.EngagementStats(gctx, sc, f)
		return err
	})
	g.Go(func() error {
		var err error
		out.Performance, err = e.PerformanceStats(gctx, sc, f)
		return err
	})
	if sc.Elevated {
		g.Go(func() error {
			s, err := e.SalesStats(gctx, sc, f)
			out.Sales = &s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	out.GeneratedAt = time.Now().UTC()
	return out, nil
}
