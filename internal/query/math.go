package query

import (
	"math"
	"sort"

	"github.com/cockroachdb/apd/v3"
)

var decimalCtx = apd.BaseContext.WithPrecision(34)

// decimalSum accumulates monetary amounts exactly so that totals do not
// depend on summation order.
type decimalSum struct {
	v apd.Decimal
}

func (s *decimalSum) add(f float64) {
	var d apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		return
	}
	_, _ = decimalCtx.Add(&s.v, &s.v, &d)
}

func (s *decimalSum) float() float64 {
	f, _ := s.v.Float64()
	return f
}

// avg divides the sum by n, or returns 0 for n == 0.
func (s *decimalSum) avg(n int64) float64 {
	if n == 0 {
		return 0
	}
	var q, d apd.Decimal
	d.SetInt64(n)
	if _, err := decimalCtx.Quo(&q, &s.v, &d); err != nil {
		return 0
	}
	f, _ := q.Float64()
	return f
}

// ratio is num/den with a zero denominator resolving to 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// percent is num/den*100 with a zero denominator resolving to 0.
func percent(num, den int64) float64 {
	return ratio(float64(num), float64(den)) * 100
}

// Percentile sorts a copy of values and returns the element at
// ceil(p/100*n), clamped to n-1. It returns 0 for an empty set.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p / 100 * float64(n)))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// PercentChange is (current-previous)/previous*100. A zero previous value
// yields 100 when current is positive and 0 otherwise.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// spread tracks count, sum, min and max of a series of observations.
type spread struct {
	n        int64
	sum      float64
	min, max float64
	values   []float64
}

func (s *spread) add(v float64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.n++
	s.sum += v
	s.values = append(s.values, v)
}

func (s *spread) avg() float64 { return ratio(s.sum, float64(s.n)) }

func (s *spread) pct(p float64) float64 { return Percentile(s.values, p) }

// distinct counts unique non-empty strings.
type distinct map[string]struct{}

func (d distinct) add(v string) {
	if v != "" {
		d[v] = struct{}{}
	}
}

func (d distinct) count() int64 { return int64(len(d)) }
