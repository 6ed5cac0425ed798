package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Kinds of aggregate reported in a snapshot.
const (
	KindCounter   = "counter"
	KindGauge     = "gauge"
	KindHistogram = "histogram"
)

// Bucket is one cumulative histogram bucket.
type Bucket struct {
	UpperBound float64 `json:"upperBound"`
	Count      uint64  `json:"count"`
}

// Sample is one series of the registry. Counters and gauges set Value;
// histograms set Count, Sum and Buckets.
type Sample struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Labels  map[string]string `json:"labels"`
	Value   float64           `json:"value,omitempty"`
	Count   uint64            `json:"count,omitempty"`
	Sum     float64           `json:"sum,omitempty"`
	Buckets []Bucket          `json:"buckets,omitempty"`
}

// Snapshot returns every domain series, sorted by metric name then labels.
// It never mutates state and may run concurrently with writers.
func (r *Registry) Snapshot() ([]Sample, error) {
	families, err := r.domain.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Labels: make(map[string]string, len(m.GetLabel()))}
			for _, lp := range m.GetLabel() {
				s.Labels[lp.GetName()] = lp.GetValue()
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Kind = KindCounter
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Kind = KindGauge
				s.Value = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				s.Kind = KindHistogram
				s.Count = h.GetSampleCount()
				s.Sum = h.GetSampleSum()
				for _, b := range h.GetBucket() {
					s.Buckets = append(s.Buckets, Bucket{UpperBound: b.GetUpperBound(), Count: b.GetCumulativeCount()})
				}
			default:
				continue
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// ContentType is the media type written by WriteText.
var ContentType = string(expfmt.FmtText)

// WriteText encodes the domain and runtime metrics in the Prometheus text
// exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := prometheus.Gatherers{r.domain, r.runtime}.Gather()
	if err != nil {
		return err
	}
	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
