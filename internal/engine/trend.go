package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

// Direction is the resize direction a metric trend implies for the current
// shape.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

// MetricTrend is the statistical summary of one metric over an analyzed
// period. Percentiles hold the 10th through 90th percentile ladder. A Mean of
// series.NoSignal means the metric was never collected in the period.
type MetricTrend struct {
	Attr        string
	Percentiles [9]float64
	Mean        float64
	Variance    float64
	StdDev      float64
}

// HasSignal reports whether the metric carried any usable values.
func (m MetricTrend) HasSignal() bool { return m.Mean != series.NoSignal }

// P returns the pct-th percentile from the ladder (pct in 10..90, multiples
// of 10).
func (m MetricTrend) P(pct int) float64 { return m.Percentiles[pct/10-1] }

// Trend is the derived statistics for one analyzed activity period. When it
// represents one of several non-straight activity groups it carries a
// probability (its share of total samples); the single merged-period trend is
// probability-less.
type Trend struct {
	Metrics        []MetricTrend // series.MetricAttributes order
	Probability    float64
	HasProbability bool
	relaxed        bool
}

// Metric returns the trend for a named attribute.
func (t Trend) Metric(attr string) (MetricTrend, bool) {
	for _, m := range t.Metrics {
		if m.Attr == attr {
			return m, true
		}
	}
	return MetricTrend{}, false
}

// Relaxed returns a copy of the trend with the soft constraints (network and
// IOPS floors) discarded. Pure: the receiver is not modified, which keeps the
// resize matcher's retry-by-relaxation side-effect free.
func (t Trend) Relaxed() Trend {
	out := t
	out.Metrics = make([]MetricTrend, len(t.Metrics))
	copy(out.Metrics, t.Metrics)
	for i := range out.Metrics {
		switch out.Metrics[i].Attr {
		case series.AttrNetOutputLoad, series.AttrAvgDiskIOPS, series.AttrMaxDiskIOPS:
			out.Metrics[i] = noSignalTrend(out.Metrics[i].Attr)
		}
	}
	out.relaxed = true
	return out
}

// IsRelaxed reports whether soft constraints were discarded.
func (t Trend) IsRelaxed() bool { return t.relaxed }

// Requirement is an acceptable numeric range for one metric's provisioned
// capacity on a candidate shape.
type Requirement struct {
	Attr     string
	Min      float64 // 0 = unbounded below
	Max      float64 // +Inf = unbounded above
	Optional bool    // soft constraint, droppable under relaxation
}

// Satisfied reports whether a capacity value fits the range.
func (r Requirement) Satisfied(capacity float64) bool {
	return capacity >= r.Min && capacity <= r.Max
}

// TargetBand is the utilization band candidate capacity should keep the
// observed peak load in, as percentages.
type TargetBand struct {
	MinPct float64
	MaxPct float64
}

// Requirements derives the per-metric acceptable capacity ranges from the
// trend's percentiles and the current shape's provisioned capacity. CPU and
// memory are always required; network and IOPS constrain only when the
// metric carried signal.
func (t Trend) Requirements(current shapes.Shape, band TargetBand) []Requirement {
	var reqs []Requirement

	if m, ok := t.Metric(series.AttrCPULoad); ok {
		demand := m.P(90) / 100 * current.CPU
		reqs = append(reqs, capacityRange(series.AttrCPULoad, demand, band, false))
	}
	if m, ok := t.Metric(series.AttrMemoryLoad); ok {
		demand := m.P(90) / 100 * current.MemoryGB
		reqs = append(reqs, capacityRange(series.AttrMemoryLoad, demand, band, false))
	}

	// Network and IOPS are floors only, and only when signal exists.
	if m, ok := t.Metric(series.AttrNetOutputLoad); ok && m.HasSignal() {
		demand := m.P(90) / 100 * current.NetworkGbps
		if demand > 0 {
			reqs = append(reqs, Requirement{Attr: series.AttrNetOutputLoad, Min: demand, Max: math.Inf(1), Optional: true})
		}
	}
	iopsFloor := 0.0
	if m, ok := t.Metric(series.AttrAvgDiskIOPS); ok && m.HasSignal() {
		iopsFloor = m.P(90)
	}
	if m, ok := t.Metric(series.AttrMaxDiskIOPS); ok && m.HasSignal() && m.P(90) > iopsFloor {
		iopsFloor = m.P(90)
	}
	if iopsFloor > 0 {
		reqs = append(reqs, Requirement{Attr: series.AttrAvgDiskIOPS, Min: iopsFloor, Max: math.Inf(1), Optional: true})
	}
	return reqs
}

// capacityRange converts an absolute peak demand into the capacity window
// that keeps it inside the target utilization band.
func capacityRange(attr string, demand float64, band TargetBand, optional bool) Requirement {
	if demand <= 0 {
		// No measurable demand: any capacity down to the smallest shape is
		// acceptable, nothing above is required.
		return Requirement{Attr: attr, Min: 0, Max: math.Inf(1), Optional: optional}
	}
	return Requirement{
		Attr:     attr,
		Min:      demand / (band.MaxPct / 100),
		Max:      demand / (band.MinPct / 100),
		Optional: optional,
	}
}

// RequiresResize reports whether any analyzed metric sits outside the
// current shape's provisioned range.
func (t Trend) RequiresResize(current shapes.Shape, band TargetBand) bool {
	for _, r := range t.Requirements(current, band) {
		if !r.Satisfied(shapeCapacity(current, r.Attr)) {
			return true
		}
	}
	return false
}

// Directions returns the per-metric resize directions relative to the
// current shape, used to deduplicate equivalent multi-trend groups.
func (t Trend) Directions(current shapes.Shape, band TargetBand) map[string]Direction {
	out := make(map[string]Direction)
	for _, r := range t.Requirements(current, band) {
		capacity := shapeCapacity(current, r.Attr)
		switch {
		case capacity < r.Min:
			out[r.Attr] = DirectionUp
		case capacity > r.Max:
			out[r.Attr] = DirectionDown
		default:
			out[r.Attr] = DirectionNone
		}
	}
	return out
}

// shapeCapacity maps a metric attribute onto the shape dimension it
// constrains.
func shapeCapacity(s shapes.Shape, attr string) float64 {
	switch attr {
	case series.AttrCPULoad:
		return s.CPU
	case series.AttrMemoryLoad:
		return s.MemoryGB
	case series.AttrNetOutputLoad:
		return s.NetworkGbps
	case series.AttrAvgDiskIOPS, series.AttrMaxDiskIOPS:
		return s.IOPS
	}
	return 0
}

// TrendAggregator computes trends for the classified activity periods.
type TrendAggregator struct {
	cfg config.TrendConfig
}

// NewTrendAggregator creates a trend aggregator.
func NewTrendAggregator(cfg config.TrendConfig) *TrendAggregator {
	return &TrendAggregator{cfg: cfg}
}

// Aggregate turns the banded periods into one or more trends.
//
// Single-trend path: at most one activity band clears the share bar, or
// split recommendations are disallowed. All qualifying frames (or, when none
// qualify, every frame) are concatenated into one probability-less trend.
//
// Multi-trend path ("non-straight periods"): one trend per qualifying band,
// stamped with its share of total samples. Trends with identical per-metric
// resize directions are merged, probabilities summed.
func (a *TrendAggregator) Aggregate(bands *Bands, current shapes.Shape, band TargetBand) []Trend {
	qualifying := bands.QualifyingActivityBands(a.cfg.MinPeriodShare)

	if len(qualifying) < 2 || !a.cfg.AllowSplit {
		var frames []series.Frame
		for _, b := range qualifying {
			frames = append(frames, bands.Frames(b)...)
		}
		if len(frames) == 0 {
			for _, b := range []Band{BandShutdown, BandLow, BandMedium, BandHigh} {
				frames = append(frames, bands.Frames(b)...)
			}
		}
		if len(frames) == 0 {
			return nil
		}
		return []Trend{computeTrend(series.ConcatFrames(frames))}
	}

	var trends []Trend
	rawShares := make([]float64, 0, len(qualifying))
	sumShares := 0.0
	for _, b := range qualifying {
		t := computeTrend(series.ConcatFrames(bands.Frames(b)))
		share := bands.Share(b)
		t.Probability = math.Round(share*100) / 100
		t.HasProbability = true
		trends = append(trends, t)
		rawShares = append(rawShares, share)
		sumShares += share
	}

	// When the qualifying bands cover the whole series, pin the last
	// probability to the exact remainder so the stamped values sum to 1
	// despite rounding.
	if math.Abs(sumShares-1) < 1e-9 && len(trends) > 1 {
		rest := 0.0
		for _, t := range trends[:len(trends)-1] {
			rest += t.Probability
		}
		trends[len(trends)-1].Probability = 1 - rest
	}

	return dedupTrends(trends, current, band)
}

// dedupTrends merges trends whose resize directions agree, keeping the first
// and accumulating probability mass.
func dedupTrends(trends []Trend, current shapes.Shape, band TargetBand) []Trend {
	var out []Trend
	for _, t := range trends {
		dirs := t.Directions(current, band)
		merged := false
		for i := range out {
			if directionsEqual(out[i].Directions(current, band), dirs) {
				out[i].Probability += t.Probability
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, t)
		}
	}
	return out
}

func directionsEqual(a, b map[string]Direction) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// computeTrend derives per-metric statistics from a concatenated activity
// frame. NoSignal samples are excluded per metric; a metric with no usable
// values at all keeps the sentinel mean.
func computeTrend(frame series.Frame) Trend {
	t := Trend{Metrics: make([]MetricTrend, 0, len(series.MetricAttributes))}
	for _, attr := range series.MetricAttributes {
		values := frame.Values(attr)
		valid := values[:0]
		for _, v := range values {
			if v != series.NoSignal {
				valid = append(valid, v)
			}
		}
		if len(valid) == 0 {
			t.Metrics = append(t.Metrics, noSignalTrend(attr))
			continue
		}

		sort.Float64s(valid)
		m := MetricTrend{Attr: attr}
		for i := 1; i <= 9; i++ {
			m.Percentiles[i-1] = stat.Quantile(float64(i)/10, stat.Empirical, valid, nil)
		}
		mean, variance := stat.MeanVariance(valid, nil)
		if len(valid) < 2 {
			variance = 0
		}
		m.Mean = mean
		m.Variance = variance
		m.StdDev = math.Sqrt(variance)
		t.Metrics = append(t.Metrics, m)
	}
	return t
}

func noSignalTrend(attr string) MetricTrend {
	m := MetricTrend{Attr: attr, Mean: series.NoSignal, Variance: 0, StdDev: 0}
	for i := range m.Percentiles {
		m.Percentiles[i] = series.NoSignal
	}
	return m
}
