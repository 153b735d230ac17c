package series

import (
	"sort"
	"time"
)

// NoSignal marks a metric that was absent or not collected at a timestamp.
const NoSignal = -1

// Metric attribute names. The order of MetricAttributes is load-bearing: the
// clusterer emits centroid vectors in this order and the period classifier
// reads element 0 as CPU load.
const (
	AttrCPULoad       = "cpu_load"
	AttrMemoryLoad    = "memory_load"
	AttrNetOutputLoad = "net_output_load"
	AttrAvgDiskIOPS   = "avg_disk_iops"
	AttrMaxDiskIOPS   = "max_disk_iops"
)

// MetricAttributes lists analyzed metrics in centroid order, CPU load first.
var MetricAttributes = []string{
	AttrCPULoad,
	AttrMemoryLoad,
	AttrNetOutputLoad,
	AttrAvgDiskIOPS,
	AttrMaxDiskIOPS,
}

// Sample is one telemetry observation. Load metrics are percentages of
// provisioned capacity; IOPS metrics are absolute operation rates.
type Sample struct {
	Timestamp     time.Time
	CPULoad       float64
	MemoryLoad    float64
	NetOutputLoad float64
	AvgDiskIOPS   float64
	MaxDiskIOPS   float64
}

// Value returns the metric value for a named attribute.
func (s Sample) Value(attr string) float64 {
	switch attr {
	case AttrCPULoad:
		return s.CPULoad
	case AttrMemoryLoad:
		return s.MemoryLoad
	case AttrNetOutputLoad:
		return s.NetOutputLoad
	case AttrAvgDiskIOPS:
		return s.AvgDiskIOPS
	case AttrMaxDiskIOPS:
		return s.MaxDiskIOPS
	}
	return NoSignal
}

// Vector returns the sample's values in MetricAttributes order.
func (s Sample) Vector() []float64 {
	return []float64{s.CPULoad, s.MemoryLoad, s.NetOutputLoad, s.AvgDiskIOPS, s.MaxDiskIOPS}
}

// Series is a time-ordered, duplicate-free metric series at a fixed nominal
// step. Constructed from raw per-day files merged per resource, trimmed to the
// window after the most recent applied recommendation, truncated to the
// analysis window, and discarded after a recommendation is produced.
type Series struct {
	InstanceID   string
	InstanceType string
	Step         time.Duration
	Samples      []Sample
}

// Len returns the sample count.
func (s *Series) Len() int { return len(s.Samples) }

// From returns the timestamp of the first sample, or the zero time.
func (s *Series) From() time.Time {
	if len(s.Samples) == 0 {
		return time.Time{}
	}
	return s.Samples[0].Timestamp
}

// To returns the timestamp of the last sample, or the zero time.
func (s *Series) To() time.Time {
	if len(s.Samples) == 0 {
		return time.Time{}
	}
	return s.Samples[len(s.Samples)-1].Timestamp
}

// Normalize sorts by timestamp and removes duplicate timestamps, keeping the
// last observation for each.
func (s *Series) Normalize() {
	sort.SliceStable(s.Samples, func(i, j int) bool {
		return s.Samples[i].Timestamp.Before(s.Samples[j].Timestamp)
	})
	out := s.Samples[:0]
	for _, smp := range s.Samples {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(smp.Timestamp) {
			out[len(out)-1] = smp
			continue
		}
		out = append(out, smp)
	}
	s.Samples = out
}

// GapFill inserts synthetic samples at missing step boundaries so the index
// is monotonically increasing without holes. Load metrics fill with 0,
// network and IOPS metrics with the NoSignal sentinel.
func (s *Series) GapFill() {
	if len(s.Samples) < 2 || s.Step <= 0 {
		return
	}
	filled := make([]Sample, 0, len(s.Samples))
	filled = append(filled, s.Samples[0])
	for _, smp := range s.Samples[1:] {
		prev := filled[len(filled)-1].Timestamp
		for next := prev.Add(s.Step); next.Before(smp.Timestamp); next = next.Add(s.Step) {
			filled = append(filled, Sample{
				Timestamp:     next,
				NetOutputLoad: NoSignal,
				AvgDiskIOPS:   NoSignal,
				MaxDiskIOPS:   NoSignal,
			})
		}
		filled = append(filled, smp)
	}
	s.Samples = filled
}

// TrimBefore drops samples strictly before t.
func (s *Series) TrimBefore(t time.Time) {
	i := sort.Search(len(s.Samples), func(i int) bool {
		return !s.Samples[i].Timestamp.Before(t)
	})
	s.Samples = s.Samples[i:]
}

// TruncateDays keeps at most maxDays of the most recent data.
func (s *Series) TruncateDays(maxDays int) {
	if maxDays <= 0 || len(s.Samples) == 0 {
		return
	}
	cutoff := s.To().AddDate(0, 0, -maxDays)
	s.TrimBefore(cutoff)
}

// CoveredDays returns the number of distinct calendar days with samples.
func (s *Series) CoveredDays(loc *time.Location) int {
	days := make(map[string]struct{})
	for _, smp := range s.Samples {
		days[smp.Timestamp.In(loc).Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}

// Frame is a view over a subset of series samples.
type Frame struct {
	Samples []Sample
}

// Len returns the row count of the frame.
func (f Frame) Len() int { return len(f.Samples) }

// Start returns the first timestamp in the frame.
func (f Frame) Start() time.Time {
	if len(f.Samples) == 0 {
		return time.Time{}
	}
	return f.Samples[0].Timestamp
}

// End returns the last timestamp in the frame.
func (f Frame) End() time.Time {
	if len(f.Samples) == 0 {
		return time.Time{}
	}
	return f.Samples[len(f.Samples)-1].Timestamp
}

// Values extracts one metric column from the frame.
func (f Frame) Values(attr string) []float64 {
	out := make([]float64, len(f.Samples))
	for i, smp := range f.Samples {
		out[i] = smp.Value(attr)
	}
	return out
}

// ConcatFrames joins several frames into one, preserving order.
func ConcatFrames(frames []Frame) Frame {
	total := 0
	for _, f := range frames {
		total += len(f.Samples)
	}
	out := Frame{Samples: make([]Sample, 0, total)}
	for _, f := range frames {
		out.Samples = append(out.Samples, f.Samples...)
	}
	return out
}
