package engine

import (
	"testing"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
)

// flatSeries builds a series of full calendar days at the given step with a
// constant CPU load. extraSamples appends a partial trailing day.
func flatSeries(days, stepMinutes, extraSamples int, cpu float64) *series.Series {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	step := time.Duration(stepMinutes) * time.Minute
	perDay := 24 * 60 / stepMinutes

	s := &series.Series{InstanceID: "i-test", InstanceType: "m5.large", Step: step}
	for i := 0; i < days*perDay+extraSamples; i++ {
		s.Samples = append(s.Samples, series.Sample{
			Timestamp:     start.Add(time.Duration(i) * step),
			CPULoad:       cpu,
			MemoryLoad:    cpu,
			NetOutputLoad: series.NoSignal,
			AvgDiskIOPS:   series.NoSignal,
			MaxDiskIOPS:   series.NoSignal,
		})
	}
	return s
}

func testSegmenter() *Segmenter {
	return NewSegmenter(config.SegmenterConfig{
		StepMinutes:            30,
		OptimizedThresholdDays: 30,
		OptimizedStepMinutes:   60,
		MinDaysForTrimming:     14,
	}, time.UTC)
}

func TestSegment_DropsIncompleteLastDay(t *testing.T) {
	sg := testSegmenter()
	s := flatSeries(20, 30, 10, 50) // 20 full days + 10 samples of day 21

	frames := sg.Segment(s, false)
	if len(frames) != 20 {
		t.Fatalf("Segment() returned %d day frames, want 20", len(frames))
	}
	for i, f := range frames {
		if f.Len() != 48 {
			t.Errorf("day %d has %d samples, want 48", i, f.Len())
		}
	}
}

func TestSegment_Idempotent(t *testing.T) {
	sg := testSegmenter()
	s := flatSeries(20, 30, 10, 50)

	first := sg.Segment(s, false)

	rebuilt := &series.Series{Step: s.Step}
	for _, f := range first {
		rebuilt.Samples = append(rebuilt.Samples, f.Samples...)
	}
	second := sg.Segment(rebuilt, false)

	if len(second) != len(first) {
		t.Fatalf("re-segmenting trimmed series yields %d days, want %d", len(second), len(first))
	}
}

func TestSegment_TooFewDaysReturnsUnmodified(t *testing.T) {
	sg := testSegmenter()
	s := flatSeries(5, 30, 10, 50) // below MinDaysForTrimming

	frames := sg.Segment(s, false)
	if len(frames) != 6 {
		t.Fatalf("Segment() returned %d day frames, want 6 (partial day kept)", len(frames))
	}

	trimmed := sg.Segment(s, true)
	if len(trimmed) != 5 {
		t.Fatalf("Segment(forceTrim) returned %d day frames, want 5", len(trimmed))
	}
}

func TestSegment_EmptySeries(t *testing.T) {
	sg := testSegmenter()
	frames := sg.Segment(&series.Series{}, false)
	if len(frames) != 0 {
		t.Fatalf("Segment() on empty series returned %d frames, want 0", len(frames))
	}
}
