package engine

import (
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
)

// DayFrame is one calendar day slice of a metric series. Boundary frames that
// do not cover a full day at the active step are discarded by the segmenter.
type DayFrame struct {
	Date time.Time // local midnight
	series.Frame
}

// Segmenter splits a series into calendar-day frames and drops incomplete
// boundary days. Recent days are checked at fine resolution; once the
// analyzed span exceeds the optimized threshold the first (oldest) day is
// checked at the coarser optimized step, since older data is downsampled.
type Segmenter struct {
	cfg config.SegmenterConfig
	loc *time.Location
}

// NewSegmenter creates a segmenter.
func NewSegmenter(cfg config.SegmenterConfig, loc *time.Location) *Segmenter {
	if loc == nil {
		loc = time.UTC
	}
	return &Segmenter{cfg: cfg, loc: loc}
}

// Segment groups the series by calendar date. With fewer day groups than the
// trimming minimum, all groups are returned unmodified (too little data to
// safely trim edges) unless forceTrim is set. Zero day groups returns an
// empty slice; the caller must treat that as insufficient data, not an error.
func (sg *Segmenter) Segment(s *series.Series, forceTrim bool) []DayFrame {
	frames := sg.groupByDay(s)
	if len(frames) == 0 {
		return nil
	}
	if len(frames) < sg.cfg.MinDaysForTrimming && !forceTrim {
		return frames
	}

	fullDay := samplesPerDay(sg.cfg.StepMinutes)

	// Last day: incomplete at the fine step means the day is still being
	// collected, drop it.
	if last := frames[len(frames)-1]; last.Len() < fullDay {
		frames = frames[:len(frames)-1]
	}
	if len(frames) == 0 {
		return frames
	}

	// First day: same rule, but when the span exceeds the optimized
	// threshold, "a full day" means fewer samples at the coarse step.
	firstFull := fullDay
	span := frames[len(frames)-1].Date.Sub(frames[0].Date)
	if sg.cfg.OptimizedThresholdDays > 0 && span > time.Duration(sg.cfg.OptimizedThresholdDays)*24*time.Hour {
		firstFull = samplesPerDay(sg.cfg.OptimizedStepMinutes)
	}
	if frames[0].Len() < firstFull {
		frames = frames[1:]
	}
	return frames
}

func (sg *Segmenter) groupByDay(s *series.Series) []DayFrame {
	var frames []DayFrame
	var cur *DayFrame
	for _, smp := range s.Samples {
		local := smp.Timestamp.In(sg.loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, sg.loc)
		if cur == nil || !cur.Date.Equal(day) {
			frames = append(frames, DayFrame{Date: day})
			cur = &frames[len(frames)-1]
		}
		cur.Samples = append(cur.Samples, smp)
	}
	return frames
}

func samplesPerDay(stepMinutes int) int {
	if stepMinutes <= 0 {
		return 0
	}
	return 24 * 60 / stepMinutes
}
