package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// Synthesizer builds weekly run-time schedules from detected shutdown
// periods. It counts, per weekday and time bucket, on how many processed days
// the resource was idle, keeps the active windows that clear the duration and
// frequency bars, and merges similar windows across weekdays.
type Synthesizer struct {
	cfg config.ScheduleConfig
	loc *time.Location
}

// NewSynthesizer creates a schedule synthesizer.
func NewSynthesizer(cfg config.ScheduleConfig, loc *time.Location) *Synthesizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Synthesizer{cfg: cfg, loc: loc}
}

// dayWindow is a candidate active window on a single weekday, in buckets.
type dayWindow struct {
	weekday     int // 0 = Monday
	startBucket int
	stopBucket  int // exclusive
	probability float64
}

// Generate synthesizes the weekly schedule. dontRecommend short-circuits to
// the "always run" sentinel, as does a series covering too few days
// (conservative default, not an error). An empty result means no stable
// shutdown rhythm was found.
func (sy *Synthesizer) Generate(shutdownPeriods []series.Frame, s *series.Series, dontRecommend bool) []recommend.ScheduleWindow {
	if dontRecommend {
		return []recommend.ScheduleWindow{recommend.AlwaysRunWindow()}
	}

	covered := s.CoveredDays(sy.loc)
	if covered < sy.cfg.MinAllowedDays {
		return []recommend.ScheduleWindow{recommend.AlwaysRunWindow()}
	}

	// Older data is stale for rhythmic-pattern detection: cut both the
	// shutdown periods and the series at the max-day horizon.
	samples := s.Samples
	if covered > sy.cfg.MaxAllowedDays {
		cutoff := s.To().AddDate(0, 0, -sy.cfg.MaxAllowedDays)
		shutdownPeriods = trimFrames(shutdownPeriods, cutoff)
		samples = trimSamples(samples, cutoff)
	}

	buckets := 24 * 60 / sy.cfg.RecordStepMinutes

	// Distinct dates per weekday actually present in the window.
	processedDays := make([]map[string]struct{}, 7)
	for i := range processedDays {
		processedDays[i] = make(map[string]struct{})
	}
	for _, smp := range samples {
		local := smp.Timestamp.In(sy.loc)
		processedDays[mondayIndex(local.Weekday())][local.Format("2006-01-02")] = struct{}{}
	}

	// Per (weekday, bucket): on which dates was the bucket inside a
	// shutdown period. Counting per date keeps fine sample steps from
	// inflating coarse buckets.
	idleDates := make([]map[int]map[string]struct{}, 7)
	for i := range idleDates {
		idleDates[i] = make(map[int]map[string]struct{})
	}
	for _, period := range shutdownPeriods {
		for _, smp := range period.Samples {
			local := smp.Timestamp.In(sy.loc)
			wd := mondayIndex(local.Weekday())
			bucket := (local.Hour()*60 + local.Minute()) / sy.cfg.RecordStepMinutes
			if idleDates[wd][bucket] == nil {
				idleDates[wd][bucket] = make(map[string]struct{})
			}
			idleDates[wd][bucket][local.Format("2006-01-02")] = struct{}{}
		}
	}

	var windows []dayWindow
	for wd := 0; wd < 7; wd++ {
		total := len(processedDays[wd])
		if total == 0 {
			continue
		}

		idle := make([]bool, buckets)
		idleFreqSum, idleCount := 0.0, 0
		for b := 0; b < buckets; b++ {
			freq := float64(len(idleDates[wd][b])) / float64(total)
			if freq >= sy.cfg.MinFrequency {
				idle[b] = true
				idleFreqSum += freq
				idleCount++
			}
		}
		if idleCount == 0 {
			// No reliable idle time on this weekday: runs all day, nothing
			// to schedule.
			continue
		}
		probability := idleFreqSum / float64(idleCount)

		// Active windows are the maximal non-idle runs.
		for b := 0; b < buckets; {
			if idle[b] {
				b++
				continue
			}
			start := b
			for b < buckets && !idle[b] {
				b++
			}
			if (b-start)*sy.cfg.RecordStepMinutes >= sy.cfg.MinDayDurationMinutes {
				windows = append(windows, dayWindow{
					weekday:     wd,
					startBucket: start,
					stopBucket:  b,
					probability: probability,
				})
			}
		}
	}

	return sy.mergeWindows(windows)
}

// mergeWindows joins near-duplicate per-day windows across weekdays: exact
// start/stop matches, or windows whose start and stop together drift at most
// the merge tolerance. The merged window keeps the union span and weekdays
// and the mean probability. Output is sorted by total covered minutes,
// descending, capped at the configured maximum.
func (sy *Synthesizer) mergeWindows(windows []dayWindow) []recommend.ScheduleWindow {
	type merged struct {
		startBucket, stopBucket int
		weekdays                []int
		probSum                 float64
		count                   int
	}

	tolerance := sy.cfg.MergeToleranceMinutes / sy.cfg.RecordStepMinutes
	var groups []merged
	for _, w := range windows {
		placed := false
		for i := range groups {
			g := &groups[i]
			drift := abs(g.startBucket-w.startBucket) + abs(g.stopBucket-w.stopBucket)
			if drift <= tolerance {
				if w.startBucket < g.startBucket {
					g.startBucket = w.startBucket
				}
				if w.stopBucket > g.stopBucket {
					g.stopBucket = w.stopBucket
				}
				g.weekdays = append(g.weekdays, w.weekday)
				g.probSum += w.probability
				g.count++
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, merged{
				startBucket: w.startBucket,
				stopBucket:  w.stopBucket,
				weekdays:    []int{w.weekday},
				probSum:     w.probability,
				count:       1,
			})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		di := (groups[i].stopBucket - groups[i].startBucket) * len(groups[i].weekdays)
		dj := (groups[j].stopBucket - groups[j].startBucket) * len(groups[j].weekdays)
		return di > dj
	})
	if sy.cfg.MaxWindows > 0 && len(groups) > sy.cfg.MaxWindows {
		groups = groups[:sy.cfg.MaxWindows]
	}

	out := make([]recommend.ScheduleWindow, 0, len(groups))
	for _, g := range groups {
		sort.Ints(g.weekdays)
		days := make([]string, 0, len(g.weekdays))
		for _, wd := range g.weekdays {
			days = append(days, recommend.AllWeekdays[wd])
		}
		out = append(out, recommend.ScheduleWindow{
			Start:       sy.bucketTime(g.startBucket),
			Stop:        sy.bucketTime(g.stopBucket),
			Weekdays:    days,
			Probability: round2(g.probSum / float64(g.count)),
		})
	}
	return out
}

// bucketTime formats a bucket boundary as "HH:MM". The end-of-day boundary
// wraps to "00:00", meaning end of day, not start.
func (sy *Synthesizer) bucketTime(bucket int) string {
	minutes := bucket * sy.cfg.RecordStepMinutes % (24 * 60)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func mondayIndex(wd time.Weekday) int { return (int(wd) + 6) % 7 }

func trimFrames(frames []series.Frame, cutoff time.Time) []series.Frame {
	var out []series.Frame
	for _, f := range frames {
		var kept series.Frame
		for _, smp := range f.Samples {
			if !smp.Timestamp.Before(cutoff) {
				kept.Samples = append(kept.Samples, smp)
			}
		}
		if kept.Len() > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func trimSamples(samples []series.Sample, cutoff time.Time) []series.Sample {
	i := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(cutoff)
	})
	return samples[i:]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
