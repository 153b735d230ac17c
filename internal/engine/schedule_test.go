package engine

import (
	"testing"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
)

func testSynthesizer() *Synthesizer {
	return NewSynthesizer(config.ScheduleConfig{
		Allowed:               true,
		ShutdownAllowed:       true,
		RecordStepMinutes:     30,
		MinAllowedDays:        7,
		MaxAllowedDays:        90,
		MinDayDurationMinutes: 120,
		MinFrequency:          0.5,
		MergeToleranceMinutes: 60,
		MaxWindows:            5,
	}, time.UTC)
}

// officeHoursSeries builds days of 30-minute samples where activeHours
// returns the active span per weekday (Monday=0); outside it the resource
// idles. Returns the series and the per-day shutdown period frames.
func officeHoursSeries(days int, activeHours func(weekday int) (start, stop int)) (*series.Series, []series.Frame) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	s := &series.Series{InstanceID: "i-office", InstanceType: "m5.large", Step: 30 * time.Minute}
	var shutdown []series.Frame

	for d := 0; d < days; d++ {
		dayStart := base.AddDate(0, 0, d)
		weekday := mondayIndex(dayStart.Weekday())
		activeFrom, activeTo := activeHours(weekday)

		var idle series.Frame
		for b := 0; b < 48; b++ {
			ts := dayStart.Add(time.Duration(b) * 30 * time.Minute)
			hour := b / 2
			smp := series.Sample{
				Timestamp: ts, CPULoad: 3, MemoryLoad: 5,
				NetOutputLoad: series.NoSignal,
				AvgDiskIOPS:   series.NoSignal, MaxDiskIOPS: series.NoSignal,
			}
			if hour >= activeFrom && hour < activeTo {
				smp.CPULoad, smp.MemoryLoad = 80, 40
				s.Samples = append(s.Samples, smp)
				continue
			}
			s.Samples = append(s.Samples, smp)
			idle.Samples = append(idle.Samples, smp)
		}
		if idle.Len() > 0 {
			shutdown = append(shutdown, idle)
		}
	}
	return s, shutdown
}

func TestGenerate_DontRecommendSentinel(t *testing.T) {
	sy := testSynthesizer()
	s, shutdown := officeHoursSeries(14, func(int) (int, int) { return 9, 17 })

	got := sy.Generate(shutdown, s, true)
	if len(got) != 1 || !got[0].IsAlwaysRun() {
		t.Fatalf("Generate(dontRecommend) = %+v, want exactly the always-run sentinel", got)
	}
}

func TestGenerate_NoShutdownPeriods(t *testing.T) {
	sy := testSynthesizer()
	s, _ := officeHoursSeries(14, func(int) (int, int) { return 0, 24 })

	got := sy.Generate(nil, s, false)
	if len(got) != 0 {
		t.Fatalf("Generate() with zero shutdown periods = %+v, want empty", got)
	}
}

func TestGenerate_TooFewDays(t *testing.T) {
	sy := testSynthesizer()
	s, shutdown := officeHoursSeries(3, func(int) (int, int) { return 9, 17 })

	got := sy.Generate(shutdown, s, false)
	if len(got) != 1 || !got[0].IsAlwaysRun() {
		t.Fatalf("Generate() below min days = %+v, want the always-run sentinel", got)
	}
}

func TestGenerate_BusinessHoursMondayToFriday(t *testing.T) {
	sy := testSynthesizer()
	s, shutdown := officeHoursSeries(28, func(weekday int) (int, int) {
		if weekday >= 5 { // weekend: idle all day
			return 0, 0
		}
		return 9, 17
	})

	got := sy.Generate(shutdown, s, false)
	if len(got) != 1 {
		t.Fatalf("Generate() = %+v, want one merged business-hours window", got)
	}
	w := got[0]
	if w.Start != "09:00" || w.Stop != "17:00" {
		t.Errorf("window span = %s-%s, want 09:00-17:00", w.Start, w.Stop)
	}
	wantDays := []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"}
	if len(w.Weekdays) != len(wantDays) {
		t.Fatalf("window weekdays = %v, want %v", w.Weekdays, wantDays)
	}
	for i, d := range wantDays {
		if w.Weekdays[i] != d {
			t.Errorf("weekday[%d] = %s, want %s", i, w.Weekdays[i], d)
		}
	}
	if w.Probability < 0.99 {
		t.Errorf("probability = %v, want ~1 for a perfectly regular rhythm", w.Probability)
	}
}

func TestGenerate_MergesDriftingWindows(t *testing.T) {
	sy := testSynthesizer()
	// Friday stops an hour earlier: within merge tolerance, so the weekday
	// windows still collapse into one with the union span.
	s, shutdown := officeHoursSeries(28, func(weekday int) (int, int) {
		switch {
		case weekday >= 5:
			return 0, 0
		case weekday == 4:
			return 9, 16
		default:
			return 9, 17
		}
	})

	got := sy.Generate(shutdown, s, false)
	if len(got) != 1 {
		t.Fatalf("Generate() = %+v, want one merged window", got)
	}
	if got[0].Start != "09:00" || got[0].Stop != "17:00" {
		t.Errorf("merged span = %s-%s, want union 09:00-17:00", got[0].Start, got[0].Stop)
	}
	if len(got[0].Weekdays) != 5 {
		t.Errorf("merged weekdays = %v, want all five workdays", got[0].Weekdays)
	}
}
