package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/recommend"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

type fakeFeedback struct {
	shutdownForbidden bool
	scheduleForbidden bool
	resizeForbidden   bool
}

func (f *fakeFeedback) IsShutdownForbidden(string, string) (bool, error) {
	return f.shutdownForbidden, nil
}

func (f *fakeFeedback) IsScheduleForbidden(string, string) (bool, error) {
	return f.scheduleForbidden, nil
}

func (f *fakeFeedback) IsResizeForbidden(string, string) (bool, error) {
	return f.resizeForbidden, nil
}

func (f *fakeFeedback) ResizeAdjustment(string, string) (FeedbackAdjustment, error) {
	return FeedbackAdjustment{}, nil
}

type fakeHistoryRow struct {
	action    recommend.Action
	proposals []recommend.ShapeProposal
	schedule  []recommend.ScheduleWindow
}

type fakeHistory struct {
	rows []fakeHistoryRow
}

func (h *fakeHistory) Record(_, _ string, action recommend.Action,
	proposals []recommend.ShapeProposal, schedule []recommend.ScheduleWindow,
	_ time.Time, _ float64) error {
	h.rows = append(h.rows, fakeHistoryRow{action: action, proposals: proposals, schedule: schedule})
	return nil
}

func testAssembler(history *fakeHistory) *Assembler {
	cfg := config.DefaultConfig()
	cfg.Segmenter.StepMinutes = 30
	catalog := shapes.NewStaticCatalog([]shapes.Shape{
		catalogShape("m5.large", 2, 8, 0, 0),
		catalogShape("m5.xlarge", 4, 16, 0, 0),
		catalogShape("m5.2xlarge", 8, 32, 0, 0),
	})
	return NewAssembler(cfg, catalog, &fakeFeedback{}, history, nil, nil)
}

// businessHoursSeries is active on weekdays 09:00-17:00 and idles the rest of
// the week. 30-minute step, starting on a Monday.
func businessHoursSeries(days int, activeCPU, activeMem float64) *series.Series {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s := &series.Series{InstanceID: "i-office", InstanceType: "m5.large", Step: 30 * time.Minute}
	for i := 0; i < days*48; i++ {
		ts := start.Add(time.Duration(i) * 30 * time.Minute)
		smp := series.Sample{
			Timestamp: ts, CPULoad: 3, MemoryLoad: 5,
			NetOutputLoad: series.NoSignal,
			AvgDiskIOPS:   series.NoSignal, MaxDiskIOPS: series.NoSignal,
		}
		wd := ts.Weekday()
		if wd != time.Saturday && wd != time.Sunday && ts.Hour() >= 9 && ts.Hour() < 17 {
			smp.CPULoad, smp.MemoryLoad = activeCPU, activeMem
		}
		s.Samples = append(s.Samples, smp)
	}
	return s
}

// splitLoadSeries alternates within each day: the first half at lowCPU, the
// second half at highCPU. With idleWeekends, Saturdays and Sundays idle
// instead. 30-minute step, starting on a Monday.
func splitLoadSeries(days int, lowCPU, highCPU float64, idleWeekends bool) *series.Series {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s := &series.Series{InstanceID: "i-split", InstanceType: "m5.xlarge", Step: 30 * time.Minute}
	for i := 0; i < days*48; i++ {
		ts := start.Add(time.Duration(i) * 30 * time.Minute)
		load := lowCPU
		if i%48 >= 24 {
			load = highCPU
		}
		if idleWeekends {
			if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
				load = 3
			}
		}
		s.Samples = append(s.Samples, series.Sample{
			Timestamp: ts, CPULoad: load, MemoryLoad: load,
			NetOutputLoad: series.NoSignal,
			AvgDiskIOPS:   series.NoSignal, MaxDiskIOPS: series.NoSignal,
		})
	}
	return s
}

func TestRecommend_AlwaysIdleIsShutdown(t *testing.T) {
	history := &fakeHistory{}
	a := testAssembler(history)

	report, err := a.Recommend(context.Background(), Resource{
		ID: "i-idle", Type: "INSTANCE", Series: flatSeries(28, 30, 0, 5),
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}

	if len(report.GeneralActions) != 1 || report.GeneralActions[0] != recommend.ActionShutdown {
		t.Fatalf("actions = %v, want [SHUTDOWN]", report.GeneralActions)
	}
	if len(report.Recommendation.RecommendedShapes) != 0 {
		t.Errorf("shutdown report carries shapes: %v", report.Recommendation.RecommendedShapes)
	}
	if len(report.Recommendation.Schedule) != 0 {
		t.Errorf("shutdown report carries a schedule: %v", report.Recommendation.Schedule)
	}
	if report.Severity != "MEDIUM" {
		t.Errorf("severity = %s, want MEDIUM", report.Severity)
	}
	if len(history.rows) != 1 || history.rows[0].action != recommend.ActionShutdown {
		t.Errorf("history rows = %+v, want one payload-free SHUTDOWN row", history.rows)
	}
}

func TestRecommend_BusinessHoursIsSchedule(t *testing.T) {
	history := &fakeHistory{}
	a := testAssembler(history)

	report, err := a.Recommend(context.Background(), Resource{
		ID: "i-office", Type: "INSTANCE", Series: businessHoursSeries(28, 50, 40),
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}

	if len(report.GeneralActions) != 1 || report.GeneralActions[0] != recommend.ActionSchedule {
		t.Fatalf("actions = %v, want [SCHEDULE]", report.GeneralActions)
	}
	sched := report.Recommendation.Schedule
	if len(sched) != 1 {
		t.Fatalf("schedule = %v, want one business-hours window", sched)
	}
	if sched[0].Start != "09:00" || sched[0].Stop != "17:00" || len(sched[0].Weekdays) != 5 {
		t.Errorf("window = %+v, want 09:00-17:00 Monday-Friday", sched[0])
	}
	if len(report.Recommendation.RecommendedShapes) != 0 {
		t.Errorf("well-fitted shape got resize proposals: %v", report.Recommendation.RecommendedShapes)
	}
	if len(history.rows) != 1 || history.rows[0].action != recommend.ActionSchedule {
		t.Fatalf("history rows = %+v, want one SCHEDULE row", history.rows)
	}
	if len(history.rows[0].schedule) != 1 {
		t.Errorf("SCHEDULE history row missing the schedule payload")
	}
}

func TestRecommend_SustainedHighLoadIsScaleUp(t *testing.T) {
	history := &fakeHistory{}
	a := testAssembler(history)

	report, err := a.Recommend(context.Background(), Resource{
		ID: "i-hot", Type: "INSTANCE", Series: flatSeries(21, 30, 0, 85),
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}

	if len(report.GeneralActions) != 1 || report.GeneralActions[0] != recommend.ActionScaleUp {
		t.Fatalf("actions = %v, want [SCALE_UP]", report.GeneralActions)
	}
	if report.Severity != "HIGH" {
		t.Errorf("severity = %s, want HIGH for an under-provisioned resource", report.Severity)
	}
	got := report.Recommendation.RecommendedShapes
	if len(got) != 1 || got[0].Name != "m5.xlarge" {
		t.Fatalf("shapes = %v, want the next size up", got)
	}
	if got[0].CPU <= 2 || got[0].MemoryGB <= 8 {
		t.Errorf("proposed shape %+v does not grow both dimensions", got[0])
	}
	if len(history.rows) != 1 || history.rows[0].action != recommend.ActionScaleUp {
		t.Fatalf("history rows = %+v, want one SCALE_UP row", history.rows)
	}
	if len(history.rows[0].proposals) != 1 {
		t.Errorf("SCALE_UP history row missing shape proposals")
	}
}

func TestRecommend_TwoRegimesIsSplit(t *testing.T) {
	history := &fakeHistory{}
	a := testAssembler(history)

	// Half of every day at 20% load, half at 90%: two regimes covering the
	// whole window between them.
	report, err := a.Recommend(context.Background(), Resource{
		ID: "i-split", Type: "INSTANCE", Series: splitLoadSeries(28, 20, 90, false),
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}

	if len(report.GeneralActions) != 1 || report.GeneralActions[0] != recommend.ActionSplit {
		t.Fatalf("actions = %v, want [SPLIT]", report.GeneralActions)
	}
	got := report.Recommendation.RecommendedShapes
	if len(got) < 2 {
		t.Fatalf("shapes = %v, want one shape per regime", got)
	}
	sum := 0.0
	for _, p := range got {
		sum += p.Probability
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("split shape probabilities sum to %v, want exactly 1", sum)
	}
	if len(history.rows) != 1 || history.rows[0].action != recommend.ActionSplit {
		t.Fatalf("history rows = %+v, want one SPLIT row", history.rows)
	}
}

func TestRecommend_PartialRegimesNeverSplit(t *testing.T) {
	history := &fakeHistory{}
	a := testAssembler(history)

	// Weekdays split between 30% and 90% load, weekends idle: the two active
	// regimes only cover ~72% of the window, so their shares cannot back a
	// time-share split.
	report, err := a.Recommend(context.Background(), Resource{
		ID: "i-split", Type: "INSTANCE", Series: splitLoadSeries(28, 30, 90, true),
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}

	for _, action := range report.GeneralActions {
		if action == recommend.ActionSplit {
			t.Fatalf("actions = %v: SPLIT emitted from shares that do not sum to 1", report.GeneralActions)
		}
	}
	if len(report.GeneralActions) != 1 || report.GeneralActions[0] != recommend.ActionSchedule {
		t.Fatalf("actions = %v, want [SCHEDULE] for the idle weekends", report.GeneralActions)
	}
	if got := report.Recommendation.RecommendedShapes; len(got) != 0 {
		t.Errorf("suppressed split still carries shapes: %v", got)
	}
}

func TestRecommend_UnknownShapeIsExecutorError(t *testing.T) {
	history := &fakeHistory{}
	a := testAssembler(history)

	s := flatSeries(14, 30, 0, 50)
	s.InstanceType = "x9.mystery"
	_, err := a.Recommend(context.Background(), Resource{ID: "i-x", Type: "INSTANCE", Series: s})

	var execErr *ExecutorError
	if !errors.As(err, &execErr) {
		t.Fatalf("Recommend() error = %v, want an executor error for an unknown shape", err)
	}
	if len(history.rows) != 0 {
		t.Errorf("failed run persisted history rows: %+v", history.rows)
	}
}
