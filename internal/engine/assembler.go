package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/recommend"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

// Pricer attaches prices to candidates in place. A missing price is silently
// skipped, never an error.
type Pricer interface {
	AddPrice(ctx context.Context, candidates []shapes.Candidate, region, os string) error
}

// SavingsCalculator estimates the monthly saving of a recommendation.
type SavingsCalculator interface {
	Calculate(actions []recommend.Action, current shapes.Candidate, recommended []shapes.Candidate, schedule []recommend.ScheduleWindow) *recommend.Savings
}

// Feedback exposes the operator-feedback queries the engine consumes.
type Feedback interface {
	IsShutdownForbidden(resourceID, resourceType string) (bool, error)
	IsScheduleForbidden(resourceID, resourceType string) (bool, error)
	IsResizeForbidden(resourceID, resourceType string) (bool, error)
	ResizeAdjustment(resourceID, resourceType string) (FeedbackAdjustment, error)
}

// HistoryWriter persists one history row per emitted general action.
type HistoryWriter interface {
	Record(resourceID, resourceType string, action recommend.Action,
		proposals []recommend.ShapeProposal, schedule []recommend.ScheduleWindow,
		capture time.Time, savings float64) error
}

// Resource is one compute instance ready for analysis: its full series is on
// local storage by the time the assembler runs.
type Resource struct {
	ID     string
	Type   string
	Series *series.Series
	Meta   map[string]string
}

// Assembler orchestrates the per-resource pipeline: segment, cluster,
// classify, trend, resize, schedule, then the general-action decision and
// persistence. Single-threaded and synchronous per resource.
type Assembler struct {
	cfg         *config.Config
	catalog     shapes.Catalog
	segmenter   *Segmenter
	clusterer   *Clusterer
	classifier  *Classifier
	aggregator  *TrendAggregator
	matcher     *Matcher
	synthesizer *Synthesizer
	feedback    Feedback
	history     HistoryWriter
	pricer      Pricer
	savings     SavingsCalculator
}

// NewAssembler wires the pipeline. pricer and savings may be nil (offline
// runs without pricing).
func NewAssembler(cfg *config.Config, catalog shapes.Catalog, feedback Feedback, history HistoryWriter, pricer Pricer, savings SavingsCalculator) *Assembler {
	loc := cfg.Location()
	return &Assembler{
		cfg:         cfg,
		catalog:     catalog,
		segmenter:   NewSegmenter(cfg.Segmenter, loc),
		clusterer:   NewClusterer(cfg.Clusterer),
		classifier:  NewClassifier(cfg.Trend.Thresholds, cfg.Trend.MinPeriodSamples),
		aggregator:  NewTrendAggregator(cfg.Trend),
		matcher:     NewMatcher(cfg.Resize, catalog),
		synthesizer: NewSynthesizer(cfg.Schedule, loc),
		feedback:    feedback,
		history:     history,
		pricer:      pricer,
		savings:     savings,
	}
}

// Recommend runs the full pipeline for one resource and returns its report.
// Errors returned here are per-resource: the scanner records them and moves
// on.
func (a *Assembler) Recommend(ctx context.Context, res Resource) (recommend.Report, error) {
	report := recommend.Report{
		ResourceID:   res.ID,
		ResourceType: res.Type,
		Source:       a.cfg.Source,
		Meta:         res.Meta,
		Stats: recommend.Stats{
			FromDate: res.Series.From(),
			ToDate:   res.Series.To(),
			Status:   recommend.StatusOK,
		},
	}

	current, err := a.catalog.Get(ctx, res.Series.InstanceType)
	if err != nil {
		return report, &ExecutorError{Msg: fmt.Sprintf("unknown shape %q", res.Series.InstanceType), Err: err}
	}

	days := a.segmenter.Segment(res.Series, false)
	if len(days) == 0 {
		report.Stats.Message = "insufficient metric coverage after segmentation"
		report.GeneralActions = []recommend.Action{recommend.ActionEmpty}
		return report, nil
	}

	var bands Bands
	for _, day := range days {
		asg := a.clusterer.Cluster(day)
		a.classifier.ClassifyDay(day, asg, &bands)
	}

	band := TargetBand{MinPct: a.cfg.Resize.TargetMinPct, MaxPct: a.cfg.Resize.TargetMaxPct}
	trends := a.aggregator.Aggregate(&bands, current, band)

	schedule, err := a.buildSchedule(res, &bands)
	if err != nil {
		return report, err
	}

	candidates, resizeAction, err := a.buildResize(ctx, res, current, trends)
	if err != nil {
		return report, err
	}

	// Price the current shape alongside the candidates: the savings estimate
	// needs both sides of the comparison.
	currentPriced := shapes.Candidate{Shape: current}
	if a.pricer != nil {
		priced := append([]shapes.Candidate{currentPriced}, candidates...)
		if err := a.pricer.AddPrice(ctx, priced, a.cfg.Region, a.cfg.Savings.OS); err != nil {
			// Pricing is decoration: log and keep going.
			slog.Warn("assembler: price attachment failed", "resource", res.ID, "error", err)
		}
		currentPriced = priced[0]
		candidates = priced[1:]
	}
	candidates = a.sortAndFilter(candidates, current, resizeAction)

	actions, err := a.generalActions(res, &bands, schedule, candidates, resizeAction)
	if err != nil {
		return report, err
	}
	if resizeAction == recommend.ActionSplit && !hasAction(actions, recommend.ActionSplit) {
		// Partial-coverage split candidates are noise, not a proposal.
		candidates = nil
	}
	if len(actions) == 1 && actions[0] == recommend.ActionShutdown {
		// A shutdown recommendation carries no shapes and no schedule.
		candidates = nil
		schedule = nil
	}
	report.GeneralActions = actions
	report.Severity = severityFor(actions)
	report.Recommendation = recommend.Body{
		Schedule:          schedule,
		RecommendedShapes: proposals(candidates),
	}

	if a.savings != nil && !a.cfg.Savings.Ignore {
		report.Recommendation.Savings = a.savings.Calculate(
			actions, currentPriced, candidates, schedule)
	}

	a.persistHistory(res, report)
	return report, nil
}

func (a *Assembler) buildSchedule(res Resource, bands *Bands) ([]recommend.ScheduleWindow, error) {
	if !a.cfg.Schedule.Allowed {
		return nil, nil
	}
	shutdownPeriods := bands.Frames(BandShutdown)
	if len(shutdownPeriods) == 0 && bands.TotalRows() == 0 {
		return nil, nil
	}
	forbidden, err := a.feedback.IsScheduleForbidden(res.ID, res.Type)
	if err != nil {
		return nil, fmt.Errorf("checking schedule feedback: %w", err)
	}
	return a.synthesizer.Generate(shutdownPeriods, res.Series, forbidden), nil
}

func (a *Assembler) buildResize(ctx context.Context, res Resource, current shapes.Shape, trends []Trend) ([]shapes.Candidate, recommend.Action, error) {
	if len(trends) == 0 {
		return nil, recommend.ActionEmpty, nil
	}

	forbidden, err := a.feedback.IsResizeForbidden(res.ID, res.Type)
	if err != nil {
		return nil, recommend.ActionEmpty, fmt.Errorf("checking resize feedback: %w", err)
	}
	if forbidden {
		return nil, recommend.ActionEmpty, nil
	}

	adjustment, err := a.feedback.ResizeAdjustment(res.ID, res.Type)
	if err != nil {
		return nil, recommend.ActionEmpty, fmt.Errorf("loading resize adjustment: %w", err)
	}

	band := TargetBand{MinPct: a.cfg.Resize.TargetMinPct, MaxPct: a.cfg.Resize.TargetMaxPct}

	if len(trends) > 1 {
		var all []shapes.Candidate
		for _, t := range trends {
			got, err := a.matcher.Recommend(ctx, MatchRequest{
				Trend:         t,
				Current:       current,
				Action:        recommend.ActionSplit,
				Cloud:         a.cfg.CloudProvider,
				ResourceType:  res.Type,
				Compatibility: a.cfg.Resize.Compatibility,
				Adjustment:    adjustment,
			})
			if err != nil {
				return nil, recommend.ActionEmpty, err
			}
			// One shape per regime: the best fit carries the regime's
			// time share.
			if len(got) > 0 {
				all = append(all, got[0])
			}
		}
		return all, recommend.ActionSplit, nil
	}

	t := trends[0]
	action := resizeActionFor(t, current, band)
	if action == recommend.ActionEmpty {
		return nil, action, nil
	}
	got, err := a.matcher.Recommend(ctx, MatchRequest{
		Trend:         t,
		Current:       current,
		Action:        action,
		Cloud:         a.cfg.CloudProvider,
		ResourceType:  res.Type,
		Compatibility: a.cfg.Resize.Compatibility,
		Adjustment:    adjustment,
	})
	if err != nil {
		return nil, recommend.ActionEmpty, err
	}
	return got, action, nil
}

// resizeActionFor maps the trend's per-metric directions onto the single
// resize action: all up = SCALE_UP, all down = SCALE_DOWN, mixed =
// CHANGE_SHAPE, none = nothing to do.
func resizeActionFor(t Trend, current shapes.Shape, band TargetBand) recommend.Action {
	up, down := false, false
	for _, dir := range t.Directions(current, band) {
		switch dir {
		case DirectionUp:
			up = true
		case DirectionDown:
			down = true
		}
	}
	switch {
	case up && down:
		return recommend.ActionChangeShape
	case up:
		return recommend.ActionScaleUp
	case down:
		return recommend.ActionScaleDown
	}
	return recommend.ActionEmpty
}

// sortAndFilter applies the configured ordering and drops candidates equal
// to the current shape unless the action is SPLIT.
func (a *Assembler) sortAndFilter(candidates []shapes.Candidate, current shapes.Shape, action recommend.Action) []shapes.Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Name == current.Name && action != recommend.ActionSplit {
			continue
		}
		out = append(out, c)
	}
	if a.cfg.Resize.SortByPrice {
		sort.SliceStable(out, func(i, j int) bool {
			// Unpriced candidates sink to the end.
			pi, pj := out[i].PriceUSD, out[j].PriceUSD
			if pi == 0 {
				return false
			}
			if pj == 0 {
				return true
			}
			return pi < pj
		})
	}
	return out
}

// generalActions implements the priority decision: an all-idle resource with
// shutdown permitted is SHUTDOWN; otherwise SCHEDULE and the resize action
// accumulate; a sum-to-one candidate set is a SPLIT; nothing at all is EMPTY.
func (a *Assembler) generalActions(res Resource, bands *Bands, schedule []recommend.ScheduleWindow, candidates []shapes.Candidate, resizeAction recommend.Action) ([]recommend.Action, error) {
	shutdownForbidden, err := a.feedback.IsShutdownForbidden(res.ID, res.Type)
	if err != nil {
		return nil, fmt.Errorf("checking shutdown feedback: %w", err)
	}

	// No viable schedule and no qualifying activity: the resource is idle
	// for (essentially) the whole window.
	alwaysIdle := len(bands.QualifyingActivityBands(a.cfg.Trend.MinPeriodShare)) == 0 &&
		bands.Rows(BandShutdown) > 0
	if len(nonTrivial(schedule)) == 0 && alwaysIdle && !shutdownForbidden && a.cfg.Schedule.ShutdownAllowed {
		return []recommend.Action{recommend.ActionShutdown}, nil
	}

	var actions []recommend.Action
	if len(nonTrivial(schedule)) > 0 && a.cfg.Schedule.Allowed {
		actions = append(actions, recommend.ActionSchedule)
	}
	if len(candidates) > 0 {
		switch {
		case splitProbabilitySum(candidates):
			actions = append(actions, recommend.ActionSplit)
		case resizeAction != recommend.ActionEmpty && resizeAction != recommend.ActionSplit:
			// A split whose shares don't cover the window never degrades
			// into a SPLIT action here.
			actions = append(actions, resizeAction)
		}
	}
	if len(actions) == 0 {
		actions = []recommend.Action{recommend.ActionEmpty}
	}
	return actions, nil
}

// splitProbabilitySum reports whether the candidate probabilities sum to 1
// within tolerance: the signature of a time-share split.
func splitProbabilitySum(candidates []shapes.Candidate) bool {
	if len(candidates) < 2 {
		return false
	}
	sum := 0.0
	for _, c := range candidates {
		sum += c.Probability
	}
	return math.Abs(sum-1) < 1e-9
}

func hasAction(actions []recommend.Action, want recommend.Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

// nonTrivial filters out the "always run" sentinel.
func nonTrivial(schedule []recommend.ScheduleWindow) []recommend.ScheduleWindow {
	var out []recommend.ScheduleWindow
	for _, w := range schedule {
		if !w.IsAlwaysRun() {
			out = append(out, w)
		}
	}
	return out
}

// persistHistory writes one history row per general action, skipping ERROR
// and EMPTY. History failures are logged, never fatal: a history hiccup for
// one resource must not corrupt the batch.
func (a *Assembler) persistHistory(res Resource, report recommend.Report) {
	savings := 0.0
	if report.Recommendation.Savings != nil {
		savings = report.Recommendation.Savings.SavedMonthlyUSD
	}
	for _, action := range report.GeneralActions {
		if action == recommend.ActionError || action == recommend.ActionEmpty {
			continue
		}
		var sched []recommend.ScheduleWindow
		var props []recommend.ShapeProposal
		switch action {
		case recommend.ActionSchedule:
			sched = report.Recommendation.Schedule
		case recommend.ActionShutdown:
			// Payload-free: the action itself is the recommendation.
		default:
			props = report.Recommendation.RecommendedShapes
		}
		if err := a.history.Record(res.ID, res.Type, action, props, sched, report.Stats.ToDate, savings); err != nil {
			slog.Error("assembler: persisting history", "resource", res.ID, "action", action, "error", err)
		}
	}
}

func proposals(candidates []shapes.Candidate) []recommend.ShapeProposal {
	out := make([]recommend.ShapeProposal, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, recommend.ShapeProposal{
			Name:        c.Name,
			Cloud:       c.Cloud,
			CPU:         c.CPU,
			MemoryGB:    c.MemoryGB,
			Probability: c.Probability,
			PriceUSD:    c.PriceUSD,
		})
	}
	return out
}

func severityFor(actions []recommend.Action) string {
	for _, a := range actions {
		switch a {
		case recommend.ActionScaleUp:
			return "HIGH"
		case recommend.ActionShutdown, recommend.ActionScaleDown, recommend.ActionChangeShape, recommend.ActionSplit:
			return "MEDIUM"
		case recommend.ActionSchedule:
			return "MEDIUM"
		}
	}
	return "INFO"
}
