package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// aggregateLoadPercentile is the percentile of member CPU load compared
// against the group thresholds.
const aggregateLoadPercentile = 0.90

// GroupStore persists and recalls group-level recommendations for the
// cooldown check.
type GroupStore interface {
	SaveGroup(r recommend.GroupReport) error
	LatestGroup(policyID string) (recommend.GroupReport, bool, error)
}

// GroupAssembler is the autoscaling-group variant: instead of searching for a
// shape it decides how many instances of the group's majority type to add or
// remove.
type GroupAssembler struct {
	store GroupStore
	now   func() time.Time
}

// NewGroupAssembler creates the group variant. now is injectable for tests;
// nil means time.Now.
func NewGroupAssembler(store GroupStore, now func() time.Time) *GroupAssembler {
	if now == nil {
		now = time.Now
	}
	return &GroupAssembler{store: store, now: now}
}

// Recommend produces the group-level action for one policy and its member
// resources. Inside the cooldown window the previous recommendation is reused
// verbatim.
func (g *GroupAssembler) Recommend(policy recommend.GroupPolicy, members []Resource) (recommend.GroupReport, error) {
	if cached, ok, err := g.store.LatestGroup(policy.ID); err != nil {
		return recommend.GroupReport{}, fmt.Errorf("loading cached group recommendation: %w", err)
	} else if ok && policy.CooldownDays > 0 {
		elapsed := g.now().Sub(cached.ProducedAt)
		if elapsed < time.Duration(policy.CooldownDays)*24*time.Hour {
			cached.ReusedCached = true
			return cached, nil
		}
	}

	report := recommend.GroupReport{
		PolicyID:   policy.ID,
		Action:     recommend.GroupNoAction,
		ProducedAt: g.now().UTC(),
	}
	for _, m := range members {
		report.Resources = append(report.Resources, m.ID)
	}

	majorityType, matching, nonMatching := majorityInstanceType(members)
	if majorityType == "" {
		// No unique majority: nothing sensible to scale, every member is
		// flagged for operator review.
		report.NonMatching = memberIDs(members)
		return report, g.save(report)
	}
	report.NonMatching = memberIDs(nonMatching)

	load := aggregateLoad(matching)
	report.LoadPct = round2(load)

	switch {
	case load > policy.Thresholds.Max:
		report.Action = recommend.GroupScaleUp
	case load < policy.Thresholds.Min:
		report.Action = recommend.GroupScaleDown
	default:
		return report, g.save(report)
	}

	report.ScaleStep = scaleStep(policy, len(matching), load)
	if report.ScaleStep == 0 {
		report.Action = recommend.GroupNoAction
	}
	return report, g.save(report)
}

func (g *GroupAssembler) save(r recommend.GroupReport) error {
	if err := g.store.SaveGroup(r); err != nil {
		return fmt.Errorf("saving group recommendation: %w", err)
	}
	return nil
}

// majorityInstanceType splits members by the strictly-most-common instance
// type. A tie means no unique majority: empty type, nil matching, all members
// non-matching.
func majorityInstanceType(members []Resource) (string, []Resource, []Resource) {
	counts := map[string]int{}
	for _, m := range members {
		counts[m.Series.InstanceType]++
	}
	best, bestCount, tied := "", 0, false
	for t, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, tied = t, n, false
		case n == bestCount:
			tied = true
		}
	}
	if tied || best == "" {
		return "", nil, members
	}
	var matching, nonMatching []Resource
	for _, m := range members {
		if m.Series.InstanceType == best {
			matching = append(matching, m)
		} else {
			nonMatching = append(nonMatching, m)
		}
	}
	return best, matching, nonMatching
}

// aggregateLoad is the P90 of CPU load across every sample of every matching
// member.
func aggregateLoad(members []Resource) float64 {
	var values []float64
	for _, m := range members {
		for _, sample := range m.Series.Samples {
			if v := sample.Value(series.AttrCPULoad); v != series.NoSignal {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	return stat.Quantile(aggregateLoadPercentile, stat.Empirical, values, nil)
}

// scaleStep derives the instance count delta: the explicit policy step, or a
// capacity estimate that moves the aggregate load toward the desired
// threshold. A fixed-step SCALE_DOWN is clamped to leave at least one
// instance; auto-detection may go lower.
func scaleStep(policy recommend.GroupPolicy, count int, load float64) int {
	auto := policy.ScaleStep == recommend.AutoDetectStep
	step := policy.ScaleStep
	if auto {
		if policy.Thresholds.Desired <= 0 {
			return 0
		}
		target := int(math.Ceil(float64(count) * load / policy.Thresholds.Desired))
		step = target - count
		if step < 0 {
			step = -step
		}
		if step == 0 {
			step = 1
		}
	}
	if step < 1 {
		return 0
	}
	if load < policy.Thresholds.Desired && !auto && step > count-1 {
		step = count - 1
	}
	if step < 0 {
		step = 0
	}
	return step
}

func memberIDs(members []Resource) []string {
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID)
	}
	return out
}
