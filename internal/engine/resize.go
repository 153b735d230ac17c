package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/recommend"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

// FeedbackAdjustment narrows the candidate pool based on operator feedback on
// past resize recommendations. Zero value allows everything.
type FeedbackAdjustment struct {
	// TOO_SMALL floor: candidates must have cpu AND memory >= these values,
	// and strictly greater in at least one dimension.
	FloorCPU, FloorMemory float64
	HasFloor              bool
	// TOO_LARGE ceiling: the mirror rule.
	CeilCPU, CeilMemory float64
	HasCeil             bool
	// WRONG: shape names to exclude outright.
	ExcludedNames map[string]struct{}
}

// Allows reports whether a shape survives the adjustment rules.
func (f FeedbackAdjustment) Allows(s shapes.Shape) bool {
	if _, excluded := f.ExcludedNames[s.Name]; excluded {
		return false
	}
	if f.HasFloor {
		if s.CPU < f.FloorCPU || s.MemoryGB < f.FloorMemory {
			return false
		}
		if s.CPU == f.FloorCPU && s.MemoryGB == f.FloorMemory {
			return false
		}
	}
	if f.HasCeil {
		if s.CPU > f.CeilCPU || s.MemoryGB > f.CeilMemory {
			return false
		}
		if s.CPU == f.CeilCPU && s.MemoryGB == f.CeilMemory {
			return false
		}
	}
	return true
}

// MatchRequest carries everything the resize matcher needs for one search.
type MatchRequest struct {
	Trend         Trend
	Current       shapes.Shape
	Action        recommend.Action
	Cloud         string
	ResourceType  string
	Compatibility recommend.CompatibilityRule
	Adjustment    FeedbackAdjustment
}

// Matcher searches the shape catalog for candidates fitting a trend,
// relaxing soft constraints and retrying once when too few matches are found.
type Matcher struct {
	cfg     config.ResizeConfig
	catalog shapes.Catalog
}

// NewMatcher creates a resize matcher over the given catalog.
func NewMatcher(cfg config.ResizeConfig, catalog shapes.Catalog) *Matcher {
	return &Matcher{cfg: cfg, catalog: catalog}
}

func (m *Matcher) targetBand() TargetBand {
	return TargetBand{MinPct: m.cfg.TargetMinPct, MaxPct: m.cfg.TargetMaxPct}
}

// Recommend returns a ranked, deduplicated, probability-annotated candidate
// list for the request. A second failure after constraint relaxation returns
// whatever was found, possibly nothing: graceful degradation, not an error.
func (m *Matcher) Recommend(ctx context.Context, req MatchRequest) ([]shapes.Candidate, error) {
	return m.recommend(ctx, req, true)
}

func (m *Matcher) recommend(ctx context.Context, req MatchRequest, allowRecursion bool) ([]shapes.Candidate, error) {
	band := m.targetBand()

	if !req.Trend.RequiresResize(req.Current, band) {
		if req.Action == recommend.ActionSplit {
			// For a split, the current shape stays in the mix carrying the
			// trend's time share.
			return []shapes.Candidate{{Shape: req.Current, Probability: req.Trend.Probability}}, nil
		}
		return nil, nil
	}

	reqs := req.Trend.Requirements(req.Current, band)

	all, err := m.catalog.List(ctx, req.Cloud, req.ResourceType)
	if err != nil {
		return nil, fmt.Errorf("listing shapes: %w", err)
	}

	pool := make([]shapes.Shape, 0, len(all))
	for _, s := range all {
		if !m.compatible(req, s) {
			continue
		}
		if !req.Adjustment.Allows(s) {
			continue
		}
		pool = append(pool, s)
	}

	suitable := m.scanTiers(req, pool, reqs)

	// Too few matches: relax the soft constraints and search once more, then
	// merge. Bounded at depth 2 overall. Shapes already found keep their
	// strict-pass score.
	if len(suitable) < m.cfg.MaxResults && allowRecursion {
		relaxedReq := req
		relaxedReq.Trend = req.Trend.Relaxed()
		more, err := m.recommend(ctx, relaxedReq, false)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{}, len(suitable))
		for _, c := range suitable {
			seen[c.Name] = struct{}{}
		}
		for _, c := range more {
			if _, ok := seen[c.Name]; !ok {
				suitable = append(suitable, c)
				seen[c.Name] = struct{}{}
			}
		}
	}

	if len(suitable) > m.cfg.MaxResults {
		suitable = suitable[:m.cfg.MaxResults]
	}

	// For SPLIT the probability is the trend's time share, not fit
	// confidence: the shapes represent how long each regime runs.
	if req.Action == recommend.ActionSplit {
		for i := range suitable {
			suitable[i].Probability = req.Trend.Probability
		}
	}
	return suitable, nil
}

// compatible applies the algorithm's family-matching rule.
func (m *Matcher) compatible(req MatchRequest, s shapes.Shape) bool {
	switch req.Compatibility {
	case recommend.CompatibilitySame:
		return shapes.SameSeries(s.Name, req.Current.Name)
	case recommend.CompatibilityCompatible:
		return shapes.SameFamily(s, req.Current)
	default:
		return true
	}
}

// scanTiers partitions the pool into priority tiers and collects suitable
// candidates tier by tier. Tier order: parent-rule-preferred series, same
// series, same family (cross-series allowed), everything else (cross-series
// and cross-family allowed). Each tier is sorted by (cpu, memory) ascending.
func (m *Matcher) scanTiers(req MatchRequest, pool []shapes.Shape, reqs []Requirement) []shapes.Candidate {
	var tiers [4][]shapes.Shape
	for _, s := range pool {
		switch {
		case m.preferredSeries(s):
			tiers[0] = append(tiers[0], s)
		case shapes.SameSeries(s.Name, req.Current.Name):
			if s.Name == req.Current.Name && req.Action != recommend.ActionSplit {
				continue
			}
			tiers[1] = append(tiers[1], s)
		case shapes.SameFamily(s, req.Current):
			if m.cfg.AllowCrossSeries {
				tiers[2] = append(tiers[2], s)
			}
		default:
			if m.cfg.AllowCrossSeries && m.cfg.AllowCrossFamily {
				tiers[3] = append(tiers[3], s)
			}
		}
	}

	var out []shapes.Candidate
	for _, tier := range tiers {
		sort.Slice(tier, func(i, j int) bool {
			if tier[i].CPU != tier[j].CPU {
				return tier[i].CPU < tier[j].CPU
			}
			return tier[i].MemoryGB < tier[j].MemoryGB
		})
		for _, s := range tier {
			if !suits(s, reqs) {
				continue
			}
			out = append(out, shapes.Candidate{
				Shape:       s,
				Probability: m.fitProbability(req.Trend, req.Current, s),
			})
		}
	}
	return dedupCandidates(out)
}

func (m *Matcher) preferredSeries(s shapes.Shape) bool {
	for _, p := range m.cfg.PreferredSeries {
		if strings.EqualFold(s.Series, p) {
			return true
		}
	}
	return false
}

// suits reports whether a shape satisfies every derived requirement.
func suits(s shapes.Shape, reqs []Requirement) bool {
	for _, r := range reqs {
		if !r.Satisfied(shapeCapacity(s, r.Attr)) {
			return false
		}
	}
	return true
}

// fitProbability scores how well the trend's percentile ladder sits inside
// the candidate's capacity. For each metric with signal, it is the fraction
// of the 9 percentile points that, scaled onto the candidate, land within
// the target utilization band; the shape's probability is the mean of those
// fractions. A candidate with no usable metric signal scores 0.
func (m *Matcher) fitProbability(t Trend, current, candidate shapes.Shape) float64 {
	var fractions []float64
	for _, mt := range t.Metrics {
		if !mt.HasSignal() {
			continue
		}
		currentCap := shapeCapacity(current, mt.Attr)
		candCap := shapeCapacity(candidate, mt.Attr)
		if candCap <= 0 {
			continue
		}

		inBand := 0
		counted := 0
		for _, p := range mt.Percentiles {
			if p == series.NoSignal {
				continue
			}
			var pct float64
			switch mt.Attr {
			case series.AttrAvgDiskIOPS, series.AttrMaxDiskIOPS:
				pct = p / candCap * 100
			default:
				if currentCap <= 0 {
					continue
				}
				pct = p / 100 * currentCap / candCap * 100
			}
			counted++
			if pct >= m.cfg.TargetMinPct && pct <= m.cfg.TargetMaxPct {
				inBand++
			}
		}
		if counted > 0 {
			fractions = append(fractions, float64(inBand)/float64(counted))
		}
	}
	if len(fractions) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range fractions {
		sum += f
	}
	return math.Round(sum/float64(len(fractions))*100) / 100
}

// dedupCandidates removes candidates equal on the whole value, keeping first
// insertion order. Same name with a different probability stays distinct.
func dedupCandidates(in []shapes.Candidate) []shapes.Candidate {
	var out []shapes.Candidate
	for _, c := range in {
		dup := false
		for _, existing := range out {
			if existing.Equal(c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}
