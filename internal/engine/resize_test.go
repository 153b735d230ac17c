package engine

import (
	"context"
	"testing"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/recommend"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

func catalogShape(name string, cpu, mem, net, iops float64) shapes.Shape {
	s := shapes.Shape{Name: name, Cloud: "aws", CPU: cpu, MemoryGB: mem, NetworkGbps: net, IOPS: iops}
	s.FamilyType = shapes.FamilyType(s)
	if prefix, err := shapes.SeriesPrefix(name); err == nil {
		s.Series = prefix
	}
	return s
}

func testCatalog() shapes.Catalog {
	return shapes.NewStaticCatalog([]shapes.Shape{
		catalogShape("m5.large", 2, 8, 1, 3000),
		catalogShape("c5.xlarge", 4, 8, 0, 0),
		catalogShape("c5n.xlarge", 4, 10.5, 15, 0),
		catalogShape("m5.4xlarge", 16, 64, 10, 18750),
	})
}

func testMatcher() *Matcher {
	return NewMatcher(config.ResizeConfig{
		MaxResults:       5,
		AllowCrossSeries: true,
		AllowCrossFamily: true,
		TargetMinPct:     30,
		TargetMaxPct:     70,
	}, testCatalog())
}

func underProvisionedFrame(n int) series.Frame {
	var f series.Frame
	for i := 0; i < n; i++ {
		f.Samples = append(f.Samples, series.Sample{
			CPULoad:       85,
			MemoryLoad:    40,
			NetOutputLoad: 80,
			AvgDiskIOPS:   series.NoSignal,
			MaxDiskIOPS:   series.NoSignal,
		})
	}
	return f
}

func TestRecommend_MonotonicRelaxation(t *testing.T) {
	m := testMatcher()
	current := catalogShape("m5.large", 2, 8, 1, 3000)
	req := MatchRequest{
		Trend:        computeTrend(underProvisionedFrame(20)),
		Current:      current,
		Action:       recommend.ActionScaleUp,
		Cloud:        "aws",
		ResourceType: "INSTANCE",
	}

	// First pass only: the network floor (80% of 1 Gbps) excludes shapes
	// without a bandwidth figure.
	strict, err := m.recommend(context.Background(), req, false)
	if err != nil {
		t.Fatalf("recommend(strict): %v", err)
	}
	full, err := m.Recommend(context.Background(), req)
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}

	if len(full) < len(strict) {
		t.Errorf("relaxation shrank the result set: %d -> %d", len(strict), len(full))
	}
	if len(full) > m.cfg.MaxResults {
		t.Errorf("result set %d exceeds maxResults %d", len(full), m.cfg.MaxResults)
	}

	hasStrict := false
	hasRelaxedOnly := false
	for _, c := range full {
		switch c.Name {
		case "c5n.xlarge":
			hasStrict = true
		case "c5.xlarge":
			hasRelaxedOnly = true
		}
	}
	if !hasStrict {
		t.Error("candidate satisfying the network floor missing from results")
	}
	if !hasRelaxedOnly {
		t.Error("relaxation did not admit the shape lacking a bandwidth figure")
	}
}

func TestRecommend_NoResizeNeeded(t *testing.T) {
	m := testMatcher()
	current := catalogShape("m5.large", 2, 8, 1, 3000)
	tr := computeTrend(frameOf(20, 50, 40)) // load sits inside the target band

	got, err := m.Recommend(context.Background(), MatchRequest{
		Trend: tr, Current: current, Action: recommend.ActionScaleDown,
		Cloud: "aws", ResourceType: "INSTANCE",
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("well-fitted shape produced %d candidates, want 0", len(got))
	}
}

func TestRecommend_SplitKeepsCurrentWithTimeShare(t *testing.T) {
	m := testMatcher()
	current := catalogShape("m5.large", 2, 8, 1, 3000)
	tr := computeTrend(frameOf(20, 50, 40))
	tr.Probability = 0.6
	tr.HasProbability = true

	got, err := m.Recommend(context.Background(), MatchRequest{
		Trend: tr, Current: current, Action: recommend.ActionSplit,
		Cloud: "aws", ResourceType: "INSTANCE",
	})
	if err != nil {
		t.Fatalf("Recommend(): %v", err)
	}
	if len(got) != 1 || got[0].Name != "m5.large" {
		t.Fatalf("split with well-fitted regime = %+v, want the current shape", got)
	}
	if got[0].Probability != 0.6 {
		t.Errorf("probability = %v, want the regime's time share 0.6", got[0].Probability)
	}
}

func TestFeedbackAdjustment_Allows(t *testing.T) {
	adj := FeedbackAdjustment{
		FloorCPU: 4, FloorMemory: 8, HasFloor: true,
		ExcludedNames: map[string]struct{}{"c5.xlarge": {}},
	}

	tests := []struct {
		name string
		s    shapes.Shape
		want bool
	}{
		{"below floor", catalogShape("m5.large", 2, 8, 1, 0), false},
		{"exactly at floor", catalogShape("c5n.xlarge", 4, 8, 15, 0), false},
		{"above floor one dim", catalogShape("m5.xlarge", 4, 16, 10, 0), true},
		{"excluded by name", catalogShape("c5.xlarge", 8, 16, 10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adj.Allows(tt.s); got != tt.want {
				t.Errorf("Allows(%s) = %v, want %v", tt.s.Name, got, tt.want)
			}
		})
	}
}
