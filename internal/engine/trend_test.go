package engine

import (
	"math"
	"testing"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

var testShape = shapes.Shape{Name: "m5.large", Cloud: "aws", CPU: 2, MemoryGB: 8, Series: "m5", FamilyType: "general"}

var testBand = TargetBand{MinPct: 30, MaxPct: 70}

func frameOf(n int, cpu, mem float64) series.Frame {
	var f series.Frame
	for i := 0; i < n; i++ {
		f.Samples = append(f.Samples, series.Sample{
			CPULoad:       cpu,
			MemoryLoad:    mem,
			NetOutputLoad: series.NoSignal,
			AvgDiskIOPS:   series.NoSignal,
			MaxDiskIOPS:   series.NoSignal,
		})
	}
	return f
}

func testAggregator() *TrendAggregator {
	return NewTrendAggregator(config.TrendConfig{
		Thresholds:       [3]float64{10, 30, 70},
		MinPeriodShare:   0.05,
		MinPeriodSamples: 4,
		AllowSplit:       true,
	})
}

func TestAggregate_SingleQualifyingBand(t *testing.T) {
	var bands Bands
	bands.Append(BandHigh, frameOf(90, 85, 40))
	bands.Append(BandShutdown, frameOf(10, 2, 2))

	trends := testAggregator().Aggregate(&bands, testShape, testBand)
	if len(trends) != 1 {
		t.Fatalf("Aggregate() returned %d trends, want 1", len(trends))
	}
	if trends[0].HasProbability {
		t.Error("single merged trend should be probability-less")
	}
	cpu, ok := trends[0].Metric(series.AttrCPULoad)
	if !ok {
		t.Fatal("cpu trend missing")
	}
	if cpu.Mean != 85 {
		t.Errorf("cpu mean = %v, want 85 (shutdown rows must not dilute the merged trend)", cpu.Mean)
	}
}

func TestAggregate_MultiTrendSharesSumToOne(t *testing.T) {
	var bands Bands
	// Two regimes covering the whole series: shares must sum to exactly 1
	// despite per-trend rounding.
	bands.Append(BandLow, frameOf(33, 20, 20))
	bands.Append(BandHigh, frameOf(67, 85, 40))

	trends := testAggregator().Aggregate(&bands, testShape, testBand)
	if len(trends) != 2 {
		t.Fatalf("Aggregate() returned %d trends, want 2", len(trends))
	}
	sum := 0.0
	for _, tr := range trends {
		if !tr.HasProbability {
			t.Error("multi-trend entry missing probability")
		}
		sum += tr.Probability
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v, want 1 within 1e-9", sum)
	}
}

func TestAggregate_DedupsEquivalentDirections(t *testing.T) {
	var bands Bands
	// Both regimes push the shape up: identical direction maps must merge
	// into one trend carrying the combined probability.
	bands.Append(BandMedium, frameOf(50, 75, 40))
	bands.Append(BandHigh, frameOf(50, 95, 40))

	trends := testAggregator().Aggregate(&bands, shapes.Shape{Name: "t.small", CPU: 1, MemoryGB: 8}, testBand)
	if len(trends) != 1 {
		t.Fatalf("Aggregate() returned %d trends, want 1 after direction dedup", len(trends))
	}
	if math.Abs(trends[0].Probability-1) > 1e-9 {
		t.Errorf("merged probability = %v, want 1", trends[0].Probability)
	}
}

func TestRelaxed_IsPure(t *testing.T) {
	f := series.Frame{}
	for i := 0; i < 10; i++ {
		f.Samples = append(f.Samples, series.Sample{
			CPULoad: 50, MemoryLoad: 50, NetOutputLoad: 80,
			AvgDiskIOPS: 500, MaxDiskIOPS: 900,
		})
	}
	tr := computeTrend(f)

	relaxed := tr.Relaxed()
	if !relaxed.IsRelaxed() {
		t.Error("Relaxed() result not flagged as relaxed")
	}
	if m, _ := relaxed.Metric(series.AttrNetOutputLoad); m.HasSignal() {
		t.Error("relaxed trend still carries network signal")
	}
	if m, _ := tr.Metric(series.AttrNetOutputLoad); !m.HasSignal() {
		t.Error("Relaxed() mutated the receiver")
	}
}

func TestRequirements_TargetBandWindow(t *testing.T) {
	tr := computeTrend(frameOf(20, 85, 40))
	reqs := tr.Requirements(testShape, testBand)

	var cpuReq Requirement
	for _, r := range reqs {
		if r.Attr == series.AttrCPULoad {
			cpuReq = r
		}
	}
	// P90 demand = 85% of 2 vCPU = 1.7; capacity window keeps it in 30-70%.
	wantMin, wantMax := 1.7/0.7, 1.7/0.3
	if math.Abs(cpuReq.Min-wantMin) > 1e-9 || math.Abs(cpuReq.Max-wantMax) > 1e-9 {
		t.Errorf("cpu requirement = [%v, %v], want [%v, %v]", cpuReq.Min, cpuReq.Max, wantMin, wantMax)
	}

	if !tr.RequiresResize(testShape, testBand) {
		t.Error("85%% load on a 2-vCPU shape must require resize")
	}
	dirs := tr.Directions(testShape, testBand)
	if dirs[series.AttrCPULoad] != DirectionUp {
		t.Errorf("cpu direction = %v, want up", dirs[series.AttrCPULoad])
	}
}

func TestComputeTrend_PercentileLadderMonotonic(t *testing.T) {
	var f series.Frame
	for i := 1; i <= 100; i++ {
		f.Samples = append(f.Samples, series.Sample{CPULoad: float64(i)})
	}
	tr := computeTrend(f)
	cpu, _ := tr.Metric(series.AttrCPULoad)
	for i := 1; i < 9; i++ {
		if cpu.Percentiles[i] < cpu.Percentiles[i-1] {
			t.Fatalf("percentile ladder not monotonic: %v", cpu.Percentiles)
		}
	}
	if cpu.Mean != 50.5 {
		t.Errorf("mean = %v, want 50.5", cpu.Mean)
	}
}
