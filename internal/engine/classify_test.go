package engine

import (
	"testing"

	"github.com/rightsizer/rightsizer/internal/series"
)

func TestBandFor_Totality(t *testing.T) {
	c := NewClassifier([3]float64{10, 30, 70}, 1)

	tests := []struct {
		cpu  float64
		want Band
	}{
		{0, BandShutdown},
		{9.99, BandShutdown},
		{10, BandLow},
		{29.99, BandLow},
		{30, BandMedium},
		{69.99, BandMedium},
		{70, BandHigh},
		{100, BandHigh},
	}
	for _, tt := range tests {
		got := c.BandFor([]float64{tt.cpu})
		if got != tt.want {
			t.Errorf("BandFor(cpu=%v) = %v, want %v", tt.cpu, got, tt.want)
		}
	}
}

func TestClassifyDay_DropsShortPeriods(t *testing.T) {
	c := NewClassifier([3]float64{10, 30, 70}, 4)

	day := DayFrame{}
	for i := 0; i < 6; i++ {
		day.Samples = append(day.Samples, series.Sample{CPULoad: 80})
	}
	// 6 rows in cluster 0, 2 rows in cluster 1.
	asg := ClusterAssignment{
		Labels:    []int{0, 0, 0, 0, 1, 1},
		Centroids: [][]float64{{80, 0, 0, 0, 0}, {5, 0, 0, 0, 0}},
	}

	var bands Bands
	c.ClassifyDay(day, asg, &bands)

	if got := bands.Rows(BandHigh); got != 4 {
		t.Errorf("high band rows = %d, want 4", got)
	}
	if got := bands.Rows(BandShutdown); got != 0 {
		t.Errorf("shutdown band rows = %d, want 0 (period shorter than minSamples)", got)
	}
}

func TestQualifyingActivityBands(t *testing.T) {
	var bands Bands
	// 90 high rows, 5 low rows, 5 shutdown rows: low sits exactly at 5%.
	bands.Append(BandHigh, series.Frame{Samples: make([]series.Sample, 90)})
	bands.Append(BandLow, series.Frame{Samples: make([]series.Sample, 5)})
	bands.Append(BandShutdown, series.Frame{Samples: make([]series.Sample, 5)})

	got := bands.QualifyingActivityBands(0.05)
	if len(got) != 2 || got[0] != BandLow || got[1] != BandHigh {
		t.Fatalf("QualifyingActivityBands(0.05) = %v, want [low high]", got)
	}

	// Raise the bar: only high survives, shutdown never qualifies.
	got = bands.QualifyingActivityBands(0.10)
	if len(got) != 1 || got[0] != BandHigh {
		t.Fatalf("QualifyingActivityBands(0.10) = %v, want [high]", got)
	}
}
