package engine

import (
	"github.com/rightsizer/rightsizer/internal/series"
)

// Band is one of the four utilization bands a cluster falls into, by the CPU
// load of its centroid.
type Band int

const (
	BandShutdown Band = iota
	BandLow
	BandMedium
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandShutdown:
		return "shutdown"
	case BandLow:
		return "low"
	case BandMedium:
		return "medium"
	case BandHigh:
		return "high"
	}
	return "unknown"
}

// activityBands lists the non-shutdown bands in ascending order.
var activityBands = []Band{BandLow, BandMedium, BandHigh}

// Bands holds the per-band period frames accumulated across all analyzed
// days. Frames of the same band are kept as a flat list, not concatenated:
// callers concat only when they need one unified frame.
type Bands struct {
	frames      [4][]series.Frame
	totalRows   int
	perBandRows [4]int
}

// Append adds a period frame to a band.
func (b *Bands) Append(band Band, f series.Frame) {
	b.frames[band] = append(b.frames[band], f)
	b.perBandRows[band] += f.Len()
	b.totalRows += f.Len()
}

// Frames returns the period frames of a band.
func (b *Bands) Frames(band Band) []series.Frame { return b.frames[band] }

// Rows returns the total row count of a band.
func (b *Bands) Rows(band Band) int { return b.perBandRows[band] }

// TotalRows returns the row count across all bands.
func (b *Bands) TotalRows() int { return b.totalRows }

// Share returns the band's fraction of all classified rows.
func (b *Bands) Share(band Band) float64 {
	if b.totalRows == 0 {
		return 0
	}
	return float64(b.perBandRows[band]) / float64(b.totalRows)
}

// QualifyingActivityBands returns the non-shutdown bands whose row share
// clears minShare. Bands below the bar are excluded from multi-trend
// analysis; the shutdown band still feeds schedule synthesis regardless.
func (b *Bands) QualifyingActivityBands(minShare float64) []Band {
	var out []Band
	for _, band := range activityBands {
		if b.perBandRows[band] > 0 && b.Share(band) >= minShare {
			out = append(out, band)
		}
	}
	return out
}

// Classifier buckets each day's clusters into utilization bands using fixed
// CPU-load thresholds on the centroid, and reassembles same-band clusters
// across days into period-frame lists.
type Classifier struct {
	thresholds [3]float64
	minSamples int
}

// NewClassifier creates a classifier. thresholds are [t0,t1,t2]: centroid CPU
// < t0 is shutdown, [t0,t1) low, [t1,t2) medium, >= t2 high. Periods with
// fewer than minSamples rows are dropped.
func NewClassifier(thresholds [3]float64, minSamples int) *Classifier {
	return &Classifier{thresholds: thresholds, minSamples: minSamples}
}

// BandFor assigns a centroid to a band by its CPU load (element 0). Exactly
// one band matches any value; the bands never overlap.
func (c *Classifier) BandFor(centroid []float64) Band {
	cpu := centroid[0]
	switch {
	case cpu < c.thresholds[0]:
		return BandShutdown
	case cpu < c.thresholds[1]:
		return BandLow
	case cpu < c.thresholds[2]:
		return BandMedium
	default:
		return BandHigh
	}
}

// ClassifyDay buckets one day's clusters into bands, appending the resulting
// period frames to acc. Empty centroids mean "no signal" and are skipped.
// The cluster label is dropped: the period frame carries plain samples.
func (c *Classifier) ClassifyDay(day DayFrame, asg ClusterAssignment, acc *Bands) {
	for clusterID, centroid := range asg.Centroids {
		if len(centroid) == 0 {
			continue
		}
		var frame series.Frame
		for row, label := range asg.Labels {
			if label == clusterID {
				frame.Samples = append(frame.Samples, day.Samples[row])
			}
		}
		if frame.Len() == 0 || frame.Len() < c.minSamples {
			continue
		}
		acc.Append(c.BandFor(centroid), frame)
	}
}
