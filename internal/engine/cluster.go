package engine

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/rightsizer/rightsizer/internal/config"
)

// ClusterAssignment maps day-frame rows to behavior clusters. Labels are
// contiguous integers starting at 0. Centroids[i] is nil when cluster i holds
// no rows; consumers must skip it, not treat it as zero. Centroid vectors
// follow series.MetricAttributes order, CPU load first.
type ClusterAssignment struct {
	Labels    []int
	Centroids [][]float64
}

// Clusterer runs an unsupervised clustering pass over one day of samples to
// find 1..maxClusters utilization behavior clusters. k is chosen with an
// elbow heuristic over the within-cluster scatter curve.
type Clusterer struct {
	cfg config.ClustererConfig
}

// NewClusterer creates a clusterer.
func NewClusterer(cfg config.ClustererConfig) *Clusterer {
	if cfg.MaxClusters < 1 {
		cfg.MaxClusters = 1
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	return &Clusterer{cfg: cfg}
}

// Cluster assigns each row of the day frame to a cluster and returns the
// per-cluster centroids.
func (c *Clusterer) Cluster(day DayFrame) ClusterAssignment {
	rows := make([][]float64, day.Len())
	for i, smp := range day.Samples {
		rows[i] = smp.Vector()
	}
	if len(rows) == 0 {
		return ClusterAssignment{}
	}

	maxK := c.cfg.MaxClusters
	if distinct := countDistinct(rows); distinct < maxK {
		maxK = distinct
	}
	if maxK < 1 {
		maxK = 1
	}

	// Sweep k and keep the scatter curve for the elbow pick.
	type result struct {
		labels    []int
		centroids [][]float64
		scatter   float64
	}
	results := make([]result, maxK)
	for k := 1; k <= maxK; k++ {
		labels, centroids := c.kmeans(rows, k)
		results[k-1] = result{labels, centroids, withinScatter(rows, labels, centroids)}
	}

	best := results[elbowIndex(results, func(r result) float64 { return r.scatter })]
	labels, centroids := relabel(best.labels, best.centroids)
	return ClusterAssignment{Labels: labels, Centroids: centroids}
}

// kmeans runs Lloyd iterations with deterministic quantile seeding: rows are
// ordered by CPU load and the initial centroids are picked at even quantiles,
// which keeps repeated scans reproducible.
func (c *Clusterer) kmeans(rows [][]float64, k int) ([]int, [][]float64) {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rows[order[a]][0] < rows[order[b]][0] })

	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		idx := order[(i*2+1)*len(order)/(2*k)]
		centroids[i] = append([]float64(nil), rows[idx]...)
	}

	labels := make([]int, len(rows))
	for iter := 0; iter < c.cfg.MaxIterations; iter++ {
		changed := false
		for i, row := range rows {
			best, bestDist := -1, math.Inf(1)
			for j := 0; j < k; j++ {
				if centroids[j] == nil {
					continue
				}
				if d := floats.Distance(row, centroids[j], 2); d < bestDist {
					best, bestDist = j, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for j := range sums {
			sums[j] = make([]float64, len(rows[0]))
		}
		for i, row := range rows {
			counts[labels[i]]++
			floats.Add(sums[labels[i]], row)
		}
		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				centroids[j] = nil
				continue
			}
			floats.Scale(1/float64(counts[j]), sums[j])
			centroids[j] = sums[j]
		}
	}
	return labels, centroids
}

// withinScatter is the total squared distance of rows to their centroid.
func withinScatter(rows [][]float64, labels []int, centroids [][]float64) float64 {
	total := 0.0
	for i, row := range rows {
		c := centroids[labels[i]]
		if c == nil {
			continue
		}
		d := floats.Distance(row, c, 2)
		total += d * d
	}
	return total
}

// elbowIndex picks the k (as slice index) where the scatter curve bends the
// most, using the largest second difference. Monotone-flat curves fall back
// to the first k whose marginal improvement drops below 10%.
func elbowIndex[T any](results []T, scatter func(T) float64) int {
	n := len(results)
	if n <= 2 {
		if n == 2 && scatter(results[1]) < scatter(results[0])*0.9 {
			return 1
		}
		return 0
	}

	bestIdx, bestBend := 0, 0.0
	for i := 1; i < n-1; i++ {
		bend := scatter(results[i-1]) - 2*scatter(results[i]) + scatter(results[i+1])
		if bend > bestBend {
			bestIdx, bestBend = i, bend
		}
	}
	if bestBend > 0 {
		return bestIdx
	}
	for i := 1; i < n; i++ {
		prev := scatter(results[i-1])
		if prev == 0 || scatter(results[i]) > prev*0.9 {
			return i - 1
		}
	}
	return n - 1
}

// relabel compacts cluster ids to contiguous integers starting at 0,
// preserving first-appearance order. Centroids of dropped (empty) clusters
// are carried as nil entries only when a label still points at them.
func relabel(labels []int, centroids [][]float64) ([]int, [][]float64) {
	remap := make(map[int]int)
	var outCentroids [][]float64
	outLabels := make([]int, len(labels))
	for i, l := range labels {
		id, ok := remap[l]
		if !ok {
			id = len(outCentroids)
			remap[l] = id
			outCentroids = append(outCentroids, centroids[l])
		}
		outLabels[i] = id
	}
	return outLabels, outCentroids
}

func countDistinct(rows [][]float64) int {
	seen := make(map[string]struct{}, len(rows))
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for _, v := range row {
			b.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
			b.WriteByte(',')
		}
		seen[b.String()] = struct{}{}
	}
	return len(seen)
}
