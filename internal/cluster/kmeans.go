// Package cluster implements the partitioning and quality metrics used by
// both clustering stages: k-means with k-means++ seeding and restarts,
// silhouette-driven k selection, and a density-based alternative that can
// leave points unassigned.
package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// KMeans holds the fit parameters. Zero values fall back to the reference
// defaults at Fit time.
type KMeans struct {
	K       int
	NInit   int
	MaxIter int
	Tol     float64
	Seed    int64
}

// Result is one fitted partition. Labels are contiguous in {0,...,K-1}.
type Result struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// Fit partitions X into K groups minimizing within-group squared distance
// to the centroid. It runs NInit independent k-means++ initializations and
// keeps the lowest-inertia partition. Deterministic for a fixed Seed.
func (km KMeans) Fit(X [][]float64) (*Result, error) {
	n := len(X)
	if km.K < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", km.K)
	}
	if n < km.K {
		return nil, fmt.Errorf("cannot form %d clusters from %d points", km.K, n)
	}
	dim, err := matrixWidth(X)
	if err != nil {
		return nil, err
	}

	nInit := km.NInit
	if nInit < 1 {
		nInit = 10
	}
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = 300
	}
	tol := km.Tol
	if tol <= 0 {
		tol = 1e-4
	}

	rng := rand.New(rand.NewSource(km.Seed))

	var best *Result
	for run := 0; run < nInit; run++ {
		res := km.fitOnce(X, dim, maxIter, tol, rng)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func (km KMeans) fitOnce(X [][]float64, dim, maxIter int, tol float64, rng *rand.Rand) *Result {
	centroids := seedPlusPlus(X, km.K, rng)
	labels := make([]int, len(X))

	for iter := 0; iter < maxIter; iter++ {
		// Assignment step.
		for i, x := range X {
			labels[i] = nearestCentroid(x, centroids)
		}

		// Update step.
		next := make([][]float64, km.K)
		counts := make([]int, km.K)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, x := range X {
			c := labels[i]
			floats.Add(next[c], x)
			counts[c]++
		}
		for c := range next {
			if counts[c] == 0 {
				// Re-seed an emptied cluster on the point farthest from
				// its current centroid.
				far := farthestPoint(X, labels, centroids)
				copy(next[c], X[far])
				labels[far] = c
				counts[c] = 1
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		shift := 0.0
		for c := range centroids {
			shift += floats.Distance(centroids[c], next[c], 2)
		}
		centroids = next
		if shift < tol {
			break
		}
	}

	// Final assignment against the converged centroids.
	inertia := 0.0
	for i, x := range X {
		labels[i] = nearestCentroid(x, centroids)
		d := floats.Distance(x, centroids[labels[i]], 2)
		inertia += d * d
	}

	return &Result{Labels: labels, Centroids: centroids, Inertia: inertia}
}

// seedPlusPlus picks initial centroids with D^2-weighted sampling.
func seedPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := X[rng.Intn(len(X))]
	centroids = append(centroids, cloneVec(first))

	dists := make([]float64, len(X))
	for len(centroids) < k {
		total := 0.0
		for i, x := range X {
			d := floats.Distance(x, centroids[0], 2)
			min := d * d
			for _, c := range centroids[1:] {
				d = floats.Distance(x, c, 2)
				if dd := d * d; dd < min {
					min = dd
				}
			}
			dists[i] = min
			total += min
		}
		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, cloneVec(X[rng.Intn(len(X))]))
			continue
		}
		target := rng.Float64() * total
		acc := 0.0
		pick := len(X) - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, cloneVec(X[pick]))
	}
	return centroids
}

func nearestCentroid(x []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, cent := range centroids {
		if d := floats.Distance(x, cent, 2); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func farthestPoint(X [][]float64, labels []int, centroids [][]float64) int {
	far := 0
	farDist := -1.0
	for i, x := range X {
		d := floats.Distance(x, centroids[labels[i]], 2)
		if d > farDist {
			farDist = d
			far = i
		}
	}
	return far
}

func cloneVec(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}

func matrixWidth(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("empty matrix")
	}
	dim := len(X[0])
	for i, row := range X {
		if len(row) != dim {
			return 0, fmt.Errorf("row %d has width %d, expected %d", i, len(row), dim)
		}
	}
	return dim, nil
}
