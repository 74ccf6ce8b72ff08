package cluster

import (
	"fmt"
)

// Scan bounds the silhouette-driven k selection.
type Scan struct {
	KMin    int
	KMax    int
	NInit   int
	MaxIter int
	Tol     float64
	Seed    int64
}

// Selection is the winning partition plus the diagnostics of every candidate
// k that was evaluated. Only silhouette drives the choice; the other indexes
// are reported for operators comparing partitions.
type Selection struct {
	K           int
	Silhouette  float64
	Result      *Result
	Evaluations []Evaluation
}

// SelectK fits a partition at every k in [KMin, min(KMax, n-1)] and keeps
// the one maximizing silhouette, first encountered maximum winning ties.
// Populations too small to scan collapse to a single all-zero cluster
// rather than failing.
func SelectK(X [][]float64, scan Scan) (*Selection, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("cannot cluster an empty population")
	}
	if _, err := matrixWidth(X); err != nil {
		return nil, err
	}

	kmax := scan.KMax
	if kmax > n-1 {
		kmax = n - 1
	}
	if scan.KMin < 2 || kmax < scan.KMin {
		return singleCluster(X), nil
	}

	var best *Selection
	evals := make([]Evaluation, 0, kmax-scan.KMin+1)
	for k := scan.KMin; k <= kmax; k++ {
		res, err := KMeans{
			K:       k,
			NInit:   scan.NInit,
			MaxIter: scan.MaxIter,
			Tol:     scan.Tol,
			Seed:    scan.Seed,
		}.Fit(X)
		if err != nil {
			return nil, fmt.Errorf("fitting k=%d: %w", k, err)
		}
		eval := Evaluate(X, res.Labels)
		eval.K = k
		evals = append(evals, eval)

		if best == nil || eval.Silhouette > best.Silhouette {
			best = &Selection{K: k, Silhouette: eval.Silhouette, Result: res}
		}
	}
	best.Evaluations = evals
	return best, nil
}

// FitFixed fits a single partition at a caller-chosen k, reporting the same
// diagnostics the scan would.
func FitFixed(X [][]float64, k int, scan Scan) (*Selection, error) {
	if k == 1 {
		return singleCluster(X), nil
	}
	res, err := KMeans{
		K:       k,
		NInit:   scan.NInit,
		MaxIter: scan.MaxIter,
		Tol:     scan.Tol,
		Seed:    scan.Seed,
	}.Fit(X)
	if err != nil {
		return nil, err
	}
	eval := Evaluate(X, res.Labels)
	eval.K = k
	return &Selection{
		K:           k,
		Silhouette:  eval.Silhouette,
		Result:      res,
		Evaluations: []Evaluation{eval},
	}, nil
}

// singleCluster assigns every point to cluster 0. Used when the population
// is too small for any candidate k.
func singleCluster(X [][]float64) *Selection {
	labels := make([]int, len(X))
	dim := len(X[0])
	members := make([]int, len(X))
	for i := range members {
		members[i] = i
	}
	centroid := centroidOf(X, members, dim)

	inertia := 0.0
	for _, x := range X {
		d := 0.0
		for j := range x {
			diff := x[j] - centroid[j]
			d += diff * diff
		}
		inertia += d
	}

	return &Selection{
		K:          1,
		Silhouette: 0,
		Result: &Result{
			Labels:    labels,
			Centroids: [][]float64{centroid},
			Inertia:   inertia,
		},
		Evaluations: []Evaluation{{K: 1}},
	}
}
