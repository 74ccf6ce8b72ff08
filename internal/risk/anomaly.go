// Package risk turns latent vectors, cohort assignments and physical
// features into the final per-meter failure risk scores.
package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// covRidge keeps a cohort covariance matrix invertible.
const covRidge = 1e-6

// AnomalyScores measures how far each meter sits from its cohort's
// centroid in latent space and min-max normalizes the distances over the
// whole population, so scores are comparable across cohorts. Every label
// forms a cohort, including the density-clustering noise label. With
// mahalanobis set, cohorts with at least as many members as the latent
// width use a covariance-aware distance (ridge-regularized); smaller
// cohorts fall back to Euclidean. If all distances are equal the
// population carries no signal and every score is 0.
func AnomalyScores(latents [][]float64, labels []int, mahalanobis bool) ([]float64, error) {
	n := len(latents)
	if n == 0 {
		return nil, nil
	}
	if len(labels) != n {
		return nil, fmt.Errorf("have %d labels for %d latent vectors", len(labels), n)
	}
	dim := len(latents[0])
	for i, z := range latents {
		if len(z) != dim {
			return nil, fmt.Errorf("latent vector %d has width %d, want %d", i, len(z), dim)
		}
	}

	distances := make([]float64, n)
	for _, members := range cohortMembers(labels) {
		centroid := centroidOf(latents, members, dim)
		if mahalanobis && len(members) >= dim {
			if mahalanobisDistances(distances, latents, members, centroid, dim) {
				continue
			}
		}
		for _, i := range members {
			distances[i] = floats.Distance(latents[i], centroid, 2)
		}
	}

	scores := make([]float64, n)
	lo, hi := floats.Min(distances), floats.Max(distances)
	if hi > lo {
		for i, d := range distances {
			scores[i] = (d - lo) / (hi - lo)
		}
	}
	return scores, nil
}

// mahalanobisDistances fills distances for the cohort members and
// reports whether it succeeded; a non-positive-definite covariance
// (degenerate cohort) leaves the slice untouched so the caller can fall
// back to Euclidean.
func mahalanobisDistances(distances []float64, latents [][]float64, members []int, centroid []float64, dim int) bool {
	flat := make([]float64, 0, len(members)*dim)
	for _, i := range members {
		flat = append(flat, latents[i]...)
	}
	points := mat.NewDense(len(members), dim, flat)

	cov := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(cov, points, nil)
	for i := 0; i < dim; i++ {
		cov.SetSym(i, i, cov.At(i, i)+covRidge)
	}

	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return false
	}

	diff := make([]float64, dim)
	var solved mat.VecDense
	for _, i := range members {
		floats.SubTo(diff, latents[i], centroid)
		vec := mat.NewVecDense(dim, diff)
		if err := chol.SolveVecTo(&solved, vec); err != nil {
			return false
		}
		distances[i] = math.Sqrt(mat.Dot(vec, &solved))
	}
	return true
}

// cohortMembers groups row indices by label, ordered by label so runs
// are deterministic.
func cohortMembers(labels []int) [][]int {
	byLabel := make(map[int][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}
	keys := make([]int, 0, len(byLabel))
	for l := range byLabel {
		keys = append(keys, l)
	}
	sort.Ints(keys)
	groups := make([][]int, 0, len(keys))
	for _, l := range keys {
		groups = append(groups, byLabel[l])
	}
	return groups
}

func centroidOf(latents [][]float64, members []int, dim int) []float64 {
	centroid := make([]float64, dim)
	for _, i := range members {
		floats.Add(centroid, latents[i])
	}
	floats.Scale(1/float64(len(members)), centroid)
	return centroid
}
