package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Noise is the sentinel label for points the density-based method leaves
// unassigned. Evaluation metrics skip noise points.
const Noise = -1

// Silhouette computes the mean silhouette coefficient over all non-noise
// points: (b-a)/max(a,b) with a the mean intra-cluster distance and b the
// lowest mean distance to another cluster. Points in singleton clusters
// contribute 0. Returns 0 when fewer than two clusters carry points.
func Silhouette(X [][]float64, labels []int) float64 {
	members := groupMembers(labels)
	if len(members) < 2 {
		return 0
	}

	total := 0.0
	count := 0
	for i, x := range X {
		li := labels[i]
		if li == Noise {
			continue
		}
		own := members[li]
		if len(own) == 1 {
			count++
			continue
		}

		a := 0.0
		for _, j := range own {
			if j == i {
				continue
			}
			a += floats.Distance(x, X[j], 2)
		}
		a /= float64(len(own) - 1)

		b := math.Inf(1)
		for lj, other := range members {
			if lj == li {
				continue
			}
			d := 0.0
			for _, j := range other {
				d += floats.Distance(x, X[j], 2)
			}
			d /= float64(len(other))
			if d < b {
				b = d
			}
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// CalinskiHarabasz computes the between/within dispersion ratio
// (B/(k-1)) / (W/(n-k)). Returns 0 for degenerate partitions.
func CalinskiHarabasz(X [][]float64, labels []int) float64 {
	members := groupMembers(labels)
	k := len(members)
	n := 0
	for _, m := range members {
		n += len(m)
	}
	if k < 2 || n <= k {
		return 0
	}

	dim := len(X[0])
	overall := make([]float64, dim)
	for _, m := range members {
		for _, i := range m {
			floats.Add(overall, X[i])
		}
	}
	floats.Scale(1/float64(n), overall)

	between := 0.0
	within := 0.0
	for _, m := range members {
		c := centroidOf(X, m, dim)
		d := floats.Distance(c, overall, 2)
		between += float64(len(m)) * d * d
		for _, i := range m {
			d := floats.Distance(X[i], c, 2)
			within += d * d
		}
	}
	if within == 0 {
		return 0
	}
	return (between / float64(k-1)) / (within / float64(n-k))
}

// DaviesBouldin computes the mean over clusters of the worst
// (s_i + s_j) / d(c_i, c_j) pairing, where s is the mean member distance to
// the centroid. Lower is more compact. Returns 0 for degenerate partitions.
func DaviesBouldin(X [][]float64, labels []int) float64 {
	members := groupMembers(labels)
	k := len(members)
	if k < 2 {
		return 0
	}

	dim := len(X[0])
	order := sortedLabels(members)
	centroids := make([][]float64, k)
	scatter := make([]float64, k)
	for idx, label := range order {
		m := members[label]
		centroids[idx] = centroidOf(X, m, dim)
		s := 0.0
		for _, i := range m {
			s += floats.Distance(X[i], centroids[idx], 2)
		}
		scatter[idx] = s / float64(len(m))
	}

	total := 0.0
	for i := 0; i < k; i++ {
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			d := floats.Distance(centroids[i], centroids[j], 2)
			if d == 0 {
				continue
			}
			if r := (scatter[i] + scatter[j]) / d; r > worst {
				worst = r
			}
		}
		total += worst
	}
	return total / float64(k)
}

// Evaluation bundles the selection diagnostics for one candidate partition.
type Evaluation struct {
	K                int
	Silhouette       float64
	CalinskiHarabasz float64
	DaviesBouldin    float64
}

// Evaluate computes all three diagnostics for a partition.
func Evaluate(X [][]float64, labels []int) Evaluation {
	members := groupMembers(labels)
	return Evaluation{
		K:                len(members),
		Silhouette:       Silhouette(X, labels),
		CalinskiHarabasz: CalinskiHarabasz(X, labels),
		DaviesBouldin:    DaviesBouldin(X, labels),
	}
}

func groupMembers(labels []int) map[int][]int {
	members := make(map[int][]int)
	for i, l := range labels {
		if l == Noise {
			continue
		}
		members[l] = append(members[l], i)
	}
	return members
}

func sortedLabels(members map[int][]int) []int {
	order := make([]int, 0, len(members))
	for l := range members {
		order = append(order, l)
	}
	sort.Ints(order)
	return order
}

func centroidOf(X [][]float64, members []int, dim int) []float64 {
	c := make([]float64, dim)
	for _, i := range members {
		floats.Add(c, X[i])
	}
	floats.Scale(1/float64(len(members)), c)
	return c
}
