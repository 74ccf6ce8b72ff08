package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// DBSCAN groups density-reachable points into contiguous clusters starting
// at 0 and labels everything else Noise. Unlike k-means it never forces a
// sparse point into a cluster. Deterministic in input order.
func DBSCAN(X [][]float64, eps float64, minPts int) ([]int, error) {
	if eps <= 0 {
		return nil, fmt.Errorf("eps must be positive, got %g", eps)
	}
	if minPts < 1 {
		return nil, fmt.Errorf("min points must be at least 1, got %d", minPts)
	}
	if _, err := matrixWidth(X); err != nil {
		return nil, err
	}

	const unvisited = -2
	labels := make([]int, len(X))
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := range X {
		if labels[i] != unvisited {
			continue
		}
		neighbors := regionQuery(X, i, eps)
		if len(neighbors) < minPts {
			labels[i] = Noise
			continue
		}

		labels[i] = next
		queue := append([]int(nil), neighbors...)
		for head := 0; head < len(queue); head++ {
			j := queue[head]
			if labels[j] == Noise {
				// Border point reached from a core point.
				labels[j] = next
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = next
			jn := regionQuery(X, j, eps)
			if len(jn) >= minPts {
				queue = append(queue, jn...)
			}
		}
		next++
	}
	return labels, nil
}

// regionQuery returns every point within eps of point i, i itself included,
// matching the usual core-point counting convention.
func regionQuery(X [][]float64, i int, eps float64) []int {
	var neighbors []int
	for j, x := range X {
		if floats.Distance(X[i], x, 2) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
