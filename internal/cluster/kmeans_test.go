package cluster

import (
	"math"
	"reflect"
	"testing"
)

// blob returns n points scattered deterministically around (cx, cy).
func blob(cx, cy float64, n int) [][]float64 {
	offsets := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1}, {-0.1, 0}, {0, -0.1},
		{0.1, 0.1}, {-0.1, -0.1}, {0.1, -0.1}, {-0.1, 0.1},
	}
	pts := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		o := offsets[i%len(offsets)]
		pts = append(pts, []float64{cx + o[0], cy + o[1]})
	}
	return pts
}

func TestKMeansTwoBlobs(t *testing.T) {
	X := append(blob(0, 0, 6), blob(10, 10, 6)...)

	res, err := KMeans{K: 2, NInit: 5, Seed: 42}.Fit(X)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	// All points of a blob share a label, and the blobs differ.
	first := res.Labels[0]
	for i := 1; i < 6; i++ {
		if res.Labels[i] != first {
			t.Errorf("point %d: label %d, want %d", i, res.Labels[i], first)
		}
	}
	second := res.Labels[6]
	if second == first {
		t.Error("blobs were merged into one cluster")
	}
	for i := 7; i < 12; i++ {
		if res.Labels[i] != second {
			t.Errorf("point %d: label %d, want %d", i, res.Labels[i], second)
		}
	}

	// Labels are contiguous from zero.
	seen := map[int]bool{}
	for _, l := range res.Labels {
		if l < 0 || l > 1 {
			t.Fatalf("label %d outside {0,1}", l)
		}
		seen[l] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both labels used, got %v", seen)
	}
}

func TestKMeansDeterministic(t *testing.T) {
	X := append(blob(0, 0, 5), blob(4, 4, 5)...)

	a, err := KMeans{K: 2, NInit: 10, Seed: 42}.Fit(X)
	if err != nil {
		t.Fatalf("first Fit: %v", err)
	}
	b, err := KMeans{K: 2, NInit: 10, Seed: 42}.Fit(X)
	if err != nil {
		t.Fatalf("second Fit: %v", err)
	}
	if !reflect.DeepEqual(a.Labels, b.Labels) {
		t.Error("same seed produced different partitions")
	}
	if math.Abs(a.Inertia-b.Inertia) > 1e-12 {
		t.Errorf("inertia differs: %v vs %v", a.Inertia, b.Inertia)
	}
}

func TestKMeansSingleCluster(t *testing.T) {
	X := blob(1, 1, 4)
	res, err := KMeans{K: 1, Seed: 42}.Fit(X)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for i, l := range res.Labels {
		if l != 0 {
			t.Errorf("point %d: label %d, want 0", i, l)
		}
	}
	if len(res.Centroids) != 1 {
		t.Fatalf("centroids = %d, want 1", len(res.Centroids))
	}
}

func TestKMeansErrors(t *testing.T) {
	tests := []struct {
		name string
		km   KMeans
		X    [][]float64
	}{
		{"k below one", KMeans{K: 0}, blob(0, 0, 3)},
		{"more clusters than points", KMeans{K: 5}, blob(0, 0, 3)},
		{"ragged matrix", KMeans{K: 1}, [][]float64{{1, 2}, {1}}},
		{"empty matrix", KMeans{K: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.km.Fit(tt.X); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
