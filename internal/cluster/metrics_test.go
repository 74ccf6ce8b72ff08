package cluster

import (
	"testing"
)

func TestSilhouetteSeparatedBlobs(t *testing.T) {
	X := append(blob(0, 0, 5), blob(10, 10, 5)...)
	labels := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	s := Silhouette(X, labels)
	if s < 0.8 {
		t.Errorf("silhouette = %v, want > 0.8 for well-separated blobs", s)
	}

	// Deliberately shuffled labels must score far worse.
	bad := []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	if sb := Silhouette(X, bad); sb >= s {
		t.Errorf("mislabeled silhouette %v should be below correct %v", sb, s)
	}
}

func TestSilhouetteDegenerate(t *testing.T) {
	X := blob(0, 0, 4)

	if s := Silhouette(X, []int{0, 0, 0, 0}); s != 0 {
		t.Errorf("single-cluster silhouette = %v, want 0", s)
	}
	if s := Silhouette(nil, nil); s != 0 {
		t.Errorf("empty silhouette = %v, want 0", s)
	}

	// Noise points are excluded, leaving one populated cluster.
	if s := Silhouette(X, []int{0, 0, Noise, Noise}); s != 0 {
		t.Errorf("silhouette with one non-noise cluster = %v, want 0", s)
	}
}

func TestCalinskiHarabasz(t *testing.T) {
	X := append(blob(0, 0, 5), blob(10, 10, 5)...)
	good := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	bad := []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}

	chGood := CalinskiHarabasz(X, good)
	chBad := CalinskiHarabasz(X, bad)
	if chGood <= chBad {
		t.Errorf("CH for correct labels (%v) should exceed shuffled labels (%v)", chGood, chBad)
	}
	if ch := CalinskiHarabasz(X, []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}); ch != 0 {
		t.Errorf("single-cluster CH = %v, want 0", ch)
	}
}

func TestDaviesBouldin(t *testing.T) {
	X := append(blob(0, 0, 5), blob(10, 10, 5)...)
	good := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	bad := []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}

	dbGood := DaviesBouldin(X, good)
	dbBad := DaviesBouldin(X, bad)
	if dbGood >= dbBad {
		t.Errorf("DB for correct labels (%v) should be below shuffled labels (%v)", dbGood, dbBad)
	}
}

func TestEvaluateSkipsNoise(t *testing.T) {
	X := append(blob(0, 0, 4), blob(10, 10, 4)...)
	X = append(X, []float64{100, 100})
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1, Noise}

	eval := Evaluate(X, labels)
	if eval.K != 2 {
		t.Errorf("K = %d, want 2 with noise excluded", eval.K)
	}
	if eval.Silhouette < 0.8 {
		t.Errorf("silhouette = %v, want > 0.8 once noise is excluded", eval.Silhouette)
	}
}
