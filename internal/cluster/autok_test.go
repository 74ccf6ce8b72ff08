package cluster

import (
	"testing"
)

func TestSelectKFindsThreeBlobs(t *testing.T) {
	X := append(blob(0, 0, 6), blob(10, 10, 6)...)
	X = append(X, blob(-10, 10, 6)...)

	sel, err := SelectK(X, Scan{KMin: 2, KMax: 6, NInit: 5, Seed: 42})
	if err != nil {
		t.Fatalf("SelectK: %v", err)
	}
	if sel.K != 3 {
		t.Errorf("selected k = %d, want 3", sel.K)
	}
	if len(sel.Evaluations) != 5 {
		t.Errorf("evaluations = %d, want one per candidate k", len(sel.Evaluations))
	}

	// The winning partition's labels are contiguous {0,...,k-1}.
	seen := map[int]bool{}
	for _, l := range sel.Result.Labels {
		if l < 0 || l >= sel.K {
			t.Fatalf("label %d outside {0,...,%d}", l, sel.K-1)
		}
		seen[l] = true
	}
	if len(seen) != sel.K {
		t.Errorf("only %d of %d labels used", len(seen), sel.K)
	}
}

func TestSelectKTinyPopulation(t *testing.T) {
	// Two points cannot support any k in [2, n-1]; the scan collapses to a
	// single cluster instead of failing.
	X := [][]float64{{0, 0}, {1, 1}}

	sel, err := SelectK(X, Scan{KMin: 2, KMax: 20, Seed: 42})
	if err != nil {
		t.Fatalf("SelectK: %v", err)
	}
	if sel.K != 1 {
		t.Errorf("k = %d, want 1 for a degenerate population", sel.K)
	}
	for i, l := range sel.Result.Labels {
		if l != 0 {
			t.Errorf("point %d: label %d, want 0", i, l)
		}
	}
	if sel.Silhouette != 0 {
		t.Errorf("degenerate silhouette = %v, want 0", sel.Silhouette)
	}
}

func TestSelectKCapsAtPopulation(t *testing.T) {
	// Four points cap the scan at k=3 regardless of KMax.
	X := [][]float64{{0, 0}, {0.1, 0}, {10, 10}, {10.1, 10}}

	sel, err := SelectK(X, Scan{KMin: 2, KMax: 20, NInit: 3, Seed: 42})
	if err != nil {
		t.Fatalf("SelectK: %v", err)
	}
	if sel.K != 2 {
		t.Errorf("selected k = %d, want 2", sel.K)
	}
	if len(sel.Evaluations) != 2 {
		t.Errorf("evaluations = %d, want 2 (k=2 and k=3)", len(sel.Evaluations))
	}
}

func TestFitFixed(t *testing.T) {
	X := append(blob(0, 0, 5), blob(10, 10, 5)...)

	sel, err := FitFixed(X, 2, Scan{NInit: 5, Seed: 42})
	if err != nil {
		t.Fatalf("FitFixed: %v", err)
	}
	if sel.K != 2 {
		t.Errorf("k = %d, want 2", sel.K)
	}

	single, err := FitFixed(X, 1, Scan{Seed: 42})
	if err != nil {
		t.Fatalf("FitFixed k=1: %v", err)
	}
	for i, l := range single.Result.Labels {
		if l != 0 {
			t.Errorf("point %d: label %d, want 0", i, l)
		}
	}
}
