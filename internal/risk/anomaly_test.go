package risk

import (
	"math"
	"testing"
)

func TestAnomalyScoresEuclidean(t *testing.T) {
	latents := [][]float64{
		{0, 0},
		{0, 0},
		{0, 3},
		{10, 10},
		{10, 10},
	}
	labels := []int{0, 0, 0, 1, 1}

	scores, err := AnomalyScores(latents, labels, false)
	if err != nil {
		t.Fatalf("AnomalyScores: %v", err)
	}

	// Cohort 0 centroid (0,1): distances 1, 1, 2. Cohort 1 is two
	// identical points, distance 0. Min-max over {1,1,2,0,0}.
	want := []float64{0.5, 0.5, 1.0, 0, 0}
	for i := range want {
		if math.Abs(scores[i]-want[i]) > 1e-9 {
			t.Errorf("score[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
	if scores[2] <= scores[0] {
		t.Error("the farther member must score higher than its cohort peers")
	}
}

func TestAnomalyScoresDegenerate(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		latents := [][]float64{{1, 1}, {1, 1}, {1, 1}}
		scores, err := AnomalyScores(latents, []int{0, 0, 0}, false)
		if err != nil {
			t.Fatalf("AnomalyScores: %v", err)
		}
		for i, s := range scores {
			if s != 0 {
				t.Errorf("score[%d] = %v, want 0", i, s)
			}
		}
	})

	t.Run("singleton cohorts", func(t *testing.T) {
		latents := [][]float64{{1, 2}, {5, 6}}
		scores, err := AnomalyScores(latents, []int{0, 1}, false)
		if err != nil {
			t.Fatalf("AnomalyScores: %v", err)
		}
		for i, s := range scores {
			if s != 0 {
				t.Errorf("score[%d] = %v, want 0 (each meter is its own centroid)", i, s)
			}
		}
	})

	t.Run("empty population", func(t *testing.T) {
		scores, err := AnomalyScores(nil, nil, false)
		if err != nil || scores != nil {
			t.Errorf("got %v, %v; want nil, nil", scores, err)
		}
	})
}

func TestAnomalyScoresNoiseCohort(t *testing.T) {
	latents := [][]float64{{0, 0}, {0, 2}, {5, 5}, {9, 9}}
	labels := []int{0, 0, -1, -1}

	scores, err := AnomalyScores(latents, labels, false)
	if err != nil {
		t.Fatalf("AnomalyScores: %v", err)
	}

	// Noise forms a cohort of its own: centroid (7,7), both members
	// 2*sqrt(2) away, farther than cohort 0's members are from theirs.
	if scores[2] != 1 || scores[3] != 1 {
		t.Errorf("noise scores = %v, %v, want 1, 1", scores[2], scores[3])
	}
	if scores[0] != 0 || scores[1] != 0 {
		t.Errorf("cohort 0 scores = %v, %v, want 0, 0", scores[0], scores[1])
	}
}

func TestAnomalyScoresMahalanobis(t *testing.T) {
	// One cohort stretched along x and tight along y. The x-outlier is
	// far in Euclidean terms but ordinary once covariance is accounted
	// for; the y-deviant is the reverse.
	latents := [][]float64{
		{-4, 0}, {-3, 0}, {-2, 0}, {-1, 0},
		{1, 0}, {2, 0}, {3, 0}, {4, 0},
		{3.5, 0}, // far along the stretched axis
		{0, 0.5}, // small shift on the tight axis
	}
	labels := make([]int, len(latents))

	euclid, err := AnomalyScores(latents, labels, false)
	if err != nil {
		t.Fatalf("euclidean: %v", err)
	}
	if euclid[8] <= euclid[9] {
		t.Errorf("euclidean: x-outlier %v should outscore y-deviant %v", euclid[8], euclid[9])
	}

	mahal, err := AnomalyScores(latents, labels, true)
	if err != nil {
		t.Fatalf("mahalanobis: %v", err)
	}
	if mahal[9] <= mahal[8] {
		t.Errorf("mahalanobis: y-deviant %v should outscore x-outlier %v", mahal[9], mahal[8])
	}
}

func TestAnomalyScoresMahalanobisFallback(t *testing.T) {
	// Every cohort is smaller than the latent width, so both metrics
	// must agree.
	latents := [][]float64{{0, 0, 0}, {2, 0, 0}, {9, 9, 9}}
	labels := []int{0, 0, 1}

	euclid, err := AnomalyScores(latents, labels, false)
	if err != nil {
		t.Fatalf("euclidean: %v", err)
	}
	mahal, err := AnomalyScores(latents, labels, true)
	if err != nil {
		t.Fatalf("mahalanobis: %v", err)
	}
	for i := range euclid {
		if math.Abs(euclid[i]-mahal[i]) > 1e-12 {
			t.Errorf("score[%d]: euclidean %v != fallback %v", i, euclid[i], mahal[i])
		}
	}
}

func TestAnomalyScoresErrors(t *testing.T) {
	if _, err := AnomalyScores([][]float64{{1, 2}}, []int{0, 1}, false); err == nil {
		t.Error("expected an error for label count mismatch")
	}
	if _, err := AnomalyScores([][]float64{{1, 2}, {1}}, []int{0, 0}, false); err == nil {
		t.Error("expected an error for ragged latent vectors")
	}
}
