package risk

import (
	"math"
	"testing"
)

func TestDegradationTwoCohorts(t *testing.T) {
	ages := []float64{2, 4, 18, 20}
	usages := []float64{100, 100, 1000, 1000}
	labels := []int{0, 0, 1, 1}

	cohorts, err := Degradation(ages, usages, labels, 0.6, 0.4)
	if err != nil {
		t.Fatalf("Degradation: %v", err)
	}
	if len(cohorts) != 2 {
		t.Fatalf("got %d cohorts, want 2", len(cohorts))
	}

	young, old := cohorts[0], cohorts[1]
	if young.Label != 0 || old.Label != 1 {
		t.Fatalf("labels = %d, %d, want 0, 1", young.Label, old.Label)
	}
	if young.Size != 2 || old.Size != 2 {
		t.Errorf("sizes = %d, %d, want 2, 2", young.Size, old.Size)
	}
	if math.Abs(young.MeanAge-3) > 1e-9 || math.Abs(old.MeanAge-19) > 1e-9 {
		t.Errorf("raw mean ages = %v, %v, want 3, 19", young.MeanAge, old.MeanAge)
	}

	// The old, heavily used cohort sits at 1 after cross-cohort
	// normalization, the young one at 0.
	if young.Index != 0 {
		t.Errorf("young cohort index = %v, want 0", young.Index)
	}
	if math.Abs(old.Index-1) > 1e-9 {
		t.Errorf("old cohort index = %v, want 1", old.Index)
	}
	if old.Raw <= young.Raw {
		t.Errorf("raw indices %v <= %v, want old cohort higher", old.Raw, young.Raw)
	}

	byLabel := DegradationByLabel(cohorts)
	if byLabel[0] != young.Index || byLabel[1] != old.Index {
		t.Errorf("DegradationByLabel = %v, want {0:%v 1:%v}", byLabel, young.Index, old.Index)
	}
}

func TestDegradationSingleCohort(t *testing.T) {
	ages := []float64{2, 10, 30}
	usages := []float64{50, 400, 900}
	labels := []int{0, 0, 0}

	cohorts, err := Degradation(ages, usages, labels, 0.6, 0.4)
	if err != nil {
		t.Fatalf("Degradation: %v", err)
	}
	if len(cohorts) != 1 {
		t.Fatalf("got %d cohorts, want 1", len(cohorts))
	}
	if cohorts[0].Index != 0 {
		t.Errorf("single cohort index = %v, want 0", cohorts[0].Index)
	}
	if cohorts[0].Raw <= 0 {
		t.Errorf("raw index = %v, want > 0 before cross-cohort normalization", cohorts[0].Raw)
	}
}

func TestDegradationIdenticalCohorts(t *testing.T) {
	ages := []float64{5, 15, 5, 15}
	usages := []float64{100, 300, 100, 300}
	labels := []int{0, 0, 1, 1}

	cohorts, err := Degradation(ages, usages, labels, 0.6, 0.4)
	if err != nil {
		t.Fatalf("Degradation: %v", err)
	}
	for _, c := range cohorts {
		if c.Index != 0 {
			t.Errorf("cohort %d index = %v, want 0 when all cohorts degrade equally", c.Label, c.Index)
		}
	}
}

func TestDegradationNoiseLabel(t *testing.T) {
	ages := []float64{1, 1, 40}
	usages := []float64{10, 10, 2000}
	labels := []int{0, 0, -1}

	cohorts, err := Degradation(ages, usages, labels, 0.6, 0.4)
	if err != nil {
		t.Fatalf("Degradation: %v", err)
	}
	if len(cohorts) != 2 {
		t.Fatalf("got %d cohorts, want 2 (noise forms its own)", len(cohorts))
	}
	if cohorts[0].Label != -1 {
		t.Errorf("first cohort label = %d, want -1", cohorts[0].Label)
	}
	if math.Abs(cohorts[0].Index-1) > 1e-9 {
		t.Errorf("noise cohort index = %v, want 1 (oldest and most used)", cohorts[0].Index)
	}
}

func TestDegradationErrors(t *testing.T) {
	if _, err := Degradation([]float64{1}, []float64{1, 2}, []int{0, 0}, 0.6, 0.4); err == nil {
		t.Error("expected an error for mismatched input lengths")
	}
	cohorts, err := Degradation(nil, nil, nil, 0.6, 0.4)
	if err != nil || cohorts != nil {
		t.Errorf("empty population: got %v, %v; want nil, nil", cohorts, err)
	}
}
