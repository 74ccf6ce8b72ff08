package features

import (
	"reflect"
	"testing"
)

func testPopulation() []Physical {
	return []Physical{
		{MeterID: "m1", AgeYears: 2, DiameterMM: 13, AccumulatedUsage: 100, BrandModel: "A::1"},
		{MeterID: "m2", AgeYears: 4, DiameterMM: 15, AccumulatedUsage: 300, BrandModel: "B::2"},
		{MeterID: "m3", AgeYears: 6, DiameterMM: 13, AccumulatedUsage: 500, BrandModel: "A::1"},
	}
}

func TestAssemblerColumnContract(t *testing.T) {
	months := windowMonths(date(2021, 1, 1), 2)
	feats := testPopulation()

	a := NewAssembler(months)
	a.Fit(feats)

	wantCols := []string{
		"month_2021-01", "month_2021-02",
		"age_scaled",
		"diameter_13", "diameter_15",
		"usage_scaled",
		"cluster_label",
		"brand_model_A::1", "brand_model_B::2",
	}
	if got := a.Columns(); !reflect.DeepEqual(got, wantCols) {
		t.Fatalf("columns = %v, want %v", got, wantCols)
	}
	if a.Width() != len(wantCols) {
		t.Fatalf("width = %d, want %d", a.Width(), len(wantCols))
	}
}

func TestAssembleDeterminism(t *testing.T) {
	months := windowMonths(date(2021, 1, 1), 2)
	feats := testPopulation()
	labels := []int{0, 1, 0}
	monthly := map[string][]float64{
		"m1": {5, 6},
		"m2": {7, 8},
	}

	build := func() ([][]float64, []string) {
		a := NewAssembler(months)
		a.Fit(feats)
		rows, err := a.Assemble(feats, labels, monthly)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		return rows, a.Columns()
	}

	rows1, cols1 := build()
	rows2, cols2 := build()

	if !reflect.DeepEqual(cols1, cols2) {
		t.Fatal("column manifests differ across independent assemblies")
	}
	if !reflect.DeepEqual(rows1, rows2) {
		t.Fatal("assembled matrices differ across independent assemblies")
	}

	// m3 has no monthly data: its monthly columns must be zero-filled.
	for i := 0; i < len(months); i++ {
		if rows1[2][i] != 0 {
			t.Errorf("m3 monthly column %d = %v, want 0", i, rows1[2][i])
		}
	}

	// The pseudo-label occupies its contracted position as a raw value.
	labelCol := len(months) + 1 + 2 + 1
	for i, want := range labels {
		if got := rows1[i][labelCol]; got != float64(want) {
			t.Errorf("row %d label column = %v, want %d", i, got, want)
		}
	}
}

func TestAssembleLabelCountMismatch(t *testing.T) {
	months := windowMonths(date(2021, 1, 1), 2)
	feats := testPopulation()

	a := NewAssembler(months)
	a.Fit(feats)

	if _, err := a.Assemble(feats, []int{0, 1}, nil); err == nil {
		t.Fatal("expected an error for mismatched label count")
	}
}

func TestStageOneMatrixShape(t *testing.T) {
	months := windowMonths(date(2021, 1, 1), 2)
	feats := testPopulation()

	a := NewAssembler(months)
	a.Fit(feats)

	m := a.StageOneMatrix(feats)
	if len(m) != len(feats) {
		t.Fatalf("rows = %d, want %d", len(m), len(feats))
	}
	wantWidth := 3 + a.BrandEncoder.Width()
	for i, row := range m {
		if len(row) != wantWidth {
			t.Errorf("row %d width = %d, want %d", i, len(row), wantWidth)
		}
	}

	// Scaled age of the youngest meter is 0, of the oldest 1.
	if m[0][0] != 0 {
		t.Errorf("youngest scaled age = %v, want 0", m[0][0])
	}
	if m[2][0] != 1 {
		t.Errorf("oldest scaled age = %v, want 1", m[2][0])
	}
}
