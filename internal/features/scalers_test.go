package features

import (
	"math"
	"reflect"
	"testing"
)

func TestMinMaxScaler(t *testing.T) {
	tests := []struct {
		name     string
		fit      []float64
		in       float64
		expected float64
	}{
		{"midpoint", []float64{2, 4}, 3, 0.5},
		{"lower bound", []float64{2, 4}, 2, 0},
		{"upper bound", []float64{2, 4}, 4, 1},
		{"below range clamps", []float64{2, 4}, 1, 0},
		{"above range clamps", []float64{2, 4}, 5, 1},
		{"degenerate range maps to zero", []float64{5, 5, 5}, 5, 0},
		{"empty fit maps to zero", nil, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s MinMaxScaler
			s.Fit(tt.fit)
			if got := s.Transform(tt.in); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Transform(%v) = %v, want %v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestStandardScaler(t *testing.T) {
	var s StandardScaler
	s.Fit([]float64{1, 2, 3})

	// Population standard deviation of {1,2,3} is sqrt(2/3).
	want := 1.0 / math.Sqrt(2.0/3.0)
	if got := s.Transform(3); math.Abs(got-want) > 1e-9 {
		t.Errorf("Transform(3) = %v, want %v", got, want)
	}
	if got := s.Transform(2); math.Abs(got) > 1e-9 {
		t.Errorf("Transform(mean) = %v, want 0", got)
	}

	var degenerate StandardScaler
	degenerate.Fit([]float64{7, 7, 7})
	if got := degenerate.Transform(7); got != 0 {
		t.Errorf("degenerate Transform = %v, want 0", got)
	}
}

func TestOneHotEncoder(t *testing.T) {
	var e OneHotEncoder
	e.Fit([]string{"B::1", "A::2", "B::1", "C::3"})

	wantCats := []string{"A::2", "B::1", "C::3"}
	if !reflect.DeepEqual(e.Categories, wantCats) {
		t.Fatalf("categories = %v, want %v", e.Categories, wantCats)
	}
	if e.Width() != 3 {
		t.Fatalf("width = %d, want 3", e.Width())
	}

	got := e.Transform(nil, "B::1")
	if !reflect.DeepEqual(got, []float64{0, 1, 0}) {
		t.Errorf("Transform(B::1) = %v, want [0 1 0]", got)
	}

	// Categories unseen at fit time encode as all zeros.
	got = e.Transform(nil, "Z::9")
	if !reflect.DeepEqual(got, []float64{0, 0, 0}) {
		t.Errorf("Transform(unknown) = %v, want [0 0 0]", got)
	}
}

func TestIntOneHotEncoderNumericOrder(t *testing.T) {
	var e IntOneHotEncoder
	e.Fit([]int{13, 7, 30, 13})

	want := []int{7, 13, 30}
	if !reflect.DeepEqual(e.Categories, want) {
		t.Fatalf("categories = %v, want %v", e.Categories, want)
	}

	got := e.Transform(nil, 13)
	if !reflect.DeepEqual(got, []float64{0, 1, 0}) {
		t.Errorf("Transform(13) = %v, want [0 1 0]", got)
	}

	names := e.ColumnNames("diameter")
	wantNames := []string{"diameter_7", "diameter_13", "diameter_30"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("column names = %v, want %v", names, wantNames)
	}
}
