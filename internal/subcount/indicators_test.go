package subcount

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDropRatio(t *testing.T) {
	tests := []struct {
		name     string
		series   []float64
		expected float64
	}{
		{
			name:     "recent half of baseline",
			series:   append(repeat(1.0, 6), repeat(0.5, 6)...),
			expected: 0.5,
		},
		{
			name:     "flat series",
			series:   repeat(1.0, 12),
			expected: 1.0,
		},
		{
			name:     "short history is neutral",
			series:   repeat(0.1, 11),
			expected: 1.0,
		},
		{
			name:     "zero baseline is neutral",
			series:   append(repeat(0.0, 6), repeat(1.0, 6)...),
			expected: 1.0,
		},
		{
			name:     "baseline truncated to available history",
			series:   append(repeat(2.0, 8), repeat(1.0, 6)...),
			expected: 0.5,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DropRatio(tc.series, 12, 12, 6)
			if math.Abs(got-tc.expected) > epsilon {
				t.Errorf("DropRatio = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestTrendSlope(t *testing.T) {
	tests := []struct {
		name     string
		series   []float64
		expected float64
	}{
		{"rising line", []float64{1, 3, 5, 7, 9}, 2.0},
		{"falling line", []float64{10, 9, 8, 7}, -1.0},
		{"flat", []float64{4, 4, 4, 4}, 0.0},
		{"too short", []float64{1, 5}, 0.0},
		{"empty", nil, 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TrendSlope(tc.series)
			if math.Abs(got-tc.expected) > epsilon {
				t.Errorf("TrendSlope = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestSlopeChange(t *testing.T) {
	tests := []struct {
		name     string
		series   []float64
		expected float64
	}{
		{"steady trend", []float64{0, 1, 2, 3, 4, 5, 6, 7}, 1.0},
		{"reversal", []float64{0, 1, 2, 3, 3, 2, 1, 0}, -1.0},
		{"flat first half is neutral", []float64{1, 1, 1, 2, 3, 4}, 1.0},
		{"too short is neutral", []float64{3, 2, 1, 0, -1}, 1.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SlopeChange(tc.series)
			if math.Abs(got-tc.expected) > epsilon {
				t.Errorf("SlopeChange = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestRatioScore(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		ratio    float64
		expected float64
	}{
		{0.4, 1.0},
		{0.5, 1.0},
		{0.65, 0.5},
		{0.8, 0.0},
		{1.0, 0.0},
	}
	for _, tc := range tests {
		if got := cfg.RatioScore(tc.ratio); math.Abs(got-tc.expected) > epsilon {
			t.Errorf("RatioScore(%v) = %v, want %v", tc.ratio, got, tc.expected)
		}
		// Slope-change shares the same ramp.
		if got := cfg.ChangeScore(tc.ratio); math.Abs(got-tc.expected) > epsilon {
			t.Errorf("ChangeScore(%v) = %v, want %v", tc.ratio, got, tc.expected)
		}
	}
}

func TestSlopeScore(t *testing.T) {
	cfg := DefaultConfig()
	ones := repeat(1.0, 6)
	tests := []struct {
		name     string
		slope    float64
		series   []float64
		expected float64
	}{
		{"halfway down the ramp", -0.025, ones, 0.5},
		{"steep decline saturates", -0.1, ones, 1.0},
		{"rising slope", 0.01, ones, 0.0},
		{"short series", -0.1, repeat(1.0, 5), 0.0},
		{"non-positive median level", -0.1, repeat(0.0, 6), 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cfg.SlopeScore(tc.slope, tc.series)
			if math.Abs(got-tc.expected) > epsilon {
				t.Errorf("SlopeScore = %v, want %v", got, tc.expected)
			}
		})
	}
}
