package subcount

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DropRatio compares recent consumption against the preceding baseline:
// mean of the last recentWindow periods over the mean of up to
// baselineWindow periods before them. Series shorter than minHistory,
// an empty baseline, or a non-positive baseline mean all return the
// neutral ratio 1.
func DropRatio(series []float64, minHistory, baselineWindow, recentWindow int) float64 {
	n := len(series)
	if n < minHistory || recentWindow >= n {
		return 1
	}
	recent := series[n-recentWindow:]
	start := n - recentWindow - baselineWindow
	if start < 0 {
		start = 0
	}
	baseline := series[start : n-recentWindow]
	if len(baseline) == 0 {
		return 1
	}
	baseMean := stat.Mean(baseline, nil)
	if baseMean <= 0 {
		return 1
	}
	return stat.Mean(recent, nil) / baseMean
}

// TrendSlope fits an ordinary least squares line over the series indexed
// 0..n-1 and returns its slope, or 0 for fewer than 3 points.
func TrendSlope(series []float64) float64 {
	if len(series) < 3 {
		return 0
	}
	x := make([]float64, len(series))
	for i := range x {
		x[i] = float64(i)
	}
	_, slope := stat.LinearRegression(x, series, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}

// SlopeChange is the ratio of the second-half slope to the first-half
// slope; values below 1 mean the trend is bending downward. Fewer than
// 6 points or a near-zero first-half slope return the neutral ratio 1.
func SlopeChange(series []float64) float64 {
	n := len(series)
	if n < 6 {
		return 1
	}
	mid := n / 2
	first := TrendSlope(series[:mid])
	second := TrendSlope(series[mid:])
	if math.Abs(first) < 1e-6 {
		return 1
	}
	return second / first
}

// RatioScore maps a drop ratio onto [0,1]: 1 at or below RatioFloor,
// 0 at or above RatioCeil, linear between.
func (c Config) RatioScore(r float64) float64 {
	return rampDown(r, c.RatioFloor, c.RatioCeil)
}

// ChangeScore maps a slope-change ratio with the same ramp as RatioScore.
func (c Config) ChangeScore(d float64) float64 {
	return rampDown(d, c.RatioFloor, c.RatioCeil)
}

// SlopeScore normalizes the slope by the series median level and maps it
// onto [0,1]: 1 at or below SlopeFloor relative slope, 0 at or above
// zero. Short series or a non-positive median level score 0.
func (c Config) SlopeScore(slope float64, series []float64) float64 {
	if len(series) < 6 {
		return 0
	}
	level := median(series)
	if level <= 0 {
		return 0
	}
	rel := slope / level
	if rel >= 0 {
		return 0
	}
	if rel <= c.SlopeFloor {
		return 1
	}
	return rel / c.SlopeFloor
}

func rampDown(v, floor, ceil float64) float64 {
	if v <= floor {
		return 1
	}
	if v >= ceil {
		return 0
	}
	return (ceil - v) / (ceil - floor)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
