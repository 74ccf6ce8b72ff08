// Package features derives per-meter physical features, aggregates
// consumption into fixed-width monthly sequences, and assembles the feature
// vectors the embedder trains on. All normalizers here are fit once over the
// full population of a run and passed along explicitly; nothing in this
// package keeps package-level state.
package features

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// MinMaxScaler rescales values into [0,1] over the fitted range.
type MinMaxScaler struct {
	Min float64 `msgpack:"min"`
	Max float64 `msgpack:"max"`
}

// Fit records the population min and max.
func (s *MinMaxScaler) Fit(xs []float64) {
	if len(xs) == 0 {
		s.Min, s.Max = 0, 0
		return
	}
	s.Min, s.Max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
	}
}

// Transform maps x into [0,1]. A degenerate fitted range maps everything
// to 0 rather than dividing by zero.
func (s MinMaxScaler) Transform(x float64) float64 {
	if s.Max <= s.Min {
		return 0
	}
	v := (x - s.Min) / (s.Max - s.Min)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StandardScaler centers values on the population mean and scales by the
// population standard deviation.
type StandardScaler struct {
	Mean float64 `msgpack:"mean"`
	Std  float64 `msgpack:"std"`
}

// Fit records the population mean and standard deviation.
func (s *StandardScaler) Fit(xs []float64) {
	if len(xs) == 0 {
		s.Mean, s.Std = 0, 0
		return
	}
	s.Mean = stat.Mean(xs, nil)
	var sumsq float64
	for _, x := range xs {
		d := x - s.Mean
		sumsq += d * d
	}
	s.Std = math.Sqrt(sumsq / float64(len(xs)))
}

// Transform returns the z-score of x, or 0 when the fitted population had
// no variance.
func (s StandardScaler) Transform(x float64) float64 {
	if s.Std == 0 {
		return 0
	}
	return (x - s.Mean) / s.Std
}

// OneHotEncoder maps string categories onto indicator columns. The category
// order is sorted and fixed at fit time so the column contract is
// deterministic across runs on the same population.
type OneHotEncoder struct {
	Categories []string `msgpack:"categories"`

	index map[string]int
}

// Fit collects the distinct categories, sorted.
func (e *OneHotEncoder) Fit(values []string) {
	seen := make(map[string]struct{}, len(values))
	e.Categories = e.Categories[:0]
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			e.Categories = append(e.Categories, v)
		}
	}
	sort.Strings(e.Categories)
	e.index = nil
}

// Width returns the number of indicator columns.
func (e *OneHotEncoder) Width() int {
	return len(e.Categories)
}

// Transform appends the indicator columns for v to dst. Categories unseen at
// fit time encode as all zeros.
func (e *OneHotEncoder) Transform(dst []float64, v string) []float64 {
	if e.index == nil {
		e.index = make(map[string]int, len(e.Categories))
		for i, c := range e.Categories {
			e.index[c] = i
		}
	}
	start := len(dst)
	for range e.Categories {
		dst = append(dst, 0)
	}
	if i, ok := e.index[v]; ok {
		dst[start+i] = 1
	}
	return dst
}

// IntOneHotEncoder is a OneHotEncoder over integer categories (diameters),
// ordered numerically.
type IntOneHotEncoder struct {
	Categories []int `msgpack:"categories"`

	index map[int]int
}

// Fit collects the distinct categories, sorted ascending.
func (e *IntOneHotEncoder) Fit(values []int) {
	seen := make(map[int]struct{}, len(values))
	e.Categories = e.Categories[:0]
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			e.Categories = append(e.Categories, v)
		}
	}
	sort.Ints(e.Categories)
	e.index = nil
}

// Width returns the number of indicator columns.
func (e *IntOneHotEncoder) Width() int {
	return len(e.Categories)
}

// Transform appends the indicator columns for v to dst.
func (e *IntOneHotEncoder) Transform(dst []float64, v int) []float64 {
	if e.index == nil {
		e.index = make(map[int]int, len(e.Categories))
		for i, c := range e.Categories {
			e.index[c] = i
		}
	}
	start := len(dst)
	for range e.Categories {
		dst = append(dst, 0)
	}
	if i, ok := e.index[v]; ok {
		dst[start+i] = 1
	}
	return dst
}

// ColumnNames returns "prefix_<category>" for every indicator column.
func (e *IntOneHotEncoder) ColumnNames(prefix string) []string {
	names := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		names = append(names, prefix+"_"+strconv.Itoa(c))
	}
	return names
}

// ColumnNames returns "prefix_<category>" for every indicator column.
func (e *OneHotEncoder) ColumnNames(prefix string) []string {
	names := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		names = append(names, prefix+"_"+c)
	}
	return names
}
