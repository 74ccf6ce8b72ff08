package features

import (
	"time"

	"github.com/hidrodata/aquarisk/internal/types"
)

const monthKeyLayout = "2006-01"

// MonthlyMeans reduces daily readings to one mean value per calendar month
// of the window, per meter. Months with no readings stay 0; the embedder is
// deliberately not told whether a zero means "no data" or "no usage".
// Readings outside the window are ignored.
func MonthlyMeans(readings []types.ConsumptionReading, months []time.Time) map[string][]float64 {
	idx := make(map[string]int, len(months))
	for i, m := range months {
		idx[m.Format(monthKeyLayout)] = i
	}

	sums := make(map[string][]float64)
	counts := make(map[string][]int)
	for _, r := range readings {
		col, ok := idx[r.ReadingDate.Format(monthKeyLayout)]
		if !ok {
			continue
		}
		if _, ok := sums[r.MeterID]; !ok {
			sums[r.MeterID] = make([]float64, len(months))
			counts[r.MeterID] = make([]int, len(months))
		}
		sums[r.MeterID][col] += r.Consumption
		counts[r.MeterID][col]++
	}

	means := make(map[string][]float64, len(sums))
	for meter, s := range sums {
		row := make([]float64, len(months))
		for i, sum := range s {
			if n := counts[meter][i]; n > 0 {
				row[i] = sum / float64(n)
			}
		}
		means[meter] = row
	}
	return means
}

// MonthColumnNames returns the manifest names for the monthly columns.
func MonthColumnNames(months []time.Time) []string {
	names := make([]string, 0, len(months))
	for _, m := range months {
		names = append(names, "month_"+m.Format(monthKeyLayout))
	}
	return names
}
