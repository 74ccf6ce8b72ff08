package risk

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/hidrodata/aquarisk/internal/features"
)

// CohortDegradation is one cohort's wear index. MeanAge and MeanUsage
// are raw means kept for reporting; Raw combines the globally normalized
// means, and Index is Raw min-max normalized across cohorts.
type CohortDegradation struct {
	Label     int
	Size      int
	MeanAge   float64
	MeanUsage float64
	Raw       float64
	Index     float64
}

// Degradation computes the per-cohort degradation index
// D = ageWeight*mean(normalized age) + usageWeight*mean(normalized usage).
// Age and usage are normalized over the whole population first, so cohort
// means stay comparable; the resulting D values are then min-max
// normalized across cohorts. A single cohort, or cohorts with identical
// D, all get index 0. Results are sorted by label.
func Degradation(ages, usages []float64, labels []int, ageWeight, usageWeight float64) ([]CohortDegradation, error) {
	n := len(labels)
	if len(ages) != n || len(usages) != n {
		return nil, fmt.Errorf("have %d ages and %d usages for %d labels", len(ages), len(usages), n)
	}
	if n == 0 {
		return nil, nil
	}

	var ageScaler, usageScaler features.MinMaxScaler
	ageScaler.Fit(ages)
	usageScaler.Fit(usages)

	cohorts := make([]CohortDegradation, 0)
	for _, members := range cohortMembers(labels) {
		normAges := make([]float64, len(members))
		normUsages := make([]float64, len(members))
		rawAges := make([]float64, len(members))
		rawUsages := make([]float64, len(members))
		for j, i := range members {
			normAges[j] = ageScaler.Transform(ages[i])
			normUsages[j] = usageScaler.Transform(usages[i])
			rawAges[j] = ages[i]
			rawUsages[j] = usages[i]
		}
		cohorts = append(cohorts, CohortDegradation{
			Label:     labels[members[0]],
			Size:      len(members),
			MeanAge:   stat.Mean(rawAges, nil),
			MeanUsage: stat.Mean(rawUsages, nil),
			Raw:       ageWeight*stat.Mean(normAges, nil) + usageWeight*stat.Mean(normUsages, nil),
		})
	}

	lo, hi := cohorts[0].Raw, cohorts[0].Raw
	for _, c := range cohorts[1:] {
		if c.Raw < lo {
			lo = c.Raw
		}
		if c.Raw > hi {
			hi = c.Raw
		}
	}
	if hi > lo {
		for i := range cohorts {
			cohorts[i].Index = (cohorts[i].Raw - lo) / (hi - lo)
		}
	}
	return cohorts, nil
}

// DegradationByLabel indexes cohort degradation for per-meter lookup.
func DegradationByLabel(cohorts []CohortDegradation) map[int]float64 {
	byLabel := make(map[int]float64, len(cohorts))
	for _, c := range cohorts {
		byLabel[c.Label] = c.Index
	}
	return byLabel
}
