package features

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hidrodata/aquarisk/internal/types"
)

// UnknownCategory replaces missing brand or model codes so the joint
// category is never empty.
const UnknownCategory = "UNK"

const daysPerYear = 365.25

// Physical holds the derived physical features for one meter.
type Physical struct {
	MeterID          string
	AgeYears         float64
	DiameterMM       int
	AccumulatedUsage float64
	BrandModel       string
}

// BuildPhysical derives one Physical row per meter. Age is computed against
// the reference date and clipped to zero for missing or future installation
// dates. The accumulated-usage proxy is the median of the meter's yearly
// mean consumptions multiplied by its age; meters without readings get 0.
func BuildPhysical(meters []types.Meter, readings []types.ConsumptionReading, reference time.Time) []Physical {
	medianYearly := medianYearlyConsumption(readings)

	out := make([]Physical, 0, len(meters))
	for _, m := range meters {
		age := 0.0
		if m.InstalledAt != nil {
			days := reference.Sub(*m.InstalledAt).Hours() / 24
			age = days / daysPerYear
			if age < 0 {
				age = 0
			}
		}

		out = append(out, Physical{
			MeterID:          m.MeterID,
			AgeYears:         age,
			DiameterMM:       m.DiameterMM,
			AccumulatedUsage: medianYearly[m.MeterID] * age,
			BrandModel:       BrandModelLabel(m.BrandCode, m.ModelCode),
		})
	}
	return out
}

// BrandModelLabel joins the brand and model codes into the joint categorical
// label used for one-hot encoding.
func BrandModelLabel(brand, model string) string {
	if brand == "" {
		brand = UnknownCategory
	}
	if model == "" {
		model = UnknownCategory
	}
	return brand + "::" + model
}

// medianYearlyConsumption computes, per meter, the median over years of the
// mean daily consumption within each year, across the full history.
func medianYearlyConsumption(readings []types.ConsumptionReading) map[string]float64 {
	type yearKey struct {
		meter string
		year  int
	}
	sums := make(map[yearKey]float64)
	counts := make(map[yearKey]int)
	for _, r := range readings {
		k := yearKey{meter: r.MeterID, year: r.ReadingDate.Year()}
		sums[k] += r.Consumption
		counts[k]++
	}

	yearly := make(map[string][]float64)
	for k, sum := range sums {
		yearly[k.meter] = append(yearly[k.meter], sum/float64(counts[k]))
	}

	medians := make(map[string]float64, len(yearly))
	for meter, means := range yearly {
		medians[meter] = median(means)
	}
	return medians
}

// median returns the middle value of xs, averaging the two middle values for
// even-length input. Empty input yields 0.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return stat.Mean(s[mid-1:mid+1], nil)
}
