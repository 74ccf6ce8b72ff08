// Package subcount flags meters whose consumption trend suggests
// progressive under-registration. It works on each meter's own monthly
// totals, normalized against peers, independent of the cohort pipeline.
package subcount

import (
	"sort"

	"github.com/hidrodata/aquarisk/internal/types"
)

// peerEps keeps the peer normalization finite when a month's median is 0.
const peerEps = 1e-6

const monthKeyLayout = "2006-01"

// Config holds the detector thresholds and weights.
type Config struct {
	CohortMedians      bool
	RecentWindow       int
	BaselineWindow     int
	MinHistory         int
	RatioFloor         float64
	RatioCeil          float64
	SlopeFloor         float64
	WeightRatio        float64
	WeightSlope        float64
	WeightChange       float64
	ReinforceThreshold float64
	ReinforceCount     int
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		RecentWindow:       6,
		BaselineWindow:     12,
		MinHistory:         12,
		RatioFloor:         0.5,
		RatioCeil:          0.8,
		SlopeFloor:         -0.05,
		WeightRatio:        0.4,
		WeightSlope:        0.3,
		WeightChange:       0.3,
		ReinforceThreshold: 0.7,
		ReinforceCount:     2,
	}
}

// Metrics is the per-meter detector output. Raw is the weighted
// combination before population normalization; Score is after.
type Metrics struct {
	MeterID     string
	Periods     int
	DropRatio   float64
	Slope       float64
	SlopeChange float64
	RatioScore  float64
	SlopeScore  float64
	ChangeScore float64
	Raw         float64
	Score       float64
}

// Detect aggregates readings to monthly totals, normalizes each meter's
// series by the peer median of the same month (global, or per cohort
// when cfg.CohortMedians is set and the meter has a label), computes the
// three trend indicators, and min-max normalizes the combined score
// across the population. Results are sorted by meter id. Meters missing
// from cohorts fall back to the global median.
func Detect(readings []types.ConsumptionReading, cohorts map[string]int, cfg Config) []Metrics {
	totals := monthlyTotals(readings)
	if len(totals) == 0 {
		return nil
	}

	globalMedians, cohortMedians := peerMedians(totals, cohorts, cfg.CohortMedians)

	meters := make([]string, 0, len(totals))
	for id := range totals {
		meters = append(meters, id)
	}
	sort.Strings(meters)

	results := make([]Metrics, 0, len(meters))
	for _, id := range meters {
		series := totals[id]
		norm := make([]float64, len(series.values))
		for i, v := range series.values {
			med, ok := 0.0, false
			if cfg.CohortMedians {
				if label, labeled := cohorts[id]; labeled {
					med, ok = cohortMedians[label][series.months[i]], true
				}
			}
			if !ok {
				med = globalMedians[series.months[i]]
			}
			norm[i] = v / (med + peerEps)
		}

		ratio := DropRatio(norm, cfg.MinHistory, cfg.BaselineWindow, cfg.RecentWindow)
		slope := TrendSlope(norm)
		change := SlopeChange(norm)

		sRatio := cfg.RatioScore(ratio)
		sSlope := cfg.SlopeScore(slope, norm)
		sChange := cfg.ChangeScore(change)

		raw := cfg.WeightRatio*sRatio + cfg.WeightSlope*sSlope + cfg.WeightChange*sChange

		// Two independently weak signals agreeing is treated as strong
		// evidence, so the combined score is clamped up.
		strong := 0
		for _, s := range [3]float64{sRatio, sSlope, sChange} {
			if s > cfg.ReinforceThreshold {
				strong++
			}
		}
		if cfg.ReinforceCount > 0 && strong >= cfg.ReinforceCount && raw < cfg.ReinforceThreshold {
			raw = cfg.ReinforceThreshold
		}

		results = append(results, Metrics{
			MeterID:     id,
			Periods:     len(norm),
			DropRatio:   ratio,
			Slope:       slope,
			SlopeChange: change,
			RatioScore:  sRatio,
			SlopeScore:  sSlope,
			ChangeScore: sChange,
			Raw:         raw,
		})
	}

	normalizeScores(results)
	return results
}

// monthSeries is one meter's monthly totals in chronological order.
type monthSeries struct {
	months []string
	values []float64
}

// monthlyTotals sums readings into calendar-month buckets per meter,
// keeping only months that actually have readings. The whole reading
// history participates; the detector is not limited to the embedding
// window.
func monthlyTotals(readings []types.ConsumptionReading) map[string]*monthSeries {
	sums := make(map[string]map[string]float64)
	for _, r := range readings {
		key := r.ReadingDate.Format(monthKeyLayout)
		if _, ok := sums[r.MeterID]; !ok {
			sums[r.MeterID] = make(map[string]float64)
		}
		sums[r.MeterID][key] += r.Consumption
	}

	totals := make(map[string]*monthSeries, len(sums))
	for id, byMonth := range sums {
		s := &monthSeries{
			months: make([]string, 0, len(byMonth)),
			values: make([]float64, 0, len(byMonth)),
		}
		for key := range byMonth {
			s.months = append(s.months, key)
		}
		sort.Strings(s.months)
		for _, key := range s.months {
			s.values = append(s.values, byMonth[key])
		}
		totals[id] = s
	}
	return totals
}

// peerMedians computes, for every month, the median total across all
// meters that have that month, and the same per cohort when cohort mode
// is on. Medians are recomputed from scratch for every run.
func peerMedians(totals map[string]*monthSeries, cohorts map[string]int, byCohort bool) (map[string]float64, map[int]map[string]float64) {
	global := make(map[string][]float64)
	grouped := make(map[int]map[string][]float64)

	for id, s := range totals {
		label, labeled := cohorts[id]
		for i, key := range s.months {
			global[key] = append(global[key], s.values[i])
			if byCohort && labeled {
				if _, ok := grouped[label]; !ok {
					grouped[label] = make(map[string][]float64)
				}
				grouped[label][key] = append(grouped[label][key], s.values[i])
			}
		}
	}

	globalMedians := make(map[string]float64, len(global))
	for key, vals := range global {
		globalMedians[key] = median(vals)
	}

	var cohortMedians map[int]map[string]float64
	if byCohort {
		cohortMedians = make(map[int]map[string]float64, len(grouped))
		for label, byMonth := range grouped {
			m := make(map[string]float64, len(byMonth))
			for key, vals := range byMonth {
				m[key] = median(vals)
			}
			cohortMedians[label] = m
		}
	}
	return globalMedians, cohortMedians
}

// normalizeScores min-max scales Raw into Score across the population;
// if every raw score is equal there is no signal and everyone gets 0.
func normalizeScores(results []Metrics) {
	if len(results) == 0 {
		return
	}
	lo, hi := results[0].Raw, results[0].Raw
	for _, m := range results[1:] {
		if m.Raw < lo {
			lo = m.Raw
		}
		if m.Raw > hi {
			hi = m.Raw
		}
	}
	if hi <= lo {
		return
	}
	for i := range results {
		results[i].Score = (results[i].Raw - lo) / (hi - lo)
	}
}
