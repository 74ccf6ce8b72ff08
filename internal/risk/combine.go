package risk

import (
	"fmt"
	"sort"
)

// CombineConfig holds the risk-combination weights. AnomalyWeight and
// DegradationWeight blend the base risk; SubcountCap is the largest
// independent failure probability the subcounting signal may contribute.
type CombineConfig struct {
	AnomalyWeight     float64
	DegradationWeight float64
	SubcountCap       float64
	Subcounting       bool
}

// DefaultCombineConfig returns the reference weights.
func DefaultCombineConfig() CombineConfig {
	return CombineConfig{
		AnomalyWeight:     0.5,
		DegradationWeight: 0.5,
		SubcountCap:       0.8,
		Subcounting:       true,
	}
}

// Score is one meter's final risk record.
type Score struct {
	MeterID         string
	Cohort          int
	Anomaly         float64
	Degradation     float64
	RiskPercentBase float64
	SubcountScore   float64
	SubcountPercent float64
	RiskPercent     float64
}

// Combine blends anomaly and degradation into a min-max normalized base
// risk percentage, then, when subcounting is enabled, treats the capped
// subcount score as an independent failure probability:
// p = 1 - (1-p_base)(1-p_sub). With subcounting disabled the final risk
// equals the base risk exactly. Meters absent from subcounts carry no
// subcounting evidence and score 0 there. The result is sorted by final
// risk, highest first, ties keeping input order.
func Combine(meterIDs []string, labels []int, anomaly []float64, degradation map[int]float64, subcounts map[string]float64, cfg CombineConfig) ([]Score, error) {
	n := len(meterIDs)
	if len(labels) != n || len(anomaly) != n {
		return nil, fmt.Errorf("have %d labels and %d anomaly scores for %d meters", len(labels), len(anomaly), n)
	}
	if n == 0 {
		return nil, nil
	}

	scores := make([]Score, n)
	base := make([]float64, n)
	for i := range meterIDs {
		d := degradation[labels[i]]
		base[i] = cfg.AnomalyWeight*anomaly[i] + cfg.DegradationWeight*d
		scores[i] = Score{
			MeterID:     meterIDs[i],
			Cohort:      labels[i],
			Anomaly:     anomaly[i],
			Degradation: d,
		}
	}

	lo, hi := base[0], base[0]
	for _, b := range base[1:] {
		if b < lo {
			lo = b
		}
		if b > hi {
			hi = b
		}
	}
	for i := range scores {
		pCluster := 0.0
		if hi > lo {
			pCluster = (base[i] - lo) / (hi - lo)
		}
		scores[i].RiskPercentBase = 100 * pCluster

		if cfg.Subcounting {
			s := subcounts[scores[i].MeterID]
			pSub := cfg.SubcountCap * s
			if pSub < 0 {
				pSub = 0
			} else if pSub > 1 {
				pSub = 1
			}
			scores[i].SubcountScore = s
			scores[i].SubcountPercent = 100 * s
			scores[i].RiskPercent = 100 * (1 - (1-pCluster)*(1-pSub))
		} else {
			scores[i].RiskPercent = scores[i].RiskPercentBase
		}
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].RiskPercent > scores[j].RiskPercent })
	return scores, nil
}
