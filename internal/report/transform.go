package report

import (
	"github.com/hidrodata/aquarisk/internal/types"
)

func toRunResponse(r types.PipelineRun) RunResponse {
	resp := RunResponse{
		RunID:        r.RunID,
		StartedAt:    r.StartedAt,
		Status:       r.Status,
		Population:   r.Population,
		FeatureWidth: r.FeatureWidth,
		LatentDim:    r.LatentDim,
		StageOneK:    r.StageOneK,
		CohortMethod: r.CohortMethod,
		CohortCount:  r.CohortCount,
		Silhouette:   r.Silhouette,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

func toScoreResponse(s types.MeterScore) ScoreResponse {
	return ScoreResponse{
		Rank:            s.Rank,
		MeterID:         s.MeterID,
		Cohort:          s.CohortLabel,
		Anomaly:         s.AnomalyScore,
		Degradation:     s.Degradation,
		RiskPercentBase: s.RiskPercentBase,
		SubcountScore:   s.SubcountScore,
		SubcountPercent: s.SubcountPercent,
		RiskPercent:     s.RiskPercent,
	}
}

func toCohortResponse(c types.CohortStat) CohortResponse {
	return CohortResponse{
		Label:          c.CohortLabel,
		Size:           c.Size,
		MeanAge:        c.MeanAge,
		MeanUsage:      c.MeanUsage,
		DegradationRaw: c.DegradationRaw,
		Degradation:    c.Degradation,
	}
}
