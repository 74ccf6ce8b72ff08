package report

import "time"

// RunResponse is the API shape of one pipeline run record.
type RunResponse struct {
	RunID        string     `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Population   int        `json:"population"`
	FeatureWidth int        `json:"feature_width"`
	LatentDim    int        `json:"latent_dim,omitempty"`
	StageOneK    int        `json:"stage_one_k,omitempty"`
	CohortMethod string     `json:"cohort_method,omitempty"`
	CohortCount  int        `json:"cohort_count,omitempty"`
	Silhouette   float64    `json:"silhouette,omitempty"`
}

// ScoreResponse is the API shape of one ranked meter score.
type ScoreResponse struct {
	Rank            int     `json:"rank"`
	MeterID         string  `json:"meter_id"`
	Cohort          int     `json:"cohort"`
	Anomaly         float64 `json:"anomaly"`
	Degradation     float64 `json:"degradation"`
	RiskPercentBase float64 `json:"risk_percent_base"`
	SubcountScore   float64 `json:"subcount_score"`
	SubcountPercent float64 `json:"subcount_percent"`
	RiskPercent     float64 `json:"risk_percent"`
}

// ScoresResponse wraps a run's ranked scores.
type ScoresResponse struct {
	RunID  string          `json:"run_id"`
	Scores []ScoreResponse `json:"scores"`
}

// CohortResponse is the API shape of one cohort summary.
type CohortResponse struct {
	Label          int     `json:"label"`
	Size           int     `json:"size"`
	MeanAge        float64 `json:"mean_age"`
	MeanUsage      float64 `json:"mean_usage"`
	DegradationRaw float64 `json:"degradation_raw"`
	Degradation    float64 `json:"degradation"`
}

// CohortsResponse wraps a run's cohort summaries.
type CohortsResponse struct {
	RunID   string           `json:"run_id"`
	Cohorts []CohortResponse `json:"cohorts"`
}

// MeterRiskResponse is a meter's score from its most recent scored run.
type MeterRiskResponse struct {
	RunID string        `json:"run_id"`
	Score ScoreResponse `json:"score"`
}
