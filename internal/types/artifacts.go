package types

import (
	"time"
)

// PipelineRun records one end-to-end scoring run. FeatureColumns carries the
// msgpack-encoded column manifest of the assembled feature matrix so that a
// resumed stage can verify the layout it is about to consume.
type PipelineRun struct {
	RunID          string    `gorm:"column:run_id;primaryKey"`
	StartedAt      time.Time `gorm:"column:started_at"`
	FinishedAt     time.Time `gorm:"column:finished_at"`
	Status         string    `gorm:"column:status"`
	Population     int       `gorm:"column:population"`
	FeatureWidth   int       `gorm:"column:feature_width"`
	FeatureColumns []byte    `gorm:"column:feature_columns"`
	LatentDim      int       `gorm:"column:latent_dim"`
	StageOneK      int       `gorm:"column:stage_one_k"`
	CohortMethod   string    `gorm:"column:cohort_method"`
	CohortCount    int       `gorm:"column:cohort_count"`
	Silhouette     float64   `gorm:"column:silhouette"`
	SnapshotPath   string    `gorm:"column:snapshot_path"`
}

// TableName implements the GORM Tabler interface for the PipelineRun struct
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// Run status values, in stage order.
const (
	RunStatusFeatures = "features"
	RunStatusEmbedded = "embedded"
	RunStatusScored   = "scored"
)

// PhysicalFeatureRow is the Stage I artifact: derived physical features plus
// the physical-cluster pseudo-label.
type PhysicalFeatureRow struct {
	RunID            string  `gorm:"column:run_id;index"`
	MeterID          string  `gorm:"column:meter_id"`
	AgeYears         float64 `gorm:"column:age_years"`
	DiameterMM       int     `gorm:"column:diameter_mm"`
	AccumulatedUsage float64 `gorm:"column:accumulated_usage"`
	BrandModel       string  `gorm:"column:brand_model"`
	ClusterLabel     int     `gorm:"column:cluster_label"`
}

// TableName implements the GORM Tabler interface for the PhysicalFeatureRow struct
func (PhysicalFeatureRow) TableName() string {
	return "physical_features"
}

// FeatureVectorRow stores one assembled feature vector as an msgpack-encoded
// []float64. The column layout is the manifest on the owning PipelineRun.
type FeatureVectorRow struct {
	RunID   string `gorm:"column:run_id;index"`
	MeterID string `gorm:"column:meter_id"`
	Vector  []byte `gorm:"column:vector"`
}

// TableName implements the GORM Tabler interface for the FeatureVectorRow struct
func (FeatureVectorRow) TableName() string {
	return "feature_vectors"
}

// LatentVectorRow stores one embedded latent vector as an msgpack-encoded
// []float64.
type LatentVectorRow struct {
	RunID   string `gorm:"column:run_id;index"`
	MeterID string `gorm:"column:meter_id"`
	Vector  []byte `gorm:"column:vector"`
}

// TableName implements the GORM Tabler interface for the LatentVectorRow struct
func (LatentVectorRow) TableName() string {
	return "latent_vectors"
}

// CohortAssignment is the Stage III artifact. Label -1 marks density-scan
// noise points; every other label set is contiguous from zero.
type CohortAssignment struct {
	RunID       string `gorm:"column:run_id;index"`
	MeterID     string `gorm:"column:meter_id"`
	CohortLabel int    `gorm:"column:cohort_label"`
}

// TableName implements the GORM Tabler interface for the CohortAssignment struct
func (CohortAssignment) TableName() string {
	return "cohort_assignments"
}

// CohortStat summarizes one behavioral cohort for reporting.
type CohortStat struct {
	RunID          string  `gorm:"column:run_id;index"`
	CohortLabel    int     `gorm:"column:cohort_label"`
	Size           int     `gorm:"column:size"`
	MeanAge        float64 `gorm:"column:mean_age"`
	MeanUsage      float64 `gorm:"column:mean_usage"`
	DegradationRaw float64 `gorm:"column:degradation_raw"`
	Degradation    float64 `gorm:"column:degradation"`
}

// TableName implements the GORM Tabler interface for the CohortStat struct
func (CohortStat) TableName() string {
	return "cohort_stats"
}

// MeterScore is the final risk artifact, one row per meter, ranked by
// descending final risk percent.
type MeterScore struct {
	RunID           string  `gorm:"column:run_id;index"`
	Rank            int     `gorm:"column:rank"`
	MeterID         string  `gorm:"column:meter_id"`
	CohortLabel     int     `gorm:"column:cohort_label"`
	AnomalyScore    float64 `gorm:"column:anomaly_score"`
	Degradation     float64 `gorm:"column:cluster_degradation"`
	RiskPercentBase float64 `gorm:"column:risk_percent_base"`
	SubcountScore   float64 `gorm:"column:subcount_score"`
	SubcountPercent float64 `gorm:"column:subcount_percent"`
	RiskPercent     float64 `gorm:"column:risk_percent"`
}

// TableName implements the GORM Tabler interface for the MeterScore struct
func (MeterScore) TableName() string {
	return "meter_scores"
}

// RunArtifacts bundles everything one pipeline run hands to the storage
// engines. MeterIDs aligns by index with Vectors and Latents; Scores carry
// their own meter ids because they are sorted by rank. Slices a stage did
// not produce stay nil and engines skip them.
type RunArtifacts struct {
	Run         PipelineRun
	MeterIDs    []string
	FeatureCols []string
	Vectors     [][]float64
	Latents     [][]float64
	Features    []PhysicalFeatureRow
	Cohorts     []CohortAssignment
	CohortStats []CohortStat
	Scores      []MeterScore
}
