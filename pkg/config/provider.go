package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Configuration management (for future SQLite-specific operations)
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Database    DatabaseData    `json:"database"`
	Window      WindowData      `json:"window"`
	StageOne    StageOneData    `json:"stage_one"`
	Embedder    EmbedderData    `json:"embedder"`
	Cohort      CohortData      `json:"cohort"`
	Subcounting SubcountingData `json:"subcounting"`
	Risk        RiskData        `json:"risk"`
	Artifacts   ArtifactsData   `json:"artifacts"`
	Report      *ReportData     `json:"report,omitempty"`
}

// DatabaseData holds the connection to the meter/consumption source tables,
// which double as the artifact store for the postgres sink.
type DatabaseData struct {
	ConnectionString string `json:"connection_string"`
}

// WindowData bounds the consumption window and the population filter
type WindowData struct {
	StartMonth    string `json:"start_month"`    // inclusive, "YYYY-MM"
	EndMonth      string `json:"end_month"`      // inclusive, "YYYY-MM"
	ReferenceDate string `json:"reference_date"` // age is computed against this date
	UsageClass    string `json:"usage_class"`    // population filter, e.g. "D" for domestic
}

// StageOneData configures physical-feature clustering
type StageOneData struct {
	FixedK  int   `json:"fixed_k,omitempty"` // 0 selects k by silhouette scan
	KMin    int   `json:"k_min,omitempty"`
	KMax    int   `json:"k_max,omitempty"`
	NInit   int   `json:"n_init,omitempty"`
	MaxIter int   `json:"max_iter,omitempty"`
	Seed    int64 `json:"seed,omitempty"`
}

// EmbedderData configures the autoencoder architecture and training loop
type EmbedderData struct {
	HiddenDims      []int   `json:"hidden_dims,omitempty"`
	LatentDim       int     `json:"latent_dim,omitempty"`
	Dropout         float64 `json:"dropout,omitempty"`
	LearningRate    float64 `json:"learning_rate,omitempty"`
	WeightDecay     float64 `json:"weight_decay,omitempty"`
	Epochs          int     `json:"epochs,omitempty"`
	BatchSize       int     `json:"batch_size,omitempty"`
	Patience        int     `json:"patience,omitempty"`
	MinDelta        float64 `json:"min_delta,omitempty"`
	ValidationSplit float64 `json:"validation_split,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
}

// CohortData configures latent-space clustering
type CohortData struct {
	Method      string  `json:"method,omitempty"` // "kmeans" or "dbscan"
	FixedK      int     `json:"fixed_k,omitempty"`
	KMin        int     `json:"k_min,omitempty"`
	KMax        int     `json:"k_max,omitempty"`
	Eps         float64 `json:"eps,omitempty"`
	MinPoints   int     `json:"min_points,omitempty"`
	Mahalanobis bool    `json:"mahalanobis,omitempty"`
}

// SubcountingData configures the consumption-trend detector
type SubcountingData struct {
	Enabled            bool    `json:"enabled"`
	CohortMedians      bool    `json:"cohort_medians,omitempty"`
	RecentWindow       int     `json:"recent_window,omitempty"`
	BaselineWindow     int     `json:"baseline_window,omitempty"`
	MinHistory         int     `json:"min_history,omitempty"`
	RatioFloor         float64 `json:"ratio_floor,omitempty"`
	RatioCeil          float64 `json:"ratio_ceil,omitempty"`
	SlopeFloor         float64 `json:"slope_floor,omitempty"`
	WeightRatio        float64 `json:"weight_ratio,omitempty"`
	WeightSlope        float64 `json:"weight_slope,omitempty"`
	WeightChange       float64 `json:"weight_change,omitempty"`
	ReinforceThreshold float64 `json:"reinforce_threshold,omitempty"`
	ReinforceCount     int     `json:"reinforce_count,omitempty"`
}

// RiskData configures score combination weights
type RiskData struct {
	AnomalyWeight     float64 `json:"anomaly_weight,omitempty"`     // w1
	DegradationWeight float64 `json:"degradation_weight,omitempty"` // w2
	AgeWeight         float64 `json:"age_weight,omitempty"`         // alpha
	UsageWeight       float64 `json:"usage_weight,omitempty"`       // beta
	SubcountCap       float64 `json:"subcount_cap,omitempty"`       // gamma
}

// ArtifactsData selects the artifact sinks; postgres writes are implied by
// the database connection, the rest are enabled when non-empty.
type ArtifactsData struct {
	Postgres    bool   `json:"postgres,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	CSVDir      string `json:"csv_dir,omitempty"`
	SnapshotDir string `json:"snapshot_dir,omitempty"`
}

// ReportData configures the read-only artifact API server
type ReportData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// NewProvider selects a configuration backend from the file extension:
// .db/.sqlite/.sqlite3 load through SQLite, everything else through YAML.
func NewProvider(filename string) (ConfigProvider, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteProvider(abs)
	default:
		return NewYAMLProvider(abs), nil
	}
}

// ApplyDefaults fills unset fields with the reference pipeline values.
func (c *ConfigData) ApplyDefaults() {
	if c.Window.StartMonth == "" {
		c.Window.StartMonth = "2021-01"
	}
	if c.Window.EndMonth == "" {
		c.Window.EndMonth = "2024-12"
	}
	if c.Window.ReferenceDate == "" {
		c.Window.ReferenceDate = "2024-12-31"
	}
	if c.Window.UsageClass == "" {
		c.Window.UsageClass = "D"
	}

	if c.StageOne.KMin == 0 {
		c.StageOne.KMin = 2
	}
	if c.StageOne.KMax == 0 {
		c.StageOne.KMax = 20
	}
	if c.StageOne.NInit == 0 {
		c.StageOne.NInit = 10
	}
	if c.StageOne.MaxIter == 0 {
		c.StageOne.MaxIter = 300
	}
	if c.StageOne.Seed == 0 {
		c.StageOne.Seed = 42
	}

	if len(c.Embedder.HiddenDims) == 0 {
		c.Embedder.HiddenDims = []int{64, 32}
	}
	if c.Embedder.LatentDim == 0 {
		c.Embedder.LatentDim = 8
	}
	if c.Embedder.LearningRate == 0 {
		c.Embedder.LearningRate = 0.001
	}
	if c.Embedder.Epochs == 0 {
		c.Embedder.Epochs = 100
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 64
	}
	if c.Embedder.Patience == 0 {
		c.Embedder.Patience = 10
	}
	if c.Embedder.ValidationSplit == 0 {
		c.Embedder.ValidationSplit = 0.2
	}
	if c.Embedder.Seed == 0 {
		c.Embedder.Seed = 42
	}

	if c.Cohort.Method == "" {
		c.Cohort.Method = "kmeans"
	}
	if c.Cohort.KMin == 0 {
		c.Cohort.KMin = 2
	}
	if c.Cohort.KMax == 0 {
		c.Cohort.KMax = 20
	}
	if c.Cohort.Eps == 0 {
		c.Cohort.Eps = 0.5
	}
	if c.Cohort.MinPoints == 0 {
		c.Cohort.MinPoints = 5
	}

	if c.Subcounting.RecentWindow == 0 {
		c.Subcounting.RecentWindow = 6
	}
	if c.Subcounting.BaselineWindow == 0 {
		c.Subcounting.BaselineWindow = 12
	}
	if c.Subcounting.MinHistory == 0 {
		c.Subcounting.MinHistory = 12
	}
	if c.Subcounting.RatioFloor == 0 {
		c.Subcounting.RatioFloor = 0.5
	}
	if c.Subcounting.RatioCeil == 0 {
		c.Subcounting.RatioCeil = 0.8
	}
	if c.Subcounting.SlopeFloor == 0 {
		c.Subcounting.SlopeFloor = -0.05
	}
	if c.Subcounting.WeightRatio == 0 {
		c.Subcounting.WeightRatio = 0.4
	}
	if c.Subcounting.WeightSlope == 0 {
		c.Subcounting.WeightSlope = 0.3
	}
	if c.Subcounting.WeightChange == 0 {
		c.Subcounting.WeightChange = 0.3
	}
	if c.Subcounting.ReinforceThreshold == 0 {
		c.Subcounting.ReinforceThreshold = 0.7
	}
	if c.Subcounting.ReinforceCount == 0 {
		c.Subcounting.ReinforceCount = 2
	}

	if c.Risk.AnomalyWeight == 0 {
		c.Risk.AnomalyWeight = 0.5
	}
	if c.Risk.DegradationWeight == 0 {
		c.Risk.DegradationWeight = 0.5
	}
	if c.Risk.AgeWeight == 0 {
		c.Risk.AgeWeight = 0.6
	}
	if c.Risk.UsageWeight == 0 {
		c.Risk.UsageWeight = 0.4
	}
	if c.Risk.SubcountCap == 0 {
		c.Risk.SubcountCap = 0.8
	}

	if c.Artifacts.SnapshotDir == "" {
		c.Artifacts.SnapshotDir = "artifacts"
	}
}

// Validate rejects configurations no stage could run with.
func (c *ConfigData) Validate() error {
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connection string is required")
	}
	if _, err := ParseMonth(c.Window.StartMonth); err != nil {
		return fmt.Errorf("invalid start month %q: %w", c.Window.StartMonth, err)
	}
	if _, err := ParseMonth(c.Window.EndMonth); err != nil {
		return fmt.Errorf("invalid end month %q: %w", c.Window.EndMonth, err)
	}
	if c.StageOne.FixedK == 0 && c.StageOne.KMin < 2 {
		return fmt.Errorf("stage one k_min must be at least 2, got %d", c.StageOne.KMin)
	}
	if c.StageOne.FixedK == 0 && c.StageOne.KMax < c.StageOne.KMin {
		return fmt.Errorf("stage one k_max %d below k_min %d", c.StageOne.KMax, c.StageOne.KMin)
	}
	if len(c.Embedder.HiddenDims) != 2 {
		return fmt.Errorf("embedder hidden_dims must have exactly 2 entries, got %d", len(c.Embedder.HiddenDims))
	}
	if c.Embedder.LatentDim < 1 {
		return fmt.Errorf("embedder latent_dim must be positive, got %d", c.Embedder.LatentDim)
	}
	if c.Embedder.Dropout < 0 || c.Embedder.Dropout >= 1 {
		return fmt.Errorf("embedder dropout must be in [0,1), got %g", c.Embedder.Dropout)
	}
	if c.Embedder.ValidationSplit <= 0 || c.Embedder.ValidationSplit >= 1 {
		return fmt.Errorf("embedder validation_split must be in (0,1), got %g", c.Embedder.ValidationSplit)
	}
	switch c.Cohort.Method {
	case "kmeans", "dbscan":
	default:
		return fmt.Errorf("unknown cohort clustering method %q", c.Cohort.Method)
	}
	if c.Risk.AnomalyWeight < 0 || c.Risk.DegradationWeight < 0 {
		return fmt.Errorf("risk weights must be non-negative")
	}
	if c.Risk.AnomalyWeight+c.Risk.DegradationWeight == 0 {
		return fmt.Errorf("at least one of anomaly_weight and degradation_weight must be positive")
	}
	if c.Risk.AgeWeight+c.Risk.UsageWeight == 0 {
		return fmt.Errorf("at least one of age_weight and usage_weight must be positive")
	}
	if c.Risk.SubcountCap < 0 || c.Risk.SubcountCap > 1 {
		return fmt.Errorf("subcount_cap must be in [0,1], got %g", c.Risk.SubcountCap)
	}
	w := c.Subcounting
	if w.WeightRatio < 0 || w.WeightSlope < 0 || w.WeightChange < 0 {
		return fmt.Errorf("subcounting weights must be non-negative")
	}
	if w.RatioCeil <= w.RatioFloor {
		return fmt.Errorf("subcounting ratio_ceil %g must exceed ratio_floor %g", w.RatioCeil, w.RatioFloor)
	}
	if w.SlopeFloor >= 0 {
		return fmt.Errorf("subcounting slope_floor must be negative, got %g", w.SlopeFloor)
	}
	return nil
}
