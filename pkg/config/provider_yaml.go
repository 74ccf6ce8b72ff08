package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Database    databaseYAML    `yaml:"database"`
		Window      windowYAML      `yaml:"window,omitempty"`
		StageOne    stageOneYAML    `yaml:"stage-one,omitempty"`
		Embedder    embedderYAML    `yaml:"embedder,omitempty"`
		Cohort      cohortYAML      `yaml:"cohort,omitempty"`
		Subcounting subcountingYAML `yaml:"subcounting,omitempty"`
		Risk        riskYAML        `yaml:"risk,omitempty"`
		Artifacts   artifactsYAML   `yaml:"artifacts,omitempty"`
		Report      *reportYAML     `yaml:"report,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Database: DatabaseData{
			ConnectionString: yamlConfig.Database.ConnectionString,
		},
		Window: WindowData{
			StartMonth:    yamlConfig.Window.StartMonth,
			EndMonth:      yamlConfig.Window.EndMonth,
			ReferenceDate: yamlConfig.Window.ReferenceDate,
			UsageClass:    yamlConfig.Window.UsageClass,
		},
		StageOne: StageOneData{
			FixedK:  yamlConfig.StageOne.FixedK,
			KMin:    yamlConfig.StageOne.KMin,
			KMax:    yamlConfig.StageOne.KMax,
			NInit:   yamlConfig.StageOne.NInit,
			MaxIter: yamlConfig.StageOne.MaxIter,
			Seed:    yamlConfig.StageOne.Seed,
		},
		Embedder: EmbedderData{
			HiddenDims:      yamlConfig.Embedder.HiddenDims,
			LatentDim:       yamlConfig.Embedder.LatentDim,
			Dropout:         yamlConfig.Embedder.Dropout,
			LearningRate:    yamlConfig.Embedder.LearningRate,
			WeightDecay:     yamlConfig.Embedder.WeightDecay,
			Epochs:          yamlConfig.Embedder.Epochs,
			BatchSize:       yamlConfig.Embedder.BatchSize,
			Patience:        yamlConfig.Embedder.Patience,
			MinDelta:        yamlConfig.Embedder.MinDelta,
			ValidationSplit: yamlConfig.Embedder.ValidationSplit,
			Seed:            yamlConfig.Embedder.Seed,
		},
		Cohort: CohortData{
			Method:      yamlConfig.Cohort.Method,
			FixedK:      yamlConfig.Cohort.FixedK,
			KMin:        yamlConfig.Cohort.KMin,
			KMax:        yamlConfig.Cohort.KMax,
			Eps:         yamlConfig.Cohort.Eps,
			MinPoints:   yamlConfig.Cohort.MinPoints,
			Mahalanobis: yamlConfig.Cohort.Mahalanobis,
		},
		Subcounting: SubcountingData{
			Enabled:            yamlConfig.Subcounting.Enabled,
			CohortMedians:      yamlConfig.Subcounting.CohortMedians,
			RecentWindow:       yamlConfig.Subcounting.RecentWindow,
			BaselineWindow:     yamlConfig.Subcounting.BaselineWindow,
			MinHistory:         yamlConfig.Subcounting.MinHistory,
			RatioFloor:         yamlConfig.Subcounting.RatioFloor,
			RatioCeil:          yamlConfig.Subcounting.RatioCeil,
			SlopeFloor:         yamlConfig.Subcounting.SlopeFloor,
			WeightRatio:        yamlConfig.Subcounting.WeightRatio,
			WeightSlope:        yamlConfig.Subcounting.WeightSlope,
			WeightChange:       yamlConfig.Subcounting.WeightChange,
			ReinforceThreshold: yamlConfig.Subcounting.ReinforceThreshold,
			ReinforceCount:     yamlConfig.Subcounting.ReinforceCount,
		},
		Risk: RiskData{
			AnomalyWeight:     yamlConfig.Risk.AnomalyWeight,
			DegradationWeight: yamlConfig.Risk.DegradationWeight,
			AgeWeight:         yamlConfig.Risk.AgeWeight,
			UsageWeight:       yamlConfig.Risk.UsageWeight,
			SubcountCap:       yamlConfig.Risk.SubcountCap,
		},
		Artifacts: ArtifactsData{
			Postgres:    yamlConfig.Artifacts.Postgres,
			SQLitePath:  yamlConfig.Artifacts.SQLitePath,
			CSVDir:      yamlConfig.Artifacts.CSVDir,
			SnapshotDir: yamlConfig.Artifacts.SnapshotDir,
		},
	}

	if yamlConfig.Report != nil {
		config.Report = &ReportData{
			ListenAddr: yamlConfig.Report.ListenAddr,
			Port:       yamlConfig.Report.Port,
		}
	}

	config.ApplyDefaults()

	y.config = config
	return config, nil
}

// IsReadOnly returns true because YAML files are read-only configuration sources
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with yaml tags
type databaseYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type windowYAML struct {
	StartMonth    string `yaml:"start-month,omitempty"`
	EndMonth      string `yaml:"end-month,omitempty"`
	ReferenceDate string `yaml:"reference-date,omitempty"`
	UsageClass    string `yaml:"usage-class,omitempty"`
}

type stageOneYAML struct {
	FixedK  int   `yaml:"fixed-k,omitempty"`
	KMin    int   `yaml:"k-min,omitempty"`
	KMax    int   `yaml:"k-max,omitempty"`
	NInit   int   `yaml:"n-init,omitempty"`
	MaxIter int   `yaml:"max-iter,omitempty"`
	Seed    int64 `yaml:"seed,omitempty"`
}

type embedderYAML struct {
	HiddenDims      []int   `yaml:"hidden-dims,omitempty"`
	LatentDim       int     `yaml:"latent-dim,omitempty"`
	Dropout         float64 `yaml:"dropout,omitempty"`
	LearningRate    float64 `yaml:"learning-rate,omitempty"`
	WeightDecay     float64 `yaml:"weight-decay,omitempty"`
	Epochs          int     `yaml:"epochs,omitempty"`
	BatchSize       int     `yaml:"batch-size,omitempty"`
	Patience        int     `yaml:"patience,omitempty"`
	MinDelta        float64 `yaml:"min-delta,omitempty"`
	ValidationSplit float64 `yaml:"validation-split,omitempty"`
	Seed            int64   `yaml:"seed,omitempty"`
}

type cohortYAML struct {
	Method      string  `yaml:"method,omitempty"`
	FixedK      int     `yaml:"fixed-k,omitempty"`
	KMin        int     `yaml:"k-min,omitempty"`
	KMax        int     `yaml:"k-max,omitempty"`
	Eps         float64 `yaml:"eps,omitempty"`
	MinPoints   int     `yaml:"min-points,omitempty"`
	Mahalanobis bool    `yaml:"mahalanobis,omitempty"`
}

type subcountingYAML struct {
	Enabled            bool    `yaml:"enabled"`
	CohortMedians      bool    `yaml:"cohort-medians,omitempty"`
	RecentWindow       int     `yaml:"recent-window,omitempty"`
	BaselineWindow     int     `yaml:"baseline-window,omitempty"`
	MinHistory         int     `yaml:"min-history,omitempty"`
	RatioFloor         float64 `yaml:"ratio-floor,omitempty"`
	RatioCeil          float64 `yaml:"ratio-ceil,omitempty"`
	SlopeFloor         float64 `yaml:"slope-floor,omitempty"`
	WeightRatio        float64 `yaml:"weight-ratio,omitempty"`
	WeightSlope        float64 `yaml:"weight-slope,omitempty"`
	WeightChange       float64 `yaml:"weight-change,omitempty"`
	ReinforceThreshold float64 `yaml:"reinforce-threshold,omitempty"`
	ReinforceCount     int     `yaml:"reinforce-count,omitempty"`
}

type riskYAML struct {
	AnomalyWeight     float64 `yaml:"anomaly-weight,omitempty"`
	DegradationWeight float64 `yaml:"degradation-weight,omitempty"`
	AgeWeight         float64 `yaml:"age-weight,omitempty"`
	UsageWeight       float64 `yaml:"usage-weight,omitempty"`
	SubcountCap       float64 `yaml:"subcount-cap,omitempty"`
}

type artifactsYAML struct {
	Postgres    bool   `yaml:"postgres,omitempty"`
	SQLitePath  string `yaml:"sqlite-path,omitempty"`
	CSVDir      string `yaml:"csv-dir,omitempty"`
	SnapshotDir string `yaml:"snapshot-dir,omitempty"`
}

type reportYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
}
