package config

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	if err := s.loadDatabase(config); err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	if err := s.loadWindow(config); err != nil {
		return nil, fmt.Errorf("failed to load window config: %w", err)
	}
	if err := s.loadStageOne(config); err != nil {
		return nil, fmt.Errorf("failed to load stage one config: %w", err)
	}
	if err := s.loadEmbedder(config); err != nil {
		return nil, fmt.Errorf("failed to load embedder config: %w", err)
	}
	if err := s.loadCohort(config); err != nil {
		return nil, fmt.Errorf("failed to load cohort config: %w", err)
	}
	if err := s.loadSubcounting(config); err != nil {
		return nil, fmt.Errorf("failed to load subcounting config: %w", err)
	}
	if err := s.loadRisk(config); err != nil {
		return nil, fmt.Errorf("failed to load risk config: %w", err)
	}
	if err := s.loadArtifacts(config); err != nil {
		return nil, fmt.Errorf("failed to load artifacts config: %w", err)
	}
	if err := s.loadReport(config); err != nil {
		return nil, fmt.Errorf("failed to load report config: %w", err)
	}

	config.ApplyDefaults()

	return config, nil
}

const defaultConfigScope = `(SELECT id FROM configs WHERE name = 'default')`

func (s *SQLiteProvider) loadDatabase(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT connection_string
		FROM database_config
		WHERE config_id = ` + defaultConfigScope)

	err := row.Scan(&config.Database.ConnectionString)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func (s *SQLiteProvider) loadWindow(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT start_month, end_month, reference_date, usage_class
		FROM window_config
		WHERE config_id = ` + defaultConfigScope)

	var startMonth, endMonth, referenceDate, usageClass sql.NullString
	err := row.Scan(&startMonth, &endMonth, &referenceDate, &usageClass)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.Window.StartMonth = startMonth.String
	config.Window.EndMonth = endMonth.String
	config.Window.ReferenceDate = referenceDate.String
	config.Window.UsageClass = usageClass.String
	return nil
}

func (s *SQLiteProvider) loadStageOne(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT fixed_k, k_min, k_max, n_init, max_iter, seed
		FROM stage_one_config
		WHERE config_id = ` + defaultConfigScope)

	var fixedK, kMin, kMax, nInit, maxIter, seed sql.NullInt64
	err := row.Scan(&fixedK, &kMin, &kMax, &nInit, &maxIter, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.StageOne.FixedK = int(fixedK.Int64)
	config.StageOne.KMin = int(kMin.Int64)
	config.StageOne.KMax = int(kMax.Int64)
	config.StageOne.NInit = int(nInit.Int64)
	config.StageOne.MaxIter = int(maxIter.Int64)
	config.StageOne.Seed = seed.Int64
	return nil
}

func (s *SQLiteProvider) loadEmbedder(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT hidden_one, hidden_two, latent_dim, dropout, learning_rate,
		       weight_decay, epochs, batch_size, patience, min_delta,
		       validation_split, seed
		FROM embedder_config
		WHERE config_id = ` + defaultConfigScope)

	var hiddenOne, hiddenTwo, latentDim, epochs, batchSize, patience, seed sql.NullInt64
	var dropout, learningRate, weightDecay, minDelta, validationSplit sql.NullFloat64
	err := row.Scan(&hiddenOne, &hiddenTwo, &latentDim, &dropout, &learningRate,
		&weightDecay, &epochs, &batchSize, &patience, &minDelta,
		&validationSplit, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if hiddenOne.Valid && hiddenTwo.Valid {
		config.Embedder.HiddenDims = []int{int(hiddenOne.Int64), int(hiddenTwo.Int64)}
	}
	config.Embedder.LatentDim = int(latentDim.Int64)
	config.Embedder.Dropout = dropout.Float64
	config.Embedder.LearningRate = learningRate.Float64
	config.Embedder.WeightDecay = weightDecay.Float64
	config.Embedder.Epochs = int(epochs.Int64)
	config.Embedder.BatchSize = int(batchSize.Int64)
	config.Embedder.Patience = int(patience.Int64)
	config.Embedder.MinDelta = minDelta.Float64
	config.Embedder.ValidationSplit = validationSplit.Float64
	config.Embedder.Seed = seed.Int64
	return nil
}

func (s *SQLiteProvider) loadCohort(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT method, fixed_k, k_min, k_max, eps, min_points, mahalanobis
		FROM cohort_config
		WHERE config_id = ` + defaultConfigScope)

	var method sql.NullString
	var fixedK, kMin, kMax, minPoints sql.NullInt64
	var eps sql.NullFloat64
	var mahalanobis sql.NullBool
	err := row.Scan(&method, &fixedK, &kMin, &kMax, &eps, &minPoints, &mahalanobis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.Cohort.Method = method.String
	config.Cohort.FixedK = int(fixedK.Int64)
	config.Cohort.KMin = int(kMin.Int64)
	config.Cohort.KMax = int(kMax.Int64)
	config.Cohort.Eps = eps.Float64
	config.Cohort.MinPoints = int(minPoints.Int64)
	config.Cohort.Mahalanobis = mahalanobis.Bool
	return nil
}

func (s *SQLiteProvider) loadSubcounting(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT enabled, cohort_medians, recent_window, baseline_window,
		       min_history, ratio_floor, ratio_ceil, slope_floor,
		       weight_ratio, weight_slope, weight_change,
		       reinforce_threshold, reinforce_count
		FROM subcounting_config
		WHERE config_id = ` + defaultConfigScope)

	var enabled, cohortMedians sql.NullBool
	var recentWindow, baselineWindow, minHistory, reinforceCount sql.NullInt64
	var ratioFloor, ratioCeil, slopeFloor, weightRatio, weightSlope, weightChange, reinforceThreshold sql.NullFloat64
	err := row.Scan(&enabled, &cohortMedians, &recentWindow, &baselineWindow,
		&minHistory, &ratioFloor, &ratioCeil, &slopeFloor,
		&weightRatio, &weightSlope, &weightChange,
		&reinforceThreshold, &reinforceCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.Subcounting.Enabled = enabled.Bool
	config.Subcounting.CohortMedians = cohortMedians.Bool
	config.Subcounting.RecentWindow = int(recentWindow.Int64)
	config.Subcounting.BaselineWindow = int(baselineWindow.Int64)
	config.Subcounting.MinHistory = int(minHistory.Int64)
	config.Subcounting.RatioFloor = ratioFloor.Float64
	config.Subcounting.RatioCeil = ratioCeil.Float64
	config.Subcounting.SlopeFloor = slopeFloor.Float64
	config.Subcounting.WeightRatio = weightRatio.Float64
	config.Subcounting.WeightSlope = weightSlope.Float64
	config.Subcounting.WeightChange = weightChange.Float64
	config.Subcounting.ReinforceThreshold = reinforceThreshold.Float64
	config.Subcounting.ReinforceCount = int(reinforceCount.Int64)
	return nil
}

func (s *SQLiteProvider) loadRisk(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT anomaly_weight, degradation_weight, age_weight, usage_weight, subcount_cap
		FROM risk_config
		WHERE config_id = ` + defaultConfigScope)

	var anomalyWeight, degradationWeight, ageWeight, usageWeight, subcountCap sql.NullFloat64
	err := row.Scan(&anomalyWeight, &degradationWeight, &ageWeight, &usageWeight, &subcountCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.Risk.AnomalyWeight = anomalyWeight.Float64
	config.Risk.DegradationWeight = degradationWeight.Float64
	config.Risk.AgeWeight = ageWeight.Float64
	config.Risk.UsageWeight = usageWeight.Float64
	config.Risk.SubcountCap = subcountCap.Float64
	return nil
}

func (s *SQLiteProvider) loadArtifacts(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT postgres, sqlite_path, csv_dir, snapshot_dir
		FROM artifacts_config
		WHERE config_id = ` + defaultConfigScope)

	var postgres sql.NullBool
	var sqlitePath, csvDir, snapshotDir sql.NullString
	err := row.Scan(&postgres, &sqlitePath, &csvDir, &snapshotDir)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.Artifacts.Postgres = postgres.Bool
	config.Artifacts.SQLitePath = sqlitePath.String
	config.Artifacts.CSVDir = csvDir.String
	config.Artifacts.SnapshotDir = snapshotDir.String
	return nil
}

func (s *SQLiteProvider) loadReport(config *ConfigData) error {
	row := s.db.QueryRow(`
		SELECT listen_addr, port
		FROM report_config
		WHERE config_id = ` + defaultConfigScope)

	var listenAddr sql.NullString
	var port sql.NullInt64
	err := row.Scan(&listenAddr, &port)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	config.Report = &ReportData{
		ListenAddr: listenAddr.String,
		Port:       int(port.Int64),
	}
	return nil
}

// IsReadOnly returns false because SQLite configurations can be modified in place
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the underlying database handle
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
