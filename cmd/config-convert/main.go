// Command config-convert converts a YAML configuration file into the
// SQLite configuration database consumed by aquarisk and the provisioner.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hidrodata/aquarisk/pkg/config"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS database_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	connection_string TEXT
);

CREATE TABLE IF NOT EXISTS window_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	start_month TEXT,
	end_month TEXT,
	reference_date TEXT,
	usage_class TEXT
);

CREATE TABLE IF NOT EXISTS stage_one_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	fixed_k INTEGER,
	k_min INTEGER,
	k_max INTEGER,
	n_init INTEGER,
	max_iter INTEGER,
	seed INTEGER
);

CREATE TABLE IF NOT EXISTS embedder_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	hidden_one INTEGER,
	hidden_two INTEGER,
	latent_dim INTEGER,
	dropout REAL,
	learning_rate REAL,
	weight_decay REAL,
	epochs INTEGER,
	batch_size INTEGER,
	patience INTEGER,
	min_delta REAL,
	validation_split REAL,
	seed INTEGER
);

CREATE TABLE IF NOT EXISTS cohort_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	method TEXT,
	fixed_k INTEGER,
	k_min INTEGER,
	k_max INTEGER,
	eps REAL,
	min_points INTEGER,
	mahalanobis BOOLEAN
);

CREATE TABLE IF NOT EXISTS subcounting_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	enabled BOOLEAN,
	cohort_medians BOOLEAN,
	recent_window INTEGER,
	baseline_window INTEGER,
	min_history INTEGER,
	ratio_floor REAL,
	ratio_ceil REAL,
	slope_floor REAL,
	weight_ratio REAL,
	weight_slope REAL,
	weight_change REAL,
	reinforce_threshold REAL,
	reinforce_count INTEGER
);

CREATE TABLE IF NOT EXISTS risk_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	anomaly_weight REAL,
	degradation_weight REAL,
	age_weight REAL,
	usage_weight REAL,
	subcount_cap REAL
);

CREATE TABLE IF NOT EXISTS artifacts_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	postgres BOOLEAN,
	sqlite_path TEXT,
	csv_dir TEXT,
	snapshot_dir TEXT
);

CREATE TABLE IF NOT EXISTS report_config (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	listen_addr TEXT,
	port INTEGER
);
`

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Check if YAML file exists
	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	// Check if SQLite file already exists
	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
	}

	// Load YAML configuration
	fmt.Printf("Loading YAML configuration...\n")
	yamlProvider := config.NewYAMLProvider(*yamlFile)
	configData, err := yamlProvider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}
	if len(configData.Embedder.HiddenDims) > 2 {
		fmt.Fprintf(os.Stderr, "Error: the SQLite schema stores two hidden layers; got %d\n", len(configData.Embedder.HiddenDims))
		os.Exit(1)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	// Remove existing SQLite file if force is specified
	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Creating SQLite database...\n")
	if err := writeSQLiteConfig(*sqliteFile, configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing SQLite configuration: %v\n", err)
		os.Exit(1)
	}

	// Read the result back through the SQLite provider as a round-trip check
	fmt.Printf("Verifying converted configuration...\n")
	sqliteProvider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening converted database: %v\n", err)
		os.Exit(1)
	}
	defer sqliteProvider.Close()
	if _, err := sqliteProvider.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading back converted configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now run aquarisk with: -config %s\n", *sqliteFile)
}

func writeSQLiteConfig(dbPath string, c *config.ConfigData) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("INSERT INTO configs (name) VALUES ('default')")
	if err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}
	configID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get config ID: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO database_config (config_id, connection_string) VALUES (?, ?)",
		configID, c.Database.ConnectionString); err != nil {
		return fmt.Errorf("failed to insert database config: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO window_config (config_id, start_month, end_month, reference_date, usage_class) VALUES (?, ?, ?, ?, ?)",
		configID, c.Window.StartMonth, c.Window.EndMonth, c.Window.ReferenceDate, c.Window.UsageClass); err != nil {
		return fmt.Errorf("failed to insert window config: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO stage_one_config (config_id, fixed_k, k_min, k_max, n_init, max_iter, seed) VALUES (?, ?, ?, ?, ?, ?, ?)",
		configID, c.StageOne.FixedK, c.StageOne.KMin, c.StageOne.KMax,
		c.StageOne.NInit, c.StageOne.MaxIter, c.StageOne.Seed); err != nil {
		return fmt.Errorf("failed to insert stage one config: %w", err)
	}

	var hiddenOne, hiddenTwo any
	if len(c.Embedder.HiddenDims) > 0 {
		hiddenOne = c.Embedder.HiddenDims[0]
	}
	if len(c.Embedder.HiddenDims) > 1 {
		hiddenTwo = c.Embedder.HiddenDims[1]
	}
	if _, err := tx.Exec(
		`INSERT INTO embedder_config (config_id, hidden_one, hidden_two, latent_dim, dropout,
			learning_rate, weight_decay, epochs, batch_size, patience, min_delta, validation_split, seed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		configID, hiddenOne, hiddenTwo, c.Embedder.LatentDim, c.Embedder.Dropout,
		c.Embedder.LearningRate, c.Embedder.WeightDecay, c.Embedder.Epochs,
		c.Embedder.BatchSize, c.Embedder.Patience, c.Embedder.MinDelta,
		c.Embedder.ValidationSplit, c.Embedder.Seed); err != nil {
		return fmt.Errorf("failed to insert embedder config: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO cohort_config (config_id, method, fixed_k, k_min, k_max, eps, min_points, mahalanobis) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		configID, c.Cohort.Method, c.Cohort.FixedK, c.Cohort.KMin, c.Cohort.KMax,
		c.Cohort.Eps, c.Cohort.MinPoints, c.Cohort.Mahalanobis); err != nil {
		return fmt.Errorf("failed to insert cohort config: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO subcounting_config (config_id, enabled, cohort_medians, recent_window, baseline_window,
			min_history, ratio_floor, ratio_ceil, slope_floor, weight_ratio, weight_slope, weight_change,
			reinforce_threshold, reinforce_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		configID, c.Subcounting.Enabled, c.Subcounting.CohortMedians,
		c.Subcounting.RecentWindow, c.Subcounting.BaselineWindow, c.Subcounting.MinHistory,
		c.Subcounting.RatioFloor, c.Subcounting.RatioCeil, c.Subcounting.SlopeFloor,
		c.Subcounting.WeightRatio, c.Subcounting.WeightSlope, c.Subcounting.WeightChange,
		c.Subcounting.ReinforceThreshold, c.Subcounting.ReinforceCount); err != nil {
		return fmt.Errorf("failed to insert subcounting config: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO risk_config (config_id, anomaly_weight, degradation_weight, age_weight, usage_weight, subcount_cap) VALUES (?, ?, ?, ?, ?, ?)",
		configID, c.Risk.AnomalyWeight, c.Risk.DegradationWeight,
		c.Risk.AgeWeight, c.Risk.UsageWeight, c.Risk.SubcountCap); err != nil {
		return fmt.Errorf("failed to insert risk config: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO artifacts_config (config_id, postgres, sqlite_path, csv_dir, snapshot_dir) VALUES (?, ?, ?, ?, ?)",
		configID, c.Artifacts.Postgres, c.Artifacts.SQLitePath,
		c.Artifacts.CSVDir, c.Artifacts.SnapshotDir); err != nil {
		return fmt.Errorf("failed to insert artifacts config: %w", err)
	}

	if c.Report != nil {
		if _, err := tx.Exec(
			"INSERT INTO report_config (config_id, listen_addr, port) VALUES (?, ?, ?)",
			configID, c.Report.ListenAddr, c.Report.Port); err != nil {
			return fmt.Errorf("failed to insert report config: %w", err)
		}
	}

	return tx.Commit()
}

func printConfigSummary(c *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Database: %s\n", c.Database.ConnectionString)
	fmt.Printf("Window: %s .. %s (reference %s, usage class %q)\n",
		c.Window.StartMonth, c.Window.EndMonth, c.Window.ReferenceDate, c.Window.UsageClass)
	fmt.Printf("Stage one: fixed_k=%d scan=%d..%d\n", c.StageOne.FixedK, c.StageOne.KMin, c.StageOne.KMax)
	fmt.Printf("Embedder: hidden=%v latent=%d epochs=%d\n",
		c.Embedder.HiddenDims, c.Embedder.LatentDim, c.Embedder.Epochs)
	fmt.Printf("Cohort: method=%s\n", c.Cohort.Method)
	fmt.Printf("Subcounting enabled: %v\n", c.Subcounting.Enabled)

	fmt.Printf("\nArtifact sinks:\n")
	if c.Artifacts.Postgres {
		fmt.Printf("  - PostgreSQL (source database)\n")
	}
	if c.Artifacts.SQLitePath != "" {
		fmt.Printf("  - SQLite: %s\n", c.Artifacts.SQLitePath)
	}
	if c.Artifacts.CSVDir != "" {
		fmt.Printf("  - CSV: %s\n", c.Artifacts.CSVDir)
	}
	if c.Report != nil {
		fmt.Printf("\nReport server: %s:%d\n", c.Report.ListenAddr, c.Report.Port)
	}
}
