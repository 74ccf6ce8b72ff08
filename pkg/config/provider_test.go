package config

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

// A config carrying only the connection string and the window must load
// with the reference defaults filled in and pass validation as-is.
func TestYAMLProviderMinimalConfigGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	minimal := `database:
  connection-string: "host=localhost dbname=aquarisk"
window:
  start-month: "2021-01"
  end-month: "2024-12"
`
	if err := os.WriteFile(path, []byte(minimal), 0644); err != nil {
		t.Fatal(err)
	}

	provider, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal config did not validate: %v", err)
	}

	if cfg.StageOne.KMin != 2 || cfg.StageOne.KMax != 20 {
		t.Errorf("stage one scan defaulted to %d..%d, want 2..20", cfg.StageOne.KMin, cfg.StageOne.KMax)
	}
	if cfg.StageOne.NInit != 10 || cfg.StageOne.Seed != 42 {
		t.Errorf("stage one n_init=%d seed=%d, want 10 and 42", cfg.StageOne.NInit, cfg.StageOne.Seed)
	}
	if len(cfg.Embedder.HiddenDims) != 2 || cfg.Embedder.HiddenDims[0] != 64 || cfg.Embedder.HiddenDims[1] != 32 {
		t.Errorf("hidden dims defaulted to %v, want [64 32]", cfg.Embedder.HiddenDims)
	}
	if cfg.Embedder.LatentDim != 8 {
		t.Errorf("latent dim defaulted to %d, want 8", cfg.Embedder.LatentDim)
	}
	if cfg.Cohort.Method != "kmeans" {
		t.Errorf("cohort method defaulted to %q, want kmeans", cfg.Cohort.Method)
	}
	if cfg.Subcounting.RecentWindow != 6 || cfg.Subcounting.BaselineWindow != 12 {
		t.Errorf("subcounting windows defaulted to %d/%d, want 6/12", cfg.Subcounting.RecentWindow, cfg.Subcounting.BaselineWindow)
	}
	if cfg.Subcounting.RatioFloor != 0.5 || cfg.Subcounting.RatioCeil != 0.8 || cfg.Subcounting.SlopeFloor != -0.05 {
		t.Errorf("subcounting thresholds defaulted to %g/%g/%g, want 0.5/0.8/-0.05",
			cfg.Subcounting.RatioFloor, cfg.Subcounting.RatioCeil, cfg.Subcounting.SlopeFloor)
	}
	if cfg.Risk.AgeWeight != 0.6 || cfg.Risk.UsageWeight != 0.4 || cfg.Risk.SubcountCap != 0.8 {
		t.Errorf("risk weights defaulted to %g/%g/%g, want 0.6/0.4/0.8",
			cfg.Risk.AgeWeight, cfg.Risk.UsageWeight, cfg.Risk.SubcountCap)
	}
	if cfg.Window.ReferenceDate != "2024-12-31" || cfg.Window.UsageClass != "D" {
		t.Errorf("window defaults %q/%q, want 2024-12-31 and D", cfg.Window.ReferenceDate, cfg.Window.UsageClass)
	}
}

func TestYAMLProviderExplicitValuesSurviveDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	explicit := `database:
  connection-string: "host=localhost dbname=aquarisk"
window:
  start-month: "2022-01"
  end-month: "2023-12"
stage-one:
  k-min: 3
  k-max: 8
cohort:
  method: dbscan
  eps: 0.9
  min-points: 4
`
	if err := os.WriteFile(path, []byte(explicit), 0644); err != nil {
		t.Fatal(err)
	}

	provider := NewYAMLProvider(path)
	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config did not validate: %v", err)
	}

	if cfg.StageOne.KMin != 3 || cfg.StageOne.KMax != 8 {
		t.Errorf("explicit scan bounds overwritten: got %d..%d", cfg.StageOne.KMin, cfg.StageOne.KMax)
	}
	if cfg.Cohort.Method != "dbscan" || cfg.Cohort.Eps != 0.9 || cfg.Cohort.MinPoints != 4 {
		t.Errorf("explicit cohort settings overwritten: %q eps=%g min_points=%d",
			cfg.Cohort.Method, cfg.Cohort.Eps, cfg.Cohort.MinPoints)
	}
	if cfg.StageOne.NInit != 10 {
		t.Errorf("unset n_init not defaulted: got %d", cfg.StageOne.NInit)
	}
}

func TestSQLiteProviderMinimalConfigGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	ddl := `
		CREATE TABLE configs (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE);
		CREATE TABLE database_config (config_id INTEGER NOT NULL, connection_string TEXT);
		CREATE TABLE window_config (config_id INTEGER NOT NULL, start_month TEXT, end_month TEXT, reference_date TEXT, usage_class TEXT);
		INSERT INTO configs (name) VALUES ('default');
		INSERT INTO database_config (config_id, connection_string) VALUES (1, 'host=localhost dbname=aquarisk');
		INSERT INTO window_config (config_id, start_month, end_month, reference_date, usage_class)
			VALUES (1, '2021-01', '2024-12', '', '');
	`
	if _, err := db.Exec(ddl); err != nil {
		t.Fatal(err)
	}
	db.Close()

	provider, err := NewSQLiteProvider(path)
	if err != nil {
		t.Fatalf("NewSQLiteProvider: %v", err)
	}
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal config did not validate: %v", err)
	}
	if cfg.StageOne.KMin != 2 || cfg.Cohort.Method != "kmeans" || cfg.Embedder.LatentDim != 8 {
		t.Errorf("defaults not applied: k_min=%d method=%q latent=%d",
			cfg.StageOne.KMin, cfg.Cohort.Method, cfg.Embedder.LatentDim)
	}
}
