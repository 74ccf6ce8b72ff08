package sqlite

// Artifact schema. Mirrors the PostgreSQL artifact tables; vectors are
// msgpack-encoded blobs so the two stores stay interchangeable for resumes.
const createTablesSQL = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	status TEXT,
	population INTEGER,
	feature_width INTEGER,
	feature_columns BLOB,
	latent_dim INTEGER,
	stage_one_k INTEGER,
	cohort_method TEXT,
	cohort_count INTEGER,
	silhouette REAL,
	snapshot_path TEXT
);

CREATE TABLE IF NOT EXISTS physical_features (
	run_id TEXT NOT NULL,
	meter_id TEXT NOT NULL,
	age_years REAL,
	diameter_mm INTEGER,
	accumulated_usage REAL,
	brand_model TEXT,
	cluster_label INTEGER
);
CREATE INDEX IF NOT EXISTS idx_physical_features_run ON physical_features (run_id);

CREATE TABLE IF NOT EXISTS feature_vectors (
	run_id TEXT NOT NULL,
	meter_id TEXT NOT NULL,
	vector BLOB
);
CREATE INDEX IF NOT EXISTS idx_feature_vectors_run ON feature_vectors (run_id);

CREATE TABLE IF NOT EXISTS latent_vectors (
	run_id TEXT NOT NULL,
	meter_id TEXT NOT NULL,
	vector BLOB
);
CREATE INDEX IF NOT EXISTS idx_latent_vectors_run ON latent_vectors (run_id);

CREATE TABLE IF NOT EXISTS cohort_assignments (
	run_id TEXT NOT NULL,
	meter_id TEXT NOT NULL,
	cohort_label INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cohort_assignments_run ON cohort_assignments (run_id);

CREATE TABLE IF NOT EXISTS cohort_stats (
	run_id TEXT NOT NULL,
	cohort_label INTEGER,
	size INTEGER,
	mean_age REAL,
	mean_usage REAL,
	degradation_raw REAL,
	degradation REAL
);
CREATE INDEX IF NOT EXISTS idx_cohort_stats_run ON cohort_stats (run_id);

CREATE TABLE IF NOT EXISTS meter_scores (
	run_id TEXT NOT NULL,
	rank INTEGER,
	meter_id TEXT NOT NULL,
	cohort_label INTEGER,
	anomaly_score REAL,
	cluster_degradation REAL,
	risk_percent_base REAL,
	subcount_score REAL,
	subcount_percent REAL,
	risk_percent REAL
);
CREATE INDEX IF NOT EXISTS idx_meter_scores_run ON meter_scores (run_id);
`

const upsertRunSQL = `
INSERT OR REPLACE INTO pipeline_runs (
	run_id, started_at, finished_at, status, population, feature_width,
	feature_columns, latent_dim, stage_one_k, cohort_method, cohort_count,
	silhouette, snapshot_path
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertFeatureSQL = `
INSERT INTO physical_features (
	run_id, meter_id, age_years, diameter_mm, accumulated_usage, brand_model, cluster_label
) VALUES (?, ?, ?, ?, ?, ?, ?)
`

const insertVectorSQL = `
INSERT INTO feature_vectors (run_id, meter_id, vector) VALUES (?, ?, ?)
`

const insertLatentSQL = `
INSERT INTO latent_vectors (run_id, meter_id, vector) VALUES (?, ?, ?)
`

const insertCohortSQL = `
INSERT INTO cohort_assignments (run_id, meter_id, cohort_label) VALUES (?, ?, ?)
`

const insertCohortStatSQL = `
INSERT INTO cohort_stats (
	run_id, cohort_label, size, mean_age, mean_usage, degradation_raw, degradation
) VALUES (?, ?, ?, ?, ?, ?, ?)
`

const insertScoreSQL = `
INSERT INTO meter_scores (
	run_id, rank, meter_id, cohort_label, anomaly_score, cluster_degradation,
	risk_percent_base, subcount_score, subcount_percent, risk_percent
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
