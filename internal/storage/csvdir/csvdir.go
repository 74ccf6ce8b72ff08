// Package csvdir implements an artifact storage engine that writes one
// directory of CSV files per pipeline run, for spreadsheet and notebook use.
package csvdir

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/storage"
	"github.com/hidrodata/aquarisk/internal/types"
)

// Storage holds the target directory for the CSV artifact backend
type Storage struct {
	Dir string
}

// New ensures the export directory exists.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create CSV artifact directory: %w", err)
	}
	return &Storage{Dir: dir}, nil
}

// StartStorageEngine creates a goroutine loop to receive artifact bundles and
// write them out as CSV files
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.RunArtifacts {
	log.Info("starting CSV artifact storage engine...")
	artifactChan := make(chan *types.RunArtifacts, 4)
	wg.Add(1)
	go storage.ProcessArtifacts(ctx, wg, artifactChan, s.StoreArtifacts, "CSV")
	return artifactChan
}

// StoreArtifacts writes one file per produced artifact under a run-id
// subdirectory. Files are rewritten whole, which keeps resumed stages
// idempotent.
func (s *Storage) StoreArtifacts(a *types.RunArtifacts) error {
	runDir := filepath.Join(s.Dir, a.Run.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("could not create run directory: %w", err)
	}

	if err := s.writeRun(runDir, &a.Run); err != nil {
		return err
	}

	if len(a.Features) > 0 {
		if err := s.writeFeatures(runDir, a.Features); err != nil {
			return err
		}
	}
	if len(a.Vectors) > 0 {
		if err := s.writeMatrix(runDir, "feature_vectors.csv", a.MeterIDs, a.FeatureCols, a.Vectors); err != nil {
			return err
		}
	}
	if len(a.Latents) > 0 {
		if err := s.writeMatrix(runDir, "latent_vectors.csv", a.MeterIDs, latentColumns(a.Latents), a.Latents); err != nil {
			return err
		}
	}
	if len(a.Cohorts) > 0 {
		if err := s.writeCohorts(runDir, a.Cohorts); err != nil {
			return err
		}
	}
	if len(a.CohortStats) > 0 {
		if err := s.writeCohortStats(runDir, a.CohortStats); err != nil {
			return err
		}
	}
	if len(a.Scores) > 0 {
		if err := s.writeScores(runDir, a.Scores); err != nil {
			return err
		}
	}

	log.Infof("wrote CSV artifacts for run %s to %s", a.Run.RunID, runDir)
	return nil
}

func (s *Storage) writeRun(runDir string, r *types.PipelineRun) error {
	header := []string{
		"run_id", "started_at", "finished_at", "status", "population",
		"feature_width", "latent_dim", "stage_one_k", "cohort_method",
		"cohort_count", "silhouette", "snapshot_path",
	}
	row := []string{
		r.RunID,
		r.StartedAt.Format(time.RFC3339),
		r.FinishedAt.Format(time.RFC3339),
		r.Status,
		strconv.Itoa(r.Population),
		strconv.Itoa(r.FeatureWidth),
		strconv.Itoa(r.LatentDim),
		strconv.Itoa(r.StageOneK),
		r.CohortMethod,
		strconv.Itoa(r.CohortCount),
		formatFloat(r.Silhouette),
		r.SnapshotPath,
	}
	return writeFile(filepath.Join(runDir, "run.csv"), header, [][]string{row})
}

func (s *Storage) writeFeatures(runDir string, features []types.PhysicalFeatureRow) error {
	header := []string{"meter_id", "age_years", "diameter_mm", "accumulated_usage", "brand_model", "cluster_label"}
	rows := make([][]string, len(features))
	for i, f := range features {
		rows[i] = []string{
			f.MeterID,
			formatFloat(f.AgeYears),
			strconv.Itoa(f.DiameterMM),
			formatFloat(f.AccumulatedUsage),
			f.BrandModel,
			strconv.Itoa(f.ClusterLabel),
		}
	}
	return writeFile(filepath.Join(runDir, "physical_features.csv"), header, rows)
}

// writeMatrix writes a wide per-meter matrix with named columns, used for
// both the assembled feature matrix and the latent embedding.
func (s *Storage) writeMatrix(runDir, name string, meterIDs, columns []string, matrix [][]float64) error {
	if len(meterIDs) != len(matrix) {
		return fmt.Errorf("%s: row count %d does not match meter id count %d", name, len(matrix), len(meterIDs))
	}
	header := append([]string{"meter_id"}, columns...)
	rows := make([][]string, len(matrix))
	for i, vec := range matrix {
		if len(vec) != len(columns) {
			return fmt.Errorf("%s: row %d has %d values for %d columns", name, i, len(vec), len(columns))
		}
		row := make([]string, 0, len(vec)+1)
		row = append(row, meterIDs[i])
		for _, v := range vec {
			row = append(row, formatFloat(v))
		}
		rows[i] = row
	}
	return writeFile(filepath.Join(runDir, name), header, rows)
}

func (s *Storage) writeCohorts(runDir string, cohorts []types.CohortAssignment) error {
	header := []string{"meter_id", "cohort_label"}
	rows := make([][]string, len(cohorts))
	for i, c := range cohorts {
		rows[i] = []string{c.MeterID, strconv.Itoa(c.CohortLabel)}
	}
	return writeFile(filepath.Join(runDir, "cohort_assignments.csv"), header, rows)
}

func (s *Storage) writeCohortStats(runDir string, stats []types.CohortStat) error {
	header := []string{"cohort_label", "size", "mean_age", "mean_usage", "degradation_raw", "degradation"}
	rows := make([][]string, len(stats))
	for i, cs := range stats {
		rows[i] = []string{
			strconv.Itoa(cs.CohortLabel),
			strconv.Itoa(cs.Size),
			formatFloat(cs.MeanAge),
			formatFloat(cs.MeanUsage),
			formatFloat(cs.DegradationRaw),
			formatFloat(cs.Degradation),
		}
	}
	return writeFile(filepath.Join(runDir, "cohort_stats.csv"), header, rows)
}

func (s *Storage) writeScores(runDir string, scores []types.MeterScore) error {
	header := []string{
		"rank", "meter_id", "cohort_label", "anomaly_score", "cluster_degradation",
		"risk_percent_base", "subcount_score", "subcount_percent", "risk_percent",
	}
	rows := make([][]string, len(scores))
	for i, sc := range scores {
		rows[i] = []string{
			strconv.Itoa(sc.Rank),
			sc.MeterID,
			strconv.Itoa(sc.CohortLabel),
			formatFloat(sc.AnomalyScore),
			formatFloat(sc.Degradation),
			formatFloat(sc.RiskPercentBase),
			formatFloat(sc.SubcountScore),
			formatFloat(sc.SubcountPercent),
			formatFloat(sc.RiskPercent),
		}
	}
	return writeFile(filepath.Join(runDir, "meter_scores.csv"), header, rows)
}

func latentColumns(latents [][]float64) []string {
	if len(latents) == 0 {
		return nil
	}
	cols := make([]string, len(latents[0]))
	for i := range cols {
		cols[i] = "z_" + strconv.Itoa(i)
	}
	return cols
}

func writeFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	// WriteAll flushes, so buffered header errors surface here too.
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
