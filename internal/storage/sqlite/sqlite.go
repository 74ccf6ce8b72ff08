// Package sqlite implements a file-backed artifact storage engine, handy for
// runs on a workstation without a PostgreSQL instance at hand.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/storage"
	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// Storage holds the handle for the SQLite artifact backend
type Storage struct {
	DB *sql.DB
}

// New opens (creating if necessary) the SQLite artifact database at path and
// ensures the artifact schema exists.
func New(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create artifact database directory: %w", err)
		}
	}

	log.Info("opening SQLite artifact database...")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open SQLite artifact database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping SQLite artifact database: %w", err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		return nil, fmt.Errorf("could not create artifact tables: %w", err)
	}

	return &Storage{DB: db}, nil
}

// StartStorageEngine creates a goroutine loop to receive artifact bundles and
// write them to the SQLite file
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.RunArtifacts {
	log.Info("starting SQLite artifact storage engine...")
	artifactChan := make(chan *types.RunArtifacts, 4)
	wg.Add(1)
	go storage.ProcessArtifacts(ctx, wg, artifactChan, s.StoreArtifacts, "SQLite")
	return artifactChan
}

// StoreArtifacts persists one run bundle inside a single transaction. Stage
// tables are replaced per run id so resumed stages stay idempotent.
func (s *Storage) StoreArtifacts(a *types.RunArtifacts) error {
	if len(a.Vectors) > 0 && len(a.Vectors) != len(a.MeterIDs) {
		return fmt.Errorf("feature vector count %d does not match meter id count %d", len(a.Vectors), len(a.MeterIDs))
	}
	if len(a.Latents) > 0 && len(a.Latents) != len(a.MeterIDs) {
		return fmt.Errorf("latent vector count %d does not match meter id count %d", len(a.Latents), len(a.MeterIDs))
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("could not begin artifact transaction: %w", err)
	}
	if err := storeArtifactsTx(tx, a); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit artifacts for run %s: %w", a.Run.RunID, err)
	}

	log.Infof("stored artifacts for run %s (status %s)", a.Run.RunID, a.Run.Status)
	return nil
}

func storeArtifactsTx(tx *sql.Tx, a *types.RunArtifacts) error {
	r := a.Run
	if _, err := tx.Exec(upsertRunSQL,
		r.RunID, r.StartedAt, r.FinishedAt, r.Status, r.Population, r.FeatureWidth,
		r.FeatureColumns, r.LatentDim, r.StageOneK, r.CohortMethod, r.CohortCount,
		r.Silhouette, r.SnapshotPath); err != nil {
		return fmt.Errorf("could not store pipeline run %s: %w", r.RunID, err)
	}

	if len(a.Features) > 0 {
		if err := clearStage(tx, "physical_features", r.RunID); err != nil {
			return err
		}
		for _, f := range a.Features {
			if _, err := tx.Exec(insertFeatureSQL, r.RunID, f.MeterID, f.AgeYears,
				f.DiameterMM, f.AccumulatedUsage, f.BrandModel, f.ClusterLabel); err != nil {
				return fmt.Errorf("could not store physical features: %w", err)
			}
		}
	}

	if len(a.Vectors) > 0 {
		if err := clearStage(tx, "feature_vectors", r.RunID); err != nil {
			return err
		}
		if err := insertVectors(tx, insertVectorSQL, r.RunID, a.MeterIDs, a.Vectors); err != nil {
			return fmt.Errorf("could not store feature vectors: %w", err)
		}
	}

	if len(a.Latents) > 0 {
		if err := clearStage(tx, "latent_vectors", r.RunID); err != nil {
			return err
		}
		if err := insertVectors(tx, insertLatentSQL, r.RunID, a.MeterIDs, a.Latents); err != nil {
			return fmt.Errorf("could not store latent vectors: %w", err)
		}
	}

	if len(a.Cohorts) > 0 {
		if err := clearStage(tx, "cohort_assignments", r.RunID); err != nil {
			return err
		}
		for _, c := range a.Cohorts {
			if _, err := tx.Exec(insertCohortSQL, r.RunID, c.MeterID, c.CohortLabel); err != nil {
				return fmt.Errorf("could not store cohort assignments: %w", err)
			}
		}
	}

	if len(a.CohortStats) > 0 {
		if err := clearStage(tx, "cohort_stats", r.RunID); err != nil {
			return err
		}
		for _, cs := range a.CohortStats {
			if _, err := tx.Exec(insertCohortStatSQL, r.RunID, cs.CohortLabel, cs.Size,
				cs.MeanAge, cs.MeanUsage, cs.DegradationRaw, cs.Degradation); err != nil {
				return fmt.Errorf("could not store cohort stats: %w", err)
			}
		}
	}

	if len(a.Scores) > 0 {
		if err := clearStage(tx, "meter_scores", r.RunID); err != nil {
			return err
		}
		for _, sc := range a.Scores {
			if _, err := tx.Exec(insertScoreSQL, r.RunID, sc.Rank, sc.MeterID, sc.CohortLabel,
				sc.AnomalyScore, sc.Degradation, sc.RiskPercentBase,
				sc.SubcountScore, sc.SubcountPercent, sc.RiskPercent); err != nil {
				return fmt.Errorf("could not store meter scores: %w", err)
			}
		}
	}

	return nil
}

func clearStage(tx *sql.Tx, table, runID string) error {
	if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("could not clear %s for run %s: %w", table, runID, err)
	}
	return nil
}

func insertVectors(tx *sql.Tx, query, runID string, meterIDs []string, vectors [][]float64) error {
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range vectors {
		blob, err := msgpack.Marshal(v)
		if err != nil {
			return fmt.Errorf("could not encode vector for %s: %w", meterIDs[i], err)
		}
		if _, err := stmt.Exec(runID, meterIDs[i], blob); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle once the engine has drained.
func (s *Storage) Close() error {
	return s.DB.Close()
}
