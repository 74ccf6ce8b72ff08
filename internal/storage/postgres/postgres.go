// Package postgres implements the PostgreSQL artifact storage backend.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/hidrodata/aquarisk/internal/database"
	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/storage"
	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"
)

// Batch size for stage-table inserts, sized to stay clear of the PostgreSQL
// bind-parameter limit at our widest row.
const insertBatchSize = 500

// Storage holds the connection for the PostgreSQL artifact backend
type Storage struct {
	DB *gorm.DB
}

// New sets up a new PostgreSQL artifact backend on the same database that
// holds the meter source tables, and migrates the artifact tables.
func New(ctx context.Context, connectionString string) (*Storage, error) {
	s := Storage{}

	log.Info("connecting to PostgreSQL...")
	client := database.NewClient(connectionString, log.GetSugaredLogger())
	if err := client.Connect(); err != nil {
		log.Warn("warning: unable to create a PostgreSQL connection:", err)
		return &Storage{}, err
	}

	log.Info("migrating artifact tables...")
	if err := client.CreateArtifactTables(); err != nil {
		log.Warn("warning: could not migrate artifact tables")
		return &Storage{}, err
	}

	s.DB = client.DB.WithContext(ctx)
	return &s, nil
}

// StartStorageEngine creates a goroutine loop to receive artifact bundles and
// send them off to PostgreSQL
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.RunArtifacts {
	log.Info("starting PostgreSQL artifact storage engine...")
	artifactChan := make(chan *types.RunArtifacts, 4)
	wg.Add(1)
	go storage.ProcessArtifacts(ctx, wg, artifactChan, s.StoreArtifacts, "PostgreSQL")
	return artifactChan
}

// StoreArtifacts persists one run bundle. The run row is saved
// update-or-insert so a resumed stage refreshes status and counters; stage
// tables are replaced per run id, which keeps reruns idempotent.
func (s *Storage) StoreArtifacts(a *types.RunArtifacts) error {
	if err := s.DB.Save(&a.Run).Error; err != nil {
		return fmt.Errorf("could not store pipeline run %s: %w", a.Run.RunID, err)
	}

	if len(a.Features) > 0 {
		if err := replaceRows(s.DB, &types.PhysicalFeatureRow{}, a.Run.RunID, a.Features); err != nil {
			return fmt.Errorf("could not store physical features: %w", err)
		}
	}

	if len(a.Vectors) > 0 {
		rows, err := featureVectorRows(a.Run.RunID, a.MeterIDs, a.Vectors)
		if err != nil {
			return err
		}
		if err := replaceRows(s.DB, &types.FeatureVectorRow{}, a.Run.RunID, rows); err != nil {
			return fmt.Errorf("could not store feature vectors: %w", err)
		}
	}

	if len(a.Latents) > 0 {
		rows, err := latentVectorRows(a.Run.RunID, a.MeterIDs, a.Latents)
		if err != nil {
			return err
		}
		if err := replaceRows(s.DB, &types.LatentVectorRow{}, a.Run.RunID, rows); err != nil {
			return fmt.Errorf("could not store latent vectors: %w", err)
		}
	}

	if len(a.Cohorts) > 0 {
		if err := replaceRows(s.DB, &types.CohortAssignment{}, a.Run.RunID, a.Cohorts); err != nil {
			return fmt.Errorf("could not store cohort assignments: %w", err)
		}
	}

	if len(a.CohortStats) > 0 {
		if err := replaceRows(s.DB, &types.CohortStat{}, a.Run.RunID, a.CohortStats); err != nil {
			return fmt.Errorf("could not store cohort stats: %w", err)
		}
	}

	if len(a.Scores) > 0 {
		if err := replaceRows(s.DB, &types.MeterScore{}, a.Run.RunID, a.Scores); err != nil {
			return fmt.Errorf("could not store meter scores: %w", err)
		}
	}

	log.Infof("stored artifacts for run %s (status %s)", a.Run.RunID, a.Run.Status)
	return nil
}

// replaceRows deletes a stage table's rows for the run and inserts the fresh
// set inside one transaction.
func replaceRows(db *gorm.DB, model interface{}, runID string, rows interface{}) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(model).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
}

func featureVectorRows(runID string, meterIDs []string, vectors [][]float64) ([]types.FeatureVectorRow, error) {
	if len(meterIDs) != len(vectors) {
		return nil, fmt.Errorf("feature vector count %d does not match meter id count %d", len(vectors), len(meterIDs))
	}
	rows := make([]types.FeatureVectorRow, len(vectors))
	for i, v := range vectors {
		blob, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("could not encode feature vector for %s: %w", meterIDs[i], err)
		}
		rows[i] = types.FeatureVectorRow{RunID: runID, MeterID: meterIDs[i], Vector: blob}
	}
	return rows, nil
}

func latentVectorRows(runID string, meterIDs []string, latents [][]float64) ([]types.LatentVectorRow, error) {
	if len(meterIDs) != len(latents) {
		return nil, fmt.Errorf("latent vector count %d does not match meter id count %d", len(latents), len(meterIDs))
	}
	rows := make([]types.LatentVectorRow, len(latents))
	for i, v := range latents {
		blob, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("could not encode latent vector for %s: %w", meterIDs[i], err)
		}
		rows[i] = types.LatentVectorRow{RunID: runID, MeterID: meterIDs[i], Vector: blob}
	}
	return rows, nil
}
