// Package managers wires configured artifact backends to the pipeline.
package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/hidrodata/aquarisk/internal/storage"
	"github.com/hidrodata/aquarisk/internal/storage/csvdir"
	"github.com/hidrodata/aquarisk/internal/storage/postgres"
	"github.com/hidrodata/aquarisk/internal/storage/sqlite"
	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/hidrodata/aquarisk/pkg/config"
)

// StorageManager holds our active artifact backends
type StorageManager struct {
	Engines             []StorageEngine
	ArtifactDistributor chan *types.RunArtifacts
}

// StorageEngine holds a backend artifact engine's interface as well as
// a channel for passing artifact bundles to the engine
type StorageEngine struct {
	Engine storage.ArtifactEngineInterface
	C      chan<- *types.RunArtifacts
}

// NewStorageManager creates a StorageManager object, populated with all configured StorageEngines
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c *config.ConfigData) (*StorageManager, error) {
	var err error

	s := StorageManager{}

	// Initialize our channel for passing artifact bundles to the distributor
	s.ArtifactDistributor = make(chan *types.RunArtifacts, 4)

	// Start our artifact distributor to fan received bundles out to storage
	// backends
	wg.Add(1)
	go s.startArtifactDistributor(ctx, wg)

	// Check the configuration for the supported storage backends and enable
	// them if found

	if c.Artifacts.Postgres {
		err = s.AddEngine(ctx, wg, "postgres", c)
		if err != nil {
			return &s, fmt.Errorf("could not add PostgreSQL storage backend: %v", err)
		}
	}

	if c.Artifacts.SQLitePath != "" {
		err = s.AddEngine(ctx, wg, "sqlite", c)
		if err != nil {
			return &s, fmt.Errorf("could not add SQLite storage backend: %v", err)
		}
	}

	if c.Artifacts.CSVDir != "" {
		err = s.AddEngine(ctx, wg, "csv", c)
		if err != nil {
			return &s, fmt.Errorf("could not add CSV storage backend: %v", err)
		}
	}

	return &s, nil
}

// Publish hands one run's artifact bundle to the distributor.
func (s *StorageManager) Publish(a *types.RunArtifacts) {
	s.ArtifactDistributor <- a
}

// Close stops the distributor once the pipeline has published its last
// bundle. Engine channels close after the remaining bundles are fanned out,
// so waiting on the shared WaitGroup guarantees everything was persisted.
func (s *StorageManager) Close() {
	close(s.ArtifactDistributor)
}

// AddEngine adds a new StorageEngine of name engineName to our Storage object
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, engineName string, c *config.ConfigData) error {
	var err error

	switch engineName {
	case "postgres":
		se := StorageEngine{}
		se.Engine, err = postgres.New(ctx, c.Database.ConnectionString)
		if err != nil {
			return err
		}
		se.C = se.Engine.StartStorageEngine(ctx, wg)
		s.Engines = append(s.Engines, se)
	case "sqlite":
		se := StorageEngine{}
		se.Engine, err = sqlite.New(c.Artifacts.SQLitePath)
		if err != nil {
			return err
		}
		se.C = se.Engine.StartStorageEngine(ctx, wg)
		s.Engines = append(s.Engines, se)
	case "csv":
		se := StorageEngine{}
		se.Engine, err = csvdir.New(c.Artifacts.CSVDir)
		if err != nil {
			return err
		}
		se.C = se.Engine.StartStorageEngine(ctx, wg)
		s.Engines = append(s.Engines, se)
	default:
		return fmt.Errorf("unknown storage backend: %s", engineName)
	}

	return nil
}

// startArtifactDistributor receives artifact bundles from the pipeline and
// fans them out to the various storage backends
func (s *StorageManager) startArtifactDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		for _, e := range s.Engines {
			close(e.C)
		}
	}()

	for {
		select {
		case a, ok := <-s.ArtifactDistributor:
			if !ok {
				return
			}
			for _, e := range s.Engines {
				e.C <- a
			}
		case <-ctx.Done():
			// Flush bundles already queued so a finished run is not
			// dropped on shutdown.
			for {
				select {
				case a, ok := <-s.ArtifactDistributor:
					if !ok {
						return
					}
					for _, e := range s.Engines {
						e.C <- a
					}
				default:
					return
				}
			}
		}
	}
}
