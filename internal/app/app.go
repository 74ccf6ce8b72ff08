package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hidrodata/aquarisk/internal/database"
	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/managers"
	"github.com/hidrodata/aquarisk/internal/pipeline"
	"github.com/hidrodata/aquarisk/pkg/config"
	"go.uber.org/zap"
)

// App represents the batch scoring application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run executes the requested pipeline stages and blocks until every artifact
// sink has drained
func (a *App) Run(ctx context.Context, opts pipeline.Options) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	// Cancel a running stage on SIGINT/SIGTERM; stages that already
	// published keep their artifacts
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Info("shutdown signal received, cancelling run...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Connect to the source database and make sure the artifact tables exist
	db := database.NewClient(cfg.Database.ConnectionString, a.logger)
	if err := db.Connect(); err != nil {
		return err
	}
	if err := db.CreateArtifactTables(); err != nil {
		return err
	}

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, cfg)
	if err != nil {
		return err
	}

	log.Info("Application started successfully")

	runErr := pipeline.New(cfg, db, storageManager, a.logger).Run(ctx, opts)

	// Close the distributor so the sinks flush their remaining bundles
	storageManager.Close()
	log.Info("waiting for artifact sinks to drain...")
	wg.Wait()

	if runErr != nil {
		return runErr
	}
	log.Info("run complete")
	return nil
}
