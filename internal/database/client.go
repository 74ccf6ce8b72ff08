// Package database provides the PostgreSQL client for the meter source
// tables and the persisted pipeline artifacts.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/types"
	"go.uber.org/zap"
)

// Client holds the connection to the meter database
type Client struct {
	connectionString string
	DB               *gorm.DB // Exported so it can be accessed from other packages
	logger           *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(connectionString string, logger *zap.SugaredLogger) *Client {
	return &Client{
		connectionString: connectionString,
		logger:           logger,
	}
}

// Connect connects to the PostgreSQL database
func (c *Client) Connect() error {
	var err error

	log.Info("connecting to PostgreSQL...")
	c.DB, err = CreateConnection(c.connectionString)
	if err != nil {
		return err
	}
	log.Info("PostgreSQL connection successful")

	return nil
}

// CreateConnection is a helper function to create a database connection with standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to create a PostgreSQL connection: %w", err)
	}

	return db, nil
}

// CreateArtifactTables migrates the artifact tables the pipeline writes.
// Source tables are provisioned separately and never touched here.
func (c *Client) CreateArtifactTables() error {
	return c.DB.AutoMigrate(
		&types.PipelineRun{},
		&types.PhysicalFeatureRow{},
		&types.FeatureVectorRow{},
		&types.LatentVectorRow{},
		&types.CohortAssignment{},
		&types.CohortStat{},
		&types.MeterScore{},
	)
}
