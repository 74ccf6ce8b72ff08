package provision

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Config holds the provisioning configuration
type Config struct {
	PostgresHost     string
	PostgresPort     int
	PostgresAdmin    string
	PostgresPassword string
	DBName           string
	DBUser           string
	DBPassword       string
	SSLMode          string
	ConfigDBPath     string
}

// AdminConnString builds a connection string for the admin user against dbname
func (c *Config) AdminConnString(dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresAdmin, c.PostgresPassword, dbname, c.SSLMode)
}

// UserConnString builds the connection string the pipeline will use
func (c *Config) UserConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.DBUser, c.DBPassword, c.DBName, c.SSLMode)
}

// PreflightChecks runs all pre-flight validation checks
func PreflightChecks(cfg *Config) error {
	fmt.Println("🔍 Pre-flight Checks")

	// Check PostgreSQL connection
	if err := checkPostgreSQLConnection(cfg); err != nil {
		return fmt.Errorf("❌ PostgreSQL connection failed: %w", err)
	}
	fmt.Println("✅ PostgreSQL connection successful")

	// Check config.db if the caller asked us to update one
	if cfg.ConfigDBPath != "" {
		if err := checkConfigDB(cfg.ConfigDBPath); err != nil {
			return fmt.Errorf("❌ Config database check failed: %w", err)
		}
		fmt.Printf("✅ Config database found: %s\n", cfg.ConfigDBPath)
	}

	// Check for existing database/user conflicts
	conflicts, err := checkExistingResources(cfg)
	if err != nil {
		return fmt.Errorf("❌ Failed to check existing resources: %w", err)
	}
	if conflicts {
		return fmt.Errorf("❌ Database or user already exists")
	}
	fmt.Println("✅ No existing database/user conflicts")

	fmt.Println()
	return nil
}

// checkPostgreSQLConnection verifies PostgreSQL is accessible
func checkPostgreSQLConnection(cfg *Config) error {
	db, err := sql.Open("pgx", cfg.AdminConnString("postgres"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return err
	}

	var version string
	return db.QueryRow("SELECT version()").Scan(&version)
}

// checkConfigDB verifies the config database exists and is accessible
func checkConfigDB(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config database not found at %s", path)
		}
		return err
	}

	// Try to open and query the database
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open config database: %w", err)
	}
	defer db.Close()

	// Verify configs table exists
	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='configs'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return fmt.Errorf("configs table not found in database - is this a valid aquarisk config.db?")
	}
	if err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}

	return nil
}

// checkExistingResources checks if database or user already exists
func checkExistingResources(cfg *Config) (bool, error) {
	db, err := sql.Open("pgx", cfg.AdminConnString("postgres"))
	if err != nil {
		return false, err
	}
	defer db.Close()

	// Check for existing database
	var dbExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.DBName).Scan(&dbExists)
	if err != nil {
		return false, err
	}

	// Check for existing user
	var userExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)", cfg.DBUser).Scan(&userExists)
	if err != nil {
		return false, err
	}

	if dbExists {
		fmt.Printf("⚠️  Database '%s' already exists\n", cfg.DBName)
	}
	if userExists {
		fmt.Printf("⚠️  User '%s' already exists\n", cfg.DBUser)
	}

	return dbExists || userExists, nil
}

// TestConnection verifies the pipeline user can reach the database, see the
// source tables, and create tables of its own
func TestConnection(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Verify the source tables exist
	for _, table := range []string{"meters", "consumption_readings"} {
		var exists bool
		err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("source table %s not found", table)
		}
	}

	// Test table creation permission; the pipeline auto-migrates its
	// artifact tables on first run
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS _provisioner_test (id SERIAL PRIMARY KEY)")
	if err != nil {
		return fmt.Errorf("failed to create test table: %w", err)
	}
	_, err = db.Exec("DROP TABLE IF EXISTS _provisioner_test")
	if err != nil {
		return fmt.Errorf("failed to drop test table: %w", err)
	}

	return nil
}
