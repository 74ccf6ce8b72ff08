package provision

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// CreateDatabase creates the PostgreSQL database with proper encoding
func CreateDatabase(cfg *Config) error {
	fmt.Println("🗄️  Creating Database")

	db, err := sql.Open("pgx", cfg.AdminConnString("postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	// Create database with UTF8 encoding
	createDBSQL := fmt.Sprintf(`
		CREATE DATABASE %s
		ENCODING 'UTF8'
		TEMPLATE template0
	`, cfg.DBName)

	_, err = db.Exec(createDBSQL)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	fmt.Printf("✅ Database '%s' created with UTF8 encoding\n", cfg.DBName)
	fmt.Println()
	return nil
}

// CreateSourceTables creates the meter inventory and consumption history
// tables the pipeline reads from. Artifact tables are auto-migrated by the
// pipeline itself on first run.
func CreateSourceTables(cfg *Config) error {
	fmt.Println("📋 Creating Source Tables")

	db, err := sql.Open("pgx", cfg.AdminConnString(cfg.DBName))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS meters (
			meter_id TEXT PRIMARY KEY,
			installed_at DATE,
			brand_code TEXT NOT NULL DEFAULT '',
			model_code TEXT NOT NULL DEFAULT '',
			diameter_mm INTEGER NOT NULL DEFAULT 0,
			usage_class TEXT NOT NULL DEFAULT '',
			census_section TEXT NOT NULL DEFAULT '',
			municipality_code TEXT NOT NULL DEFAULT '',
			district_code TEXT NOT NULL DEFAULT '',
			serial_number TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meters_usage_class ON meters (usage_class)`,
		`CREATE TABLE IF NOT EXISTS consumption_readings (
			meter_id TEXT NOT NULL REFERENCES meters (meter_id),
			reading_date DATE NOT NULL,
			consumption DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (meter_id, reading_date)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create source schema: %w", err)
		}
	}

	fmt.Println("✅ Tables 'meters' and 'consumption_readings' created")
	fmt.Println()
	return nil
}

// DropExistingResources drops the database and user if they exist
func DropExistingResources(cfg *Config) error {
	fmt.Println("🗑️  Dropping Existing Resources")

	db, err := sql.Open("pgx", cfg.AdminConnString("postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	// Terminate open connections so the drop does not block
	_, err = db.Exec(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()
	`, cfg.DBName)
	if err != nil {
		return fmt.Errorf("failed to terminate connections: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", cfg.DBName)); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	fmt.Printf("✅ Database '%s' dropped\n", cfg.DBName)

	if _, err := db.Exec(fmt.Sprintf("DROP USER IF EXISTS %s", cfg.DBUser)); err != nil {
		return fmt.Errorf("failed to drop user: %w", err)
	}
	fmt.Printf("✅ User '%s' dropped\n", cfg.DBUser)

	return nil
}
