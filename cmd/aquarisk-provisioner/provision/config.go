package provision

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// UpdateConfigDB writes the provisioned connection string into the aquarisk
// SQLite config database
func UpdateConfigDB(cfg *Config) error {
	fmt.Println("⚙️  Updating Configuration")

	db, err := sql.Open("sqlite", cfg.ConfigDBPath)
	if err != nil {
		return fmt.Errorf("failed to open config database: %w", err)
	}
	defer db.Close()

	// Get the config ID (should be 1 for 'default')
	var configID int64
	err = db.QueryRow("SELECT id FROM configs WHERE name = 'default'").Scan(&configID)
	if err == sql.ErrNoRows {
		// Create default config if it doesn't exist
		result, err := db.Exec("INSERT INTO configs (name) VALUES ('default')")
		if err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
		configID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get config ID: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to query config ID: %w", err)
	}

	connString := cfg.UserConnString()

	// Check if a database config row already exists
	var existing string
	err = db.QueryRow("SELECT connection_string FROM database_config WHERE config_id = ?", configID).Scan(&existing)
	if err == sql.ErrNoRows {
		_, err = db.Exec("INSERT INTO database_config (config_id, connection_string) VALUES (?, ?)", configID, connString)
		if err != nil {
			return fmt.Errorf("failed to insert database config: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to check existing database config: %w", err)
	} else {
		_, err = db.Exec("UPDATE database_config SET connection_string = ? WHERE config_id = ?", connString, configID)
		if err != nil {
			return fmt.Errorf("failed to update database config: %w", err)
		}
	}

	fmt.Println("✅ Config database updated with connection details")
	fmt.Println()
	return nil
}

// GetConnectionString retrieves the configured connection string from config.db
func GetConnectionString(configDBPath string) (string, error) {
	db, err := sql.Open("sqlite", configDBPath)
	if err != nil {
		return "", fmt.Errorf("failed to open config database: %w", err)
	}
	defer db.Close()

	query := `
		SELECT connection_string
		FROM database_config
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var connString sql.NullString
	err = db.QueryRow(query).Scan(&connString)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no database configuration found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query database config: %w", err)
	}

	return connString.String, nil
}
