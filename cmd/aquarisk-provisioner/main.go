package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hidrodata/aquarisk/cmd/aquarisk-provisioner/provision"
)

const (
	DefaultDBName    = "aquarisk"
	DefaultDBUser    = "aquarisk"
	DefaultHost      = "localhost"
	DefaultPort      = 5432
	DefaultSSLMode   = "prefer"
	DefaultAdminUser = "postgres"
)

func main() {
	// Define command-line flags
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	testCmd := flag.NewFlagSet("test", flag.ExitOnError)

	// Init command flags
	dbName := initCmd.String("db-name", DefaultDBName, "Database name to create")
	dbUser := initCmd.String("db-user", DefaultDBUser, "Database user to create")
	postgresHost := initCmd.String("postgres-host", DefaultHost, "PostgreSQL host")
	postgresPort := initCmd.Int("postgres-port", DefaultPort, "PostgreSQL port")
	postgresAdmin := initCmd.String("postgres-admin", DefaultAdminUser, "PostgreSQL admin user")
	postgresAdminPassword := initCmd.String("postgres-admin-password", "", "PostgreSQL admin password (or use POSTGRES_ADMIN_PASSWORD env var)")
	sslMode := initCmd.String("ssl-mode", DefaultSSLMode, "SSL mode (disable, require, prefer)")
	configDB := initCmd.String("config-db", "", "Optional path to an aquarisk config.db to update with connection details")
	reprovision := initCmd.Bool("reprovision", false, "Drop existing database and user before provisioning (DESTRUCTIVE)")

	// Status command flags
	statusConfigDB := statusCmd.String("config-db", "config.db", "Path to aquarisk config.db")

	// Test command flags
	testConfigDB := testCmd.String("config-db", "config.db", "Path to aquarisk config.db")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd.Parse(os.Args[2:])
		runInit(*dbName, *dbUser, *postgresHost, *postgresPort, *postgresAdmin,
			*postgresAdminPassword, *sslMode, *configDB, *reprovision)

	case "status":
		statusCmd.Parse(os.Args[2:])
		runStatus(*statusConfigDB)

	case "test":
		testCmd.Parse(os.Args[2:])
		runTest(*testConfigDB)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("aquarisk PostgreSQL Provisioner")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  aquarisk-provisioner init [flags]")
	fmt.Println("  aquarisk-provisioner status [flags]")
	fmt.Println("  aquarisk-provisioner test [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init     Provision the database, user, and source tables")
	fmt.Println("  status   Show current connection details from config.db")
	fmt.Println("  test     Test database connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Standard usage")
	fmt.Printf("  %s%saquarisk-provisioner init --postgres-admin-password yourpassword%s\n", provision.ColorBold, provision.ColorBrightCyan, provision.ColorReset)
	fmt.Println()
	fmt.Println("  # Or via environment variable")
	fmt.Printf("  %sexport POSTGRES_ADMIN_PASSWORD='yourpassword'%s\n", provision.ColorBrightCyan, provision.ColorReset)
	fmt.Printf("  %saquarisk-provisioner init%s\n", provision.ColorBrightCyan, provision.ColorReset)
	fmt.Println()
	fmt.Println("  # Write the connection string into a SQLite config")
	fmt.Println("  aquarisk-provisioner init --config-db /var/lib/aquarisk/config.db")
	fmt.Println()
	fmt.Println("  # Re-provision (drop and recreate)")
	fmt.Println("  aquarisk-provisioner init --reprovision")
}

func runInit(dbName, dbUser, postgresHost string, postgresPort int, postgresAdmin, postgresAdminPassword string,
	sslMode, configDB string, reprovision bool) {

	fmt.Println("🚀 aquarisk PostgreSQL Provisioner")
	fmt.Println("==================================")
	fmt.Println()

	// Get admin password from env if not provided
	if postgresAdminPassword == "" {
		postgresAdminPassword = os.Getenv("POSTGRES_ADMIN_PASSWORD")
	}

	// Show configuration
	fmt.Println("Configuration:")
	fmt.Printf("  PostgreSQL Host: %s:%d\n", postgresHost, postgresPort)
	fmt.Printf("  Database Name: %s\n", dbName)
	fmt.Printf("  Database User: %s\n", dbUser)
	fmt.Printf("  SSL Mode: %s\n", sslMode)
	if configDB != "" {
		fmt.Printf("  Config DB: %s\n", configDB)
	}
	fmt.Println()

	// Generate password for database user
	dbPassword, err := provision.GeneratePassword(provision.PasswordLength)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to generate password: %v\n", err)
		os.Exit(1)
	}

	cfg := &provision.Config{
		PostgresHost:     postgresHost,
		PostgresPort:     postgresPort,
		PostgresAdmin:    postgresAdmin,
		PostgresPassword: postgresAdminPassword,
		DBName:           dbName,
		DBUser:           dbUser,
		DBPassword:       dbPassword,
		SSLMode:          sslMode,
		ConfigDBPath:     configDB,
	}

	// Handle reprovision flag
	if reprovision {
		fmt.Println("⚠️  DESTRUCTIVE OPERATION WARNING")
		fmt.Println("=====================================")
		fmt.Println()
		fmt.Printf("This will DROP the following resources if they exist:\n")
		fmt.Printf("  • Database: %s\n", dbName)
		fmt.Printf("  • User: %s\n", dbUser)
		fmt.Println()
		fmt.Println("⚠️  ALL DATA IN THE DATABASE WILL BE PERMANENTLY DELETED")
		fmt.Println()

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Type 'yes' to confirm you understand and want to proceed: ")
		confirmation, _ := reader.ReadString('\n')
		confirmation = strings.TrimSpace(confirmation)

		if confirmation != "yes" {
			fmt.Println("❌ Operation cancelled")
			os.Exit(0)
		}
		fmt.Println()

		// Drop existing resources
		if err := provision.DropExistingResources(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to drop existing resources: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
	}

	// Run pre-flight checks
	if err := provision.PreflightChecks(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Create database
	if err := provision.CreateDatabase(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create database: %v\n", err)
		os.Exit(1)
	}

	// Create the meter inventory and consumption history tables
	if err := provision.CreateSourceTables(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create source tables: %v\n", err)
		os.Exit(1)
	}

	// Create user and grant privileges
	if err := provision.CreateUser(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create user: %v\n", err)
		os.Exit(1)
	}

	// Display generated password
	provision.DisplayPasswordWarning(dbPassword, configDB != "")

	// Update config.db if requested
	if configDB != "" {
		if err := provision.UpdateConfigDB(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to update config database: %v\n", err)
			os.Exit(1)
		}
	}

	// Test connection
	fmt.Println("🔍 Verifying Connection")
	if err := provision.TestConnection(cfg.UserConnString()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Connection test failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Connection verified")
	fmt.Println()

	// Print success message
	fmt.Println("✅ Provisioning Complete!")
	fmt.Println()
	fmt.Println("Connection Details:")
	fmt.Printf("  Host: %s:%d\n", cfg.PostgresHost, cfg.PostgresPort)
	fmt.Printf("  Database: %s\n", cfg.DBName)
	fmt.Printf("  User: %s\n", cfg.DBUser)
	fmt.Printf("  SSL Mode: %s\n", cfg.SSLMode)
	fmt.Println()
	fmt.Println("Connection string for config.yaml:")
	fmt.Printf("  %s%s%s\n", provision.ColorBrightCyan, cfg.UserConnString(), provision.ColorReset)
	fmt.Println()
	fmt.Printf("%s%sNext Steps:%s\n", provision.ColorBold, provision.ColorBrightYellow, provision.ColorReset)
	fmt.Println("  1. Load your meter inventory and consumption extracts into")
	fmt.Println("     the 'meters' and 'consumption_readings' tables")
	fmt.Println()
	fmt.Println("  2. Run the pipeline:")
	fmt.Printf("     %s%s./aquarisk -config config.yaml%s\n", provision.ColorBold, provision.ColorBrightCyan, provision.ColorReset)
	fmt.Println()
	fmt.Println("  3. aquarisk will automatically:")
	fmt.Println("     ✓ Create the artifact tables")
	fmt.Println("     ✓ Run the scoring stages")
	fmt.Println("     ✓ Persist run records, features, and scores")
	fmt.Println()
	fmt.Println("Manual Connection (if needed):")
	fmt.Printf("  %spsql -h %s -p %d -U %s -d %s%s\n", provision.ColorBrightCyan, cfg.PostgresHost, cfg.PostgresPort, cfg.DBUser, cfg.DBName, provision.ColorReset)
	fmt.Println()
}

func runStatus(configDB string) {
	fmt.Println("📊 Current Database Configuration")
	fmt.Println("==================================")
	fmt.Println()

	connString, err := provision.GetConnectionString(configDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connection string: %s\n", redactPassword(connString))
	fmt.Println()
}

func runTest(configDB string) {
	fmt.Println("🔍 Testing Database Connection")
	fmt.Println("==============================")
	fmt.Println()

	connString, err := provision.GetConnectionString(configDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	if err := provision.TestConnection(connString); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Connection test failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Connection successful")
	fmt.Println("✅ Source tables present")
	fmt.Println("✅ User has table creation privileges")
	fmt.Println()
}

// redactPassword masks the password field of a keyword/value connection string
func redactPassword(connString string) string {
	fields := strings.Fields(connString)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=********"
		}
	}
	return strings.Join(fields, " ")
}
