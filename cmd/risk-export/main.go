package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatSQL  ExportFormat = "sql"
)

// exportTables maps the -table flag to the artifact table and its natural
// row order. The runs table is the only one not keyed by run id.
var exportTables = map[string]struct {
	table  string
	order  string
	byRun  bool
	status string // run status required when resolving the latest run
}{
	"scores":   {table: "meter_scores", order: "rank", byRun: true, status: "scored"},
	"cohorts":  {table: "cohort_stats", order: "cohort_label", byRun: true, status: "scored"},
	"features": {table: "physical_features", order: "meter_id", byRun: true},
	"runs":     {table: "pipeline_runs", order: "started_at"},
}

type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Table    string
	RunID    string
	Format   ExportFormat
	Output   string
}

func main() {
	var cfg Config

	// Parse command line flags
	flag.StringVar(&cfg.Host, "host", "localhost", "Database host")
	flag.IntVar(&cfg.Port, "port", 5432, "Database port")
	flag.StringVar(&cfg.Database, "database", "aquarisk", "Database name")
	flag.StringVar(&cfg.User, "user", "postgres", "Database user")
	flag.StringVar(&cfg.Password, "password", "", "Database password")
	flag.StringVar(&cfg.SSLMode, "sslmode", "disable", "SSL mode (disable, require, etc)")
	flag.StringVar(&cfg.Table, "table", "scores", "Artifact to export: scores, cohorts, features, or runs")
	flag.StringVar(&cfg.RunID, "run", "", "Run ID to export; empty exports the most recent run")
	formatStr := flag.String("format", "csv", "Export format: csv, json, or sql")
	flag.StringVar(&cfg.Output, "output", "", "Output file base name (extension added automatically; defaults to the table name)")
	flag.Parse()

	// Validate format
	switch ExportFormat(*formatStr) {
	case FormatCSV, FormatJSON, FormatSQL:
		cfg.Format = ExportFormat(*formatStr)
	default:
		log.Fatalf("Invalid format: %s. Must be csv, json, or sql", *formatStr)
	}

	spec, ok := exportTables[cfg.Table]
	if !ok {
		log.Fatalf("Invalid table: %s. Must be scores, cohorts, features, or runs", cfg.Table)
	}
	if cfg.Output == "" {
		cfg.Output = cfg.Table
	}

	// Build connection string
	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Printf("Connected to database %s@%s:%d", cfg.Database, cfg.Host, cfg.Port)

	// Build query
	query := "SELECT * FROM " + spec.table
	countQuery := "SELECT COUNT(*) FROM " + spec.table
	var args []interface{}
	if spec.byRun {
		runID := cfg.RunID
		if runID == "" {
			runID, err = resolveLatestRun(ctx, pool, spec.status)
			if err != nil {
				log.Fatalf("Failed to resolve latest run: %v", err)
			}
			log.Printf("Exporting run %s", runID)
		}
		query += " WHERE run_id = $1"
		countQuery += " WHERE run_id = $1"
		args = append(args, runID)
	}
	query += " ORDER BY " + spec.order

	// Get total count for progress tracking
	var totalCount int64
	err = pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount)
	if err != nil {
		log.Fatalf("Failed to get record count: %v", err)
	}
	if totalCount == 0 {
		log.Fatalf("No records found in %s for this run", spec.table)
	}
	log.Printf("Found %d records to export", totalCount)

	// Execute export based on format
	switch cfg.Format {
	case FormatCSV:
		if err := exportToCSV(ctx, pool, query, args, cfg.Output+".csv", totalCount); err != nil {
			log.Fatalf("CSV export failed: %v", err)
		}
	case FormatJSON:
		if err := exportToJSON(ctx, pool, query, args, cfg.Output+".json", totalCount); err != nil {
			log.Fatalf("JSON export failed: %v", err)
		}
	case FormatSQL:
		if err := exportToSQL(ctx, pool, query, args, spec.table, cfg.Output+".sql", totalCount); err != nil {
			log.Fatalf("SQL export failed: %v", err)
		}
	}

	log.Printf("Export completed successfully")
}

// resolveLatestRun returns the newest run id, restricted to a status when the
// exported artifact only exists for finished runs
func resolveLatestRun(ctx context.Context, pool *pgxpool.Pool, status string) (string, error) {
	query := "SELECT run_id FROM pipeline_runs"
	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY started_at DESC LIMIT 1"

	var runID string
	if err := pool.QueryRow(ctx, query, args...).Scan(&runID); err != nil {
		return "", err
	}
	return runID, nil
}

func exportToCSV(ctx context.Context, pool *pgxpool.Pool, query string, args []interface{}, filename string, totalCount int64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Execute query
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	// Get column names from the query result
	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	count := int64(0)
	lastProgress := -1
	for rows.Next() {
		values, err := pgx.RowToMap(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		// Convert row to CSV format
		record := make([]string, len(columns))
		for i, col := range columns {
			if val, ok := values[col]; ok && val != nil {
				record[i] = fmt.Sprintf("%v", val)
			}
		}

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}

		count++
		lastProgress = logProgress(count, totalCount, lastProgress)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	log.Printf("Exported %d records to %s", count, filename)
	return nil
}

func exportToJSON(ctx context.Context, pool *pgxpool.Pool, query string, args []interface{}, filename string, totalCount int64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Start JSON array
	if _, err := file.WriteString("[\n"); err != nil {
		return err
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("  ", "  ")

	count := int64(0)
	lastProgress := -1
	first := true
	for rows.Next() {
		values, err := pgx.RowToMap(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		// Add comma between records
		if !first {
			if _, err := file.WriteString(",\n"); err != nil {
				return err
			}
		}
		first = false

		// Write record
		if _, err := file.WriteString("  "); err != nil {
			return err
		}
		if err := encoder.Encode(values); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}

		count++
		lastProgress = logProgress(count, totalCount, lastProgress)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	// Close JSON array
	if _, err := file.WriteString("\n]"); err != nil {
		return err
	}

	log.Printf("Exported %d records to %s", count, filename)
	return nil
}

func exportToSQL(ctx context.Context, pool *pgxpool.Pool, query string, args []interface{}, table, filename string, totalCount int64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Write header
	fmt.Fprintf(file, "-- aquarisk artifact export generated on %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(file, "-- Query: %s\n", query)
	fmt.Fprintln(file, "-- This export uses explicit column names to handle schema changes")
	fmt.Fprintln(file, "\nBEGIN;")
	fmt.Fprintln(file)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	count := int64(0)
	lastProgress := -1

	for rows.Next() {
		values, err := pgx.RowToMap(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		// Build INSERT statement with only the columns present in the export
		var cols []string
		var vals []string

		for col, val := range values {
			cols = append(cols, col)

			if val == nil {
				vals = append(vals, "NULL")
			} else {
				switch v := val.(type) {
				case string:
					vals = append(vals, fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''")))
				case time.Time:
					vals = append(vals, fmt.Sprintf("'%s'", v.Format(time.RFC3339)))
				case bool:
					vals = append(vals, fmt.Sprintf("%t", v))
				case int, int32, int64:
					vals = append(vals, fmt.Sprintf("%d", v))
				case float32, float64:
					vals = append(vals, fmt.Sprintf("%v", v))
				case []byte:
					vals = append(vals, fmt.Sprintf("'\\x%x'", v))
				default:
					vals = append(vals, fmt.Sprintf("'%v'", v))
				}
			}
		}

		fmt.Fprintf(file, "INSERT INTO %s (%s) VALUES (%s);\n",
			table, strings.Join(cols, ", "), strings.Join(vals, ", "))

		count++
		lastProgress = logProgress(count, totalCount, lastProgress)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	fmt.Fprintln(file, "\nCOMMIT;")

	log.Printf("Exported %d records to %s", count, filename)
	return nil
}

// logProgress prints progress at each percentage point and returns the new
// last-reported value
func logProgress(count, totalCount int64, lastProgress int) int {
	if totalCount > 0 {
		progress := int(count * 100 / totalCount)
		if progress != lastProgress {
			log.Printf("Progress: %d%% (%d/%d records)", progress, count, totalCount)
			return progress
		}
		return lastProgress
	}
	if count%10000 == 0 {
		log.Printf("Processed %d records...", count)
	}
	return lastProgress
}
