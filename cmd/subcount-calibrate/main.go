package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"gonum.org/v1/gonum/stat"

	"github.com/hidrodata/aquarisk/internal/subcount"
	"github.com/hidrodata/aquarisk/internal/types"
)

// Candidate is one threshold combination under evaluation
type Candidate struct {
	RatioFloor float64
	SlopeFloor float64
}

// CalibrationResult contains the sweep outcome for one candidate
type CalibrationResult struct {
	Candidate     Candidate
	Flagged       int
	FlagRate      float64
	MeanFlagged   float64 // mean raw score of flagged meters
	MeanUnflagged float64 // mean raw score of the rest
	Separation    float64 // Cohen's d between the two groups
	MeanPeriods   float64 // history depth of flagged meters
	Metrics       []subcount.Metrics
}

// ComparisonResults contains all candidate results for comparison
type ComparisonResults struct {
	Candidates []CalibrationResult
	Best       CalibrationResult
}

func main() {
	// Command line flags
	var (
		dbHost      = flag.String("db-host", "localhost", "Database host")
		dbPort      = flag.Int("db-port", 5432, "Database port")
		dbUser      = flag.String("db-user", "postgres", "Database user")
		dbPass      = flag.String("db-pass", "", "Database password")
		dbName      = flag.String("db-name", "aquarisk", "Database name")
		usageClass  = flag.String("class", "D", "Usage class to analyze")
		months      = flag.Int("months", 36, "Number of months of history to analyze")
		ratioFloors = flag.String("ratio-floors", "0.4,0.5,0.6", "Comma-separated drop ratio floors to sweep")
		slopeFloors = flag.String("slope-floors", "-0.03,-0.05,-0.08", "Comma-separated trend slope floors to sweep")
		maxRate     = flag.Float64("max-rate", 0.10, "Highest acceptable share of flagged meters")
		csvOutput   = flag.String("csv", "", "Optional CSV output file path for the best candidate's per-meter metrics")
	)
	flag.Parse()

	ratios, err := parseFloats(*ratioFloors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -ratio-floors: %v\n", err)
		os.Exit(1)
	}
	slopes, err := parseFloats(*slopeFloors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -slope-floors: %v\n", err)
		os.Exit(1)
	}

	// Connect to database
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Test connection
	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Subcounting Threshold Calibration\n")
	fmt.Printf("=================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Usage Class: %s\n", *usageClass)
	fmt.Printf("  History: %d months\n", *months)
	fmt.Printf("  Ratio Floors: %v\n", ratios)
	fmt.Printf("  Slope Floors: %v\n", slopes)
	fmt.Printf("  Max Flag Rate: %.1f%%\n\n", *maxRate*100)

	// Fetch monthly consumption totals
	readings := fetchMonthlyTotals(db, *usageClass, *months)

	meterCount := countMeters(readings)
	if meterCount < 10 {
		fmt.Fprintf(os.Stderr, "Error: Not enough meters (%d). Need at least 10.\n", meterCount)
		os.Exit(1)
	}

	fmt.Printf("Collected %d monthly totals across %d meters\n\n", len(readings), meterCount)

	// Sweep all candidates
	results := sweepCandidates(readings, ratios, slopes, *maxRate)

	// Display comparison
	displayComparison(results, *maxRate)

	// Display best candidate details
	displayBestCandidateDetails(results.Best)

	// Generate config for best candidate
	generateConfigSnippet(results.Best)

	// Optionally export to CSV
	if *csvOutput != "" {
		if err := exportCSV(*csvOutput, results.Best); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		} else {
			fmt.Printf("\nPer-meter metrics exported to: %s\n", *csvOutput)
		}
	}
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return values, nil
}

func fetchMonthlyTotals(db *sql.DB, usageClass string, months int) []types.ConsumptionReading {
	query := `
		SELECT
			r.meter_id,
			DATE_TRUNC('month', r.reading_date)::date AS month,
			SUM(r.consumption)
		FROM consumption_readings r
		INNER JOIN meters m
			ON m.meter_id = r.meter_id
		WHERE m.usage_class = $1
		  AND r.reading_date >= NOW() - INTERVAL '1 month' * $2
		GROUP BY r.meter_id, month
		ORDER BY r.meter_id, month
	`

	rows, err := db.Query(query, usageClass, months)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying data: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	var readings []types.ConsumptionReading
	for rows.Next() {
		var r types.ConsumptionReading
		if err := rows.Scan(&r.MeterID, &r.ReadingDate, &r.Consumption); err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning row: %v\n", err)
			continue
		}
		readings = append(readings, r)
	}

	return readings
}

func countMeters(readings []types.ConsumptionReading) int {
	seen := make(map[string]struct{})
	for _, r := range readings {
		seen[r.MeterID] = struct{}{}
	}
	return len(seen)
}

func sweepCandidates(readings []types.ConsumptionReading, ratios, slopes []float64, maxRate float64) ComparisonResults {
	var comparison ComparisonResults

	for _, ratio := range ratios {
		for _, slope := range slopes {
			comparison.Candidates = append(comparison.Candidates,
				evaluateCandidate(readings, Candidate{RatioFloor: ratio, SlopeFloor: slope}))
		}
	}

	// Best candidate: strongest separation among those under the flag rate
	// ceiling; if every candidate overshoots, least noisy wins
	best := comparison.Candidates[0]
	found := false
	for _, c := range comparison.Candidates {
		if c.FlagRate > maxRate {
			continue
		}
		if !found || c.Separation > best.Separation {
			best = c
			found = true
		}
	}
	if !found {
		for _, c := range comparison.Candidates[1:] {
			if c.FlagRate < best.FlagRate {
				best = c
			}
		}
	}
	comparison.Best = best

	return comparison
}

func evaluateCandidate(readings []types.ConsumptionReading, cand Candidate) CalibrationResult {
	cfg := subcount.DefaultConfig()
	cfg.RatioFloor = cand.RatioFloor
	cfg.SlopeFloor = cand.SlopeFloor

	metrics := subcount.Detect(readings, nil, cfg)

	result := CalibrationResult{
		Candidate: cand,
		Metrics:   metrics,
	}

	// A meter is flagged when its combined raw evidence clears the
	// reinforcement threshold before population normalization
	var flagged, unflagged []float64
	var periods float64
	for _, m := range metrics {
		if m.Raw >= cfg.ReinforceThreshold {
			flagged = append(flagged, m.Raw)
			periods += float64(m.Periods)
		} else {
			unflagged = append(unflagged, m.Raw)
		}
	}

	result.Flagged = len(flagged)
	if len(metrics) > 0 {
		result.FlagRate = float64(len(flagged)) / float64(len(metrics))
	}
	if len(flagged) > 0 {
		result.MeanFlagged = stat.Mean(flagged, nil)
		result.MeanPeriods = periods / float64(len(flagged))
	}
	if len(unflagged) > 0 {
		result.MeanUnflagged = stat.Mean(unflagged, nil)
	}
	result.Separation = cohensD(flagged, unflagged)

	return result
}

// cohensD measures how far apart the two groups sit relative to their
// pooled spread; zero when either group is too small to compare
func cohensD(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	meanA, stdA := stat.MeanStdDev(a, nil)
	meanB, stdB := stat.MeanStdDev(b, nil)

	nA, nB := float64(len(a)), float64(len(b))
	pooled := math.Sqrt(((nA-1)*stdA*stdA + (nB-1)*stdB*stdB) / (nA + nB - 2))
	if pooled == 0 {
		return 0
	}
	return (meanA - meanB) / pooled
}

func displayComparison(results ComparisonResults, maxRate float64) {
	fmt.Printf("Candidate Comparison\n")
	fmt.Printf("====================\n\n")

	// Sort candidates by separation for display
	candidates := make([]CalibrationResult, len(results.Candidates))
	copy(candidates, results.Candidates)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Separation > candidates[j].Separation
	})

	fmt.Printf("%10s | %10s | %7s | %7s | %9s | %10s\n", "RatioFloor", "SlopeFloor", "Flagged", "Rate%", "MeanRaw", "Separation")
	fmt.Printf("-----------+------------+---------+---------+-----------+-----------\n")

	for _, c := range candidates {
		marker := ""
		if c.Candidate == results.Best.Candidate {
			marker = " ← BEST"
		}
		fmt.Printf("%10.2f | %10.2f | %7d | %7.2f | %9.3f | %10.3f%s\n",
			c.Candidate.RatioFloor, c.Candidate.SlopeFloor,
			c.Flagged, c.FlagRate*100, c.MeanFlagged, c.Separation, marker)
	}

	fmt.Printf("\nRecommendation:\n")
	fmt.Printf("  ratio_floor = %.2f, slope_floor = %.2f\n", results.Best.Candidate.RatioFloor, results.Best.Candidate.SlopeFloor)

	if results.Best.FlagRate > maxRate {
		fmt.Printf("\n  ⚠ WARNING: Every candidate flags more than %.1f%% of meters.\n", maxRate*100)
		fmt.Printf("  The population may be in broad decline, or the floors are too loose.\n")
	} else if results.Best.Separation < 1.0 {
		fmt.Printf("\n  ⚠ WARNING: Weak separation (d=%.3f) - flagged meters barely stand out!\n", results.Best.Separation)
		fmt.Printf("  Consider a longer history window or tighter floors\n")
	} else if results.Best.Separation < 2.0 {
		fmt.Printf("\n  ℹ Moderate separation (d=%.3f) - usable but review flagged meters manually\n", results.Best.Separation)
	} else {
		fmt.Printf("\n  ✓ Strong separation (d=%.3f) - flagged meters are clearly distinct\n", results.Best.Separation)
	}
	fmt.Println()
}

func displayBestCandidateDetails(best CalibrationResult) {
	fmt.Printf("Best Candidate Details\n")
	fmt.Printf("======================\n\n")

	fmt.Printf("Thresholds:\n")
	fmt.Printf("  ratio_floor = %.2f (recent/baseline consumption below this scores 1.0)\n", best.Candidate.RatioFloor)
	fmt.Printf("  slope_floor = %.2f (normalized monthly trend below this scores 1.0)\n", best.Candidate.SlopeFloor)
	fmt.Println()

	fmt.Printf("Population Impact:\n")
	fmt.Printf("  Flagged meters = %d (%.2f%%)\n", best.Flagged, best.FlagRate*100)
	fmt.Printf("  Mean raw score (flagged) = %.3f\n", best.MeanFlagged)
	fmt.Printf("  Mean raw score (rest) = %.3f\n", best.MeanUnflagged)
	fmt.Printf("  Mean history of flagged meters = %.1f months\n", best.MeanPeriods)
	fmt.Println()

	// Raw score quantiles show where the threshold sits in the population
	raws := make([]float64, len(best.Metrics))
	for i, m := range best.Metrics {
		raws[i] = m.Raw
	}
	sort.Float64s(raws)
	fmt.Printf("Raw Score Distribution:\n")
	for _, p := range []float64{0.50, 0.90, 0.95, 0.99} {
		fmt.Printf("  p%.0f = %.3f\n", p*100, stat.Quantile(p, stat.Empirical, raws, nil))
	}
	fmt.Println()
}

func generateConfigSnippet(best CalibrationResult) {
	cfg := subcount.DefaultConfig()

	fmt.Printf("Config Snippet\n")
	fmt.Printf("==============\n\n")
	fmt.Printf("# Calibrated on %d meters, %.2f%% flagged, separation d=%.3f\n",
		len(best.Metrics), best.FlagRate*100, best.Separation)
	fmt.Printf("subcounting:\n")
	fmt.Printf("  enabled: true\n")
	fmt.Printf("  recent_window: %d\n", cfg.RecentWindow)
	fmt.Printf("  baseline_window: %d\n", cfg.BaselineWindow)
	fmt.Printf("  min_history: %d\n", cfg.MinHistory)
	fmt.Printf("  ratio_floor: %.2f\n", best.Candidate.RatioFloor)
	fmt.Printf("  ratio_ceil: %.2f\n", cfg.RatioCeil)
	fmt.Printf("  slope_floor: %.2f\n", best.Candidate.SlopeFloor)
	fmt.Printf("  weight_ratio: %.2f\n", cfg.WeightRatio)
	fmt.Printf("  weight_slope: %.2f\n", cfg.WeightSlope)
	fmt.Printf("  weight_change: %.2f\n", cfg.WeightChange)
	fmt.Printf("  reinforce_threshold: %.2f\n", cfg.ReinforceThreshold)
	fmt.Printf("  reinforce_count: %d\n", cfg.ReinforceCount)
}

func exportCSV(filename string, best CalibrationResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{"MeterID", "Periods", "DropRatio", "Slope", "SlopeChange", "RatioScore", "SlopeScore", "ChangeScore", "Raw", "Score"}
	if err := writer.Write(header); err != nil {
		return err
	}

	// Write data
	for _, m := range best.Metrics {
		record := []string{
			m.MeterID,
			strconv.Itoa(m.Periods),
			fmt.Sprintf("%.4f", m.DropRatio),
			fmt.Sprintf("%.4f", m.Slope),
			fmt.Sprintf("%.4f", m.SlopeChange),
			fmt.Sprintf("%.4f", m.RatioScore),
			fmt.Sprintf("%.4f", m.SlopeScore),
			fmt.Sprintf("%.4f", m.ChangeScore),
			fmt.Sprintf("%.4f", m.Raw),
			fmt.Sprintf("%.4f", m.Score),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}
