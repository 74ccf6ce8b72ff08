package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/hidrodata/aquarisk/internal/app"
	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/pipeline"
	"github.com/hidrodata/aquarisk/pkg/config"
)

const version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source:\n\t\t\t  YAML: config.yaml, aquarisk.yaml\n\t\t\t  SQLite: config.db, aquarisk.db")
	stage := flag.String("stage", pipeline.StageAll, "Pipeline stage to run: 'all', 'features', 'embed' or 'score'")
	runID := flag.String("run", "", "Run ID to resume a single stage against; empty resumes the most recent run")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aquarisk %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	provider, err := config.NewProvider(*cfgFile)
	if err != nil {
		log.Errorf("Failed to open configuration. Did you pass the -config flag? Run with -h for help: %v", err)
		os.Exit(1)
	}
	defer provider.Close()

	// Create and run the application
	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background(), pipeline.Options{Stage: *stage, RunID: *runID}); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}
