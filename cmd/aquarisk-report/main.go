package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/report"
	"github.com/hidrodata/aquarisk/pkg/config"
)

const version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source (YAML or SQLite)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aquarisk-report %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider, err := config.NewProvider(*cfgFile)
	if err != nil {
		log.Errorf("Failed to open configuration. Did you pass the -config flag? Run with -h for help: %v", err)
		os.Exit(1)
	}
	defer provider.Close()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller, err := report.NewController(ctx, &wg, provider, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to create report controller: %v", err)
		os.Exit(1)
	}
	if err := controller.StartController(); err != nil {
		log.Errorf("Failed to start report controller: %v", err)
		os.Exit(1)
	}

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigs
	log.Info("shutdown signal received, initiating graceful shutdown...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")
}
