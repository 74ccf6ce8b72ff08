// Package report serves the read-only HTTP API over persisted pipeline
// artifacts: runs, ranked scores, cohort summaries and per-meter risk.
package report

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hidrodata/aquarisk/internal/database"
	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/metrics"
	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/hidrodata/aquarisk/pkg/config"
)

// artifactStore is the slice of the database client the handlers read from.
type artifactStore interface {
	ListRuns(limit int) ([]types.PipelineRun, error)
	GetRun(runID string) (*types.PipelineRun, error)
	GetLatestRun(status string) (*types.PipelineRun, error)
	GetTopScores(runID string, limit int) ([]types.MeterScore, error)
	GetCohortStats(runID string) ([]types.CohortStat, error)
	GetMeterRisk(meterID string) (*types.MeterScore, error)
}

// Controller represents the report API server
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	reportConfig config.ReportData
	Server       http.Server
	store        artifactStore
	logger       *zap.SugaredLogger
	handlers     *Handlers
}

// NewController creates a new report API controller connected to the
// artifact database.
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, logger *zap.SugaredLogger) (*Controller, error) {
	cfgData, err := configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %v", err)
	}
	if cfgData.Database.ConnectionString == "" {
		return nil, fmt.Errorf("report server requires a database connection string")
	}

	rc := config.ReportData{}
	if cfgData.Report != nil {
		rc = *cfgData.Report
	}
	if rc.ListenAddr == "" {
		logger.Info("report.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Info("report.port not provided; defaulting to 8080")
		rc.Port = 8080
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		reportConfig: rc,
		logger:       logger,
	}

	client := database.NewClient(cfgData.Database.ConnectionString, logger)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("report server could not connect to database: %v", err)
	}
	ctrl.store = client

	ctrl.handlers = NewHandlers(ctrl)

	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the report API server
func (c *Controller) StartController() error {
	log.Info("Starting report API controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("report server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the report server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(c.metricsMiddleware)

	router.HandleFunc("/api/runs", c.handlers.GetRuns)
	router.HandleFunc("/api/runs/{id}", c.handlers.GetRun)
	router.HandleFunc("/api/runs/{id}/scores", c.handlers.GetRunScores)
	router.HandleFunc("/api/runs/{id}/cohorts", c.handlers.GetRunCohorts)
	router.HandleFunc("/api/meters/{id}/risk", c.handlers.GetMeterRisk)

	router.HandleFunc("/healthz", c.handlers.GetHealth)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// metricsMiddleware records request counts and latency, labeled by the
// matched route template so meter and run ids do not explode cardinality.
func (c *Controller) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RecordRequest(route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
