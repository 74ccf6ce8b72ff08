// Package metrics exposes Prometheus instrumentation for the pipeline and
// the report API. Everything registers against the default registry; the
// report server serves it on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	// PipelineRunsTotal counts stage executions by outcome
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquarisk_pipeline_runs_total",
			Help: "Total number of pipeline stage executions",
		},
		[]string{"stage", "status"},
	)

	// PipelineStageDuration tracks how long each stage execution took
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aquarisk_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stage executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		},
		[]string{"stage"},
	)
)

// Report API metrics
var (
	// HTTPRequestsTotal counts report API requests by route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquarisk_http_requests_total",
			Help: "Total number of report API requests",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestDuration tracks report API request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aquarisk_http_request_duration_seconds",
			Help:    "Duration of report API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Application metrics
var (
	// AppInfo provides static information about the application (always 1)
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquarisk_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquarisk_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

// RecordRun records one pipeline stage execution
func RecordRun(stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PipelineRunsTotal.WithLabelValues(stage, status).Inc()
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRequest records one report API request
func RecordRequest(route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
