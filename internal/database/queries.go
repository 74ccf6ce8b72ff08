package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hidrodata/aquarisk/internal/types"
)

// IsNotFound reports whether err is the empty result of a single-row query.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FetchMeters returns the meter population for the configured usage class,
// ordered by meter id so downstream stages see a stable population order.
func (c *Client) FetchMeters(usageClass string) ([]types.Meter, error) {
	var meters []types.Meter
	err := c.DB.Where("usage_class = ?", usageClass).Order("meter_id").Find(&meters).Error
	if err != nil {
		return nil, fmt.Errorf("error querying meters: %w", err)
	}
	return meters, nil
}

// FetchReadings returns the full consumption history for the population,
// ordered chronologically within each meter. The aggregator windows it; the
// usage proxy and the subcounting detector consume the whole history.
func (c *Client) FetchReadings(usageClass string) ([]types.ConsumptionReading, error) {
	var readings []types.ConsumptionReading
	err := c.DB.
		Joins("JOIN meters ON meters.meter_id = consumption_readings.meter_id").
		Where("meters.usage_class = ?", usageClass).
		Order("consumption_readings.meter_id, consumption_readings.reading_date").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("error querying consumption readings: %w", err)
	}
	return readings, nil
}

// GetRun fetches one pipeline run record.
func (c *Client) GetRun(runID string) (*types.PipelineRun, error) {
	var run types.PipelineRun
	err := c.DB.Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetLatestRun fetches the most recently started run, optionally restricted
// to a status.
func (c *Client) GetLatestRun(status string) (*types.PipelineRun, error) {
	var run types.PipelineRun
	q := c.DB.Order("started_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns run records, newest first.
func (c *Client) ListRuns(limit int) ([]types.PipelineRun, error) {
	var runs []types.PipelineRun
	q := c.DB.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error querying pipeline runs: %w", err)
	}
	return runs, nil
}

// GetFeatureRows returns the Stage I artifact for a run, in meter id order.
func (c *Client) GetFeatureRows(runID string) ([]types.PhysicalFeatureRow, error) {
	var rows []types.PhysicalFeatureRow
	err := c.DB.Where("run_id = ?", runID).Order("meter_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying physical features: %w", err)
	}
	return rows, nil
}

// GetFeatureVectors returns the assembled feature vectors for a run, in
// meter id order.
func (c *Client) GetFeatureVectors(runID string) ([]types.FeatureVectorRow, error) {
	var rows []types.FeatureVectorRow
	err := c.DB.Where("run_id = ?", runID).Order("meter_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying feature vectors: %w", err)
	}
	return rows, nil
}

// GetLatentVectors returns the embedded latent vectors for a run, in meter
// id order.
func (c *Client) GetLatentVectors(runID string) ([]types.LatentVectorRow, error) {
	var rows []types.LatentVectorRow
	err := c.DB.Where("run_id = ?", runID).Order("meter_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying latent vectors: %w", err)
	}
	return rows, nil
}

// GetCohortStats returns the cohort summary for a run, ordered by label.
func (c *Client) GetCohortStats(runID string) ([]types.CohortStat, error) {
	var stats []types.CohortStat
	err := c.DB.Where("run_id = ?", runID).Order("cohort_label").Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error querying cohort stats: %w", err)
	}
	return stats, nil
}

// GetTopScores returns the highest-risk meters for a run, by rank.
func (c *Client) GetTopScores(runID string, limit int) ([]types.MeterScore, error) {
	var scores []types.MeterScore
	q := c.DB.Where("run_id = ?", runID).Order("rank")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("error querying meter scores: %w", err)
	}
	return scores, nil
}

// GetMeterRisk returns a meter's score from the most recent scored run.
func (c *Client) GetMeterRisk(meterID string) (*types.MeterScore, error) {
	var score types.MeterScore
	err := c.DB.
		Joins("JOIN pipeline_runs ON pipeline_runs.run_id = meter_scores.run_id").
		Where("meter_scores.meter_id = ?", meterID).
		Order("pipeline_runs.started_at DESC").
		First(&score).Error
	if err != nil {
		return nil, err
	}
	return &score, nil
}
