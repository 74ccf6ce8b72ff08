package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hidrodata/aquarisk/internal/types"
)

type fakeStore struct {
	runs    []types.PipelineRun
	scores  map[string][]types.MeterScore
	stats   map[string][]types.CohortStat
	byMeter map[string]types.MeterScore
}

func (f *fakeStore) ListRuns(limit int) ([]types.PipelineRun, error) {
	if limit > 0 && limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeStore) GetRun(runID string) (*types.PipelineRun, error) {
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			return &f.runs[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetLatestRun(status string) (*types.PipelineRun, error) {
	if len(f.runs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &f.runs[0], nil
}

func (f *fakeStore) GetTopScores(runID string, limit int) ([]types.MeterScore, error) {
	scores := f.scores[runID]
	if limit > 0 && limit < len(scores) {
		return scores[:limit], nil
	}
	return scores, nil
}

func (f *fakeStore) GetCohortStats(runID string) ([]types.CohortStat, error) {
	return f.stats[runID], nil
}

func (f *fakeStore) GetMeterRisk(meterID string) (*types.MeterScore, error) {
	s, ok := f.byMeter[meterID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func testStore() *fakeStore {
	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	runs := []types.PipelineRun{
		{
			RunID:      "run-2",
			StartedAt:  started.AddDate(0, 1, 0),
			Status:     types.RunStatusFeatures,
			Population: 100,
			StageOneK:  4,
		},
		{
			RunID:        "run-1",
			StartedAt:    started,
			FinishedAt:   started.Add(40 * time.Minute),
			Status:       types.RunStatusScored,
			Population:   100,
			FeatureWidth: 53,
			LatentDim:    8,
			StageOneK:    4,
			CohortMethod: "kmeans",
			CohortCount:  3,
			Silhouette:   0.41,
		},
	}
	scores := []types.MeterScore{
		{RunID: "run-1", Rank: 1, MeterID: "MTR-007", CohortLabel: 2, AnomalyScore: 0.9, Degradation: 1, RiskPercentBase: 100, SubcountScore: 0.5, SubcountPercent: 40, RiskPercent: 100},
		{RunID: "run-1", Rank: 2, MeterID: "MTR-001", CohortLabel: 0, AnomalyScore: 0.2, Degradation: 0.5, RiskPercentBase: 35, RiskPercent: 35},
	}
	return &fakeStore{
		runs:   runs,
		scores: map[string][]types.MeterScore{"run-1": scores},
		stats: map[string][]types.CohortStat{
			"run-1": {
				{RunID: "run-1", CohortLabel: 0, Size: 60, MeanAge: 6.5, MeanUsage: 900, DegradationRaw: 0.3, Degradation: 0},
				{RunID: "run-1", CohortLabel: 1, Size: 40, MeanAge: 14.2, MeanUsage: 2100, DegradationRaw: 0.8, Degradation: 1},
			},
		},
		byMeter: map[string]types.MeterScore{"MTR-007": scores[0]},
	}
}

func newTestController(t *testing.T, store artifactStore) *Controller {
	t.Helper()
	ctrl := &Controller{
		ctx:    context.Background(),
		store:  store,
		logger: zap.NewNop().Sugar(),
	}
	ctrl.handlers = NewHandlers(ctrl)
	ctrl.Server.Handler = ctrl.setupRouter()
	return ctrl
}

func get(t *testing.T, ctrl *Controller, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestGetRuns(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)

	var runs []RunResponse
	decode(t, w, &runs)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, "run-1", runs[1].RunID)
	require.NotNil(t, runs[1].FinishedAt)
	assert.Equal(t, "scored", runs[1].Status)
	assert.Equal(t, 3, runs[1].CohortCount)

	w = get(t, ctrl, "/api/runs?limit=1")
	decode(t, w, &runs)
	assert.Len(t, runs, 1)
}

func TestGetRunsRejectsBadLimit(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/api/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(t, ctrl, "/api/runs?limit=-3")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRun(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/api/runs/run-1")
	require.Equal(t, http.StatusOK, w.Code)

	var run RunResponse
	decode(t, w, &run)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, 8, run.LatentDim)
	assert.Equal(t, "kmeans", run.CohortMethod)

	w = get(t, ctrl, "/api/runs/latest")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &run)
	assert.Equal(t, "run-2", run.RunID)

	w = get(t, ctrl, "/api/runs/run-9")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRunScores(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/api/runs/run-1/scores")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ScoresResponse
	decode(t, w, &resp)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Scores, 2)
	assert.Equal(t, 1, resp.Scores[0].Rank)
	assert.Equal(t, "MTR-007", resp.Scores[0].MeterID)
	assert.Equal(t, 100.0, resp.Scores[0].RiskPercent)

	w = get(t, ctrl, "/api/runs/run-1/scores?limit=1")
	decode(t, w, &resp)
	assert.Len(t, resp.Scores, 1)

	w = get(t, ctrl, "/api/runs/run-9/scores")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, ctrl, "/api/runs/run-1/scores?limit=all")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRunCohorts(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/api/runs/run-1/cohorts")
	require.Equal(t, http.StatusOK, w.Code)

	var resp CohortsResponse
	decode(t, w, &resp)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Cohorts, 2)
	assert.Equal(t, 0, resp.Cohorts[0].Label)
	assert.Equal(t, 60, resp.Cohorts[0].Size)
	assert.Equal(t, 1.0, resp.Cohorts[1].Degradation)

	w = get(t, ctrl, "/api/runs/run-9/cohorts")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMeterRisk(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/api/meters/MTR-007/risk")
	require.Equal(t, http.StatusOK, w.Code)

	var resp MeterRiskResponse
	decode(t, w, &resp)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "MTR-007", resp.Score.MeterID)
	assert.Equal(t, 40.0, resp.Score.SubcountPercent)

	w = get(t, ctrl, "/api/meters/MTR-999/risk")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHealth(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["time"])
}

func TestMetricsEndpoint(t *testing.T) {
	ctrl := newTestController(t, testStore())

	w := get(t, ctrl, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "aquarisk_app_info"))
}
