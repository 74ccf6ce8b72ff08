package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hidrodata/aquarisk/internal/cluster"
	"github.com/hidrodata/aquarisk/internal/embedder"
	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/hidrodata/aquarisk/pkg/config"
)

// testConfig returns a small but valid configuration: a six-month window,
// fixed k for both clustering stages and a tiny autoencoder.
func testConfig(t *testing.T) *config.ConfigData {
	t.Helper()
	cfg := &config.ConfigData{}
	cfg.ApplyDefaults()
	cfg.Database.ConnectionString = "host=localhost dbname=aquarisk_test"
	cfg.Window.StartMonth = "2024-01"
	cfg.Window.EndMonth = "2024-06"
	cfg.Window.ReferenceDate = "2024-06-30"
	cfg.StageOne.FixedK = 2
	cfg.Cohort.FixedK = 2
	cfg.Embedder.HiddenDims = []int{16, 8}
	cfg.Embedder.LatentDim = 3
	cfg.Embedder.Epochs = 15
	cfg.Embedder.BatchSize = 4
	cfg.Embedder.Patience = 5
	cfg.Subcounting.Enabled = false
	cfg.Artifacts.SnapshotDir = t.TempDir()
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.ConfigData) *Pipeline {
	t.Helper()
	return New(cfg, nil, nil, zap.NewNop().Sugar())
}

// testPopulation builds n meters in two physical groups (recent 15mm acme
// units with low consumption, older 30mm units with high consumption) and
// one reading per month over historyMonths months ending June 2024.
func testPopulation(n, historyMonths int) ([]types.Meter, []types.ConsumptionReading) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -(historyMonths - 1), 0)

	meters := make([]types.Meter, 0, n)
	readings := make([]types.ConsumptionReading, 0, n*historyMonths)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("MTR-%03d", i)
		installed := start.AddDate(-3, 0, 0)
		brand, model := "acme", "a1"
		diameter := 15
		level := 8.0
		if i%2 == 1 {
			installed = start.AddDate(-14, 0, 0)
			brand, model = "borlan", "b7"
			diameter = 30
			level = 21.0
		}
		inst := installed
		meters = append(meters, types.Meter{
			MeterID:     id,
			InstalledAt: &inst,
			BrandCode:   brand,
			ModelCode:   model,
			DiameterMM:  diameter,
			UsageClass:  "D",
		})
		for m := 0; m < historyMonths; m++ {
			readings = append(readings, types.ConsumptionReading{
				MeterID:     id,
				ReadingDate: start.AddDate(0, m, 14),
				Consumption: level + 0.3*float64(i%5),
			})
		}
	}
	return meters, readings
}

func TestChainedStages(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	st, err := p.newState()
	require.NoError(t, err)
	st.meters, st.readings = testPopulation(24, 6)

	require.NoError(t, p.stageFeatures(st))

	assert.Equal(t, types.RunStatusFeatures, st.run.Status)
	assert.Equal(t, 24, st.run.Population)
	assert.Equal(t, 2, st.run.StageOneK)
	require.Len(t, st.vectors, 24)
	require.NotEmpty(t, st.columns)
	assert.Equal(t, len(st.columns), st.run.FeatureWidth)
	for _, v := range st.vectors {
		assert.Len(t, v, st.run.FeatureWidth)
	}

	snap, err := embedder.LoadSnapshot(st.run.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, st.run.RunID, snap.RunID)
	require.NotNil(t, snap.Assembler)
	assert.Nil(t, snap.Encoder)

	fa := featureArtifacts(st)
	assert.Equal(t, st.columns, fa.FeatureCols)
	require.Len(t, fa.Features, 24)
	assert.Equal(t, st.run.RunID, fa.Features[0].RunID)

	require.NoError(t, p.stageEmbed(st))

	assert.Equal(t, types.RunStatusEmbedded, st.run.Status)
	assert.Equal(t, 3, st.run.LatentDim)
	require.Len(t, st.latents, 24)
	for _, z := range st.latents {
		assert.Len(t, z, 3)
	}

	snap, err = embedder.LoadSnapshot(st.run.SnapshotPath)
	require.NoError(t, err)
	require.NotNil(t, snap.Encoder)
	z, err := snap.Encoder.Encode(st.vectors[0])
	require.NoError(t, err)
	assert.InDeltaSlice(t, st.latents[0], z, 1e-9)

	require.NoError(t, p.stageScore(st))

	assert.Equal(t, types.RunStatusScored, st.run.Status)
	assert.False(t, st.run.FinishedAt.IsZero())
	assert.Equal(t, "kmeans", st.run.CohortMethod)
	assert.Equal(t, 2, st.run.CohortCount)
	require.Len(t, st.scores, 24)
	for i := 1; i < len(st.scores); i++ {
		assert.GreaterOrEqual(t, st.scores[i-1].RiskPercent, st.scores[i].RiskPercent)
	}
	for _, s := range st.scores {
		assert.Equal(t, s.RiskPercentBase, s.RiskPercent)
		assert.Zero(t, s.SubcountScore)
	}

	sa := scoreArtifacts(st)
	require.Len(t, sa.Scores, 24)
	assert.Equal(t, 1, sa.Scores[0].Rank)
	assert.Equal(t, 24, sa.Scores[23].Rank)
	assert.Len(t, sa.Cohorts, 24)
	assert.Len(t, sa.CohortStats, 2)
}

func TestStageFeaturesDeterministic(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	meters, readings := testPopulation(24, 6)
	run := func() *state {
		st, err := p.newState()
		require.NoError(t, err)
		st.meters, st.readings = meters, readings
		require.NoError(t, p.stageFeatures(st))
		return st
	}

	a, b := run(), run()
	assert.Equal(t, a.columns, b.columns)
	assert.Equal(t, a.pseudoLabels, b.pseudoLabels)
	assert.Equal(t, a.vectors, b.vectors)
}

func TestSingleCohortScoresZeroDegradation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cohort.FixedK = 1
	p := newTestPipeline(t, cfg)

	st, err := p.newState()
	require.NoError(t, err)
	st.meters, st.readings = testPopulation(16, 6)

	require.NoError(t, p.stageFeatures(st))
	require.NoError(t, p.stageEmbed(st))
	require.NoError(t, p.stageScore(st))

	assert.Equal(t, 1, st.run.CohortCount)
	for _, s := range st.scores {
		assert.Zero(t, s.Degradation)
	}
}

func TestStageScoreDensityScanNoise(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cohort.Method = "dbscan"
	cfg.Cohort.Eps = 1e-9
	cfg.Cohort.MinPoints = 3
	p := newTestPipeline(t, cfg)

	st, err := p.newState()
	require.NoError(t, err)
	st.meters, st.readings = testPopulation(16, 6)

	require.NoError(t, p.stageFeatures(st))
	require.NoError(t, p.stageEmbed(st))
	require.NoError(t, p.stageScore(st))

	// An epsilon below any pairwise distance marks every point as noise;
	// the noise label is scored as a cohort of its own.
	assert.Equal(t, 0, st.run.CohortCount)
	require.Len(t, st.scores, 16)
	for _, s := range st.scores {
		assert.Equal(t, cluster.Noise, s.Cohort)
		assert.Zero(t, s.Degradation)
	}
	require.Len(t, st.cohortStats, 1)
	assert.Equal(t, cluster.Noise, st.cohortStats[0].Label)
	assert.Equal(t, 16, st.cohortStats[0].Size)
}

func TestStageEmbedRejectsRaggedVectors(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	st, err := p.newState()
	require.NoError(t, err)
	st.meterIDs = []string{"MTR-000", "MTR-001"}
	st.columns = []string{"c0", "c1", "c2"}
	st.vectors = [][]float64{{1, 2, 3}, {1, 2}}

	err = p.stageEmbed(st)
	var dim *DimensionMismatchError
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 3, dim.Want)
	assert.Equal(t, 2, dim.Got)
}

func TestChainedRunFlagsDecliningMeter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Subcounting.Enabled = true
	p := newTestPipeline(t, cfg)

	st, err := p.newState()
	require.NoError(t, err)
	meters, readings := testPopulation(16, 24)
	cut := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range readings {
		if readings[i].MeterID == "MTR-000" && !readings[i].ReadingDate.Before(cut) {
			readings[i].Consumption *= 0.25
		}
	}
	st.meters, st.readings = meters, readings

	require.NoError(t, p.stageFeatures(st))
	require.NoError(t, p.stageEmbed(st))
	require.NoError(t, p.stageScore(st))

	decliner := -1
	for i, s := range st.scores {
		if s.MeterID == "MTR-000" {
			decliner = i
		} else {
			assert.Zero(t, s.SubcountScore, "meter %s", s.MeterID)
		}
	}
	require.GreaterOrEqual(t, decliner, 0)

	d := st.scores[decliner]
	assert.InDelta(t, 1.0, d.SubcountScore, 1e-9)
	// subcount_percent reports the raw score; the 0.8 cap only enters the
	// probability combination
	assert.InDelta(t, 100.0, d.SubcountPercent, 1e-9)
	assert.GreaterOrEqual(t, d.RiskPercent, d.RiskPercentBase)
	assert.GreaterOrEqual(t, d.RiskPercent, 80.0-1e-9)
}

func TestRunRejectsUnknownStage(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	err := p.Run(context.Background(), Options{Stage: "train"})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "stage", cerr.Field)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.ConnectionString = ""
	p := newTestPipeline(t, cfg)

	err := p.Run(context.Background(), Options{})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "pipeline", cerr.Field)
}
