package embedder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrodata/aquarisk/internal/features"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	months := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	feats := []features.Physical{
		{MeterID: "m1", AgeYears: 5, DiameterMM: 13, AccumulatedUsage: 600, BrandModel: "ACME::X1"},
		{MeterID: "m2", AgeYears: 12, DiameterMM: 30, AccumulatedUsage: 1500, BrandModel: "BNT::Z9"},
		{MeterID: "m3", AgeYears: 1, DiameterMM: 13, AccumulatedUsage: 90, BrandModel: "ACME::X1"},
	}
	asm := features.NewAssembler(months)
	asm.Fit(feats)

	cfg := DefaultConfig()
	cfg.HiddenDims = []int{8, 4}
	cfg.LatentDim = 2
	enc, err := NewAutoencoder(asm.Width(), cfg)
	require.NoError(t, err)

	input := make([]float64, asm.Width())
	for i := range input {
		input[i] = 0.1 * float64(i%7)
	}
	latentBefore, err := enc.Encode(input)
	require.NoError(t, err)

	snap := &Snapshot{
		RunID:             "run-1",
		CreatedAt:         time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Columns:           asm.Columns(),
		Assembler:         asm,
		StageOneK:         2,
		StageOneCentroids: [][]float64{{0.1, 0.2, 0.3}, {0.7, 0.8, 0.9}},
		Encoder:           enc,
	}

	path := filepath.Join(t.TempDir(), "runs", "snap.msgpack")
	require.NoError(t, snap.Save(path))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)

	assert.Equal(t, snap.RunID, loaded.RunID)
	assert.Equal(t, snap.Columns, loaded.Columns)
	assert.Equal(t, snap.StageOneK, loaded.StageOneK)
	assert.Equal(t, snap.StageOneCentroids, loaded.StageOneCentroids)

	require.NotNil(t, loaded.Assembler)
	assert.Equal(t, asm.Width(), loaded.Assembler.Width())
	assert.Equal(t, asm.AgeScaler, loaded.Assembler.AgeScaler)
	assert.Equal(t, asm.Columns(), loaded.Assembler.Columns())

	require.NotNil(t, loaded.Encoder)
	latentAfter, err := loaded.Encoder.Encode(input)
	require.NoError(t, err)
	assert.Equal(t, latentBefore, latentAfter, "weights must survive the round trip bit for bit")
}

func TestLoadSnapshot_Missing(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.msgpack"))
	assert.Error(t, err)
}
