package embedder

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manifoldData samples 6-wide vectors that live on a 2-dimensional
// manifold, so a narrow bottleneck can reconstruct them.
func manifoldData(n int) [][]float64 {
	rng := rand.New(rand.NewPCG(7, 0))
	X := make([][]float64, n)
	for i := range X {
		a := rng.Float64()
		b := rng.Float64()
		X[i] = []float64{a, b, a + b, a - b, 0.5 * a, 0.5 * b}
	}
	return X
}

func TestAutoencoder_TrainReducesLoss(t *testing.T) {
	X := manifoldData(40)

	cfg := Config{
		HiddenDims:      []int{16, 8},
		LatentDim:       3,
		Dropout:         0,
		LearningRate:    0.01,
		Epochs:          300,
		BatchSize:       8,
		Patience:        0,
		ValidationSplit: 0.2,
		Seed:            42,
	}
	ae, err := NewAutoencoder(6, cfg)
	require.NoError(t, err)

	before := ae.ReconstructionLoss(X)
	res, err := ae.Train(X)
	require.NoError(t, err)
	after := ae.ReconstructionLoss(X)

	assert.Less(t, after, before, "training should reduce reconstruction error")
	assert.Less(t, after, 0.05, "low-rank data should reconstruct well, got %f", after)
	assert.Equal(t, 300, res.Epochs, "patience 0 disables early stopping")
	assert.Len(t, res.ValLoss, 300)
}

func TestAutoencoder_EncodeWidth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HiddenDims = []int{8, 4}
	cfg.LatentDim = 2
	ae, err := NewAutoencoder(6, cfg)
	require.NoError(t, err)

	z, err := ae.Encode([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})
	require.NoError(t, err)
	assert.Len(t, z, 2)

	again, err := ae.Encode([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})
	require.NoError(t, err)
	assert.Equal(t, z, again, "encoding is deterministic in inference mode")

	_, err = ae.Encode([]float64{0.1, 0.2})
	assert.Error(t, err, "width mismatch must be rejected")
}

func TestAutoencoder_Determinism(t *testing.T) {
	X := manifoldData(30)

	cfg := Config{
		HiddenDims:      []int{12, 6},
		LatentDim:       2,
		Dropout:         0.2,
		LearningRate:    0.005,
		Epochs:          40,
		BatchSize:       8,
		Patience:        0,
		ValidationSplit: 0.2,
		Seed:            42,
	}

	first, err := NewAutoencoder(6, cfg)
	require.NoError(t, err)
	second, err := NewAutoencoder(6, cfg)
	require.NoError(t, err)

	resFirst, err := first.Train(X)
	require.NoError(t, err)
	resSecond, err := second.Train(X)
	require.NoError(t, err)

	assert.Equal(t, resFirst.ValLoss, resSecond.ValLoss, "same seed and data must give identical loss curves")
	assert.Equal(t, first.Net.Layers[0].Weights, second.Net.Layers[0].Weights, "same seed and data must give identical weights")
}

func TestAutoencoder_EarlyStopping(t *testing.T) {
	X := manifoldData(20)

	cfg := Config{
		HiddenDims:      []int{8, 4},
		LatentDim:       2,
		LearningRate:    0.001,
		Epochs:          50,
		BatchSize:       8,
		Patience:        2,
		MinDelta:        10, // nothing can improve by this much
		ValidationSplit: 0.2,
		Seed:            42,
	}
	ae, err := NewAutoencoder(6, cfg)
	require.NoError(t, err)

	res, err := ae.Train(X)
	require.NoError(t, err)

	assert.True(t, res.EarlyStopped)
	assert.Equal(t, 3, res.Epochs, "first epoch improves over +inf, then patience runs out")
	assert.Equal(t, 0, res.BestEpoch)
	assert.Len(t, res.ValLoss, 3)
}

func TestAutoencoder_RowWidthMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HiddenDims = []int{8, 4}
	cfg.LatentDim = 2
	ae, err := NewAutoencoder(3, cfg)
	require.NoError(t, err)

	_, err = ae.Train([][]float64{{1, 2, 3}, {1, 2}})
	assert.Error(t, err, "ragged rows must be rejected before training")

	_, err = ae.Train(nil)
	assert.Error(t, err, "empty training set must be rejected")
}

func TestAutoencoder_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		inputDim int
		mutate   func(*Config)
	}{
		{"zero input width", 0, func(c *Config) {}},
		{"zero latent", 4, func(c *Config) { c.LatentDim = 0 }},
		{"no hidden layers", 4, func(c *Config) { c.HiddenDims = nil }},
		{"zero hidden width", 4, func(c *Config) { c.HiddenDims = []int{8, 0} }},
		{"dropout one", 4, func(c *Config) { c.Dropout = 1 }},
		{"split one", 4, func(c *Config) { c.ValidationSplit = 1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := NewAutoencoder(tc.inputDim, cfg)
			assert.Error(t, err)
		})
	}
}

func TestAutoencoder_TinyPopulation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HiddenDims = []int{4, 2}
	cfg.LatentDim = 1
	cfg.Epochs = 5
	ae, err := NewAutoencoder(2, cfg)
	require.NoError(t, err)

	// A single row leaves no holdout; training must still complete.
	res, err := ae.Train([][]float64{{0.5, 0.5}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Epochs, 1)
}
