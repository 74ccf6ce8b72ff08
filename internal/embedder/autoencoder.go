// Package embedder trains an autoencoder over assembled meter feature
// vectors and extracts the latent representation used for cohort
// clustering and anomaly scoring.
package embedder

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Config holds autoencoder hyperparameters. Zero values for
// LearningRate, Epochs and BatchSize fall back to defaults; the
// remaining fields are taken as given.
type Config struct {
	HiddenDims      []int
	LatentDim       int
	Dropout         float64
	LearningRate    float64
	WeightDecay     float64
	Epochs          int
	BatchSize       int
	Patience        int
	MinDelta        float64
	ValidationSplit float64
	Seed            int64
}

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig() Config {
	return Config{
		HiddenDims:      []int{64, 32},
		LatentDim:       8,
		Dropout:         0.2,
		LearningRate:    0.001,
		Epochs:          100,
		BatchSize:       64,
		Patience:        10,
		MinDelta:        0,
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

// TrainResult reports what happened during training.
type TrainResult struct {
	Epochs       int
	BestEpoch    int
	BestValLoss  float64
	EarlyStopped bool
	ValLoss      []float64
}

// Autoencoder compresses feature vectors through a symmetric
// encoder/decoder. The latent and reconstruction layers are linear;
// hidden layers use ReLU with dropout during training.
type Autoencoder struct {
	Net        *Network `msgpack:"net"`
	InputDim   int      `msgpack:"input_dim"`
	LatentDim  int      `msgpack:"latent_dim"`
	HiddenDims []int    `msgpack:"hidden_dims"`

	cfg Config
}

// NewAutoencoder builds an untrained autoencoder for vectors of width
// inputDim, with weights initialized from cfg.Seed.
func NewAutoencoder(inputDim int, cfg Config) (*Autoencoder, error) {
	if inputDim < 1 {
		return nil, fmt.Errorf("embedder: input width %d, want >= 1", inputDim)
	}
	if cfg.LatentDim < 1 {
		return nil, fmt.Errorf("embedder: latent width %d, want >= 1", cfg.LatentDim)
	}
	if len(cfg.HiddenDims) == 0 {
		return nil, errors.New("embedder: no hidden layers configured")
	}
	for _, d := range cfg.HiddenDims {
		if d < 1 {
			return nil, fmt.Errorf("embedder: hidden width %d, want >= 1", d)
		}
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("embedder: dropout %v outside [0, 1)", cfg.Dropout)
	}
	if cfg.ValidationSplit < 0 || cfg.ValidationSplit >= 1 {
		return nil, fmt.Errorf("embedder: validation split %v outside [0, 1)", cfg.ValidationSplit)
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	specs := buildSpecs(inputDim, cfg.HiddenDims, cfg.LatentDim, cfg.Dropout)
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0))
	return &Autoencoder{
		Net:        NewNetwork(specs, rng),
		InputDim:   inputDim,
		LatentDim:  cfg.LatentDim,
		HiddenDims: append([]int(nil), cfg.HiddenDims...),
		cfg:        cfg,
	}, nil
}

// buildSpecs lays out encoder and decoder layers symmetrically. The
// latent layer sits at index len(hidden); it and the final
// reconstruction layer are linear.
func buildSpecs(inputDim int, hidden []int, latent int, dropout float64) []LayerSpec {
	specs := make([]LayerSpec, 0, 2*(len(hidden)+1))
	prev := inputDim
	for _, h := range hidden {
		specs = append(specs, LayerSpec{In: prev, Out: h, Dropout: dropout})
		prev = h
	}
	specs = append(specs, LayerSpec{In: prev, Out: latent, Linear: true})
	prev = latent
	for i := len(hidden) - 1; i >= 0; i-- {
		specs = append(specs, LayerSpec{In: prev, Out: hidden[i], Dropout: dropout})
		prev = hidden[i]
	}
	specs = append(specs, LayerSpec{In: prev, Out: inputDim, Linear: true})
	return specs
}

// encoderLayers is the number of layers up to and including the latent
// layer.
func (a *Autoencoder) encoderLayers() int {
	return len(a.HiddenDims) + 1
}

// Train fits the autoencoder to reconstruct X. Rows are shuffled once
// and split into train and validation sets, then trained with
// mini-batch Adam until the epoch budget runs out or validation loss
// stops improving for cfg.Patience consecutive epochs. The weights of
// the best validation epoch are restored before returning.
func (a *Autoencoder) Train(X [][]float64) (*TrainResult, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("embedder: empty training set")
	}
	for i, row := range X {
		if len(row) != a.InputDim {
			return nil, fmt.Errorf("embedder: row %d has width %d, want %d", i, len(row), a.InputDim)
		}
	}

	rng := rand.New(rand.NewPCG(uint64(a.cfg.Seed), 0))

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	split := int(float64(n) * (1 - a.cfg.ValidationSplit))
	if split < 1 {
		split = n
	}
	trainX := make([][]float64, 0, split)
	for _, idx := range indices[:split] {
		trainX = append(trainX, X[idx])
	}
	valX := make([][]float64, 0, n-split)
	for _, idx := range indices[split:] {
		valX = append(valX, X[idx])
	}
	// Tiny populations get no holdout; validate on the training rows.
	if len(valX) == 0 {
		valX = trainX
	}

	opt := Optimizer{
		LearningRate: a.cfg.LearningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  a.cfg.WeightDecay,
	}

	nTrain := len(trainX)
	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}

	res := &TrainResult{
		BestValLoss: math.Inf(1),
		ValLoss:     make([]float64, 0, a.cfg.Epochs),
	}
	best := a.Net.captureWeights()
	noImprove := 0
	step := 0

	for epoch := 0; epoch < a.cfg.Epochs; epoch++ {
		rng.Shuffle(nTrain, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		for batchStart := 0; batchStart < nTrain; batchStart += a.cfg.BatchSize {
			batchEnd := batchStart + a.cfg.BatchSize
			if batchEnd > nTrain {
				batchEnd = nTrain
			}
			batchSize := batchEnd - batchStart

			a.Net.ZeroGrad()
			scale := 2.0 / float64(batchSize*a.InputDim)
			for b := batchStart; b < batchEnd; b++ {
				row := trainX[order[b]]
				output := a.Net.forward(row, true, rng)
				dOutput := make([]float64, a.InputDim)
				for j := range output {
					dOutput[j] = scale * (output[j] - row[j])
				}
				a.Net.Backward(dOutput)
			}

			step++
			a.Net.Step(opt, step)
		}

		valLoss := a.Net.MSELoss(valX, valX)
		res.ValLoss = append(res.ValLoss, valLoss)
		res.Epochs = epoch + 1

		if valLoss < res.BestValLoss-a.cfg.MinDelta {
			res.BestValLoss = valLoss
			res.BestEpoch = epoch
			best = a.Net.captureWeights()
			noImprove = 0
		} else {
			noImprove++
			if a.cfg.Patience > 0 && noImprove >= a.cfg.Patience {
				res.EarlyStopped = true
				break
			}
		}
	}

	a.Net.restoreWeights(best)
	return res, nil
}

// Encode maps one feature vector to its latent representation, in
// inference mode.
func (a *Autoencoder) Encode(x []float64) ([]float64, error) {
	if len(x) != a.InputDim {
		return nil, fmt.Errorf("embedder: vector width %d, want %d", len(x), a.InputDim)
	}
	return a.Net.forwardTo(x, a.encoderLayers()), nil
}

// EncodeAll maps every row of X to latent space.
func (a *Autoencoder) EncodeAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		z, err := a.Encode(row)
		if err != nil {
			return nil, err
		}
		out[i] = z
	}
	return out, nil
}

// Reconstruct runs a vector through the full autoencoder.
func (a *Autoencoder) Reconstruct(x []float64) ([]float64, error) {
	if len(x) != a.InputDim {
		return nil, fmt.Errorf("embedder: vector width %d, want %d", len(x), a.InputDim)
	}
	return a.Net.Forward(x), nil
}

// ReconstructionLoss is the mean squared reconstruction error over X.
func (a *Autoencoder) ReconstructionLoss(X [][]float64) float64 {
	return a.Net.MSELoss(X, X)
}
