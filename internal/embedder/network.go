package embedder

import (
	"math"
	"math/rand/v2"
)

// Layer is a fully-connected layer. Hidden layers apply ReLU and, during
// training, inverted dropout after the activation. Layers marked Linear
// (the latent and reconstruction layers) apply neither.
type Layer struct {
	Weights [][]float64 `msgpack:"weights"` // [out][in]
	Biases  []float64   `msgpack:"biases"`
	Linear  bool        `msgpack:"linear"`
	Dropout float64     `msgpack:"dropout"`

	// Adam optimizer state (not serialized).
	mW, vW [][]float64
	mB, vB []float64

	// Cached activations for backprop (not serialized).
	input  []float64
	output []float64
	mask   []float64
	dW     [][]float64
	dB     []float64
}

// LayerSpec describes one layer of a network under construction.
type LayerSpec struct {
	In      int
	Out     int
	Linear  bool
	Dropout float64
}

// Network is a feedforward network built from LayerSpecs.
type Network struct {
	Layers []Layer `msgpack:"layers"`
}

// Optimizer holds Adam hyperparameters.
type Optimizer struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// NewNetwork creates a network with He initialization drawn from rng.
func NewNetwork(specs []LayerSpec, rng *rand.Rand) *Network {
	n := &Network{
		Layers: make([]Layer, len(specs)),
	}
	for i, spec := range specs {
		stddev := math.Sqrt(2.0 / float64(spec.In))
		layer := Layer{
			Weights: make([][]float64, spec.Out),
			Biases:  make([]float64, spec.Out),
			Linear:  spec.Linear,
			Dropout: spec.Dropout,
		}
		for j := 0; j < spec.Out; j++ {
			layer.Weights[j] = make([]float64, spec.In)
			for k := 0; k < spec.In; k++ {
				layer.Weights[j][k] = rng.NormFloat64() * stddev
			}
		}
		n.Layers[i] = layer
	}
	n.initState()
	return n
}

func (n *Network) initState() {
	for i := range n.Layers {
		l := &n.Layers[i]
		if len(l.Weights) == 0 {
			continue
		}
		out := len(l.Weights)
		in := len(l.Weights[0])
		l.mW = makeMatrix(out, in)
		l.vW = makeMatrix(out, in)
		l.mB = make([]float64, out)
		l.vB = make([]float64, out)
		l.dW = makeMatrix(out, in)
		l.dB = make([]float64, out)
	}
}

// Forward computes the network output in inference mode: dropout is
// disabled and kept activations are not rescaled.
func (n *Network) Forward(input []float64) []float64 {
	return n.forward(input, false, nil)
}

// forward runs all layers, caching activations for backprop. In training
// mode dropped activations are zeroed and kept ones scaled by 1/(1-p).
func (n *Network) forward(input []float64, train bool, rng *rand.Rand) []float64 {
	x := input
	for i := range n.Layers {
		x = n.forwardLayer(i, x, train, rng)
	}
	return x
}

// forwardTo runs only the first count layers; Encode uses it to stop at
// the latent layer.
func (n *Network) forwardTo(input []float64, count int) []float64 {
	x := input
	for i := 0; i < count; i++ {
		x = n.forwardLayer(i, x, false, nil)
	}
	return x
}

func (n *Network) forwardLayer(i int, x []float64, train bool, rng *rand.Rand) []float64 {
	l := &n.Layers[i]
	l.input = make([]float64, len(x))
	copy(l.input, x)

	out := len(l.Weights)
	y := make([]float64, out)
	for j := 0; j < out; j++ {
		sum := l.Biases[j]
		for k, w := range l.Weights[j] {
			sum += w * x[k]
		}
		y[j] = sum
	}

	if !l.Linear {
		for j := range y {
			if y[j] < 0 {
				y[j] = 0
			}
		}
		if train && l.Dropout > 0 {
			keep := 1 - l.Dropout
			l.mask = make([]float64, out)
			for j := range y {
				if rng.Float64() < keep {
					l.mask[j] = 1 / keep
				}
				y[j] *= l.mask[j]
			}
		} else {
			l.mask = nil
		}
	} else {
		l.mask = nil
	}

	l.output = y
	return y
}

// Backward accumulates gradients into layer.dW / layer.dB given the
// derivative of the loss w.r.t. the output. Must follow a training-mode
// forward pass.
func (n *Network) Backward(dOutput []float64) {
	dx := dOutput
	for i := len(n.Layers) - 1; i >= 0; i-- {
		l := &n.Layers[i]
		out := len(l.Weights)
		in := len(l.Weights[0])

		// A zero post-activation means either ReLU clipped it or dropout
		// removed it; the gradient dies in both cases. Surviving units
		// carry the dropout scale.
		if !l.Linear {
			for j := 0; j < out; j++ {
				if l.output[j] <= 0 {
					dx[j] = 0
				} else if l.mask != nil {
					dx[j] *= l.mask[j]
				}
			}
		}

		for j := 0; j < out; j++ {
			l.dB[j] += dx[j]
			for k := 0; k < in; k++ {
				l.dW[j][k] += dx[j] * l.input[k]
			}
		}

		if i > 0 {
			dInput := make([]float64, in)
			for k := 0; k < in; k++ {
				for j := 0; j < out; j++ {
					dInput[k] += dx[j] * l.Weights[j][k]
				}
			}
			dx = dInput
		}
	}
}

// ZeroGrad resets accumulated gradients.
func (n *Network) ZeroGrad() {
	for i := range n.Layers {
		l := &n.Layers[i]
		for j := range l.dW {
			for k := range l.dW[j] {
				l.dW[j][k] = 0
			}
		}
		for j := range l.dB {
			l.dB[j] = 0
		}
	}
}

// Step applies one Adam update. step is the 1-based global step count.
// Weight decay is folded into the gradient before the moment updates.
func (n *Network) Step(opt Optimizer, step int) {
	mCorr := 1 - math.Pow(opt.Beta1, float64(step))
	vCorr := 1 - math.Pow(opt.Beta2, float64(step))
	for i := range n.Layers {
		l := &n.Layers[i]
		for j := range l.Weights {
			for k := range l.Weights[j] {
				g := l.dW[j][k] + opt.WeightDecay*l.Weights[j][k]
				l.mW[j][k] = opt.Beta1*l.mW[j][k] + (1-opt.Beta1)*g
				l.vW[j][k] = opt.Beta2*l.vW[j][k] + (1-opt.Beta2)*g*g
				mHat := l.mW[j][k] / mCorr
				vHat := l.vW[j][k] / vCorr
				l.Weights[j][k] -= opt.LearningRate * mHat / (math.Sqrt(vHat) + opt.Epsilon)
			}
		}
		for j := range l.Biases {
			g := l.dB[j] + opt.WeightDecay*l.Biases[j]
			l.mB[j] = opt.Beta1*l.mB[j] + (1-opt.Beta1)*g
			l.vB[j] = opt.Beta2*l.vB[j] + (1-opt.Beta2)*g*g
			mHat := l.mB[j] / mCorr
			vHat := l.vB[j] / vCorr
			l.Biases[j] -= opt.LearningRate * mHat / (math.Sqrt(vHat) + opt.Epsilon)
		}
	}
}

// MSELoss computes mean squared error over all elements of a dataset,
// in inference mode.
func (n *Network) MSELoss(X, Y [][]float64) float64 {
	if len(X) == 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for i := range X {
		output := n.Forward(X[i])
		for j := range output {
			diff := output[j] - Y[i][j]
			sum += diff * diff
		}
		count += len(output)
	}
	return sum / float64(count)
}

// weightState is a deep copy of weights and biases, used to restore the
// best epoch after early stopping.
type weightState struct {
	weights [][][]float64
	biases  [][]float64
}

func (n *Network) captureWeights() weightState {
	s := weightState{
		weights: make([][][]float64, len(n.Layers)),
		biases:  make([][]float64, len(n.Layers)),
	}
	for i := range n.Layers {
		l := &n.Layers[i]
		s.weights[i] = make([][]float64, len(l.Weights))
		for j := range l.Weights {
			s.weights[i][j] = make([]float64, len(l.Weights[j]))
			copy(s.weights[i][j], l.Weights[j])
		}
		s.biases[i] = make([]float64, len(l.Biases))
		copy(s.biases[i], l.Biases)
	}
	return s
}

func (n *Network) restoreWeights(s weightState) {
	for i := range n.Layers {
		l := &n.Layers[i]
		for j := range l.Weights {
			copy(l.Weights[j], s.weights[i][j])
		}
		copy(l.Biases, s.biases[i])
	}
}

func makeMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
