package nn

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/baldhumanity/neuroevo-go/population"
	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

// denseLayer is a layer's parameters converted for gonum.
type denseLayer struct {
	w *mat.Dense // (in, out)
	b []float64  // (out)
}

// FeedForward is a dense network computed straight from a ParameterSet:
// each layer is act(x·W + b). Hidden layers share one activation; the output
// layer has its own.
type FeedForward struct {
	Set *population.ParameterSet

	hidden ActivationType
	output ActivationType

	mu     sync.RWMutex
	layers []denseLayer
}

// NewFeedForward binds set. Empty activation names default to tanh for
// hidden layers and sigmoid for the output layer.
func NewFeedForward(set *population.ParameterSet, activation, outputActivation string) (*FeedForward, error) {
	if set == nil || len(set.Layers) == 0 {
		return nil, fmt.Errorf("%w: feed-forward network needs at least one layer", population.ErrConfiguration)
	}
	hidden, err := GetActivation(activation, "tanh")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", population.ErrConfiguration, err)
	}
	output, err := GetActivation(outputActivation, "sigmoid")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", population.ErrConfiguration, err)
	}
	n := &FeedForward{Set: set, hidden: hidden, output: output}
	n.refresh()
	return n, nil
}

// refresh rebuilds the gonum matrices from the set.
func (n *FeedForward) refresh() {
	layers := make([]denseLayer, len(n.Set.Layers))
	for i, layer := range n.Set.Layers {
		rows, cols := layer.Weights.Shape[0], layer.Weights.Shape[1]
		w := make([]float64, len(layer.Weights.Data))
		for j, v := range layer.Weights.Data {
			w[j] = float64(v)
		}
		b := make([]float64, len(layer.Biases.Data))
		for j, v := range layer.Biases.Data {
			b[j] = float64(v)
		}
		layers[i] = denseLayer{w: mat.NewDense(rows, cols, w), b: b}
	}
	n.mu.Lock()
	n.layers = layers
	n.mu.Unlock()
}

// NumInputs is the width of the first layer.
func (n *FeedForward) NumInputs() int {
	return n.Set.Layers[0].Weights.Shape[0]
}

// NumOutputs is the width of the last layer.
func (n *FeedForward) NumOutputs() int {
	return n.Set.Layers[len(n.Set.Layers)-1].Weights.Shape[1]
}

// Activate computes the outputs for one input vector.
func (n *FeedForward) Activate(inputs []float64) ([]float64, error) {
	out, err := n.ActivateBatch([][]float64{inputs})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ActivateBatch computes the outputs for a batch of input vectors, one per row.
func (n *FeedForward) ActivateBatch(batch [][]float64) ([][]float64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	width := n.NumInputs()
	data := make([]float64, 0, len(batch)*width)
	for i, row := range batch {
		if len(row) != width {
			return nil, fmt.Errorf("input %d has %d values, network expects %d", i, len(row), width)
		}
		data = append(data, row...)
	}

	n.mu.RLock()
	layers := n.layers
	n.mu.RUnlock()

	var x mat.Matrix = mat.NewDense(len(batch), width, data)
	for i, layer := range layers {
		act := n.hidden
		if i == len(layers)-1 {
			act = n.output
		}
		b := layer.b
		var h mat.Dense
		h.Mul(x, layer.w)
		h.Apply(func(_, j int, v float64) float64 { return act(v + b[j]) }, &h)
		x = &h
	}

	rows, cols := x.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		mat.Row(out[i], i, x)
	}
	return out, nil
}

// Tensors returns the set's interleaved weight and bias tensors.
func (n *FeedForward) Tensors() ([]*tensor.Tensor, error) {
	return n.Set.Tensors(), nil
}

// SetTensors copies ts into the set and rebuilds the network.
func (n *FeedForward) SetTensors(ts []*tensor.Tensor) error {
	if err := n.Set.SetTensors(ts); err != nil {
		return err
	}
	n.refresh()
	return nil
}
