package population

import (
	"fmt"

	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

// Layer holds the parameters between two consecutive topology dimensions.
type Layer struct {
	Weights *tensor.Tensor // (in, out)
	Biases  *tensor.Tensor // (out)
}

// ParameterSet is the ordered per-layer weights and biases of a genome.
// Genetic operators are element-wise and never change its shapes.
type ParameterSet struct {
	Layers []Layer
}

// NewParameterSet allocates a zero-filled set shaped for topo.
func NewParameterSet(topo Topology) (*ParameterSet, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	dims := topo.Dims()
	set := &ParameterSet{Layers: make([]Layer, topo.NumLayers())}
	for i := range set.Layers {
		set.Layers[i] = Layer{
			Weights: tensor.New(dims[i], dims[i+1]),
			Biases:  tensor.New(dims[i+1]),
		}
	}
	return set, nil
}

// ParameterSetFromLayers assembles a set from per-layer tensors and checks
// that consecutive layers chain.
func ParameterSetFromLayers(weights, biases []*tensor.Tensor) (*ParameterSet, error) {
	if len(weights) == 0 || len(weights) != len(biases) {
		return nil, fmt.Errorf("%w: %d weight tensors and %d bias tensors", ErrShapeMismatch, len(weights), len(biases))
	}
	set := &ParameterSet{Layers: make([]Layer, len(weights))}
	for i := range weights {
		w, b := weights[i], biases[i]
		if w.Rank() != 2 || b.Rank() != 1 || w.Shape[1] != b.Shape[0] {
			return nil, fmt.Errorf("%w: layer %d has weights %v and biases %v", ErrShapeMismatch, i, w.Shape, b.Shape)
		}
		if i > 0 && w.Shape[0] != weights[i-1].Shape[1] {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous layer has %d outputs", ErrShapeMismatch, i, w.Shape[0], weights[i-1].Shape[1])
		}
		set.Layers[i] = Layer{Weights: w, Biases: b}
	}
	return set, nil
}

// ParameterSetFromTensors assembles a set from the interleaved list returned by Tensors.
func ParameterSetFromTensors(ts []*tensor.Tensor) (*ParameterSet, error) {
	if len(ts)%2 != 0 {
		return nil, fmt.Errorf("%w: odd tensor count %d", ErrShapeMismatch, len(ts))
	}
	weights := make([]*tensor.Tensor, 0, len(ts)/2)
	biases := make([]*tensor.Tensor, 0, len(ts)/2)
	for i := 0; i < len(ts); i += 2 {
		weights = append(weights, ts[i])
		biases = append(biases, ts[i+1])
	}
	return ParameterSetFromLayers(weights, biases)
}

// Clone returns a full independent copy; nothing is shared with p.
func (p *ParameterSet) Clone() *ParameterSet {
	clone := &ParameterSet{Layers: make([]Layer, len(p.Layers))}
	for i, layer := range p.Layers {
		clone.Layers[i] = Layer{Weights: layer.Weights.Clone(), Biases: layer.Biases.Clone()}
	}
	return clone
}

// Validate checks that the set has exactly the shapes topo requires.
func (p *ParameterSet) Validate(topo Topology) error {
	if len(p.Layers) != topo.NumLayers() {
		return fmt.Errorf("%w: %d layers, topology %s needs %d", ErrShapeMismatch, len(p.Layers), topo, topo.NumLayers())
	}
	dims := topo.Dims()
	for i, layer := range p.Layers {
		wantW := tensor.Shape{dims[i], dims[i+1]}
		wantB := tensor.Shape{dims[i+1]}
		if !layer.Weights.Shape.Equal(wantW) || !layer.Biases.Shape.Equal(wantB) {
			return fmt.Errorf("%w: layer %d has weights %v biases %v, want %v %v",
				ErrShapeMismatch, i, layer.Weights.Shape, layer.Biases.Shape, wantW, wantB)
		}
	}
	return nil
}

// SameShape checks that other has the same layer count and tensor shapes as p.
func (p *ParameterSet) SameShape(other *ParameterSet) error {
	if other == nil {
		return fmt.Errorf("%w: missing parameter set", ErrShapeMismatch)
	}
	if len(p.Layers) != len(other.Layers) {
		return fmt.Errorf("%w: %d layers vs %d", ErrShapeMismatch, len(p.Layers), len(other.Layers))
	}
	for i := range p.Layers {
		a, b := p.Layers[i], other.Layers[i]
		if !a.Weights.Shape.Equal(b.Weights.Shape) {
			return fmt.Errorf("%w: layer %d weights %v vs %v", ErrShapeMismatch, i, a.Weights.Shape, b.Weights.Shape)
		}
		if !a.Biases.Shape.Equal(b.Biases.Shape) {
			return fmt.Errorf("%w: layer %d biases %v vs %v", ErrShapeMismatch, i, a.Biases.Shape, b.Biases.Shape)
		}
	}
	return nil
}

// Weights returns the weight tensors in layer order. The tensors are live.
func (p *ParameterSet) Weights() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(p.Layers))
	for i, layer := range p.Layers {
		out[i] = layer.Weights
	}
	return out
}

// Biases returns the bias tensors in layer order. The tensors are live.
func (p *ParameterSet) Biases() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(p.Layers))
	for i, layer := range p.Layers {
		out[i] = layer.Biases
	}
	return out
}

// Tensors returns the interleaved list w0, b0, w1, b1, ... The tensors are live.
func (p *ParameterSet) Tensors() []*tensor.Tensor {
	out := make([]*tensor.Tensor, 0, 2*len(p.Layers))
	for _, layer := range p.Layers {
		out = append(out, layer.Weights, layer.Biases)
	}
	return out
}

// SetTensors copies values from an interleaved list with exactly the shapes
// Tensors returns. Nothing is written unless every shape matches.
func (p *ParameterSet) SetTensors(ts []*tensor.Tensor) error {
	current := p.Tensors()
	if err := tensor.SameShapes(tensor.ShapesOf(current), tensor.ShapesOf(ts)); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	for i, t := range ts {
		if len(t.Data) != len(current[i].Data) {
			return fmt.Errorf("%w: tensor %d holds %d values for shape %v", ErrShapeMismatch, i, len(t.Data), t.Shape)
		}
	}
	for i, t := range ts {
		if current[i] != t {
			copy(current[i].Data, t.Data)
		}
	}
	return nil
}

// NumParameters counts every weight and bias.
func (p *ParameterSet) NumParameters() int {
	n := 0
	for _, layer := range p.Layers {
		n += layer.Weights.Len() + layer.Biases.Len()
	}
	return n
}
