package population

import (
	"fmt"

	"github.com/baldhumanity/neuroevo-go/population/store"
	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

func nativeTopology(input int, hidden []int, output int) Topology {
	return Topology{Input: input, Hidden: hidden, Output: output, Kind: Native}
}

// filledSet returns a set for topo with every weight and bias set to v.
func filledSet(topo Topology, v float32) *ParameterSet {
	set, err := NewParameterSet(topo)
	if err != nil {
		panic(err)
	}
	for _, t := range set.Tensors() {
		for i := range t.Data {
			t.Data[i] = v
		}
	}
	return set
}

func nativeGenome(id int, topo Topology, set *ParameterSet) *Genome {
	return &Genome{
		ID:       id,
		Topology: topo,
		Params:   NativeParameters{Set: set},
		Network:  ParameterAdapter{Set: set},
	}
}

// heldAdapter keeps an arbitrary tensor list the way a framework model would.
type heldAdapter struct {
	ts         []*tensor.Tensor
	descriptor []byte
	gets, sets int
	// grow makes the adapter report an extra tensor once it has been written.
	grow bool
}

func (a *heldAdapter) Tensors() ([]*tensor.Tensor, error) {
	a.gets++
	if a.grow && a.sets > 0 {
		return append(append([]*tensor.Tensor(nil), a.ts...), tensor.New(1)), nil
	}
	return a.ts, nil
}

func (a *heldAdapter) SetTensors(ts []*tensor.Tensor) error {
	a.sets++
	if err := tensor.SameShapes(tensor.ShapesOf(a.ts), tensor.ShapesOf(ts)); err != nil {
		return err
	}
	for i, t := range ts {
		copy(a.ts[i].Data, t.Data)
	}
	return nil
}

func (a *heldAdapter) Descriptor() ([]byte, error) {
	return a.descriptor, nil
}

// modelBinder loads model exports into heldAdapters and wraps parameter sets in a ParameterAdapter.
var modelBinder = BinderFunc(func(id int, set *ParameterSet, source *LoadSource) (NetworkAdapter, error) {
	if source == nil {
		return ParameterAdapter{Set: set}, nil
	}
	descriptor, ts, err := store.LoadModel(source.Dir)
	if err != nil {
		return nil, fmt.Errorf("genome %d: %w", id, err)
	}
	return &heldAdapter{ts: ts, descriptor: descriptor}, nil
})

// mixedRankTensors returns a rank-3, rank-2 and rank-1 tensor filled with zeros.
func mixedRankTensors() []*tensor.Tensor {
	return []*tensor.Tensor{tensor.New(2, 3, 4), tensor.New(4, 5), tensor.New(5)}
}
