package population

import (
	"fmt"

	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

// NetworkAdapter owns a computable network. The genome only reads and writes
// the adapter's ordered tensor list; SetTensors must accept exactly the count
// and shapes Tensors returns.
type NetworkAdapter interface {
	Tensors() ([]*tensor.Tensor, error)
	SetTensors([]*tensor.Tensor) error
}

// Describer is implemented by adapters that can export a model descriptor
// alongside their tensors.
type Describer interface {
	Descriptor() ([]byte, error)
}

// LoadSource points at a directory written by Genome.Save.
type LoadSource struct {
	Dir string
}

// Binder builds the adapter for a genome. Exactly one of set and source is
// non-nil.
type Binder interface {
	Bind(id int, set *ParameterSet, source *LoadSource) (NetworkAdapter, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(id int, set *ParameterSet, source *LoadSource) (NetworkAdapter, error)

func (f BinderFunc) Bind(id int, set *ParameterSet, source *LoadSource) (NetworkAdapter, error) {
	return f(id, set, source)
}

// ParameterBinder is the default binder. It exposes a native set directly
// and cannot load from disk.
type ParameterBinder struct{}

func (ParameterBinder) Bind(_ int, set *ParameterSet, source *LoadSource) (NetworkAdapter, error) {
	if source != nil {
		return nil, fmt.Errorf("%w: default binder cannot load from %s", ErrConfiguration, source.Dir)
	}
	if set == nil {
		return nil, fmt.Errorf("%w: nothing to bind", ErrConfiguration)
	}
	return ParameterAdapter{Set: set}, nil
}

// ParameterAdapter serves a ParameterSet's interleaved tensor list.
type ParameterAdapter struct {
	Set *ParameterSet
}

func (a ParameterAdapter) Tensors() ([]*tensor.Tensor, error) {
	return a.Set.Tensors(), nil
}

func (a ParameterAdapter) SetTensors(ts []*tensor.Tensor) error {
	return a.Set.SetTensors(ts)
}
