package nn

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/baldhumanity/neuroevo-go/population/store"
	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

// ModelDescriptor is the header written to model.json next to an externally
// built model's tensors. Fields other than the tensor specs are informational.
type ModelDescriptor struct {
	Format    string       `json:"format"`
	Network   string       `json:"network,omitempty"`
	Input     int          `json:"input,omitempty"`
	Hidden    []int        `json:"hidden,omitempty"`
	Output    int          `json:"output,omitempty"`
	Timesteps int          `json:"timesteps,omitempty"`
	Tensors   []TensorSpec `json:"tensors"`
}

// TensorSpec names one tensor of a model and its shape.
type TensorSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// DescriptorFormat identifies descriptors written by this package.
const DescriptorFormat = "neuroevo-model/1"

// External holds the tensors of a model built by another framework. The
// genome reads and writes them as one list; their meaning is left to the
// descriptor's owner.
type External struct {
	mu         sync.RWMutex
	descriptor []byte
	tensors    []*tensor.Tensor
}

// NewExternal wraps a descriptor and its tensors. When the descriptor lists
// tensor specs they must agree with ts.
func NewExternal(descriptor []byte, ts []*tensor.Tensor) (*External, error) {
	var d ModelDescriptor
	if err := json.Unmarshal(descriptor, &d); err == nil && len(d.Tensors) > 0 {
		if len(d.Tensors) != len(ts) {
			return nil, fmt.Errorf("descriptor lists %d tensors, got %d", len(d.Tensors), len(ts))
		}
		for i, spec := range d.Tensors {
			if !tensor.Shape(spec.Shape).Equal(ts[i].Shape) {
				return nil, fmt.Errorf("tensor %d (%s): descriptor shape %v, data shape %v", i, spec.Name, spec.Shape, ts[i].Shape)
			}
		}
	}
	return &External{descriptor: append([]byte(nil), descriptor...), tensors: ts}, nil
}

// LoadExternal reads a model saved with store.SaveModel.
func LoadExternal(dir string) (*External, error) {
	descriptor, ts, err := store.LoadModel(dir)
	if err != nil {
		return nil, err
	}
	return NewExternal(descriptor, ts)
}

// Describe builds a descriptor for ts.
func Describe(d ModelDescriptor, ts []*tensor.Tensor) ([]byte, error) {
	d.Format = DescriptorFormat
	d.Tensors = make([]TensorSpec, len(ts))
	for i, t := range ts {
		d.Tensors[i] = TensorSpec{Name: fmt.Sprintf("t%04d", i), Shape: []int(t.Shape.Clone())}
	}
	return json.MarshalIndent(d, "", "  ")
}

// Descriptor returns a copy of the model descriptor.
func (e *External) Descriptor() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]byte(nil), e.descriptor...), nil
}

// Tensors returns the live tensor list.
func (e *External) Tensors() ([]*tensor.Tensor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*tensor.Tensor(nil), e.tensors...), nil
}

// SetTensors replaces every tensor's values. Count and shapes must match.
func (e *External) SetTensors(ts []*tensor.Tensor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := tensor.SameShapes(tensor.ShapesOf(e.tensors), tensor.ShapesOf(ts)); err != nil {
		return err
	}
	for i, t := range ts {
		if len(t.Data) != len(e.tensors[i].Data) {
			return fmt.Errorf("tensor %d holds %d values for shape %v", i, len(t.Data), t.Shape)
		}
	}
	for i, t := range ts {
		copy(e.tensors[i].Data, t.Data)
	}
	return nil
}
