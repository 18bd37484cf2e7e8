// Package tensor provides the dense float32 tensors that genomes are made of.
//
// A Tensor is a row-major block of float32 values with an arbitrary-rank
// Shape. Genetic operators never look at what a rank means (a bias vector, a
// weight matrix, a convolution kernel); they only walk the elements, so every
// operator is written once against Each and works for any rank.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// New allocates a zero-filled tensor with the given dimensions.
func New(dims ...int) *Tensor {
	shape := Shape(dims).Clone()
	return &Tensor{Shape: shape, Data: make([]float32, shape.NumElements())}
}

// FromData wraps data in a tensor of the given shape. The data slice is not copied.
func FromData(shape Shape, data []float32) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{Shape: shape.Clone(), Data: data}, nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// offset converts a multi-index to a flat offset. It panics on a bad index,
// like slice indexing does.
func (t *Tensor) offset(index []int) int {
	if len(index) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index arity %d does not match rank %d", len(index), len(t.Shape)))
	}
	off := 0
	for i, strides := 0, t.Shape.Strides(); i < len(index); i++ {
		if index[i] < 0 || index[i] >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", index, t.Shape))
		}
		off += index[i] * strides[i]
	}
	return off
}

// At returns the element at the given multi-index.
func (t *Tensor) At(index ...int) float32 {
	return t.Data[t.offset(index)]
}

// Set stores v at the given multi-index.
func (t *Tensor) Set(v float32, index ...int) {
	t.Data[t.offset(index)] = v
}

// Each calls fn for every element in row-major order with its multi-index and
// a pointer into the tensor's storage. The index slice is reused between
// calls; copy it if it must outlive the callback.
func (t *Tensor) Each(fn func(index []int, v *float32)) {
	index := make([]int, len(t.Shape))
	for i := range t.Data {
		fn(index, &t.Data[i])
		// odometer increment, last dimension fastest
		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < t.Shape[d] {
				break
			}
			index[d] = 0
		}
	}
}

// Clone returns a deep copy that shares no storage with t.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: t.Shape.Clone(), Data: data}
}

// Equal reports whether both tensors have the same shape and bit-identical elements.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == nil || other == nil {
		return t == other
	}
	if !t.Shape.Equal(other.Shape) || len(t.Data) != len(other.Data) {
		return false
	}
	for i := range t.Data {
		if math.Float32bits(t.Data[i]) != math.Float32bits(other.Data[i]) {
			return false
		}
	}
	return true
}

// String returns a short description, not the data.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

// ShapesOf returns the shapes of a tensor list, in order.
func ShapesOf(ts []*Tensor) []Shape {
	shapes := make([]Shape, len(ts))
	for i, t := range ts {
		shapes[i] = t.Shape.Clone()
	}
	return shapes
}

// SameShapes checks that two tensor lists have the same length and per-position shapes.
func SameShapes(a, b []Shape) error {
	if len(a) != len(b) {
		return fmt.Errorf("tensor count %d does not match %d", len(b), len(a))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return fmt.Errorf("tensor %d: shape %v does not match %v", i, b[i], a[i])
		}
	}
	return nil
}

// CloneAll deep-copies a tensor list.
func CloneAll(ts []*Tensor) []*Tensor {
	out := make([]*Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
