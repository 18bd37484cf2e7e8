package population

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neuroevo-go/population/store"
	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

func TestMutateParametersZeroRatesLeaveSetIdentical(t *testing.T) {
	topo := nativeTopology(5, []int{7, 3}, 2)
	set, err := Initialize(topo, NewRand(3))
	require.NoError(t, err)
	before := set.Clone()

	hits := MutateParameters(set, MutationParams{WeightRate: 0, BiasRate: 0, Scale: 10}, NewRand(4))
	assert.Zero(t, hits)
	for i := range set.Layers {
		assert.True(t, set.Layers[i].Weights.Equal(before.Layers[i].Weights))
		assert.True(t, set.Layers[i].Biases.Equal(before.Layers[i].Biases))
	}
}

func TestMutateParametersZeroScaleLeavesSetIdentical(t *testing.T) {
	topo := nativeTopology(5, []int{7}, 2)
	set, err := Initialize(topo, NewRand(3))
	require.NoError(t, err)
	before := set.Clone()

	hits := MutateParameters(set, MutationParams{WeightRate: 1, BiasRate: 1, Scale: 0}, NewRand(4))
	assert.Equal(t, set.NumParameters(), hits)
	for i := range set.Layers {
		assert.True(t, set.Layers[i].Weights.Equal(before.Layers[i].Weights))
		assert.True(t, set.Layers[i].Biases.Equal(before.Layers[i].Biases))
	}
}

func TestMutateParametersFullRateChangesEveryElement(t *testing.T) {
	topo := nativeTopology(6, []int{5, 4}, 3)
	set := filledSet(topo, 0)

	MutateParameters(set, MutationParams{WeightRate: 1, BiasRate: 1, Scale: 1}, NewRand(5))
	require.NoError(t, set.Validate(topo))
	for _, ts := range set.Tensors() {
		for _, v := range ts.Data {
			require.NotZero(t, v)
		}
	}
}

func TestMutateParametersWeightsOnlyScenario(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	parent := filledSet(topo, 0)
	child := parent.Clone()

	MutateParameters(child, MutationParams{WeightRate: 1, BiasRate: 0, Scale: 0.1}, NewRand(6))

	for _, w := range child.Weights() {
		for _, v := range w.Data {
			require.NotZero(t, v)
		}
	}
	for i, b := range child.Biases() {
		assert.True(t, b.Equal(parent.Layers[i].Biases))
	}
}

func TestMutateParametersScalesPerturbationByHalf(t *testing.T) {
	set := filledSet(nativeTopology(100, []int{100}, 100), 0)
	MutateParameters(set, MutationParams{WeightRate: 1, BiasRate: 0, Scale: 2}, NewRand(7))

	var sq float64
	n := 0
	for _, w := range set.Weights() {
		for _, v := range w.Data {
			sq += float64(v) * float64(v)
			n++
		}
	}
	// N(0, 2) halved has variance 1.
	assert.InDelta(t, 1.0, sq/float64(n), 0.05)
}

func TestMutateParametersRateIsPerElement(t *testing.T) {
	set := filledSet(nativeTopology(100, []int{100}, 100), 0)
	hits := MutateParameters(set, MutationParams{WeightRate: 0.25, BiasRate: 0, Scale: 1}, NewRand(8))
	assert.InDelta(t, 0.25, float64(hits)/20000.0, 0.02)
}

func TestMutateTensorHandlesAnyRank(t *testing.T) {
	for _, ts := range mixedRankTensors() {
		shape := ts.Shape.Clone()
		hits := MutateTensor(ts, 1, 1, NewRand(9))
		assert.Equal(t, ts.Len(), hits)
		assert.Equal(t, shape, ts.Shape)
		for _, v := range ts.Data {
			require.NotZero(t, v)
		}
	}
}

func TestMutateAdapterReadsAndWritesOnce(t *testing.T) {
	adapter := &heldAdapter{ts: mixedRankTensors()}

	require.NoError(t, MutateAdapter(adapter, MutationParams{WeightRate: 1, BiasRate: 0, Scale: 1}, NewRand(10)))
	assert.Equal(t, 1, adapter.sets)
	// One read to mutate and one to verify the round trip.
	assert.Equal(t, 2, adapter.gets)

	want := tensor.ShapesOf(mixedRankTensors())
	assert.Equal(t, want, tensor.ShapesOf(adapter.ts))
	for _, ts := range adapter.ts {
		for _, v := range ts.Data {
			// Every tensor uses the weight rate regardless of rank.
			require.NotZero(t, v)
		}
	}
}

func TestMutateAdapterZeroRateWritesUnchangedList(t *testing.T) {
	adapter := &heldAdapter{ts: mixedRankTensors()}
	before := tensor.CloneAll(adapter.ts)

	require.NoError(t, MutateAdapter(adapter, MutationParams{WeightRate: 0, BiasRate: 1, Scale: 1}, NewRand(11)))
	assert.Equal(t, 1, adapter.sets)
	for i := range before {
		assert.True(t, before[i].Equal(adapter.ts[i]))
	}
}

func TestMutateAdapterDetectsContractViolation(t *testing.T) {
	adapter := &heldAdapter{ts: mixedRankTensors(), grow: true}
	err := MutateAdapter(adapter, MutationParams{WeightRate: 1, Scale: 1}, NewRand(12))
	require.ErrorIs(t, err, ErrAdapterContract)
}

func TestMutateAdapterDetectsRejectedWrite(t *testing.T) {
	adapter := &rejectingAdapter{}
	err := MutateAdapter(adapter, MutationParams{WeightRate: 1, Scale: 1}, NewRand(13))
	require.ErrorIs(t, err, ErrAdapterContract)
}

type rejectingAdapter struct{}

func (rejectingAdapter) Tensors() ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{tensor.New(2)}, nil
}

func (rejectingAdapter) SetTensors([]*tensor.Tensor) error {
	return assert.AnError
}

func TestMutationParamsValidate(t *testing.T) {
	require.NoError(t, MutationParams{WeightRate: 0.5, BiasRate: 1, Scale: 0}.Validate())
	require.ErrorIs(t, MutationParams{WeightRate: 1.5}.Validate(), ErrConfiguration)
	require.ErrorIs(t, MutationParams{BiasRate: -0.1}.Validate(), ErrConfiguration)
	require.ErrorIs(t, MutationParams{Scale: -1}.Validate(), ErrConfiguration)
	require.NoError(t, MutationParams{Scale: MaxMutationScale}.Validate())
	require.ErrorIs(t, MutationParams{Scale: 1e39}.Validate(), ErrConfiguration)
	require.ErrorIs(t, MutationParams{Scale: math.Inf(1)}.Validate(), ErrConfiguration)
	require.ErrorIs(t, MutationParams{Scale: math.NaN()}.Validate(), ErrConfiguration)
	require.ErrorIs(t, MutationParams{WeightRate: math.NaN()}.Validate(), ErrConfiguration)
}

func TestHugeScaleCannotReachPersistence(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	parent := nativeGenome(1, topo, filledSet(topo, 0))
	_, err := NewGenome(2, topo, MutationParams{WeightRate: 1, BiasRate: 1, Scale: 1e39}, WithParent(parent))
	require.ErrorIs(t, err, ErrConfiguration)

	// The largest allowed scale still yields weights a record can encode.
	g, err := NewGenome(3, topo, MutationParams{WeightRate: 1, BiasRate: 1, Scale: MaxMutationScale},
		WithParent(parent), WithRand(NewRand(44)))
	require.NoError(t, err)
	set, _ := g.ParameterSet()
	for _, x := range set.Tensors() {
		for _, v := range x.Data {
			require.False(t, math.IsInf(float64(v), 0))
		}
	}
	rec, err := g.Record("run", []int{1})
	require.NoError(t, err)
	_, err = store.EncodeGenome(rec)
	require.NoError(t, err)
}
