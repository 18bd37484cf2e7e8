package population

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossoverTakesEachWeightFromAParent(t *testing.T) {
	topo := nativeTopology(100, []int{100}, 100)
	a := filledSet(topo, 1)
	b := filledSet(topo, 2)
	child := a.Clone()

	require.NoError(t, Crossover(child, b, NewRand(21)))
	require.NoError(t, child.Validate(topo))

	fromB, total := 0, 0
	for _, w := range child.Weights() {
		for _, v := range w.Data {
			require.True(t, v == 1 || v == 2, "weight %v is from neither parent", v)
			if v == 2 {
				fromB++
			}
			total++
		}
	}
	assert.InDelta(t, 0.5, float64(fromB)/float64(total), 0.02)
}

func TestCrossoverKeepsFirstParentBiases(t *testing.T) {
	topo := nativeTopology(4, []int{6, 5}, 3)
	a, err := Initialize(topo, NewRand(22))
	require.NoError(t, err)
	b, err := Initialize(topo, NewRand(23))
	require.NoError(t, err)
	child := a.Clone()

	require.NoError(t, Crossover(child, b, NewRand(24)))
	for i := range child.Layers {
		assert.True(t, child.Layers[i].Biases.Equal(a.Layers[i].Biases))
	}
}

func TestCrossoverRejectsMismatchedShapesUntouched(t *testing.T) {
	child := filledSet(nativeTopology(4, []int{3}, 2), 1)
	other := filledSet(nativeTopology(4, []int{5}, 2), 2)
	before := child.Clone()

	require.ErrorIs(t, Crossover(child, other, NewRand(25)), ErrShapeMismatch)
	for i := range child.Layers {
		assert.True(t, child.Layers[i].Weights.Equal(before.Layers[i].Weights))
	}

	require.ErrorIs(t, Crossover(child, nil, NewRand(25)), ErrShapeMismatch)
}

func TestCrossoverIsDeterministicForASeed(t *testing.T) {
	topo := nativeTopology(8, []int{8}, 8)
	a := filledSet(topo, 1)
	b := filledSet(topo, 2)

	x, y := a.Clone(), a.Clone()
	require.NoError(t, Crossover(x, b, NewRand(26)))
	require.NoError(t, Crossover(y, b, NewRand(26)))
	for i := range x.Layers {
		assert.True(t, x.Layers[i].Weights.Equal(y.Layers[i].Weights))
	}
}
