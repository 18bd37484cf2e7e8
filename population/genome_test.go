package population

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neuroevo-go/population/store"
	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

var testMutation = MutationParams{WeightRate: 0.5, BiasRate: 0.5, Scale: 0.3}

func TestNewGenomeFresh(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	g, err := NewGenome(1, topo, testMutation, WithRand(NewRand(31)))
	require.NoError(t, err)

	assert.Equal(t, Fresh, g.Provenance())
	assert.False(t, g.Mutated)
	assert.False(t, g.Bred)
	assert.Zero(t, g.Fitness)
	assert.Zero(t, g.Score)

	set, ok := g.ParameterSet()
	require.True(t, ok)
	require.NoError(t, set.Validate(topo))
	require.NotNil(t, g.Network)

	ts, err := g.Network.Tensors()
	require.NoError(t, err)
	assert.Len(t, ts, 4)
}

func TestNewGenomeMutatedScenario(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	parent := nativeGenome(1, topo, filledSet(topo, 0))

	g, err := NewGenome(2, topo, MutationParams{WeightRate: 1, BiasRate: 0, Scale: 0.1},
		WithParent(parent), WithRand(NewRand(32)))
	require.NoError(t, err)
	assert.Equal(t, Mutated, g.Provenance())
	assert.True(t, g.Mutated)
	assert.False(t, g.Bred)

	set, ok := g.ParameterSet()
	require.True(t, ok)
	for _, w := range set.Weights() {
		for _, v := range w.Data {
			require.NotZero(t, v)
		}
	}
	for _, b := range set.Biases() {
		for _, v := range b.Data {
			require.Zero(t, v)
		}
	}

	// The parent is untouched.
	parentSet, _ := parent.ParameterSet()
	for _, w := range parentSet.Weights() {
		for _, v := range w.Data {
			require.Zero(t, v)
		}
	}
}

func TestNewGenomeBredDoesNotMutate(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	a := nativeGenome(1, topo, filledSet(topo, 1))
	b := nativeGenome(2, topo, filledSet(topo, 2))

	g, err := NewGenome(3, topo, MutationParams{WeightRate: 1, BiasRate: 1, Scale: 5},
		WithParents(a, b), WithRand(NewRand(33)))
	require.NoError(t, err)
	assert.Equal(t, Bred, g.Provenance())
	assert.True(t, g.Bred)
	assert.False(t, g.Mutated)

	set, _ := g.ParameterSet()
	for _, w := range set.Weights() {
		for _, v := range w.Data {
			require.True(t, v == 1 || v == 2)
		}
	}
	for _, bias := range set.Biases() {
		for _, v := range bias.Data {
			require.Equal(t, float32(1), v)
		}
	}
}

func TestNewGenomeIsDeterministicForASeed(t *testing.T) {
	topo := nativeTopology(4, []int{5, 3}, 2)
	parent, err := NewGenome(1, topo, testMutation, WithRand(NewRand(34)))
	require.NoError(t, err)

	build := func() *ParameterSet {
		g, err := NewGenome(2, topo, testMutation, WithParent(parent), WithRand(NewRand(35)))
		require.NoError(t, err)
		set, _ := g.ParameterSet()
		return set
	}
	x, y := build(), build()
	for i := range x.Layers {
		assert.True(t, x.Layers[i].Weights.Equal(y.Layers[i].Weights))
		assert.True(t, x.Layers[i].Biases.Equal(y.Layers[i].Biases))
	}
}

func TestNewGenomeRejectsUnsupportedCombinations(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	parent := nativeGenome(1, topo, filledSet(topo, 0))

	_, err := NewGenome(2, topo, testMutation, WithParent(parent), WithLoad(LoadSource{Dir: t.TempDir()}))
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewGenome(2, topo, testMutation, WithParents(nil, parent))
	require.ErrorIs(t, err, ErrConfiguration)

	// The default binder cannot load.
	_, err = NewGenome(2, topo, testMutation, WithLoad(LoadSource{Dir: t.TempDir()}))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestNewGenomeRejectsBadTopologyBeforeBuilding(t *testing.T) {
	calls := 0
	binder := BinderFunc(func(int, *ParameterSet, *LoadSource) (NetworkAdapter, error) {
		calls++
		return nil, nil
	})
	topo := Topology{Input: 4, Hidden: []int{3}, Output: 2, Kind: External, Recurrent: true}
	_, err := NewGenome(1, topo, testMutation, WithBinder(binder))
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, calls)
}

func TestNewGenomeRejectsMismatchedParents(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	other := nativeTopology(4, []int{6}, 2)
	a := nativeGenome(1, topo, filledSet(topo, 1))
	b := nativeGenome(2, other, filledSet(other, 2))

	_, err := NewGenome(3, topo, testMutation, WithParents(a, b))
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewGenome(3, other, testMutation, WithParent(a))
	require.ErrorIs(t, err, ErrShapeMismatch)

	external := &Genome{ID: 4, Topology: topo, Params: ExternalParameters{}}
	_, err = NewGenome(5, topo, testMutation, WithParent(external))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestNewGenomeRejectsMissingAdapter(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	noAdapter := BinderFunc(func(int, *ParameterSet, *LoadSource) (NetworkAdapter, error) {
		return nil, nil
	})
	parent := nativeGenome(1, topo, filledSet(topo, 1))

	_, err := NewGenome(2, topo, testMutation, WithBinder(noAdapter), WithRand(NewRand(42)))
	require.ErrorIs(t, err, ErrAdapterContract)
	_, err = NewGenome(3, topo, testMutation, WithParent(parent), WithBinder(noAdapter))
	require.ErrorIs(t, err, ErrAdapterContract)
	_, err = NewGenome(4, topo, testMutation, WithParents(parent, parent), WithBinder(noAdapter))
	require.ErrorIs(t, err, ErrAdapterContract)
	_, err = NewGenome(5, topo, testMutation, WithLoad(LoadSource{Dir: t.TempDir()}), WithBinder(noAdapter))
	require.ErrorIs(t, err, ErrAdapterContract)

	g := nativeGenome(6, topo, filledSet(topo, 1))
	rec, err := g.Record("run", nil)
	require.NoError(t, err)
	_, err = RestoreGenome(rec, topo, noAdapter)
	require.ErrorIs(t, err, ErrAdapterContract)
}

func TestNewGenomeLoadedRejectsForeignTensorsForNativeTopology(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	_, err := NewGenome(1, topo, testMutation,
		WithLoad(LoadSource{Dir: writeModel(t)}), WithBinder(modelBinder), WithRand(NewRand(43)))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func writeModel(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, store.SaveModel(dir, []byte(`{"format":"test"}`), mixedRankTensors()))
	return dir
}

func TestNewGenomeLoadedMutatesAdapterTensors(t *testing.T) {
	dir := writeModel(t)
	topo := Topology{Input: 4, Hidden: []int{3}, Output: 2, Kind: External, Recurrent: true, Timesteps: 5}

	g, err := NewGenome(7, topo, MutationParams{WeightRate: 1, BiasRate: 0, Scale: 1},
		WithLoad(LoadSource{Dir: dir}), WithBinder(modelBinder), WithRand(NewRand(36)))
	require.NoError(t, err)

	assert.Equal(t, Loaded, g.Provenance())
	assert.False(t, g.Mutated)
	assert.False(t, g.Bred)
	_, ok := g.ParameterSet()
	assert.False(t, ok)
	assert.Equal(t, ExternalParameters{Source: LoadSource{Dir: dir}}, g.Params)

	ts, err := g.Network.Tensors()
	require.NoError(t, err)
	assert.Equal(t, tensor.ShapesOf(mixedRankTensors()), tensor.ShapesOf(ts))
	for _, x := range ts {
		for _, v := range x.Data {
			require.NotZero(t, v)
		}
	}
}

func TestGenomeSaveNativeWritesLayerFiles(t *testing.T) {
	topo := nativeTopology(4, []int{3, 3}, 2)
	g, err := NewGenome(1, topo, testMutation, WithRand(NewRand(37)))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, g.Save(dir))
	for i := 0; i < 3; i++ {
		assert.FileExists(t, filepath.Join(dir, store.WeightsFile(i)))
		assert.FileExists(t, filepath.Join(dir, store.BiasesFile(i)))
	}

	weights, biases, err := store.LoadLayers(dir)
	require.NoError(t, err)
	set, _ := g.ParameterSet()
	for i := range weights {
		assert.True(t, set.Layers[i].Weights.Equal(weights[i]))
		assert.True(t, set.Layers[i].Biases.Equal(biases[i]))
	}
}

func TestGenomeSaveLoadedWritesModel(t *testing.T) {
	topo := Topology{Input: 4, Hidden: []int{3}, Output: 2, Kind: External}
	g, err := NewGenome(1, topo, testMutation,
		WithLoad(LoadSource{Dir: writeModel(t)}), WithBinder(modelBinder), WithRand(NewRand(38)))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "export")
	require.NoError(t, g.Save(dir))
	require.True(t, store.HasModel(dir))

	descriptor, ts, err := store.LoadModel(dir)
	require.NoError(t, err)
	assert.JSONEq(t, `{"format":"test"}`, string(descriptor))
	current, _ := g.Network.Tensors()
	for i := range ts {
		assert.True(t, current[i].Equal(ts[i]))
	}
}

func TestRestoreGenomeFromRecord(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	parent := nativeGenome(1, topo, filledSet(topo, 0))
	g, err := NewGenome(2, topo, testMutation, WithParent(parent), WithRand(NewRand(39)))
	require.NoError(t, err)
	g.Fitness = 3.5
	g.Score = 7

	rec, err := g.Record("run", []int{1})
	require.NoError(t, err)
	assert.Equal(t, "mutated", rec.Provenance)
	assert.Equal(t, []int{1}, rec.Parents)

	restored, err := RestoreGenome(rec, topo, nil)
	require.NoError(t, err)
	assert.Equal(t, Mutated, restored.Provenance())
	assert.True(t, restored.Mutated)
	assert.Equal(t, 3.5, restored.Fitness)
	assert.Equal(t, 7.0, restored.Score)
	assert.Equal(t, testMutation, restored.Mutation)

	want, _ := g.ParameterSet()
	got, ok := restored.ParameterSet()
	require.True(t, ok)
	for i := range want.Layers {
		assert.True(t, want.Layers[i].Weights.Equal(got.Layers[i].Weights))
		assert.True(t, want.Layers[i].Biases.Equal(got.Layers[i].Biases))
	}

	_, err = RestoreGenome(rec, nativeTopology(4, []int{5}, 2), nil)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRestoreLoadedGenomeRebindsSource(t *testing.T) {
	topo := Topology{Input: 4, Hidden: []int{3}, Output: 2, Kind: External}
	dir := writeModel(t)
	g, err := NewGenome(9, topo, MutationParams{WeightRate: 1, Scale: 1},
		WithLoad(LoadSource{Dir: dir}), WithBinder(modelBinder), WithRand(NewRand(40)))
	require.NoError(t, err)

	rec, err := g.Record("run", nil)
	require.NoError(t, err)
	assert.Equal(t, dir, rec.Source)

	restored, err := RestoreGenome(rec, topo, modelBinder)
	require.NoError(t, err)
	assert.Equal(t, Loaded, restored.Provenance())
	want, _ := g.Network.Tensors()
	got, _ := restored.Network.Tensors()
	for i := range want {
		assert.True(t, want[i].Equal(got[i]))
	}
}

func TestGenomeString(t *testing.T) {
	topo := nativeTopology(4, []int{3}, 2)
	g, err := NewGenome(12, topo, testMutation, WithRand(NewRand(41)))
	require.NoError(t, err)
	assert.Contains(t, g.String(), "Genome 12 (fresh) native 4-[3]-2")
}
