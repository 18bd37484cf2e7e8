package population

import (
	"fmt"
	"math/rand"

	"github.com/baldhumanity/neuroevo-go/population/tensor"
	"go.uber.org/zap"
)

// MutationParams holds the per-genome mutation hyperparameters.
type MutationParams struct {
	WeightRate float64 `ini:"weight_mutation_rate" yaml:"weight_mutation_rate"`
	BiasRate   float64 `ini:"bias_mutation_rate" yaml:"bias_mutation_rate"`
	Scale      float64 `ini:"mutation_scale" yaml:"mutation_scale"`
}

// MaxMutationScale bounds mutation_scale so perturbed float32 weights stay finite.
const MaxMutationScale = 1e6

// Validate checks that both rates lie in [0,1] and the scale in [0, MaxMutationScale].
func (m MutationParams) Validate() error {
	if !(m.WeightRate >= 0 && m.WeightRate <= 1) {
		return fmt.Errorf("%w: weight_mutation_rate must be in [0,1], got %g", ErrConfiguration, m.WeightRate)
	}
	if !(m.BiasRate >= 0 && m.BiasRate <= 1) {
		return fmt.Errorf("%w: bias_mutation_rate must be in [0,1], got %g", ErrConfiguration, m.BiasRate)
	}
	if !(m.Scale >= 0 && m.Scale <= MaxMutationScale) {
		return fmt.Errorf("%w: mutation_scale must be in [0,%g], got %g", ErrConfiguration, float64(MaxMutationScale), m.Scale)
	}
	return nil
}

// MutateTensor perturbs t in place. Each element independently passes a
// Bernoulli trial with probability rate and, on success, receives an additive
// draw from N(0, scale) halved. Works for any rank. Returns the number of
// elements that passed the trial.
func MutateTensor(t *tensor.Tensor, rate, scale float64, rng *rand.Rand) int {
	rng = ensureRNG(rng)
	hits := 0
	t.Each(func(_ []int, v *float32) {
		if rng.Float64() < rate {
			hits++
			delta := float32(rng.NormFloat64() * scale * 0.5)
			if delta != 0 {
				*v += delta
			}
		}
	})
	return hits
}

// MutateParameters mutates every weight of every layer with WeightRate, then
// every bias of every layer with BiasRate. Shapes never change.
func MutateParameters(set *ParameterSet, params MutationParams, rng *rand.Rand) int {
	rng = ensureRNG(rng)
	hits := 0
	for _, layer := range set.Layers {
		hits += MutateTensor(layer.Weights, params.WeightRate, params.Scale, rng)
	}
	for _, layer := range set.Layers {
		hits += MutateTensor(layer.Biases, params.BiasRate, params.Scale, rng)
	}
	return hits
}

// MutateAdapter applies the same policy to the tensors an adapter owns. The
// list is read with a single Tensors call and written back whole with a single
// SetTensors call; every tensor uses WeightRate whatever its rank.
func MutateAdapter(adapter NetworkAdapter, params MutationParams, rng *rand.Rand) error {
	rng = ensureRNG(rng)
	ts, err := adapter.Tensors()
	if err != nil {
		return fmt.Errorf("%w: reading tensors: %v", ErrAdapterContract, err)
	}
	before := tensor.ShapesOf(ts)

	work := tensor.CloneAll(ts)
	hits := 0
	for _, t := range work {
		hits += MutateTensor(t, params.WeightRate, params.Scale, rng)
	}
	if err := adapter.SetTensors(work); err != nil {
		return fmt.Errorf("%w: writing tensors: %v", ErrAdapterContract, err)
	}

	after, err := adapter.Tensors()
	if err != nil {
		return fmt.Errorf("%w: re-reading tensors: %v", ErrAdapterContract, err)
	}
	if err := tensor.SameShapes(before, tensor.ShapesOf(after)); err != nil {
		return fmt.Errorf("%w: tensors changed across round trip: %v", ErrAdapterContract, err)
	}
	logger.Debug("mutated adapter tensors", zap.Int("tensors", len(work)), zap.Int("hits", hits))
	return nil
}
