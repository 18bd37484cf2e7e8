package population

import (
	"math/rand"
)

// Initialize creates a fresh ParameterSet for topo. Weights are drawn from
// N(0,1). The first layer's biases are drawn from U[0,1) and every later
// layer's biases from N(0,1); the asymmetry is kept on purpose so existing
// populations keep their statistics.
//
// Draws happen layer by layer: all weights row-major, then that layer's biases.
func Initialize(topo Topology, rng *rand.Rand) (*ParameterSet, error) {
	set, err := NewParameterSet(topo)
	if err != nil {
		return nil, err
	}
	rng = ensureRNG(rng)

	for i, layer := range set.Layers {
		for j := range layer.Weights.Data {
			layer.Weights.Data[j] = float32(rng.NormFloat64())
		}
		for j := range layer.Biases.Data {
			if i == 0 {
				layer.Biases.Data[j] = float32(rng.Float64())
			} else {
				layer.Biases.Data[j] = float32(rng.NormFloat64())
			}
		}
	}
	return set, nil
}
