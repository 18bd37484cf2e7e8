package population

import (
	"math/rand"
)

// Crossover overwrites child's weights element by element with other's when
// a uniform draw exceeds 0.5; otherwise child keeps its own value. Biases are
// never crossed, so a bred child carries its first parent's biases unchanged.
//
// child must already be an independent copy of the first parent. Shapes are
// checked before anything is written.
func Crossover(child, other *ParameterSet, rng *rand.Rand) error {
	if err := child.SameShape(other); err != nil {
		return err
	}
	rng = ensureRNG(rng)
	for i, layer := range child.Layers {
		src := other.Layers[i].Weights.Data
		dst := layer.Weights.Data
		for j := range dst {
			if rng.Float64() > 0.5 {
				dst[j] = src[j]
			}
		}
	}
	return nil
}
