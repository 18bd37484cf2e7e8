package population

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"time"
)

// NewRand returns an explicit random stream. A zero seed picks a time-based one.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// DeriveSeed keys an independent stream on (base seed, genome id), so genomes
// built in parallel draw the same numbers no matter which worker builds them.
func DeriveSeed(base int64, genomeID int) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(base))
	binary.LittleEndian.PutUint64(buf[8:], uint64(genomeID))
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	seed := int64(h.Sum64())
	if seed == 0 {
		seed = 1
	}
	return seed
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return NewRand(0)
}
