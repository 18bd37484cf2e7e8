package population

import (
	"sync"
)

// Reproduction hands out genome keys and remembers each genome's parents.
// It is safe for concurrent use.
type Reproduction struct {
	mu            sync.Mutex
	NextGenomeKey int           // State for the next genome key
	Ancestors     map[int][]int // Map genome key -> parent keys (for tracking lineage)
}

// NewReproduction creates a new reproduction manager.
func NewReproduction() *Reproduction {
	return &Reproduction{
		NextGenomeKey: 1, // Start genome keys at 1
		Ancestors:     make(map[int][]int),
	}
}

// getNextKey gets the next available genome key and records its parents.
func (r *Reproduction) getNextKey(parents ...int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.NextGenomeKey
	r.NextGenomeKey++
	r.Ancestors[key] = append([]int{}, parents...)
	return key
}

// Parents returns the recorded parent keys of a genome.
func (r *Reproduction) Parents(key int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.Ancestors[key]...)
}

// Lineage walks the ancestry of key breadth-first and returns every ancestor once.
func (r *Reproduction) Lineage(key int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int]bool{key: true}
	var out []int
	queue := append([]int(nil), r.Ancestors[key]...)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		queue = append(queue, r.Ancestors[k]...)
	}
	return out
}
