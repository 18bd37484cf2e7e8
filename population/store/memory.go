package store

import (
	"context"
	"sort"
	"sync"
)

type genomeKey struct {
	runID string
	id    int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	genomes     map[genomeKey][]byte
	populations map[string]PopulationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.genomes = make(map[genomeKey][]byte)
	s.populations = make(map[string]PopulationRecord)
	return nil
}

// SaveGenome stores the encoded record so callers cannot alias stored tensors.
func (s *MemoryStore) SaveGenome(_ context.Context, genome GenomeRecord) error {
	payload, err := EncodeGenome(genome)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.genomes[genomeKey{genome.RunID, genome.ID}] = payload
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, runID string, id int) (GenomeRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.genomes[genomeKey{runID, id}]
	s.mu.RUnlock()
	if !ok {
		return GenomeRecord{}, false, nil
	}
	genome, err := DecodeGenome(payload)
	if err != nil {
		return GenomeRecord{}, false, err
	}
	return genome, true, nil
}

func (s *MemoryStore) ListGenomes(_ context.Context, runID string) ([]GenomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []GenomeRecord
	for key, payload := range s.genomes {
		if key.runID != runID {
			continue
		}
		genome, err := DecodeGenome(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, genome)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, population PopulationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	population.GenomeIDs = append([]int(nil), population.GenomeIDs...)
	s.populations[population.RunID] = population
	return nil
}

// SaveGeneration encodes every genome before taking the lock, so a bad record
// leaves the store unchanged.
func (s *MemoryStore) SaveGeneration(_ context.Context, population PopulationRecord, genomes []GenomeRecord) error {
	payloads := make(map[genomeKey][]byte, len(genomes))
	for _, g := range genomes {
		payload, err := EncodeGenome(g)
		if err != nil {
			return err
		}
		payloads[genomeKey{g.RunID, g.ID}] = payload
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	for key, payload := range payloads {
		s.genomes[key] = payload
	}
	population.GenomeIDs = append([]int(nil), population.GenomeIDs...)
	s.populations[population.RunID] = population
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, runID string) (PopulationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	population, ok := s.populations[runID]
	if ok {
		population.GenomeIDs = append([]int(nil), population.GenomeIDs...)
	}
	return population, ok, nil
}
