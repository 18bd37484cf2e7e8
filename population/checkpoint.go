package population

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/baldhumanity/neuroevo-go/population/store"
)

// checkpointData holds only the parts of Population needed for saving.
// The Config is not saved; it is reloaded from the original file.
type checkpointData struct {
	RunID         string
	Seed          int64
	Generation    int
	NextGenomeKey int
	Ancestors     map[int][]int
	Genomes       []store.GenomeRecord
	BestGenome    *store.GenomeRecord // nil before the first evaluation
}

// SaveCheckpoint saves the current state of the Population to a file.
// Uses gzip compression for smaller file size.
func (p *Population) SaveCheckpoint(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)

	data := checkpointData{
		RunID:      p.RunID,
		Seed:       p.Seed,
		Generation: p.Generation,
		Ancestors:  make(map[int][]int),
	}
	p.Reproduction.mu.Lock()
	data.NextGenomeKey = p.Reproduction.NextGenomeKey
	for k, v := range p.Reproduction.Ancestors {
		data.Ancestors[k] = append([]int{}, v...)
	}
	p.Reproduction.mu.Unlock()

	for _, id := range p.IDs() {
		rec, err := p.Genomes[id].Record(p.RunID, data.Ancestors[id])
		if err != nil {
			return err
		}
		data.Genomes = append(data.Genomes, rec)
	}
	if p.BestGenome != nil {
		rec, err := p.BestGenome.Record(p.RunID, data.Ancestors[p.BestGenome.ID])
		if err != nil {
			return err
		}
		data.BestGenome = &rec
	}

	if err := gob.NewEncoder(gzWriter).Encode(data); err != nil {
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint '%s': %w", filePath, err)
	}

	logger.Info("checkpoint saved", zap.String("path", filePath), zap.Int("generation", p.Generation))
	return nil
}

// LoadCheckpoint loads a Population state from a checkpoint file.
// It requires the original configuration file path to reconstruct the Config object.
func LoadCheckpoint(checkpointPath string, configPath string, binder Binder) (*Population, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config '%s' for checkpoint: %w", configPath, err)
	}
	return ReadCheckpoint(checkpointPath, config, binder)
}

// ReadCheckpoint is LoadCheckpoint with an already loaded Config.
func ReadCheckpoint(checkpointPath string, config *Config, binder Binder) (*Population, error) {
	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	var data checkpointData
	if err := gob.NewDecoder(gzReader).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode population data from checkpoint: %w", err)
	}

	p := newPopulation(config, binder)
	p.RunID = data.RunID
	p.Seed = data.Seed
	p.Generation = data.Generation
	if err := p.restore(data.Genomes); err != nil {
		return nil, err
	}
	for k, v := range data.Ancestors {
		p.Reproduction.Ancestors[k] = v
	}
	if data.NextGenomeKey > p.Reproduction.NextGenomeKey {
		p.Reproduction.NextGenomeKey = data.NextGenomeKey
	}

	p.BestGenome = nil
	if data.BestGenome != nil {
		// The best genome may belong to an earlier generation.
		if g, ok := p.Genomes[data.BestGenome.ID]; ok {
			p.BestGenome = g
		} else if p.BestGenome, err = RestoreGenome(*data.BestGenome, config.Topology, p.binder); err != nil {
			return nil, fmt.Errorf("failed to restore best genome: %w", err)
		}
	}

	logger.Info("checkpoint loaded", zap.String("path", checkpointPath), zap.Int("generation", p.Generation))
	return p, nil
}
