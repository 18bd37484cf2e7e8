package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CurrentVersion returns the version stamp new records are written with.
func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// GenomeRecord is the persisted form of one genome.
type GenomeRecord struct {
	VersionedRecord
	RunID string `json:"run_id"`
	ID    int    `json:"id"`

	Network   string `json:"network"`
	Input     int    `json:"input"`
	Hidden    []int  `json:"hidden"`
	Output    int    `json:"output"`
	Timesteps int    `json:"timesteps,omitempty"`

	WeightMutationRate float64 `json:"weight_mutation_rate"`
	BiasMutationRate   float64 `json:"bias_mutation_rate"`
	MutationScale      float64 `json:"mutation_scale"`

	Provenance string  `json:"provenance"`
	Mutated    bool    `json:"mutated"`
	Bred       bool    `json:"bred"`
	Fitness    float64 `json:"fitness"`
	Score      float64 `json:"score"`
	Parents    []int   `json:"parents,omitempty"`
	// Source is the directory a loaded genome was bound to.
	Source string `json:"source,omitempty"`

	// Tensors holds the genome's tensors in adapter order (w0, b0, w1, b1, ... for native genomes).
	Tensors []TensorRecord `json:"tensors"`
}

// TensorRecord is a tensor flattened for JSON.
type TensorRecord struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// PopulationRecord lists the genomes that make up one run.
type PopulationRecord struct {
	VersionedRecord
	RunID      string `json:"run_id"`
	Generation int    `json:"generation"`
	Seed       int64  `json:"seed"`
	GenomeIDs  []int  `json:"genome_ids"`
}

// NewTensorRecords converts tensors for persistence. Data is copied.
func NewTensorRecords(ts []*tensor.Tensor) []TensorRecord {
	out := make([]TensorRecord, len(ts))
	for i, t := range ts {
		data := make([]float32, len(t.Data))
		copy(data, t.Data)
		out[i] = TensorRecord{Shape: []int(t.Shape.Clone()), Data: data}
	}
	return out
}

// TensorList rebuilds tensors from records.
func (g GenomeRecord) TensorList() ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(g.Tensors))
	for i, rec := range g.Tensors {
		data := make([]float32, len(rec.Data))
		copy(data, rec.Data)
		t, err := tensor.FromData(tensor.Shape(rec.Shape), data)
		if err != nil {
			return nil, fmt.Errorf("genome %d tensor %d: %w", g.ID, i, err)
		}
		out[i] = t
	}
	return out, nil
}

func EncodeGenome(g GenomeRecord) ([]byte, error) {
	return json.Marshal(g)
}

func DecodeGenome(data []byte) (GenomeRecord, error) {
	var genome GenomeRecord
	if err := json.Unmarshal(data, &genome); err != nil {
		return GenomeRecord{}, err
	}
	if err := checkVersion(genome.VersionedRecord); err != nil {
		return GenomeRecord{}, err
	}
	return genome, nil
}

func EncodePopulation(p PopulationRecord) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (PopulationRecord, error) {
	var population PopulationRecord
	if err := json.Unmarshal(data, &population); err != nil {
		return PopulationRecord{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return PopulationRecord{}, err
	}
	return population, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
