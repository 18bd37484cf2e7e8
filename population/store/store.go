// Package store persists genomes: raw tensor files for the on-disk export
// layout, and a record store (memory or SQLite) for whole runs.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var logger = zap.NewNop()

// ErrNotInitialized is returned by store operations called before Init.
var ErrNotInitialized = errors.New("store is not initialized")

// SetLogger replaces the package logger. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Store defines persistence operations for genome records, keyed by run.
type Store interface {
	Init(ctx context.Context) error
	SaveGenome(ctx context.Context, genome GenomeRecord) error
	GetGenome(ctx context.Context, runID string, id int) (GenomeRecord, bool, error)
	ListGenomes(ctx context.Context, runID string) ([]GenomeRecord, error)
	SavePopulation(ctx context.Context, population PopulationRecord) error
	GetPopulation(ctx context.Context, runID string) (PopulationRecord, bool, error)
	// SaveGeneration writes a generation's genomes and its population record
	// together. When it fails nothing of the generation is stored.
	SaveGeneration(ctx context.Context, population PopulationRecord, genomes []GenomeRecord) error
}

// NewStore builds a store backend by name: "memory" (default) or "sqlite".
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes stores that hold resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
