package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Records are kept as their JSON payload. Provenance and fitness are copied
// into columns so a run can be ranked without decoding tensors.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	generation     INTEGER NOT NULL,
	seed           INTEGER NOT NULL,
	schema_version INTEGER NOT NULL,
	codec_version  INTEGER NOT NULL,
	payload        BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS genomes (
	run_id         TEXT NOT NULL,
	genome_id      INTEGER NOT NULL,
	provenance     TEXT NOT NULL,
	fitness        REAL NOT NULL,
	schema_version INTEGER NOT NULL,
	codec_version  INTEGER NOT NULL,
	payload        BLOB NOT NULL,
	PRIMARY KEY (run_id, genome_id)
);
CREATE INDEX IF NOT EXISTS genomes_by_fitness ON genomes (run_id, fitness DESC);
`

const upsertGenomeSQL = `
INSERT INTO genomes (run_id, genome_id, provenance, fitness, schema_version, codec_version, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, genome_id) DO UPDATE SET
	provenance = excluded.provenance,
	fitness = excluded.fitness,
	schema_version = excluded.schema_version,
	codec_version = excluded.codec_version,
	payload = excluded.payload`

const upsertRunSQL = `
INSERT INTO runs (run_id, generation, seed, schema_version, codec_version, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
	generation = excluded.generation,
	seed = excluded.seed,
	schema_version = excluded.schema_version,
	codec_version = excluded.codec_version,
	payload = excluded.payload`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore keeps runs in a single SQLite file through the pure-Go modernc driver.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the tables. Calling it twice is a no-op.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if s.path == "" {
		return errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema in %s: %w", s.path, err)
	}
	s.db = db
	logger.Debug("sqlite store ready", zap.String("path", s.path))
	return nil
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLiteStore) SaveGenome(ctx context.Context, genome GenomeRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return putGenome(ctx, db, genome)
}

func (s *SQLiteStore) SavePopulation(ctx context.Context, population PopulationRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return putRun(ctx, db, population)
}

// SaveGeneration writes the genomes and the run row in one transaction.
func (s *SQLiteStore) SaveGeneration(ctx context.Context, population PopulationRecord, genomes []GenomeRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run %s generation %d: %w", population.RunID, population.Generation, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, g := range genomes {
		if err := putGenome(ctx, tx, g); err != nil {
			return err
		}
	}
	if err := putRun(ctx, tx, population); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s generation %d: %w", population.RunID, population.Generation, err)
	}
	logger.Debug("generation saved",
		zap.String("run_id", population.RunID),
		zap.Int("generation", population.Generation),
		zap.Int("genomes", len(genomes)))
	return nil
}

func (s *SQLiteStore) GetGenome(ctx context.Context, runID string, id int) (GenomeRecord, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM genomes WHERE run_id = ? AND genome_id = ?`, runID, id)
	if err != nil || !ok {
		return GenomeRecord{}, false, err
	}
	genome, err := DecodeGenome(payload)
	if err != nil {
		return GenomeRecord{}, false, fmt.Errorf("decode genome %s/%d: %w", runID, id, err)
	}
	return genome, true, nil
}

func (s *SQLiteStore) GetPopulation(ctx context.Context, runID string) (PopulationRecord, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID)
	if err != nil || !ok {
		return PopulationRecord{}, false, err
	}
	population, err := DecodePopulation(payload)
	if err != nil {
		return PopulationRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return population, true, nil
}

func (s *SQLiteStore) ListGenomes(ctx context.Context, runID string) ([]GenomeRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT payload FROM genomes WHERE run_id = ? ORDER BY genome_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list genomes of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []GenomeRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		genome, err := DecodeGenome(payload)
		if err != nil {
			return nil, fmt.Errorf("decode genome of %s: %w", runID, err)
		}
		out = append(out, genome)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// payload runs a single-row query; a missing row is reported as ok == false.
func (s *SQLiteStore) payload(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	switch err := db.QueryRowContext(ctx, query, args...).Scan(&payload); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return payload, true, nil
}

func putGenome(ctx context.Context, ex execer, g GenomeRecord) error {
	payload, err := EncodeGenome(g)
	if err != nil {
		return fmt.Errorf("encode genome %s/%d: %w", g.RunID, g.ID, err)
	}
	_, err = ex.ExecContext(ctx, upsertGenomeSQL,
		g.RunID, g.ID, g.Provenance, g.Fitness, g.SchemaVersion, g.CodecVersion, payload)
	if err != nil {
		return fmt.Errorf("save genome %s/%d: %w", g.RunID, g.ID, err)
	}
	return nil
}

func putRun(ctx context.Context, ex execer, p PopulationRecord) error {
	payload, err := EncodePopulation(p)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", p.RunID, err)
	}
	_, err = ex.ExecContext(ctx, upsertRunSQL,
		p.RunID, p.Generation, p.Seed, p.SchemaVersion, p.CodecVersion, payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", p.RunID, err)
	}
	return nil
}
