package population

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/baldhumanity/neuroevo-go/population/store"
)

// FitnessFunc is the type for the function provided by the user to evaluate genome fitness.
// It takes the current generation of genomes and should update their Fitness (and optionally Score) field.
// The genomes map maps genome key to the Genome object.
type FitnessFunc func(genomes map[int]*Genome) error

// Request describes one offspring for Spawn. Parents holds zero, one or two
// keys of genomes in the current generation; Load names saved tensors to
// start from instead.
type Request struct {
	Parents []int
	Load    *LoadSource
}

// Population holds one run's genomes. Which genomes survive or breed is up to
// the caller; Population only builds, evaluates and persists them.
type Population struct {
	Config       *Config
	RunID        string
	Seed         int64
	Genomes      map[int]*Genome // Current generation of genomes (maps genome key -> genome)
	Reproduction *Reproduction
	Generation   int
	BestGenome   *Genome // Best genome found so far

	binder Binder
}

// NewPopulation builds config.Population.PopSize fresh genomes in parallel.
// A nil binder uses ParameterBinder. Any failure aborts the whole build.
func NewPopulation(ctx context.Context, config *Config, binder Binder) (*Population, error) {
	p := newPopulation(config, binder)
	p.Seed = config.Population.Seed
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}
	p.RunID = uuid.NewString()

	jobs := make([]job, config.Population.PopSize)
	for i := range jobs {
		jobs[i] = job{key: p.Reproduction.getNextKey()}
	}
	genomes, err := p.build(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to build initial population: %w", err)
	}
	for _, g := range genomes {
		p.Genomes[g.ID] = g
	}
	logger.Info("population created",
		zap.String("run_id", p.RunID),
		zap.Int("size", len(p.Genomes)),
		zap.Stringer("topology", config.Topology),
		zap.Int64("seed", p.Seed))
	return p, nil
}

func newPopulation(config *Config, binder Binder) *Population {
	if binder == nil {
		binder = ParameterBinder{}
	}
	return &Population{
		Config:       config,
		Genomes:      make(map[int]*Genome),
		Reproduction: NewReproduction(),
		binder:       binder,
	}
}

type job struct {
	key  int
	opts []Option
}

// build runs NewGenome for every job with at most Workers goroutines. Each
// genome draws from its own stream keyed by (Seed, key), so results do not
// depend on scheduling.
func (p *Population) build(ctx context.Context, jobs []job) ([]*Genome, error) {
	out := make([]*Genome, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			opts := append([]Option{
				WithRand(NewRand(DeriveSeed(p.Seed, j.key))),
				WithBinder(p.binder),
			}, j.opts...)
			genome, err := NewGenome(j.key, p.Config.Topology, p.Config.Mutation, opts...)
			if err != nil {
				return err
			}
			out[i] = genome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Population) workers() int {
	if p.Config.Population.Workers > 0 {
		return p.Config.Population.Workers
	}
	return runtime.NumCPU()
}

// Spawn builds one offspring per request in parallel and returns them in
// request order. The current generation is not modified.
func (p *Population) Spawn(ctx context.Context, requests []Request) ([]*Genome, error) {
	jobs := make([]job, len(requests))
	for i, req := range requests {
		opts, err := p.requestOptions(req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		jobs[i] = job{opts: opts}
	}
	// Keys are handed out only once every request is known to be valid.
	for i, req := range requests {
		jobs[i].key = p.Reproduction.getNextKey(req.Parents...)
	}
	return p.build(ctx, jobs)
}

func (p *Population) requestOptions(req Request) ([]Option, error) {
	parents := make([]*Genome, len(req.Parents))
	for i, key := range req.Parents {
		g, ok := p.Genomes[key]
		if !ok {
			return nil, fmt.Errorf("%w: parent genome %d is not in the current generation", ErrConfiguration, key)
		}
		parents[i] = g
	}
	var opts []Option
	switch len(parents) {
	case 0:
	case 1:
		opts = append(opts, WithParent(parents[0]))
	case 2:
		opts = append(opts, WithParents(parents[0], parents[1]))
	default:
		return nil, fmt.Errorf("%w: %d parents requested, at most 2 are supported", ErrConfiguration, len(parents))
	}
	if req.Load != nil {
		if len(parents) > 0 {
			return nil, fmt.Errorf("%w: a request cannot name both parents and a load source", ErrConfiguration)
		}
		opts = append(opts, WithLoad(*req.Load))
	}
	return opts, nil
}

// NextGeneration replaces the current genomes with the offspring described by requests.
func (p *Population) NextGeneration(ctx context.Context, requests []Request) error {
	start := time.Now()
	offspring, err := p.Spawn(ctx, requests)
	if err != nil {
		return err
	}
	next := make(map[int]*Genome, len(offspring))
	for _, g := range offspring {
		next[g.ID] = g
	}
	p.Genomes = next
	p.Generation++
	logger.Info("generation built",
		zap.Int("generation", p.Generation),
		zap.Int("size", len(next)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Evaluate hands the current genomes to fitnessFunc and tracks the best one seen.
func (p *Population) Evaluate(ctx context.Context, fitnessFunc FitnessFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fitnessFunc(p.Genomes); err != nil {
		return fmt.Errorf("fitness evaluation failed: %w", err)
	}

	currentBest := p.findBestGenome()
	if currentBest == nil {
		return nil
	}
	if p.BestGenome == nil || currentBest.Fitness > p.BestGenome.Fitness {
		p.BestGenome = currentBest
		logger.Info("new best genome", zap.Int("id", currentBest.ID), zap.Float64("fitness", currentBest.Fitness))
	}
	stats := p.Stats()
	logger.Debug("generation evaluated",
		zap.Int("generation", p.Generation),
		zap.Int("best", currentBest.ID),
		zap.Float64("mean", stats.Mean),
		zap.Float64("stdev", stats.Stdev))
	return nil
}

// findBestGenome finds the genome with the highest fitness in the current population.
// Ties go to the lowest key.
func (p *Population) findBestGenome() *Genome {
	var best *Genome
	maxFitness := math.Inf(-1)
	for _, key := range p.IDs() {
		g := p.Genomes[key]
		if g.Fitness > maxFitness {
			maxFitness = g.Fitness
			best = g
		}
	}
	return best
}

// Best returns the best genome found so far, or nil before any evaluation.
func (p *Population) Best() *Genome {
	return p.BestGenome
}

// IDs returns the keys of the current generation in ascending order.
func (p *Population) IDs() []int {
	ids := make([]int, 0, len(p.Genomes))
	for id := range p.Genomes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Stats summarizes the fitness of the current generation.
type Stats struct {
	Generation int
	Size       int
	Mean       float64
	Stdev      float64
	Min        float64
	Max        float64
}

func (p *Population) Stats() Stats {
	fitnesses := make([]float64, 0, len(p.Genomes))
	for _, id := range p.IDs() {
		fitnesses = append(fitnesses, p.Genomes[id].Fitness)
	}
	return Stats{
		Generation: p.Generation,
		Size:       len(fitnesses),
		Mean:       Mean(fitnesses),
		Stdev:      Stdev(fitnesses),
		Min:        MinFloat(fitnesses),
		Max:        MaxFloat(fitnesses),
	}
}

// Persist writes the current generation and the population index to s in one step.
func (p *Population) Persist(ctx context.Context, s store.Store) error {
	ids := p.IDs()
	records := make([]store.GenomeRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := p.Genomes[id].Record(p.RunID, p.Reproduction.Parents(id))
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	err := s.SaveGeneration(ctx, store.PopulationRecord{
		VersionedRecord: store.CurrentVersion(),
		RunID:           p.RunID,
		Generation:      p.Generation,
		Seed:            p.Seed,
		GenomeIDs:       ids,
	}, records)
	if err != nil {
		return fmt.Errorf("failed to save population %s: %w", p.RunID, err)
	}
	logger.Info("population persisted", zap.String("run_id", p.RunID), zap.Int("genomes", len(ids)))
	return nil
}

// LoadPopulation restores the generation persisted under runID.
func LoadPopulation(ctx context.Context, s store.Store, config *Config, binder Binder, runID string) (*Population, error) {
	rec, ok, err := s.GetPopulation(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read population %s: %w", runID, err)
	}
	if !ok {
		return nil, fmt.Errorf("population %s not found", runID)
	}

	p := newPopulation(config, binder)
	p.RunID = rec.RunID
	p.Seed = rec.Seed
	p.Generation = rec.Generation

	records := make([]store.GenomeRecord, 0, len(rec.GenomeIDs))
	for _, id := range rec.GenomeIDs {
		g, ok, err := s.GetGenome(ctx, runID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read genome %d: %w", id, err)
		}
		if !ok {
			return nil, fmt.Errorf("genome %d of population %s not found", id, runID)
		}
		records = append(records, g)
	}
	if err := p.restore(records); err != nil {
		return nil, err
	}
	logger.Info("population loaded", zap.String("run_id", p.RunID), zap.Int("generation", p.Generation))
	return p, nil
}

// restore rebuilds genomes, ancestry and the key counter from records.
func (p *Population) restore(records []store.GenomeRecord) error {
	for _, rec := range records {
		g, err := RestoreGenome(rec, p.Config.Topology, p.binder)
		if err != nil {
			return err
		}
		p.Genomes[g.ID] = g
		p.Reproduction.Ancestors[g.ID] = append([]int{}, rec.Parents...)
		if g.ID >= p.Reproduction.NextGenomeKey {
			p.Reproduction.NextGenomeKey = g.ID + 1
		}
	}
	p.BestGenome = p.findBestGenome()
	return nil
}
