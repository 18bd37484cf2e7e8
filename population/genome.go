package population

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/baldhumanity/neuroevo-go/population/store"
	"go.uber.org/zap"
)

// Provenance records which construction path produced a genome.
type Provenance int

const (
	Fresh Provenance = iota
	Mutated
	Bred
	Loaded
)

func (p Provenance) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Mutated:
		return "mutated"
	case Bred:
		return "bred"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// ParseProvenance is the inverse of Provenance.String.
func ParseProvenance(s string) (Provenance, error) {
	switch s {
	case "fresh":
		return Fresh, nil
	case "mutated":
		return Mutated, nil
	case "bred":
		return Bred, nil
	case "loaded":
		return Loaded, nil
	}
	return 0, fmt.Errorf("unknown provenance '%s'", s)
}

// Parameters is either NativeParameters or ExternalParameters.
type Parameters interface {
	parameters()
}

// NativeParameters is a ParameterSet owned by the genome.
type NativeParameters struct {
	Set *ParameterSet
}

// ExternalParameters marks tensors owned by the genome's adapter, bound from Source.
type ExternalParameters struct {
	Source LoadSource
}

func (NativeParameters) parameters()   {}
func (ExternalParameters) parameters() {}

// Genome is one candidate network: identity, hyperparameters, lineage flags,
// fitness and its parameters. It is fully built by NewGenome and not changed
// afterwards except for Fitness and Score.
type Genome struct {
	ID       int
	Topology Topology
	Mutation MutationParams

	Mutated bool
	Bred    bool
	Fitness float64 // 0 means unset
	Score   float64 // raw performance before normalization

	Params  Parameters
	Network NetworkAdapter

	provenance Provenance
}

type buildOptions struct {
	parent1 *Genome
	parent2 *Genome
	load    *LoadSource
	rng     *rand.Rand
	binder  Binder
}

// Option configures NewGenome.
type Option func(*buildOptions)

// WithParent builds a mutant of parent.
func WithParent(parent *Genome) Option {
	return func(o *buildOptions) { o.parent1 = parent }
}

// WithParents builds a child of a and b. The child starts as a copy of a.
func WithParents(a, b *Genome) Option {
	return func(o *buildOptions) {
		o.parent1 = a
		o.parent2 = b
	}
}

// WithLoad binds the genome to tensors saved in source.Dir and mutates them.
func WithLoad(source LoadSource) Option {
	return func(o *buildOptions) { o.load = &source }
}

// WithRand sets the random stream. Without it a time-seeded stream is used.
func WithRand(rng *rand.Rand) Option {
	return func(o *buildOptions) { o.rng = rng }
}

// WithBinder sets the binder that builds the genome's adapter.
// The default is ParameterBinder.
func WithBinder(b Binder) Option {
	return func(o *buildOptions) { o.binder = b }
}

// NewGenome builds a genome along exactly one path, picked from the options:
//
//	no parent, no load   fresh:   Initialize
//	WithParent           mutated: clone the parent, MutateParameters
//	WithParents          bred:    clone the first parent, Crossover with the second
//	WithLoad             loaded:  bind the adapter to the source, MutateAdapter
//
// Parents combined with a load source is a configuration error.
func NewGenome(id int, topo Topology, params MutationParams, opts ...Option) (*Genome, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("genome %d: %w", id, err)
	}
	if o.load != nil && (o.parent1 != nil || o.parent2 != nil) {
		return nil, fmt.Errorf("%w: genome %d given both a load source and parents", ErrConfiguration, id)
	}
	if o.parent2 != nil && o.parent1 == nil {
		return nil, fmt.Errorf("%w: genome %d given a second parent without a first", ErrConfiguration, id)
	}
	if o.binder == nil {
		o.binder = ParameterBinder{}
	}
	o.rng = ensureRNG(o.rng)

	g := &Genome{ID: id, Topology: topo, Mutation: params}

	if o.load != nil {
		network, err := bindAdapter(o.binder, id, nil, o.load)
		if err != nil {
			return nil, fmt.Errorf("genome %d: binding %s: %w", id, o.load.Dir, err)
		}
		if err := checkLoadedShape(network, topo); err != nil {
			return nil, fmt.Errorf("genome %d: %s: %w", id, o.load.Dir, err)
		}
		if err := MutateAdapter(network, params, o.rng); err != nil {
			return nil, fmt.Errorf("genome %d: %w", id, err)
		}
		g.Params = ExternalParameters{Source: *o.load}
		g.Network = network
		g.provenance = Loaded
		logger.Debug("genome built", zap.Int("id", id), zap.Stringer("provenance", g.provenance), zap.String("source", o.load.Dir))
		return g, nil
	}

	var set *ParameterSet
	switch {
	case o.parent2 != nil:
		a, err := parentSet(o.parent1, topo)
		if err != nil {
			return nil, err
		}
		b, err := parentSet(o.parent2, topo)
		if err != nil {
			return nil, err
		}
		set = a.Clone()
		if err := Crossover(set, b, o.rng); err != nil {
			return nil, fmt.Errorf("genome %d: %w", id, err)
		}
		g.Bred = true
		g.provenance = Bred
	case o.parent1 != nil:
		p, err := parentSet(o.parent1, topo)
		if err != nil {
			return nil, err
		}
		set = p.Clone()
		MutateParameters(set, params, o.rng)
		g.Mutated = true
		g.provenance = Mutated
	default:
		var err error
		if set, err = Initialize(topo, o.rng); err != nil {
			return nil, err
		}
		g.provenance = Fresh
	}

	network, err := bindAdapter(o.binder, id, set, nil)
	if err != nil {
		return nil, fmt.Errorf("genome %d: binding parameters: %w", id, err)
	}
	g.Params = NativeParameters{Set: set}
	g.Network = network
	logger.Debug("genome built", zap.Int("id", id), zap.Stringer("provenance", g.provenance))
	return g, nil
}

// bindAdapter calls binder and rejects a missing adapter.
func bindAdapter(binder Binder, id int, set *ParameterSet, source *LoadSource) (NetworkAdapter, error) {
	network, err := binder.Bind(id, set, source)
	if err != nil {
		return nil, err
	}
	if network == nil {
		return nil, fmt.Errorf("%w: binder returned no adapter", ErrAdapterContract)
	}
	return network, nil
}

// checkLoadedShape rejects loaded tensors that do not fit topo. A native
// topology requires layer tensors; for an external one only tensors that
// chain as layers are checked.
func checkLoadedShape(network NetworkAdapter, topo Topology) error {
	ts, err := network.Tensors()
	if err != nil {
		return fmt.Errorf("%w: reading tensors: %v", ErrAdapterContract, err)
	}
	set, err := ParameterSetFromTensors(ts)
	if err != nil {
		if topo.Kind == Native {
			return fmt.Errorf("loaded tensors are not layers of %s: %w", topo, err)
		}
		return nil
	}
	if err := set.Validate(topo); err != nil {
		return fmt.Errorf("loaded layers do not fit: %w", err)
	}
	return nil
}

// parentSet returns a parent's own parameter set after checking it fits topo.
func parentSet(parent *Genome, topo Topology) (*ParameterSet, error) {
	native, ok := parent.Params.(NativeParameters)
	if !ok || native.Set == nil {
		return nil, fmt.Errorf("%w: parent genome %d has no native parameter set", ErrConfiguration, parent.ID)
	}
	if err := native.Set.Validate(topo); err != nil {
		return nil, fmt.Errorf("parent genome %d: %w", parent.ID, err)
	}
	return native.Set, nil
}

// Provenance reports the path NewGenome took.
func (g *Genome) Provenance() Provenance {
	return g.provenance
}

// ParameterSet returns the genome's own parameter set, if it has one.
func (g *Genome) ParameterSet() (*ParameterSet, bool) {
	native, ok := g.Params.(NativeParameters)
	if !ok {
		return nil, false
	}
	return native.Set, native.Set != nil
}

// Save writes the genome's parameters to dir. Native genomes write one weight
// and one bias file per layer. Adapter-owned tensors are written as a model
// descriptor plus tensor blob when the adapter is a Describer, and as layer
// files when they form a parameter set.
func (g *Genome) Save(dir string) error {
	if set, ok := g.ParameterSet(); ok {
		return store.SaveLayers(dir, set.Weights(), set.Biases())
	}
	ts, err := g.Network.Tensors()
	if err != nil {
		return fmt.Errorf("genome %d: %w", g.ID, err)
	}
	if d, ok := g.Network.(Describer); ok {
		descriptor, err := d.Descriptor()
		if err != nil {
			return fmt.Errorf("genome %d: describing model: %w", g.ID, err)
		}
		return store.SaveModel(dir, descriptor, ts)
	}
	set, err := ParameterSetFromTensors(ts)
	if err != nil {
		return fmt.Errorf("genome %d: adapter is not a Describer and its tensors are not layers: %w", g.ID, err)
	}
	return store.SaveLayers(dir, set.Weights(), set.Biases())
}

// Record converts the genome for a store.
func (g *Genome) Record(runID string, parents []int) (store.GenomeRecord, error) {
	ts, err := g.Network.Tensors()
	if err != nil {
		return store.GenomeRecord{}, fmt.Errorf("genome %d: %w", g.ID, err)
	}
	rec := store.GenomeRecord{
		VersionedRecord:    store.CurrentVersion(),
		RunID:              runID,
		ID:                 g.ID,
		Network:            string(g.Topology.Kind),
		Input:              g.Topology.Input,
		Hidden:             append([]int(nil), g.Topology.Hidden...),
		Output:             g.Topology.Output,
		WeightMutationRate: g.Mutation.WeightRate,
		BiasMutationRate:   g.Mutation.BiasRate,
		MutationScale:      g.Mutation.Scale,
		Provenance:         g.provenance.String(),
		Mutated:            g.Mutated,
		Bred:               g.Bred,
		Fitness:            g.Fitness,
		Score:              g.Score,
		Parents:            append([]int(nil), parents...),
		Tensors:            store.NewTensorRecords(ts),
	}
	if g.Topology.Recurrent {
		rec.Timesteps = g.Topology.Timesteps
	}
	if ext, ok := g.Params.(ExternalParameters); ok {
		rec.Source = ext.Source.Dir
	}
	return rec, nil
}

// RestoreGenome rebuilds a stored genome without running any genetic
// operator. Activation names come from topo, which must have the record's
// shape. Loaded genomes are rebound to their source and then given the
// recorded tensors.
func RestoreGenome(rec store.GenomeRecord, topo Topology, binder Binder) (*Genome, error) {
	provenance, err := ParseProvenance(rec.Provenance)
	if err != nil {
		return nil, fmt.Errorf("genome %d: %w", rec.ID, err)
	}
	if string(topo.Kind) != rec.Network || topo.Input != rec.Input || topo.Output != rec.Output || !slices.Equal(topo.Hidden, rec.Hidden) {
		return nil, fmt.Errorf("%w: genome %d was stored as %s %d-%v-%d, topology is %s",
			ErrConfiguration, rec.ID, rec.Network, rec.Input, rec.Hidden, rec.Output, topo)
	}
	if binder == nil {
		binder = ParameterBinder{}
	}
	ts, err := rec.TensorList()
	if err != nil {
		return nil, err
	}

	g := &Genome{
		ID:       rec.ID,
		Topology: topo,
		Mutation: MutationParams{
			WeightRate: rec.WeightMutationRate,
			BiasRate:   rec.BiasMutationRate,
			Scale:      rec.MutationScale,
		},
		Mutated:    rec.Mutated,
		Bred:       rec.Bred,
		Fitness:    rec.Fitness,
		Score:      rec.Score,
		provenance: provenance,
	}

	if provenance == Loaded {
		source := LoadSource{Dir: rec.Source}
		network, err := bindAdapter(binder, rec.ID, nil, &source)
		if err != nil {
			return nil, fmt.Errorf("genome %d: binding %s: %w", rec.ID, source.Dir, err)
		}
		if err := checkLoadedShape(network, topo); err != nil {
			return nil, fmt.Errorf("genome %d: %s: %w", rec.ID, source.Dir, err)
		}
		if err := network.SetTensors(ts); err != nil {
			return nil, fmt.Errorf("%w: genome %d: %v", ErrAdapterContract, rec.ID, err)
		}
		g.Params = ExternalParameters{Source: source}
		g.Network = network
		return g, nil
	}

	set, err := ParameterSetFromTensors(ts)
	if err != nil {
		return nil, fmt.Errorf("genome %d: %w", rec.ID, err)
	}
	if err := set.Validate(topo); err != nil {
		return nil, fmt.Errorf("genome %d: %w", rec.ID, err)
	}
	network, err := bindAdapter(binder, rec.ID, set, nil)
	if err != nil {
		return nil, fmt.Errorf("genome %d: binding parameters: %w", rec.ID, err)
	}
	g.Params = NativeParameters{Set: set}
	g.Network = network
	return g, nil
}

func (g *Genome) String() string {
	return fmt.Sprintf("Genome %d (%s) %s fitness=%.4f score=%.4f", g.ID, g.provenance, g.Topology, g.Fitness, g.Score)
}
