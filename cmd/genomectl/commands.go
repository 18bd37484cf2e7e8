package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baldhumanity/neuroevo-go/population"
	"github.com/baldhumanity/neuroevo-go/population/nn"
	"github.com/baldhumanity/neuroevo-go/population/store"
)

// openStore loads the configuration and opens its store. The caller closes the store.
func openStore(ctx context.Context) (*population.Config, store.Store, error) {
	cfg, err := population.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.NewStore(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return cfg, s, nil
}

// closeStore closes s and logs a failure; the command's result stands either way.
func closeStore(s store.Store) {
	if err := store.CloseIfSupported(s); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(s)
	if cfg.Store.Backend == "memory" {
		logger.Warn("memory store does not outlive this command; use the sqlite backend to keep the run")
	}

	p, err := population.NewPopulation(ctx, cfg, nn.NewBinder(cfg.Topology))
	if err != nil {
		return err
	}
	if err := p.Persist(ctx, s); err != nil {
		return err
	}
	if checkpointPath != "" {
		if err := p.SaveCheckpoint(checkpointPath); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), p.RunID)
	return nil
}

func loadRun(ctx context.Context, runID string) (*population.Population, func(), error) {
	cfg, s, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := population.LoadPopulation(ctx, s, cfg, nn.NewBinder(cfg.Topology), runID)
	if err != nil {
		closeStore(s)
		return nil, nil, err
	}
	return p, func() { closeStore(s) }, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	p, release, err := loadRun(ctx, args[0])
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()
	stats := p.Stats()
	fmt.Fprintf(out, "Run %s generation %d: %d genomes, fitness mean %.4f stdev %.4f\n",
		p.RunID, stats.Generation, stats.Size, stats.Mean, stats.Stdev)
	for _, id := range p.IDs() {
		g := p.Genomes[id]
		params := 0
		if set, ok := g.ParameterSet(); ok {
			params = set.NumParameters()
		}
		fmt.Fprintf(out, "  %s params=%d parents=%v\n", g, params, p.Reproduction.Parents(id))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	id, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid genome id '%s': %w", args[1], err)
	}
	p, release, err := loadRun(ctx, args[0])
	if err != nil {
		return err
	}
	defer release()

	g, ok := p.Genomes[id]
	if !ok {
		return fmt.Errorf("genome %d is not in run %s", id, args[0])
	}
	dir := p.Config.Store.SaveDir
	if len(args) == 3 {
		dir = args[2]
	}
	if err := g.Save(dir); err != nil {
		return err
	}
	logger.Info("genome exported", zap.Int("id", id), zap.String("dir", dir))
	fmt.Fprintln(cmd.OutOrStdout(), dir)
	return nil
}

func runMutate(cmd *cobra.Command, args []string) error {
	cfg, err := population.LoadConfig(configPath)
	if err != nil {
		return err
	}
	g, err := population.NewGenome(mutateID, cfg.Topology, cfg.Mutation,
		population.WithLoad(population.LoadSource{Dir: args[0]}),
		population.WithBinder(nn.NewBinder(cfg.Topology)),
		population.WithRand(population.NewRand(mutateSeed)))
	if err != nil {
		return err
	}
	if err := g.Save(mutateOut); err != nil {
		return err
	}
	logger.Info("mutant saved", zap.String("from", args[0]), zap.String("to", mutateOut))
	fmt.Fprintln(cmd.OutOrStdout(), g)
	return nil
}
