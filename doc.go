// Package neuroevo is the genome layer of a neuroevolution engine.
//
// A genome is one candidate neural network held as per-layer weight and bias
// tensors. The population package builds genomes along four paths: fresh
// random initialization, single-parent mutation, two-parent crossover, and
// loading saved tensors (which always applies one mutation pass). Selection,
// fitness and training are left to the caller.
//
// Packages:
//
//	population/tensor  float32 tensors of any rank with element enumeration
//	population         topology and config, genetic operators, genomes, populations
//	population/store   tensor files and memory/SQLite record stores
//	population/nn      feed-forward and external network adapters
//	cmd/genomectl      command line front end
//
// Basic usage:
//
//	config, err := population.LoadConfig("path/to/config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	pop, err := population.NewPopulation(ctx, config, nn.NewBinder(config.Topology))
//	if err != nil {
//		log.Fatalf("Error creating population: %v", err)
//	}
//
//	for i := 0; i < 100; i++ {
//		if err := pop.Evaluate(ctx, evalGenomes); err != nil {
//			log.Fatalf("Error evaluating generation: %v", err)
//		}
//		// Pick parents however the experiment requires.
//		if err := pop.NextGeneration(ctx, chooseParents(pop)); err != nil {
//			log.Fatalf("Error building generation: %v", err)
//		}
//	}
package neuroevo
