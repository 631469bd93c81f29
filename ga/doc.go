// Package ga evolves fixed-shape neural network controllers with a
// generational genetic algorithm.
//
// A Scheduler owns a population of genomes and walks it through the phases
// Spawning, Evaluating, Selecting and Breeding. During Evaluating every
// genome is handed to a Driver, which runs the simulation for one window and
// accumulates fitness through a FitnessHandle. Selection ranks the
// population, carries the elites over unchanged and breeds the rest from a
// mating pool by crossover and mutation.
//
// Basic usage:
//
//	// Load configuration
//	cfg, err := ga.LoadConfig("path/to/config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	// Create a scheduler with your driver
//	s, err := ga.NewScheduler(cfg, ga.WithDriver(ga.DriverFunc(drive)))
//	if err != nil {
//		log.Fatalf("Error creating scheduler: %v", err)
//	}
//	defer s.Close()
//
//	// Run for 100 generations
//	best, err := s.Run(ctx, 100)
//	if err != nil {
//		log.Fatalf("Error running generations: %v", err)
//	}
//	fmt.Printf("Best genome %d: fitness %.3f\n", best.Key, best.Fitness)
//
// Callers that run the simulation themselves can skip the driver and call
// Advance once to enter Evaluating, feed fitness through FitnessHandle and
// Controller, then Advance through the remaining phases.
package ga
