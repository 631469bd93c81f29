package ga

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/GunPocket/GACar/ga/nn"
	"github.com/GunPocket/GACar/ga/store"
)

// Phase is a state of the generation loop.
type Phase int

const (
	PhaseSpawning Phase = iota
	PhaseEvaluating
	PhaseSelecting
	PhaseBreeding
)

func (p Phase) String() string {
	switch p {
	case PhaseSpawning:
		return "spawning"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseSelecting:
		return "selecting"
	case PhaseBreeding:
		return "breeding"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ErrWrongPhase is returned by operations that are only valid in a specific
// phase of the generation loop.
var ErrWrongPhase = errors.New("operation not valid in the current phase")

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDriver sets the driver that scores genomes during evaluation. Without
// a driver, fitness is expected to arrive through FitnessHandle between the
// Spawning and Evaluating advances.
func WithDriver(d Driver) Option {
	return func(s *Scheduler) { s.driver = d }
}

// WithReporter registers a reporter.
func WithReporter(r Reporter) Option {
	return func(s *Scheduler) { s.reporters.Add(r) }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithAccelerator sets the batch evaluation backend used by controllers.
func WithAccelerator(acc nn.Accelerator) Option {
	return func(s *Scheduler) { s.accelerator = acc }
}

// WithRand sets the random source used for initialization, selection,
// crossover and mutation. It overrides the configured seed.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// WithSeedGenomes replaces the first population slots with the given
// genomes, encoded as text or JSON. Seeds that fail to decode or do not
// match the configured topology are reported and left random.
func WithSeedGenomes(genomes ...string) Option {
	return func(s *Scheduler) { s.seeds = append(s.seeds, genomes...) }
}

// WithSleeper replaces the function used to hold a wall-clock window open.
func WithSleeper(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// Scheduler owns the population and drives the generation loop
// Spawning → Evaluating → Selecting → Breeding → Spawning. All methods must be
// called from a single goroutine; only drivers run concurrently.
type Scheduler struct {
	config     *Config
	topology   nn.Topology
	activation nn.ActivationKind
	params     nn.Params
	mutation   MutationConfig
	selection  Selection
	crossover  nn.CrossoverStrategy

	rng         *rand.Rand
	logger      *slog.Logger
	driver      Driver
	reporters   ReporterSet
	accelerator nn.Accelerator
	sleep       func(ctx context.Context, d time.Duration)
	seeds       []string
	closers     []io.Closer

	phase      Phase
	generation int
	nextKey    int
	population []*Genome // genomes of the current window, ranked after Selecting
	next       []*Genome // bred population waiting for Spawning
	matingPool []*Genome
	handles    map[int]*FitnessHandle
	best       *Genome
	stats      GenerationStats
}

// NewScheduler validates cfg and creates the initial population.
func NewScheduler(cfg *Config, opts ...Option) (*Scheduler, error) {
	s, err := newScheduler(cfg, opts...)
	if err != nil {
		return nil, err
	}
	initial, err := createPopulation(s.nextKey, cfg.GA.PopulationSize, s.topology, s.activation, s.params, s.rng)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.nextKey += len(initial)
	s.applySeeds(initial)
	s.next = initial
	return s, nil
}

func newScheduler(cfg *Config, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", nn.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	topology, _ := cfg.Topology()
	mode, _ := ParseMutationMode(cfg.GA.MutationMode)
	selection, _ := ParseSelection(cfg.GA.Selection)
	crossover, _ := nn.ParseCrossoverStrategy(cfg.GA.Crossover)

	s := &Scheduler{
		config:     cfg,
		topology:   topology,
		activation: cfg.ActivationKind(),
		params:     cfg.Params(),
		mutation:   MutationConfig{Rate: cfg.GA.MutationRate, Mode: mode},
		selection:  selection,
		crossover:  crossover,
		logger:     slog.Default(),
		sleep:      sleepContext,
		phase:      PhaseSpawning,
		nextKey:    1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := cfg.GA.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rng = rand.New(rand.NewSource(seed))
	}

	if cfg.Output.SeedGenome != "" {
		data, err := os.ReadFile(cfg.Output.SeedGenome)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed genome '%s': %w", cfg.Output.SeedGenome, err)
		}
		s.seeds = append([]string{string(data)}, s.seeds...)
	}
	if err := s.attachOutputs(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// attachOutputs registers the reporters the [Output] section asks for.
func (s *Scheduler) attachOutputs() error {
	out := s.config.Output
	if out.TelemetryCSV != "" {
		r, err := CreateCSVReporter(out.TelemetryCSV)
		if err != nil {
			return err
		}
		r.logger = s.logger
		s.reporters.Add(r)
		s.closers = append(s.closers, r)
	}
	if out.Store != "" {
		st, err := store.NewStore(out.Store, out.StorePath)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		r, err := NewArchiveReporter(context.Background(), st, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open run archive: %w", err)
		}
		s.logger.Info("archiving run", "run_id", r.RunID, "store", out.Store)
		s.reporters.Add(r)
		s.closers = append(s.closers, r)
	}
	return nil
}

func (s *Scheduler) applySeeds(population []*Genome) {
	for i, text := range s.seeds {
		if i >= len(population) {
			s.logger.Warn("more seed genomes than population slots", "seeds", len(s.seeds), "population", len(population))
			break
		}
		key := population[i].Key
		g, err := DecodeGenome(key, text, s.activation, s.params)
		if err == nil && !s.fitsBoundary(g.Network) {
			err = &nn.SerializationError{Reason: fmt.Sprintf("seed topology %s does not fit configured %s", g.Network.Topology(), s.topology)}
		}
		if err != nil {
			s.logger.Warn("seed genome rejected, using a random genome", "slot", i, "error", err)
			s.reporters.OnSerializationError(i, err)
			continue
		}
		population[i] = g
	}
}

// fitsBoundary reports whether n has the configured input and output sizes.
// Hidden layers are free to differ, since mutation grows and prunes them.
func (s *Scheduler) fitsBoundary(n *nn.Network) bool {
	return n.InputSize() == s.topology.Inputs && n.OutputSize() == s.topology.Outputs
}

// Phase returns the phase the next Advance call executes.
func (s *Scheduler) Phase() Phase {
	return s.phase
}

// Generation returns the number of completed generations.
func (s *Scheduler) Generation() int {
	return s.generation
}

// Best returns the best genome of the last completed selection, or nil
// before the first one.
func (s *Scheduler) Best() *Genome {
	return s.best
}

// Population returns a copy of the current population slice. The genomes
// themselves are shared with the scheduler.
func (s *Scheduler) Population() []*Genome {
	if s.phase == PhaseSpawning {
		return append([]*Genome(nil), s.next...)
	}
	return append([]*Genome(nil), s.population...)
}

// FitnessHandle returns the fitness accumulator of the genome with key. It is
// only available while the scheduler is in PhaseEvaluating.
func (s *Scheduler) FitnessHandle(key int) (*FitnessHandle, error) {
	if s.phase != PhaseEvaluating {
		return nil, fmt.Errorf("fitness handle requested in phase %s: %w", s.phase, ErrWrongPhase)
	}
	h, ok := s.handles[key]
	if !ok {
		return nil, fmt.Errorf("no genome with key %d in generation %d", key, s.generation)
	}
	return h, nil
}

// Controller returns the controller of the genome with key, for callers that
// run the simulation themselves. Like FitnessHandle it is only available in
// PhaseEvaluating.
func (s *Scheduler) Controller(key int) (*Controller, error) {
	h, err := s.FitnessHandle(key)
	if err != nil {
		return nil, err
	}
	return newController(h.genome, s.accelerator, s.logger), nil
}

// Advance executes the current phase and moves to the next one.
func (s *Scheduler) Advance(ctx context.Context) error {
	switch s.phase {
	case PhaseSpawning:
		if err := s.spawn(); err != nil {
			return err
		}
		s.phase = PhaseEvaluating
	case PhaseEvaluating:
		s.evaluate(ctx)
		s.phase = PhaseSelecting
	case PhaseSelecting:
		s.selectGenomes()
		s.phase = PhaseBreeding
	case PhaseBreeding:
		if err := s.breed(); err != nil {
			return err
		}
		s.phase = PhaseSpawning
	}
	return nil
}

// RunGeneration advances until the current generation has been bred and
// returns its best genome.
func (s *Scheduler) RunGeneration(ctx context.Context) (*Genome, error) {
	for {
		phase := s.phase
		if err := s.Advance(ctx); err != nil {
			return nil, err
		}
		if phase == PhaseBreeding {
			return s.best, nil
		}
	}
}

// Run executes generations until the requested count is reached (forever
// when generations <= 0), ctx is done, or the fitness threshold is met.
// ctx is only checked between generations. It then writes the best genome
// and checkpoint configured in the [Output] section and returns the best
// genome of the final generation.
func (s *Scheduler) Run(ctx context.Context, generations int) (*Genome, error) {
	for i := 0; generations <= 0 || i < generations; i++ {
		if ctx.Err() != nil {
			s.logger.Info("stop requested", "generation", s.generation)
			break
		}
		best, err := s.RunGeneration(ctx)
		if err != nil {
			return nil, err
		}
		if !s.config.GA.NoFitnessTermination && best.Fitness >= s.config.GA.FitnessThreshold {
			s.logger.Info("fitness threshold reached", "generation", s.generation, "fitness", best.Fitness)
			break
		}
	}
	if s.best == nil {
		return nil, ctx.Err()
	}

	if path := s.config.Output.BestGenomePath; path != "" {
		if err := s.SaveBest(path); err != nil {
			return s.best, err
		}
	}
	if path := s.config.Output.CheckpointPath; path != "" {
		if err := s.SaveCheckpoint(path); err != nil {
			return s.best, err
		}
	}
	return s.best, nil
}

// SaveBest writes the best genome of the last completed selection as JSON.
func (s *Scheduler) SaveBest(path string) error {
	if s.best == nil {
		return errors.New("no generation has completed yet")
	}
	if err := SaveGenomeFile(path, s.best); err != nil {
		return err
	}
	s.logger.Info("best genome saved", "path", path, "key", s.best.Key, "fitness", s.best.Fitness)
	return nil
}

// Close releases the files and stores opened for the [Output] section.
func (s *Scheduler) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

func (s *Scheduler) spawn() error {
	size := s.config.GA.PopulationSize
	if len(s.next) != size {
		return fmt.Errorf("population has %d genomes, want %d", len(s.next), size)
	}
	s.population, s.next = s.next, nil
	s.matingPool = nil
	s.handles = make(map[int]*FitnessHandle, size)
	for _, g := range s.population {
		if !g.Elite || s.config.GA.ResetEliteFitness {
			g.Fitness = 0
		}
		s.handles[g.Key] = &FitnessHandle{genome: g}
	}
	s.stats = GenerationStats{Generation: s.generation}
	return nil
}

func (s *Scheduler) evaluate(ctx context.Context) {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	if s.driver != nil {
		s.stats.DriverErrors = s.runDrivers(ctx)
	}
	if s.config.GA.WallClock {
		if remaining := s.config.GA.SimulationTime - time.Since(start); remaining > 0 {
			s.sleep(ctx, remaining)
		}
	}
	s.stats.EvalDuration = time.Since(start)
	s.handles = nil
}

// runDrivers hands every genome to exactly one driver invocation and waits
// for all of them. It returns the number of failed invocations.
func (s *Scheduler) runDrivers(ctx context.Context) int {
	var failures atomic.Int64
	run := func(eval Evaluation) {
		if err := s.driver.Evaluate(ctx, eval); err != nil {
			failures.Add(1)
			s.logger.Warn("driver failed", "generation", eval.Generation, "genome", eval.Key, "error", err)
		}
	}

	if s.config.GA.Workers == 0 {
		for _, g := range s.population {
			run(s.evaluation(g))
		}
		return int(failures.Load())
	}

	p := pool.New().WithMaxGoroutines(s.config.GA.Workers)
	for _, g := range s.population {
		eval := s.evaluation(g)
		p.Go(func() { run(eval) })
	}
	p.Wait()
	return int(failures.Load())
}

func (s *Scheduler) evaluation(g *Genome) Evaluation {
	return Evaluation{
		Key:        g.Key,
		Generation: s.generation,
		Window:     s.config.GA.SimulationTime.Seconds(),
		Controller: newController(g, s.accelerator, s.logger),
		Fitness:    s.handles[g.Key],
	}
}

func (s *Scheduler) selectGenomes() {
	RankByFitness(s.population)
	size := len(s.population)

	elites := EliteCount(size, s.config.GA.EliteFraction)
	for i, g := range s.population {
		g.Elite = i < elites
	}
	s.matingPool = s.population[:MatingPoolSize(size, s.config.GA.MatingPoolFraction)]
	s.best = s.population[0]

	fitness := make([]float64, size)
	for i, g := range s.population {
		fitness[i] = g.Fitness
	}
	stats := ComputeStats(s.generation, fitness)
	stats.BestKey = s.best.Key
	stats.Elites = elites
	stats.MatingPool = len(s.matingPool)
	stats.DriverErrors = s.stats.DriverErrors
	stats.EvalDuration = s.stats.EvalDuration
	s.stats = stats

	s.reporters.OnGenerationComplete(s.generation, s.best, s.best.Fitness)
}

// maxPartnerDraws bounds the redraws for a second parent of matching topology.
const maxPartnerDraws = 10

func (s *Scheduler) breed() error {
	size := len(s.population)
	next := make([]*Genome, 0, size)
	for _, g := range s.population {
		if g.Elite {
			next = append(next, g)
		}
	}
	elites := len(next)

	picker := newParentPicker(s.matingPool, s.selection)
	for len(next) < size {
		first := picker.pick(s.rng)
		second := picker.pick(s.rng)
		for draw := 1; draw < maxPartnerDraws && !second.Network.Topology().Equal(first.Network.Topology()); draw++ {
			second = picker.pick(s.rng)
		}
		if !second.Network.Topology().Equal(first.Network.Topology()) {
			second = first
		}

		child, err := first.Crossover(s.nextKey, second, s.crossover, s.rng)
		if err != nil {
			return err
		}
		s.nextKey++

		res := child.Mutate(s.mutation, s.rng)
		if res.Mutated {
			if res.Applied {
				s.stats.Mutations++
			} else {
				s.stats.RejectedMutation++
			}
		}
		next = append(next, child)
	}
	if len(next) != size {
		return fmt.Errorf("bred %d genomes, want %d", len(next), size)
	}

	s.stats.Offspring = size - elites
	s.reporters.OnGenerationStats(s.stats)
	s.logger.Debug("generation bred", "stats", s.stats)

	s.next = next
	s.generation++
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
