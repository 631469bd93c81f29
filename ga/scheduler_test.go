package ga

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunPocket/GACar/ga/nn"
)

func testConfig(size int) *Config {
	cfg := DefaultConfig()
	cfg.GA.PopulationSize = size
	cfg.GA.Seed = 1
	cfg.GA.SimulationTime = time.Second
	cfg.Network.InputSize = smallTopology.Inputs
	cfg.Network.HiddenSizes = smallTopology.Hidden
	cfg.Network.OutputSize = smallTopology.Outputs
	cfg.Output.BestGenomePath = ""
	return cfg
}

// keyFitness scores every genome with its own key.
var keyFitness = DriverFunc(func(_ context.Context, eval Evaluation) error {
	eval.Fitness.Set(float64(eval.Key))
	return nil
})

type statsRecorder struct {
	mu    sync.Mutex
	stats []GenerationStats
}

func (r *statsRecorder) OnGenerationComplete(int, *Genome, float64) {}

func (r *statsRecorder) OnGenerationStats(stats GenerationStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, stats)
}

func TestSchedulerPhaseCycle(t *testing.T) {
	s, err := NewScheduler(testConfig(4), WithDriver(keyFitness))
	require.NoError(t, err)
	ctx := context.Background()

	want := []Phase{PhaseEvaluating, PhaseSelecting, PhaseBreeding, PhaseSpawning}
	assert.Equal(t, PhaseSpawning, s.Phase())
	for _, phase := range want {
		require.NoError(t, s.Advance(ctx))
		assert.Equal(t, phase, s.Phase())
	}
	assert.Equal(t, 1, s.Generation())
	assert.Equal(t, "breeding", PhaseBreeding.String())
}

func TestSchedulerElitesSurviveUnchanged(t *testing.T) {
	cfg := testConfig(4)
	cfg.GA.MutationMode = MutationModeGene.String()
	cfg.GA.MutationRate = 1
	s, err := NewScheduler(cfg, WithDriver(keyFitness))
	require.NoError(t, err)
	initial := s.Population()
	champion := initial[3]
	before := champion.Network.Record()

	best, err := s.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.Same(t, champion, best)

	next := s.Population()
	require.Len(t, next, 4)
	assert.Same(t, champion, next[0])
	assert.True(t, next[0].Elite)
	assert.Equal(t, before, next[0].Network.Record())
	for _, g := range next[1:] {
		assert.NotSame(t, champion, g)
		assert.NotSame(t, champion.Network, g.Network)
		assert.Greater(t, g.Key, 4, "offspring get fresh keys")
		assert.False(t, g.Elite)
		assert.Zero(t, g.Fitness)
		assert.NotEqual(t, before, g.Network.Record(), "offspring %d copies the champion", g.Key)
	}
}

func TestSchedulerPopulationSizeIsInvariant(t *testing.T) {
	for size := 2; size <= 10; size++ {
		cfg := testConfig(size)
		cfg.GA.MutationRate = 1
		cfg.GA.Selection = "weighted"
		cfg.GA.EliteFraction = 0.3
		s, err := NewScheduler(cfg, WithDriver(keyFitness))
		require.NoError(t, err)
		for gen := 0; gen < 5; gen++ {
			_, err := s.RunGeneration(context.Background())
			require.NoError(t, err)
			population := s.Population()
			require.Len(t, population, size)
			seen := make(map[int]bool)
			for _, g := range population {
				assert.False(t, seen[g.Key], "duplicate key %d", g.Key)
				seen[g.Key] = true
				assert.Equal(t, smallTopology.Inputs, g.Network.InputSize())
				assert.Equal(t, smallTopology.Outputs, g.Network.OutputSize())
			}
		}
	}
}

func TestSchedulerStatsReachReporters(t *testing.T) {
	rec := &statsRecorder{}
	history := NewHistoryReporter()
	cfg := testConfig(10)
	s, err := NewScheduler(cfg, WithDriver(keyFitness), WithReporter(rec), WithReporter(history))
	require.NoError(t, err)
	_, err = s.RunGeneration(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.stats, 1)
	st := rec.stats[0]
	assert.Equal(t, 0, st.Generation)
	assert.Equal(t, 10, st.BestKey)
	assert.Equal(t, 10.0, st.BestFitness)
	assert.Equal(t, 1.0, st.MinFitness)
	assert.Equal(t, 5.5, st.MeanFitness)
	assert.Equal(t, 5.5, st.MedianFitness)
	assert.Equal(t, 1, st.Elites)
	assert.Equal(t, 10, st.MatingPool)
	assert.Equal(t, 9, st.Offspring)

	entries := history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 10.0, entries[0].Fitness)
	assert.Equal(t, 10, entries[0].Genome.Key)
}

func TestSchedulerSeedGenomes(t *testing.T) {
	seed, err := nn.New(smallTopology, nn.ReLU, nn.DefaultParams(), rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	wrongShape, err := nn.New(nn.Topology{Inputs: 4, Hidden: []int{4}, Outputs: 2}, nn.ReLU, nn.DefaultParams(), rand.New(rand.NewSource(98)))
	require.NoError(t, err)
	evolved, err := nn.New(nn.Topology{Inputs: 3, Hidden: []int{6}, Outputs: 2}, nn.ReLU, nn.DefaultParams(), rand.New(rand.NewSource(97)))
	require.NoError(t, err)

	history := NewHistoryReporter()
	s, err := NewScheduler(testConfig(5),
		WithDriver(keyFitness),
		WithReporter(history),
		WithSeedGenomes(seed.FormatText(), "3,4,2\nnot,a,genome", wrongShape.FormatText(), evolved.FormatText()),
	)
	require.NoError(t, err)

	population := s.Population()
	require.Len(t, population, 5)
	assert.Equal(t, seed.FormatText(), population[0].Network.FormatText())
	assert.Equal(t, 1, population[0].Key)
	assert.Equal(t, evolved.FormatText(), population[3].Network.FormatText(), "hidden layers may differ from the config")

	errs := history.SerializationErrors()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, nn.ErrSerialization)
	}

	_, err = s.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Population(), 5)
}

func TestSchedulerSeedGenomeFile(t *testing.T) {
	seed, err := NewRandomGenome(1, smallTopology, nn.Sigmoid, nn.DefaultParams(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	seed.Fitness = 42
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, SaveGenomeFile(path, seed))

	cfg := testConfig(3)
	cfg.Output.SeedGenome = path
	s, err := NewScheduler(cfg)
	require.NoError(t, err)

	first := s.Population()[0]
	assert.Equal(t, seed.Network.Record(), first.Network.Record())
	assert.Zero(t, first.Fitness)

	cfg.Output.SeedGenome = filepath.Join(t.TempDir(), "missing.json")
	_, err = NewScheduler(cfg)
	assert.Error(t, err)
}

func TestSchedulerPullMode(t *testing.T) {
	s, err := NewScheduler(testConfig(3))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.FitnessHandle(1)
	assert.ErrorIs(t, err, ErrWrongPhase)

	require.NoError(t, s.Advance(ctx))
	for _, g := range s.Population() {
		h, err := s.FitnessHandle(g.Key)
		require.NoError(t, err)
		c, err := s.Controller(g.Key)
		require.NoError(t, err)
		out := c.Evaluate([]float64{1, 0, -1})
		require.Len(t, out, 2)
		h.Add(float64(10 - g.Key))
	}
	_, err = s.FitnessHandle(1000)
	assert.Error(t, err)

	require.NoError(t, s.Advance(ctx))
	_, err = s.Controller(1)
	assert.ErrorIs(t, err, ErrWrongPhase)
	require.NoError(t, s.Advance(ctx))
	require.NotNil(t, s.Best())
	assert.Equal(t, 1, s.Best().Key)
	assert.Equal(t, 9.0, s.Best().Fitness)
}

func TestSchedulerEliteFitnessReset(t *testing.T) {
	for _, reset := range []bool{true, false} {
		cfg := testConfig(3)
		cfg.GA.ResetEliteFitness = reset
		s, err := NewScheduler(cfg, WithDriver(keyFitness))
		require.NoError(t, err)
		ctx := context.Background()
		_, err = s.RunGeneration(ctx)
		require.NoError(t, err)

		elite := s.Population()[0]
		require.True(t, elite.Elite)
		require.NoError(t, s.Advance(ctx))
		if reset {
			assert.Zero(t, elite.Fitness)
		} else {
			assert.Equal(t, 3.0, elite.Fitness)
		}
	}
}

func TestSchedulerRunsDriversConcurrently(t *testing.T) {
	cfg := testConfig(12)
	cfg.GA.Workers = 4
	var active, peak atomic.Int32
	var mu sync.Mutex
	calls := make(map[int]int)
	driver := DriverFunc(func(_ context.Context, eval Evaluation) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		calls[eval.Key]++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		eval.Fitness.Set(1)
		return nil
	})
	s, err := NewScheduler(cfg, WithDriver(driver))
	require.NoError(t, err)
	require.NoError(t, s.Advance(context.Background()))
	require.NoError(t, s.Advance(context.Background()))

	assert.Len(t, calls, 12)
	for key, n := range calls {
		assert.Equal(t, 1, n, "genome %d", key)
	}
	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestSchedulerCountsDriverErrors(t *testing.T) {
	rec := &statsRecorder{}
	driver := DriverFunc(func(_ context.Context, eval Evaluation) error {
		eval.Fitness.Add(1)
		if eval.Key%2 == 0 {
			return errors.New("simulation crashed")
		}
		return nil
	})
	cfg := testConfig(6)
	cfg.GA.Workers = 3
	s, err := NewScheduler(cfg, WithDriver(driver), WithReporter(rec))
	require.NoError(t, err)
	_, err = s.RunGeneration(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.stats, 1)
	assert.Equal(t, 3, rec.stats[0].DriverErrors)
	assert.Equal(t, 1.0, rec.stats[0].MinFitness, "failed drivers keep their fitness")
}

func TestSchedulerEvaluationIgnoresCancellation(t *testing.T) {
	var sawErr error
	var window float64
	driver := DriverFunc(func(ctx context.Context, eval Evaluation) error {
		sawErr = ctx.Err()
		window = eval.Window
		return nil
	})
	var slept time.Duration
	sleeper := func(ctx context.Context, d time.Duration) {
		assert.NoError(t, ctx.Err())
		slept = d
	}
	cfg := testConfig(2)
	cfg.GA.WallClock = true
	cfg.GA.SimulationTime = time.Hour
	s, err := NewScheduler(cfg, WithDriver(driver), WithSleeper(sleeper))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Advance(ctx))
	cancel()
	require.NoError(t, s.Advance(ctx))

	assert.NoError(t, sawErr)
	assert.Equal(t, 3600.0, window)
	assert.Greater(t, slept, 59*time.Minute)
	assert.LessOrEqual(t, slept, time.Hour)
}

func TestSchedulerDeterministicWithRand(t *testing.T) {
	driver := DriverFunc(func(_ context.Context, eval Evaluation) error {
		out := eval.Controller.Evaluate([]float64{0.5, -0.25, 1})
		eval.Fitness.Set(out[0] - out[1])
		return nil
	})
	run := func() *Genome {
		cfg := testConfig(8)
		cfg.GA.MutationRate = 0.5
		s, err := NewScheduler(cfg, WithDriver(driver), WithRand(rand.New(rand.NewSource(5))))
		require.NoError(t, err)
		best, err := s.Run(context.Background(), 4)
		require.NoError(t, err)
		return best
	}
	a, b := run(), run()
	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, a.Fitness, b.Fitness)
	assert.Equal(t, a.Network.Record(), b.Network.Record())
}

func TestSchedulerRunWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(5)
	cfg.Output.BestGenomePath = filepath.Join(dir, "best.json")
	cfg.Output.CheckpointPath = filepath.Join(dir, "run.ckpt")
	cfg.Output.TelemetryCSV = filepath.Join(dir, "telemetry", "stats.csv")
	cfg.Output.Store = "memory"

	s, err := NewScheduler(cfg, WithDriver(keyFitness))
	require.NoError(t, err)
	best, err := s.Run(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 3, s.Generation())

	saved, err := LoadGenomeFile(cfg.Output.BestGenomePath)
	require.NoError(t, err)
	assert.Equal(t, best.Key, saved.Key)
	assert.Equal(t, best.Network.Record(), saved.Network.Record())

	assert.FileExists(t, cfg.Output.CheckpointPath)

	data, err := os.ReadFile(cfg.Output.TelemetryCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "generation,best_key,best_fitness"))
}

func TestSchedulerRunStopsAtFitnessThreshold(t *testing.T) {
	cfg := testConfig(4)
	cfg.GA.NoFitnessTermination = false
	cfg.GA.FitnessThreshold = 3
	s, err := NewScheduler(cfg, WithDriver(keyFitness))
	require.NoError(t, err)
	best, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Generation())
	assert.GreaterOrEqual(t, best.Fitness, 3.0)
}

func TestSchedulerRunHonoursCancelledContext(t *testing.T) {
	s, err := NewScheduler(testConfig(4), WithDriver(keyFitness))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	best, err := s.Run(ctx, 0)
	assert.Nil(t, best)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Generation())
}

func TestNewSchedulerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(1)
	_, err := NewScheduler(cfg)
	assert.ErrorIs(t, err, nn.ErrConfiguration)
	_, err = NewScheduler(nil)
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}
