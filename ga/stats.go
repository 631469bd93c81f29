package ga

import (
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationStats summarizes one completed evaluation window.
type GenerationStats struct {
	Generation       int           `csv:"generation"`
	BestKey          int           `csv:"best_key"`
	BestFitness      float64       `csv:"best_fitness"`
	MeanFitness      float64       `csv:"mean_fitness"`
	MedianFitness    float64       `csv:"median_fitness"`
	StdevFitness     float64       `csv:"stdev_fitness"`
	MinFitness       float64       `csv:"min_fitness"`
	Elites           int           `csv:"elites"`
	MatingPool       int           `csv:"mating_pool"`
	Offspring        int           `csv:"offspring"`
	Mutations        int           `csv:"mutations"`
	RejectedMutation int           `csv:"rejected_mutations"`
	DriverErrors     int           `csv:"driver_errors"`
	EvalDuration     time.Duration `csv:"-"`
	EvalSeconds      float64       `csv:"eval_seconds"`
}

// ComputeStats fills the fitness summary of stats from the given fitness
// values. The standard deviation is the sample deviation and is 0 for fewer
// than two values.
func ComputeStats(generation int, fitness []float64) GenerationStats {
	s := GenerationStats{Generation: generation}
	if len(fitness) == 0 {
		return s
	}
	sorted := slices.Clone(fitness)
	slices.Sort(sorted)

	s.BestFitness = floats.Max(sorted)
	s.MinFitness = floats.Min(sorted)
	s.MeanFitness = stat.Mean(sorted, nil)
	s.MedianFitness = median(sorted)
	if len(sorted) > 1 {
		s.StdevFitness = stat.StdDev(sorted, nil)
	}
	return s
}

// median expects sorted values and averages the two middle ones for even
// lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("best_key", s.BestKey),
		slog.Float64("best", s.BestFitness),
		slog.Float64("mean", s.MeanFitness),
		slog.Float64("median", s.MedianFitness),
		slog.Float64("stdev", s.StdevFitness),
		slog.Float64("min", s.MinFitness),
		slog.Int("elites", s.Elites),
		slog.Int("mating_pool", s.MatingPool),
		slog.Int("offspring", s.Offspring),
		slog.Int("mutations", s.Mutations),
		slog.Int("rejected_mutations", s.RejectedMutation),
		slog.Int("driver_errors", s.DriverErrors),
		slog.Duration("eval", s.EvalDuration),
	)
}
