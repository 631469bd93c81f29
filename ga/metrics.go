package ga

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsReporter exports generation progress as Prometheus metrics.
type MetricsReporter struct {
	generation   prometheus.Gauge
	bestFitness  prometheus.Gauge
	meanFitness  prometheus.Gauge
	evalSeconds  prometheus.Histogram
	offspring    prometheus.Counter
	mutations    *prometheus.CounterVec
	driverErrors prometheus.Counter
	seedErrors   prometheus.Counter
}

// NewMetricsReporter creates the metrics and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewMetricsReporter(reg prometheus.Registerer) (*MetricsReporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns = "gacar"
	m := &MetricsReporter{
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "generation", Help: "Last completed generation.",
		}),
		bestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "best_fitness", Help: "Best fitness of the last completed generation.",
		}),
		meanFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "mean_fitness", Help: "Mean fitness of the last completed generation.",
		}),
		evalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "evaluation_seconds", Help: "Wall time of evaluation windows.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		offspring: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "offspring_total", Help: "Genomes bred by crossover.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "mutations_total", Help: "Mutation attempts by outcome.",
		}, []string{"outcome"}),
		driverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "driver_errors_total", Help: "Driver invocations that returned an error.",
		}),
		seedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "seed_genome_errors_total", Help: "Seed genomes replaced by random genomes.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.generation, m.bestFitness, m.meanFitness, m.evalSeconds,
		m.offspring, m.mutations, m.driverErrors, m.seedErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsReporter) OnGenerationComplete(generation int, _ *Genome, bestFitness float64) {
	m.generation.Set(float64(generation))
	m.bestFitness.Set(bestFitness)
}

func (m *MetricsReporter) OnGenerationStats(stats GenerationStats) {
	m.meanFitness.Set(stats.MeanFitness)
	m.evalSeconds.Observe(stats.EvalDuration.Seconds())
	m.offspring.Add(float64(stats.Offspring))
	m.mutations.WithLabelValues("applied").Add(float64(stats.Mutations))
	m.mutations.WithLabelValues("rejected").Add(float64(stats.RejectedMutation))
	m.driverErrors.Add(float64(stats.DriverErrors))
}

func (m *MetricsReporter) OnSerializationError(int, error) {
	m.seedErrors.Inc()
}
