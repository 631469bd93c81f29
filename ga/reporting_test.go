package ga

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunPocket/GACar/ga/store"
)

func TestComputeStats(t *testing.T) {
	s := ComputeStats(3, []float64{4, 1, 3, 2})
	assert.Equal(t, 3, s.Generation)
	assert.Equal(t, 4.0, s.BestFitness)
	assert.Equal(t, 1.0, s.MinFitness)
	assert.Equal(t, 2.5, s.MeanFitness)
	assert.Equal(t, 2.5, s.MedianFitness)
	assert.InDelta(t, math.Sqrt(5.0/3), s.StdevFitness, 1e-12)

	single := ComputeStats(0, []float64{7})
	assert.Equal(t, 7.0, single.MedianFitness)
	assert.Zero(t, single.StdevFitness)

	assert.Equal(t, GenerationStats{Generation: 1}, ComputeStats(1, nil))
}

func TestCSVReporterWritesHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewCSVReporter(&buf)
	r.OnGenerationStats(GenerationStats{Generation: 0, BestFitness: 1.5, EvalDuration: 2 * time.Second})
	r.OnGenerationStats(GenerationStats{Generation: 1, BestFitness: 2})
	require.NoError(t, r.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "generation,best_key,best_fitness,mean_fitness,median_fitness,stdev_fitness,min_fitness,"+
		"elites,mating_pool,offspring,mutations,rejected_mutations,driver_errors,eval_seconds", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,0,1.5,"))
	assert.True(t, strings.HasSuffix(lines[1], ",2"))
	assert.True(t, strings.HasPrefix(lines[2], "1,0,2,"))
}

func TestMetricsReporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsReporter(reg)
	require.NoError(t, err)

	m.OnGenerationComplete(4, nil, 12.5)
	m.OnGenerationStats(GenerationStats{MeanFitness: 3, Offspring: 9, Mutations: 2, RejectedMutation: 1, DriverErrors: 1})
	m.OnGenerationStats(GenerationStats{Offspring: 9})
	m.OnSerializationError(0, errors.New("bad seed"))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.generation))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.bestFitness))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.meanFitness))
	assert.Equal(t, 18.0, testutil.ToFloat64(m.offspring))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.driverErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.seedErrors))
	assert.Equal(t, 1, testutil.CollectAndCount(m.evalSeconds))

	_, err = NewMetricsReporter(reg)
	assert.Error(t, err, "metrics cannot be registered twice")
}

func TestHistoryReporter(t *testing.T) {
	r := NewHistoryReporter()
	_, ok := r.BestEver()
	assert.False(t, ok)

	g := newTestGenome(t, 1, 1)
	r.OnGenerationComplete(0, g, 2)
	g.Network.Connections[0].Weight = 42
	r.OnGenerationComplete(1, g, 5)
	r.OnGenerationComplete(2, g, 3)

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.NotEqual(t, 42.0, entries[0].Genome.Network.Connections[0].Weight, "entries hold snapshots")
	best, ok := r.BestEver()
	require.True(t, ok)
	assert.Equal(t, 1, best.Generation)
}

func TestReporterSetFansOut(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	var set ReporterSet
	history := NewHistoryReporter()
	rec := &statsRecorder{}
	set.Add(NewLogReporter(logger))
	set.Add(history)
	set.Add(rec)
	assert.Equal(t, 3, set.Len())

	g := newTestGenome(t, 8, 1)
	set.OnGenerationComplete(0, g, 1)
	set.OnGenerationStats(GenerationStats{Generation: 0, BestKey: 8})
	set.OnSerializationError(2, errors.New("bad seed"))

	assert.Len(t, history.Entries(), 1)
	assert.Len(t, history.SerializationErrors(), 1)
	require.Len(t, rec.stats, 1)
	assert.Contains(t, logs.String(), "generation complete")
	assert.Contains(t, logs.String(), "stats.best_key=8")
	assert.Contains(t, logs.String(), "seed genome rejected")
}

func TestArchiveReporter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r, err := NewArchiveReporter(ctx, st, nil)
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	g := newTestGenome(t, 5, 1)
	r.OnGenerationComplete(0, g, 4)
	r.OnGenerationStats(GenerationStats{Generation: 0, BestKey: 5, BestFitness: 4, Offspring: 3})
	worse := newTestGenome(t, 6, 2)
	r.OnGenerationComplete(1, worse, 2)
	r.OnGenerationStats(GenerationStats{Generation: 1, BestKey: 6, BestFitness: 2})

	records, err := st.Generations(ctx, r.RunID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 5, records[0].BestKey)
	assert.Equal(t, 3, records[0].Offspring)
	assert.True(t, fixed.Equal(records[1].RecordedAt))

	best, ok, err := st.BestGenome(ctx, r.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, best.Generation)
	decoded, err := UnmarshalGenome(best.Payload)
	require.NoError(t, err)
	assert.Equal(t, 5, decoded.Key)

	require.NoError(t, r.Close())
}
