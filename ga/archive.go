package ga

import (
	"context"
	"log/slog"
	"time"

	"github.com/GunPocket/GACar/ga/store"
)

// ArchiveReporter records every generation of a run in a store.Store and
// keeps the store's best genome up to date.
type ArchiveReporter struct {
	Store  store.Store
	RunID  string
	logger *slog.Logger
	now    func() time.Time

	bestFitness float64
	haveBest    bool
}

// NewArchiveReporter initializes st and returns a reporter writing under a
// fresh run ID.
func NewArchiveReporter(ctx context.Context, st store.Store, logger *slog.Logger) (*ArchiveReporter, error) {
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveReporter{Store: st, RunID: store.NewRunID(), logger: logger, now: time.Now}, nil
}

// OnGenerationComplete stores the generation's best genome when it beats
// every genome archived so far in this run.
func (r *ArchiveReporter) OnGenerationComplete(generation int, best *Genome, bestFitness float64) {
	if r.haveBest && bestFitness <= r.bestFitness {
		return
	}
	payload, err := MarshalGenome(best)
	if err != nil {
		r.logger.Error("archive: encode best genome", "generation", generation, "error", err)
		return
	}
	err = r.Store.SaveBestGenome(context.Background(), store.BestGenome{
		RunID: r.RunID, Generation: generation, Fitness: bestFitness, Payload: payload,
	})
	if err != nil {
		r.logger.Error("archive: save best genome", "generation", generation, "error", err)
		return
	}
	r.bestFitness, r.haveBest = bestFitness, true
}

func (r *ArchiveReporter) OnGenerationStats(stats GenerationStats) {
	rec := store.GenerationRecord{
		Generation:    stats.Generation,
		BestKey:       stats.BestKey,
		BestFitness:   stats.BestFitness,
		MeanFitness:   stats.MeanFitness,
		MedianFitness: stats.MedianFitness,
		StdevFitness:  stats.StdevFitness,
		MinFitness:    stats.MinFitness,
		Elites:        stats.Elites,
		Offspring:     stats.Offspring,
		Mutations:     stats.Mutations,
		DriverErrors:  stats.DriverErrors,
		RecordedAt:    r.now(),
	}
	if err := r.Store.SaveGeneration(context.Background(), r.RunID, rec); err != nil {
		r.logger.Error("archive: save generation", "generation", stats.Generation, "error", err)
	}
}

// Close closes the underlying store.
func (r *ArchiveReporter) Close() error {
	return r.Store.Close()
}
