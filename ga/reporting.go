package ga

import (
	"log/slog"
	"sync"
)

// Reporter receives the generation event fired once per completed selection.
// best is the highest-ranked genome of the generation; it belongs to the
// scheduler and must not be modified.
type Reporter interface {
	OnGenerationComplete(generation int, best *Genome, bestFitness float64)
}

// StatsReporter is implemented by reporters that also want the full
// generation summary. OnGenerationStats fires after breeding, once the
// offspring and mutation counts are known.
type StatsReporter interface {
	OnGenerationStats(stats GenerationStats)
}

// SerializationReporter is implemented by reporters that want to know about
// seed genomes that could not be decoded. slot is the population index the
// random substitute was placed in.
type SerializationReporter interface {
	OnSerializationError(slot int, err error)
}

// ReporterSet fans every event out to its members in registration order.
type ReporterSet struct {
	reporters []Reporter
}

// Add registers a reporter.
func (rs *ReporterSet) Add(r Reporter) {
	rs.reporters = append(rs.reporters, r)
}

// Len returns the number of registered reporters.
func (rs *ReporterSet) Len() int {
	return len(rs.reporters)
}

func (rs *ReporterSet) OnGenerationComplete(generation int, best *Genome, bestFitness float64) {
	for _, r := range rs.reporters {
		r.OnGenerationComplete(generation, best, bestFitness)
	}
}

func (rs *ReporterSet) OnGenerationStats(stats GenerationStats) {
	for _, r := range rs.reporters {
		if sr, ok := r.(StatsReporter); ok {
			sr.OnGenerationStats(stats)
		}
	}
}

func (rs *ReporterSet) OnSerializationError(slot int, err error) {
	for _, r := range rs.reporters {
		if sr, ok := r.(SerializationReporter); ok {
			sr.OnSerializationError(slot, err)
		}
	}
}

// LogReporter writes generation events to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// NewLogReporter creates a LogReporter. A nil logger uses slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{Logger: logger}
}

func (r *LogReporter) OnGenerationComplete(generation int, best *Genome, bestFitness float64) {
	r.Logger.Info("generation complete", "generation", generation, "best_key", best.Key, "best_fitness", bestFitness)
}

func (r *LogReporter) OnGenerationStats(stats GenerationStats) {
	r.Logger.Info("generation stats", "stats", stats)
}

func (r *LogReporter) OnSerializationError(slot int, err error) {
	r.Logger.Warn("seed genome rejected, using a random genome", "slot", slot, "error", err)
}

// HistoryEntry is one generation's best genome as recorded by HistoryReporter.
type HistoryEntry struct {
	Generation int
	Fitness    float64
	Genome     *Genome // deep copy taken when the event fired
}

// HistoryReporter keeps a snapshot of every generation's best genome.
type HistoryReporter struct {
	mu      sync.Mutex
	entries []HistoryEntry
	errors  []error
}

// NewHistoryReporter creates an empty HistoryReporter.
func NewHistoryReporter() *HistoryReporter {
	return &HistoryReporter{}
}

func (r *HistoryReporter) OnGenerationComplete(generation int, best *Genome, bestFitness float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, HistoryEntry{Generation: generation, Fitness: bestFitness, Genome: best.Clone(best.Key)})
}

func (r *HistoryReporter) OnSerializationError(_ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

// Entries returns the recorded history, oldest first.
func (r *HistoryReporter) Entries() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HistoryEntry(nil), r.entries...)
}

// SerializationErrors returns every seed decoding error reported so far.
func (r *HistoryReporter) SerializationErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

// BestEver returns the fittest recorded entry, or false when the history is
// empty.
func (r *HistoryReporter) BestEver() (HistoryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return HistoryEntry{}, false
	}
	best := r.entries[0]
	for _, e := range r.entries[1:] {
		if e.Fitness > best.Fitness {
			best = e
		}
	}
	return best, true
}
