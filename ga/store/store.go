// Package store archives the history of evolution runs: one summary row per
// generation and the best genome of each run.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotInitialized is returned by every operation issued before Init.
var ErrNotInitialized = errors.New("store not initialized")

// GenerationRecord is the archived summary of one generation.
type GenerationRecord struct {
	Generation    int       `json:"generation"`
	BestKey       int       `json:"best_key"`
	BestFitness   float64   `json:"best_fitness"`
	MeanFitness   float64   `json:"mean_fitness"`
	MedianFitness float64   `json:"median_fitness"`
	StdevFitness  float64   `json:"stdev_fitness"`
	MinFitness    float64   `json:"min_fitness"`
	Elites        int       `json:"elites"`
	Offspring     int       `json:"offspring"`
	Mutations     int       `json:"mutations"`
	DriverErrors  int       `json:"driver_errors"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// BestGenome is the archived best genome of a run. Payload holds the
// structured JSON encoding of the genome.
type BestGenome struct {
	RunID      string
	Generation int
	Fitness    float64
	Payload    []byte
}

// Store persists run history.
type Store interface {
	Init(ctx context.Context) error
	SaveGeneration(ctx context.Context, runID string, rec GenerationRecord) error
	Generations(ctx context.Context, runID string) ([]GenerationRecord, error)
	SaveBestGenome(ctx context.Context, best BestGenome) error
	BestGenome(ctx context.Context, runID string) (BestGenome, bool, error)
	Close() error
}

// NewStore returns an uninitialized store of the given kind: "" or "memory"
// for MemoryStore, "sqlite" for SQLiteStore backed by the file at path.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if path == "" {
			return nil, errors.New("sqlite path is required")
		}
		return NewSQLiteStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}
