package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps run history in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	generations map[string][]GenerationRecord
	best        map[string]BestGenome
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.generations = make(map[string][]GenerationRecord)
	s.best = make(map[string]BestGenome)
	return nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, runID string, rec GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	records := s.generations[runID]
	i, found := slices.BinarySearchFunc(records, rec.Generation, func(r GenerationRecord, gen int) int {
		return r.Generation - gen
	})
	if found {
		records[i] = rec
	} else {
		records = slices.Insert(records, i, rec)
	}
	s.generations[runID] = records
	return nil
}

func (s *MemoryStore) Generations(_ context.Context, runID string) ([]GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	return slices.Clone(s.generations[runID]), nil
}

func (s *MemoryStore) SaveBestGenome(_ context.Context, best BestGenome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	best.Payload = slices.Clone(best.Payload)
	s.best[best.RunID] = best
	return nil
}

func (s *MemoryStore) BestGenome(_ context.Context, runID string) (BestGenome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return BestGenome{}, false, ErrNotInitialized
	}
	best, ok := s.best[runID]
	if ok {
		best.Payload = slices.Clone(best.Payload)
	}
	return best, ok, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
