package ga

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/GunPocket/GACar/ga/nn"
)

// checkpointData holds the parts of a Scheduler needed to resume a run. The
// Config is not saved; it is supplied again on load.
type checkpointData struct {
	Population []*Genome // bred population waiting for the next Spawning
	Generation int
	NextKey    int
	Best       *Genome
}

// SaveCheckpoint saves the scheduler state to a gzip-compressed gob file. It
// is only valid at a generation boundary, when the next Advance would spawn.
func (s *Scheduler) SaveCheckpoint(filePath string) error {
	if s.phase != PhaseSpawning {
		return fmt.Errorf("checkpoint requested in phase %s: %w", s.phase, ErrWrongPhase)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	saveData := checkpointData{
		Population: s.next,
		Generation: s.generation,
		NextKey:    s.nextKey,
		Best:       s.best,
	}
	if err := gob.NewEncoder(gzWriter).Encode(saveData); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint file '%s': %w", filePath, err)
	}

	s.logger.Info("checkpoint saved", "path", filePath, "generation", s.generation)
	return nil
}

// LoadCheckpoint restores a scheduler from a checkpoint written by
// SaveCheckpoint. cfg must describe the same population size, input size and
// output size as the run that wrote it; hidden layers may have evolved.
func LoadCheckpoint(checkpointPath string, cfg *Config, opts ...Option) (*Scheduler, error) {
	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	saveData := checkpointData{}
	if err := gob.NewDecoder(gzReader).Decode(&saveData); err != nil {
		return nil, fmt.Errorf("failed to decode population data from checkpoint: %w", err)
	}

	s, err := newScheduler(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if len(saveData.Population) != cfg.GA.PopulationSize {
		s.Close()
		return nil, configErrorf("checkpoint holds %d genomes but population_size is %d", len(saveData.Population), cfg.GA.PopulationSize)
	}
	for _, g := range saveData.Population {
		if g == nil || g.Network == nil {
			s.Close()
			return nil, fmt.Errorf("checkpoint holds an empty genome: %w", nn.ErrSerialization)
		}
		if !s.fitsBoundary(g.Network) {
			s.Close()
			return nil, configErrorf("checkpoint genome %d has topology %s, configured inputs and outputs are %s",
				g.Key, g.Network.Topology(), s.topology)
		}
	}

	s.next = saveData.Population
	s.generation = saveData.Generation
	s.nextKey = saveData.NextKey
	s.best = saveData.Best

	s.logger.Info("checkpoint loaded", "path", checkpointPath, "generation", s.generation)
	return s, nil
}
