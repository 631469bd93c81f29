package ga

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/GunPocket/GACar/ga/nn"
)

// GenomeRecord is the structured form of a genome.
type GenomeRecord struct {
	Key     int              `json:"key"`
	Fitness float64          `json:"fitness"`
	Elite   bool             `json:"elite"`
	Network nn.NetworkRecord `json:"network"`
}

// Record converts the genome to its structured form.
func (g *Genome) Record() GenomeRecord {
	return GenomeRecord{Key: g.Key, Fitness: g.Fitness, Elite: g.Elite, Network: g.Network.Record()}
}

// MarshalGenome encodes a genome as indented JSON.
func MarshalGenome(g *Genome) ([]byte, error) {
	return json.MarshalIndent(g.Record(), "", "  ")
}

// UnmarshalGenome decodes and validates a genome produced by MarshalGenome.
// Every failure is a *nn.SerializationError.
func UnmarshalGenome(data []byte) (*Genome, error) {
	var rec GenomeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &nn.SerializationError{Reason: "decode genome", Err: err}
	}
	if math.IsNaN(rec.Fitness) || math.IsInf(rec.Fitness, 0) {
		return nil, &nn.SerializationError{Reason: fmt.Sprintf("genome %d has non-finite fitness", rec.Key)}
	}
	network, err := nn.FromRecord(rec.Network)
	if err != nil {
		return nil, err
	}
	return &Genome{Key: rec.Key, Fitness: rec.Fitness, Elite: rec.Elite, Network: network}, nil
}

// DecodeGenome accepts either encoding: JSON when the input starts with '{',
// the compact text format otherwise. Text genomes carry no key, fitness or
// activation, so they get key, zero fitness and the given activation.
func DecodeGenome(key int, data string, activation nn.ActivationKind, params nn.Params) (*Genome, error) {
	if strings.HasPrefix(strings.TrimSpace(data), "{") {
		g, err := UnmarshalGenome([]byte(data))
		if err != nil {
			return nil, err
		}
		g.Key, g.Fitness, g.Elite = key, 0, false
		return g, nil
	}
	network, err := nn.ParseText(data, activation, params)
	if err != nil {
		return nil, err
	}
	return NewGenome(key, network), nil
}

// SaveGenomeFile writes the genome as JSON to path.
func SaveGenomeFile(path string, g *Genome) error {
	data, err := MarshalGenome(g)
	if err != nil {
		return fmt.Errorf("failed to encode genome %d: %w", g.Key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write genome file '%s': %w", path, err)
	}
	return nil
}

// LoadGenomeFile reads a JSON genome written by SaveGenomeFile.
func LoadGenomeFile(path string) (*Genome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genome file '%s': %w", path, err)
	}
	return UnmarshalGenome(data)
}
