package ga

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/GunPocket/GACar/ga/nn"
)

// Genome is one individual of the population: a controller network plus the
// bookkeeping the generation loop needs.
type Genome struct {
	Key     int
	Network *nn.Network
	Fitness float64 // accumulated during the evaluation window, read during selection
	Elite   bool    // set by selection, cleared by any mutation attempt
}

// NewGenome wraps a network in a genome with zero fitness.
func NewGenome(key int, network *nn.Network) *Genome {
	return &Genome{Key: key, Network: network}
}

// NewRandomGenome creates a genome around a freshly initialized network.
func NewRandomGenome(key int, topology nn.Topology, activation nn.ActivationKind, params nn.Params, rng *rand.Rand) (*Genome, error) {
	network, err := nn.New(topology, activation, params, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create genome %d: %w", key, err)
	}
	return NewGenome(key, network), nil
}

// CreatePopulation creates size random genomes keyed 1..size with default
// network parameters.
func CreatePopulation(size int, topology nn.Topology, activation nn.ActivationKind, rng *rand.Rand) ([]*Genome, error) {
	return createPopulation(1, size, topology, activation, nn.DefaultParams(), rng)
}

func createPopulation(firstKey, size int, topology nn.Topology, activation nn.ActivationKind, params nn.Params, rng *rand.Rand) ([]*Genome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: population size must be positive, got %d", nn.ErrConfiguration, size)
	}
	genomes := make([]*Genome, size)
	for i := range genomes {
		g, err := NewRandomGenome(firstKey+i, topology, activation, params, rng)
		if err != nil {
			return nil, err
		}
		genomes[i] = g
	}
	return genomes, nil
}

// Crossover creates a child genome from g and partner. The child has zero
// fitness and is not an elite. Parents with different topologies yield an
// error wrapping nn.ErrConfiguration.
func (g *Genome) Crossover(key int, partner *Genome, strategy nn.CrossoverStrategy, rng *rand.Rand) (*Genome, error) {
	if partner == nil {
		return nil, fmt.Errorf("%w: genome %d has no crossover partner", nn.ErrConfiguration, g.Key)
	}
	child, err := g.Network.Crossover(partner.Network, strategy, rng)
	if err != nil {
		return nil, fmt.Errorf("crossover of genomes %d and %d: %w", g.Key, partner.Key, err)
	}
	return NewGenome(key, child), nil
}

// Clone returns a deep copy of the genome under a new key.
func (g *Genome) Clone(key int) *Genome {
	return &Genome{Key: key, Network: g.Network.Clone(), Fitness: g.Fitness, Elite: g.Elite}
}

// MutationMode selects how MutationConfig.Rate is applied.
type MutationMode int

const (
	// MutationModeGenome draws once per genome; on success exactly one
	// operator is applied.
	MutationModeGenome MutationMode = iota
	// MutationModeGene perturbs every enabled weight and every bias
	// independently with the mutation rate.
	MutationModeGene
)

func (m MutationMode) String() string {
	switch m {
	case MutationModeGenome:
		return "genome"
	case MutationModeGene:
		return "gene"
	}
	return fmt.Sprintf("MutationMode(%d)", int(m))
}

// ParseMutationMode maps "genome" and "gene" to a mode. An empty name
// selects MutationModeGenome.
func ParseMutationMode(name string) (MutationMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "genome":
		return MutationModeGenome, nil
	case "gene":
		return MutationModeGene, nil
	}
	return 0, fmt.Errorf("%w: unknown mutation mode %q", nn.ErrConfiguration, name)
}

// MutationKind identifies the operator a mutation applied.
type MutationKind int

const (
	MutationNone MutationKind = iota
	MutationAddConnection
	MutationPerturbWeight
	MutationDisableConnection
	MutationAddNeuron
	MutationChangeActivation
	MutationPruneDisconnected
	MutationPerGene
)

var mutationKindNames = map[MutationKind]string{
	MutationNone:              "none",
	MutationAddConnection:     "add_connection",
	MutationPerturbWeight:     "perturb_weight",
	MutationDisableConnection: "disable_connection",
	MutationAddNeuron:         "add_neuron",
	MutationChangeActivation:  "change_activation",
	MutationPruneDisconnected: "prune_disconnected",
	MutationPerGene:           "per_gene",
}

func (k MutationKind) String() string {
	if n, ok := mutationKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("MutationKind(%d)", int(k))
}

// structuralOperators is the set a genome-level mutation draws from.
var structuralOperators = []MutationKind{
	MutationAddConnection,
	MutationPerturbWeight,
	MutationDisableConnection,
	MutationAddNeuron,
	MutationChangeActivation,
	MutationPruneDisconnected,
}

// MutationConfig holds the mutation parameters for one generation.
type MutationConfig struct {
	Rate float64
	Mode MutationMode
}

// MutationResult reports what a Mutate call did.
type MutationResult struct {
	Mutated bool         // the rate draw selected this genome
	Kind    MutationKind // operator chosen, MutationNone when not mutated
	Applied bool         // false when the operator rejected the change
	Genes   int          // genes perturbed in MutationModeGene
}

// Mutate applies cfg to the genome's network in place and clears the elite
// flag. The network is left unchanged when the draw fails or the chosen
// operator rejects the mutation.
func (g *Genome) Mutate(cfg MutationConfig, rng *rand.Rand) MutationResult {
	g.Elite = false

	switch cfg.Mode {
	case MutationModeGene:
		return g.mutateGenes(cfg.Rate, rng)
	default:
		if rng.Float64() >= cfg.Rate {
			return MutationResult{}
		}
		kind := structuralOperators[rng.Intn(len(structuralOperators))]
		return MutationResult{Mutated: true, Kind: kind, Applied: g.apply(kind, rng)}
	}
}

func (g *Genome) apply(kind MutationKind, rng *rand.Rand) bool {
	n := g.Network
	switch kind {
	case MutationAddConnection:
		return n.AddConnection(rng)
	case MutationPerturbWeight:
		return n.PerturbWeight(rng)
	case MutationDisableConnection:
		return n.DisableConnection(rng)
	case MutationAddNeuron:
		return n.AddNeuron(rng)
	case MutationChangeActivation:
		return n.ChangeActivation(rng)
	case MutationPruneDisconnected:
		return n.PruneDisconnected()
	}
	panic(fmt.Sprintf("ga: unknown mutation kind %d", int(kind)))
}

func (g *Genome) mutateGenes(rate float64, rng *rand.Rand) MutationResult {
	n := g.Network
	genes := 0
	for ci := range n.Connections {
		if n.Connections[ci].Enabled && rng.Float64() < rate && n.PerturbConnection(ci, rng) {
			genes++
		}
	}
	for l := 1; l < len(n.Layers); l++ {
		for i := range n.Layers[l].Neurons {
			if rng.Float64() < rate && n.PerturbBias(nn.NeuronRef{Layer: l, Index: i}, rng) {
				genes++
			}
		}
	}
	if genes == 0 {
		return MutationResult{}
	}
	return MutationResult{Mutated: true, Kind: MutationPerGene, Applied: true, Genes: genes}
}
