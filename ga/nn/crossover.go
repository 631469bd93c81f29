package nn

import (
	"fmt"
	"math/rand"
	"strings"
)

// CrossoverStrategy selects how two parent networks are recombined.
type CrossoverStrategy int

const (
	// CrossoverUniform picks every homologous gene from either parent with
	// probability 0.5.
	CrossoverUniform CrossoverStrategy = iota
	// CrossoverLayer takes even layers from the receiver and odd layers from
	// the other parent.
	CrossoverLayer
)

func (s CrossoverStrategy) String() string {
	switch s {
	case CrossoverUniform:
		return "uniform"
	case CrossoverLayer:
		return "layer"
	}
	return fmt.Sprintf("CrossoverStrategy(%d)", int(s))
}

// ParseCrossoverStrategy maps "uniform" and "layer" to a strategy. An empty
// name selects CrossoverUniform.
func ParseCrossoverStrategy(name string) (CrossoverStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "uniform":
		return CrossoverUniform, nil
	case "layer":
		return CrossoverLayer, nil
	}
	return 0, fmt.Errorf("%w: unknown crossover strategy %q", ErrConfiguration, name)
}

// Crossover recombines n with other into a new network. Both parents must
// share a topology. The child starts as a copy of n, so its connection set is
// n's; genes present in both parents are then inherited per strategy. Neither
// parent is modified.
func (n *Network) Crossover(other *Network, strategy CrossoverStrategy, rng *rand.Rand) (*Network, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: crossover partner is nil", ErrConfiguration)
	}
	if !n.Topology().Equal(other.Topology()) {
		return nil, fmt.Errorf("%w: crossover parents have topologies %s and %s",
			ErrConfiguration, n.Topology(), other.Topology())
	}

	child := n.Clone()
	switch strategy {
	case CrossoverUniform:
		child.crossUniform(other, rng)
	case CrossoverLayer:
		child.crossLayers(other)
	default:
		return nil, fmt.Errorf("%w: unknown crossover strategy %d", ErrConfiguration, int(strategy))
	}
	return child, nil
}

func (n *Network) crossUniform(other *Network, rng *rand.Rand) {
	for ci := range n.Connections {
		c := &n.Connections[ci]
		oi, ok := other.ConnectionIndex(c.From, c.To)
		if !ok {
			continue
		}
		if rng.Float64() < 0.5 {
			c.Weight = other.Connections[oi].Weight
			c.Enabled = other.Connections[oi].Enabled
		}
	}
	for l := 1; l < len(n.Layers); l++ {
		for i := range n.Layers[l].Neurons {
			if rng.Float64() < 0.5 {
				n.Layers[l].Neurons[i].Bias = other.Layers[l].Neurons[i].Bias
			}
			if rng.Float64() < 0.5 {
				n.Layers[l].Neurons[i].Activation = other.Layers[l].Neurons[i].Activation
			}
		}
	}
}

func (n *Network) crossLayers(other *Network) {
	for l := 1; l < len(n.Layers); l += 2 {
		for i := range n.Layers[l].Neurons {
			n.Layers[l].Neurons[i].Bias = other.Layers[l].Neurons[i].Bias
			n.Layers[l].Neurons[i].Activation = other.Layers[l].Neurons[i].Activation
		}
		for ci := range n.Connections {
			c := &n.Connections[ci]
			if c.To.Layer != l {
				continue
			}
			if oi, ok := other.ConnectionIndex(c.From, c.To); ok {
				c.Weight = other.Connections[oi].Weight
				c.Enabled = other.Connections[oi].Enabled
			}
		}
	}
}
