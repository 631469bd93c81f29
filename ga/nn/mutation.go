package nn

import (
	"math/rand"
	"slices"
)

const maxConnectionAttempts = 20

// AddConnection connects a random pair of neurons in adjacent layers that has
// no enabled connection yet. A disabled connection on the pair is re-enabled,
// otherwise a new one is appended. The weight is drawn at random. It reports
// false when every adjacent pair is already connected.
func (n *Network) AddConnection(rng *rand.Rand) bool {
	for attempt := 0; attempt < maxConnectionAttempts; attempt++ {
		l := rng.Intn(len(n.Layers) - 1)
		from := NeuronRef{Layer: l, Index: rng.Intn(len(n.Layers[l].Neurons))}
		to := NeuronRef{Layer: l + 1, Index: rng.Intn(len(n.Layers[l+1].Neurons))}
		if n.connect(from, to, rng) {
			return true
		}
	}

	// Random probing failed; fall back to a scan so that a single free pair is
	// still found in dense networks.
	var free [][2]NeuronRef
	for l := 0; l < len(n.Layers)-1; l++ {
		for i := range n.Layers[l].Neurons {
			for j := range n.Layers[l+1].Neurons {
				from, to := NeuronRef{Layer: l, Index: i}, NeuronRef{Layer: l + 1, Index: j}
				if ci, ok := n.ConnectionIndex(from, to); !ok || !n.Connections[ci].Enabled {
					free = append(free, [2]NeuronRef{from, to})
				}
			}
		}
	}
	if len(free) == 0 {
		return false
	}
	pair := free[rng.Intn(len(free))]
	return n.connect(pair[0], pair[1], rng)
}

func (n *Network) connect(from, to NeuronRef, rng *rand.Rand) bool {
	weight := uniform(rng, n.Params.WeightRange)
	if ci, ok := n.ConnectionIndex(from, to); ok {
		c := &n.Connections[ci]
		if c.Enabled {
			return false
		}
		c.Enabled = true
		c.Weight = weight
		return true
	}
	n.Connections = append(n.Connections, Connection{From: from, To: to, Weight: weight, Enabled: true})
	ci := len(n.Connections) - 1
	n.Neuron(from).Outgoing = append(n.Neuron(from).Outgoing, ci)
	n.Neuron(to).Incoming = append(n.Neuron(to).Incoming, ci)
	return true
}

// PerturbWeight adds a delta drawn from [-WeightPerturb, WeightPerturb] to a
// random enabled connection.
func (n *Network) PerturbWeight(rng *rand.Rand) bool {
	enabled := n.enabledConnections()
	if len(enabled) == 0 {
		return false
	}
	return n.PerturbConnection(enabled[rng.Intn(len(enabled))], rng)
}

// PerturbConnection perturbs the weight of the connection at index ci. It
// reports false for disabled or out of range connections.
func (n *Network) PerturbConnection(ci int, rng *rand.Rand) bool {
	if ci < 0 || ci >= len(n.Connections) || !n.Connections[ci].Enabled {
		return false
	}
	c := &n.Connections[ci]
	c.Weight = Sanitize(c.Weight + uniform(rng, n.Params.WeightPerturb))
	return true
}

// PerturbBias perturbs the bias of a non-input neuron.
func (n *Network) PerturbBias(ref NeuronRef, rng *rand.Rand) bool {
	if ref.Layer <= 0 || ref.Layer >= len(n.Layers) || ref.Index < 0 || ref.Index >= len(n.Layers[ref.Layer].Neurons) {
		return false
	}
	neuron := n.Neuron(ref)
	neuron.Bias = Sanitize(neuron.Bias + uniform(rng, n.Params.WeightPerturb))
	return true
}

// DisableConnection zeroes and disables a random enabled connection. The last
// enabled connection into an output neuron is never chosen, so every output
// stays reachable from the previous layer; it reports false when no
// connection is eligible.
func (n *Network) DisableConnection(rng *rand.Rand) bool {
	var eligible []int
	for _, ci := range n.enabledConnections() {
		if n.isLastIntoOutput(ci) {
			continue
		}
		eligible = append(eligible, ci)
	}
	if len(eligible) == 0 {
		return false
	}
	c := &n.Connections[eligible[rng.Intn(len(eligible))]]
	c.Weight = 0
	c.Enabled = false
	return true
}

func (n *Network) isLastIntoOutput(ci int) bool {
	to := n.Connections[ci].To
	if to.Layer != len(n.Layers)-1 {
		return false
	}
	for _, other := range n.Neuron(to).Incoming {
		if other != ci && n.Connections[other].Enabled {
			return false
		}
	}
	return true
}

// AddNeuron appends a neuron to a random hidden layer, connecting it with
// random weights from every neuron of the previous layer and to every neuron
// of the next one. Networks without hidden layers reject the mutation.
func (n *Network) AddNeuron(rng *rand.Rand) bool {
	if len(n.Layers) < 3 {
		return false
	}
	l := 1 + rng.Intn(len(n.Layers)-2)
	layer := &n.Layers[l]
	r := n.Params.WeightRange

	idx := layer.addNeuron(uniform(rng, r), layer.Activation)
	ref := NeuronRef{Layer: l, Index: idx}
	for i := range n.Layers[l-1].Neurons {
		n.Connections = append(n.Connections, Connection{
			From: NeuronRef{Layer: l - 1, Index: i}, To: ref, Weight: uniform(rng, r), Enabled: true,
		})
	}
	for j := range n.Layers[l+1].Neurons {
		n.Connections = append(n.Connections, Connection{
			From: ref, To: NeuronRef{Layer: l + 1, Index: j}, Weight: uniform(rng, r), Enabled: true,
		})
	}
	n.reindex()
	return true
}

// ChangeActivation assigns a uniformly drawn activation kind to a random
// non-input neuron. The drawn kind may equal the current one.
func (n *Network) ChangeActivation(rng *rand.Rand) bool {
	count := 0
	for l := 1; l < len(n.Layers); l++ {
		count += len(n.Layers[l].Neurons)
	}
	if count == 0 {
		return false
	}
	pick := rng.Intn(count)
	kinds := Activations()
	for l := 1; l < len(n.Layers); l++ {
		if pick < len(n.Layers[l].Neurons) {
			n.Layers[l].Neurons[pick].Activation = kinds[rng.Intn(len(kinds))]
			return true
		}
		pick -= len(n.Layers[l].Neurons)
	}
	return false
}

// PruneDisconnected removes hidden neurons that have no enabled incoming
// connection, along with every connection touching them. Input and output
// neurons are never removed, and a hidden layer always keeps at least one
// neuron. It reports false when nothing was removed.
func (n *Network) PruneDisconnected() bool {
	pruned := false
	for l := 1; l < len(n.Layers)-1; l++ {
		layer := &n.Layers[l]
		remove := make(map[int]bool)
		for i := range layer.Neurons {
			if len(layer.Neurons)-len(remove) <= 1 {
				break
			}
			if !n.hasEnabledIncoming(NeuronRef{Layer: l, Index: i}) {
				remove[i] = true
			}
		}
		if len(remove) == 0 {
			continue
		}
		n.removeNeurons(l, remove)
		pruned = true
	}
	return pruned
}

func (n *Network) hasEnabledIncoming(ref NeuronRef) bool {
	for _, ci := range n.Neuron(ref).Incoming {
		if n.Connections[ci].Enabled {
			return true
		}
	}
	return false
}

// removeNeurons drops the given neuron indices of layer l and remaps every
// connection endpoint in that layer.
func (n *Network) removeNeurons(l int, remove map[int]bool) {
	layer := &n.Layers[l]
	remap := make([]int, len(layer.Neurons))
	kept := layer.Neurons[:0]
	for i, neuron := range layer.Neurons {
		if remove[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, neuron)
	}
	layer.Neurons = slices.Clip(kept)

	conns := n.Connections[:0]
	for _, c := range n.Connections {
		if c.From.Layer == l {
			if remap[c.From.Index] < 0 {
				continue
			}
			c.From.Index = remap[c.From.Index]
		}
		if c.To.Layer == l {
			if remap[c.To.Index] < 0 {
				continue
			}
			c.To.Index = remap[c.To.Index]
		}
		conns = append(conns, c)
	}
	n.Connections = conns
	n.reindex()
}

func (n *Network) enabledConnections() []int {
	var enabled []int
	for ci := range n.Connections {
		if n.Connections[ci].Enabled {
			enabled = append(enabled, ci)
		}
	}
	return enabled
}
