// Package nn implements the layered feedforward networks evolved by package ga.
//
// A Network is stored as an arena: layers own their neurons, and every
// connection lives in a single flat slice addressing its endpoints by
// (layer, index) pairs. Connections only ever join adjacent layers in the
// input-to-output direction, so the graph is a strict layered DAG.
package nn

import (
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"strings"
)

// Topology is the fixed shape of a network: the input size, the hidden layer
// sizes in order and the output size.
type Topology struct {
	Inputs  int
	Hidden  []int
	Outputs int
}

// TopologyFromSizes builds a Topology from a full list of layer sizes
// (input first, output last).
func TopologyFromSizes(sizes []int) (Topology, error) {
	if len(sizes) < 2 {
		return Topology{}, fmt.Errorf("%w: need at least an input and an output layer, got %d layers", ErrConfiguration, len(sizes))
	}
	t := Topology{
		Inputs:  sizes[0],
		Hidden:  slices.Clone(sizes[1 : len(sizes)-1]),
		Outputs: sizes[len(sizes)-1],
	}
	return t, t.Validate()
}

// Sizes returns the size of every layer, input first.
func (t Topology) Sizes() []int {
	sizes := make([]int, 0, len(t.Hidden)+2)
	sizes = append(sizes, t.Inputs)
	sizes = append(sizes, t.Hidden...)
	return append(sizes, t.Outputs)
}

// Validate rejects zero or negative layer sizes.
func (t Topology) Validate() error {
	for i, size := range t.Sizes() {
		if size <= 0 {
			return fmt.Errorf("%w: layer %d has size %d", ErrConfiguration, i, size)
		}
	}
	return nil
}

// Equal reports whether both topologies have the same layer count and sizes.
func (t Topology) Equal(other Topology) bool {
	return slices.Equal(t.Sizes(), other.Sizes())
}

func (t Topology) String() string {
	sizes := t.Sizes()
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Params holds the numeric knobs a network carries through cloning and crossover.
type Params struct {
	WeightRange   float64 `json:"weight_range"`   // initial weights and biases are drawn from [-WeightRange, WeightRange]
	WeightPerturb float64 `json:"weight_perturb"` // bound of the random delta applied by PerturbWeight
	LearningRate  float64 `json:"learning_rate"`
	Epochs        int     `json:"epochs"`
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		WeightRange:   1.0,
		WeightPerturb: 0.5,
		LearningRate:  0.01,
		Epochs:        100,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.WeightRange <= 0 {
		p.WeightRange = d.WeightRange
	}
	if p.WeightPerturb < 0 {
		p.WeightPerturb = d.WeightPerturb
	}
	if p.LearningRate < 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Epochs < 0 {
		p.Epochs = d.Epochs
	}
	return p
}

// NeuronRef addresses a neuron by layer and position within that layer.
type NeuronRef struct {
	Layer int `json:"layer"`
	Index int `json:"index"`
}

// Connection is a weighted edge between neurons of adjacent layers.
// Disabled connections always carry a zero weight.
type Connection struct {
	From    NeuronRef
	To      NeuronRef
	Weight  float64
	Enabled bool
}

// Neuron holds a bias, an activation kind and the arena indices of its
// incoming and outgoing connections. ID is unique within the layer and never
// reused, so it survives insertions and removals of sibling neurons.
type Neuron struct {
	ID         int
	Bias       float64
	Activation ActivationKind
	Incoming   []int
	Outgoing   []int
}

// Layer is an ordered group of neurons sharing a default activation kind.
type Layer struct {
	Activation ActivationKind
	Neurons    []Neuron
	NextID     int
}

func (l *Layer) addNeuron(bias float64, activation ActivationKind) int {
	l.Neurons = append(l.Neurons, Neuron{ID: l.NextID, Bias: bias, Activation: activation})
	l.NextID++
	return len(l.Neurons) - 1
}

// Network is a layered feedforward network.
type Network struct {
	Params      Params
	Layers      []Layer
	Connections []Connection
}

// New creates a fully connected network with weights and biases drawn
// uniformly from [-WeightRange, WeightRange]. Input neurons carry no bias.
func New(topology Topology, activation ActivationKind, params Params, rng *rand.Rand) (*Network, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	if !activation.Valid() {
		return nil, fmt.Errorf("%w: unknown activation kind %d", ErrConfiguration, int(activation))
	}
	n := &Network{Params: params.withDefaults()}
	r := n.Params.WeightRange

	sizes := topology.Sizes()
	n.Layers = make([]Layer, len(sizes))
	for l, size := range sizes {
		layer := &n.Layers[l]
		layer.Activation = activation
		layer.Neurons = make([]Neuron, 0, size)
		for i := 0; i < size; i++ {
			bias := 0.0
			if l > 0 {
				bias = uniform(rng, r)
			}
			layer.addNeuron(bias, activation)
		}
	}

	for l := 0; l < len(sizes)-1; l++ {
		for j := 0; j < sizes[l+1]; j++ {
			for i := 0; i < sizes[l]; i++ {
				n.Connections = append(n.Connections, Connection{
					From:    NeuronRef{Layer: l, Index: i},
					To:      NeuronRef{Layer: l + 1, Index: j},
					Weight:  uniform(rng, r),
					Enabled: true,
				})
			}
		}
	}
	n.reindex()
	return n, nil
}

// Topology returns the current shape of the network.
func (n *Network) Topology() Topology {
	sizes := make([]int, len(n.Layers))
	for i := range n.Layers {
		sizes[i] = len(n.Layers[i].Neurons)
	}
	return Topology{
		Inputs:  sizes[0],
		Hidden:  sizes[1 : len(sizes)-1],
		Outputs: sizes[len(sizes)-1],
	}
}

// InputSize is the number of neurons in the input layer.
func (n *Network) InputSize() int {
	return len(n.Layers[0].Neurons)
}

// OutputSize is the number of neurons in the output layer.
func (n *Network) OutputSize() int {
	return len(n.Layers[len(n.Layers)-1].Neurons)
}

// Neuron returns a pointer to the referenced neuron.
func (n *Network) Neuron(ref NeuronRef) *Neuron {
	return &n.Layers[ref.Layer].Neurons[ref.Index]
}

// ConnectionIndex finds the arena index of the connection between from and to.
func (n *Network) ConnectionIndex(from, to NeuronRef) (int, bool) {
	if to.Layer <= 0 || to.Layer >= len(n.Layers) || to.Index < 0 || to.Index >= len(n.Layers[to.Layer].Neurons) {
		return 0, false
	}
	for _, ci := range n.Layers[to.Layer].Neurons[to.Index].Incoming {
		if n.Connections[ci].From == from {
			return ci, true
		}
	}
	return 0, false
}

// Evaluate propagates inputs through the network and returns the output
// layer's activations. Inputs are zero-padded or truncated to the input size;
// NaN and infinite values, in inputs or computed activations, become 0.
// Evaluate keeps no state between calls and is safe for concurrent use as long
// as the network is not mutated at the same time.
func (n *Network) Evaluate(inputs []float64) []float64 {
	acts := n.forward(inputs)
	return acts[len(acts)-1]
}

// forward returns the activations of every layer, input layer included.
func (n *Network) forward(inputs []float64) [][]float64 {
	acts := make([][]float64, len(n.Layers))
	in := make([]float64, n.InputSize())
	for i := range in {
		if i < len(inputs) {
			in[i] = Sanitize(inputs[i])
		}
	}
	acts[0] = in

	for l := 1; l < len(n.Layers); l++ {
		layer := &n.Layers[l]
		prev := acts[l-1]
		out := make([]float64, len(layer.Neurons))
		for i := range layer.Neurons {
			neuron := &layer.Neurons[i]
			sum := neuron.Bias
			for _, ci := range neuron.Incoming {
				c := &n.Connections[ci]
				if !c.Enabled {
					continue
				}
				sum += c.Weight * prev[c.From.Index]
			}
			out[i] = Sanitize(neuron.Activation.Activate(sum))
		}
		acts[l] = out
	}
	return acts
}

// Clone creates a deep copy of the network.
func (n *Network) Clone() *Network {
	clone := &Network{
		Params:      n.Params,
		Layers:      make([]Layer, len(n.Layers)),
		Connections: slices.Clone(n.Connections),
	}
	for l := range n.Layers {
		src := &n.Layers[l]
		dst := &clone.Layers[l]
		dst.Activation = src.Activation
		dst.NextID = src.NextID
		dst.Neurons = make([]Neuron, len(src.Neurons))
		for i, neuron := range src.Neurons {
			neuron.Incoming = slices.Clone(neuron.Incoming)
			neuron.Outgoing = slices.Clone(neuron.Outgoing)
			dst.Neurons[i] = neuron
		}
	}
	return clone
}

// reindex rebuilds every neuron's incoming and outgoing lists from the
// connection arena. It must run after any change to the arena or to the
// neuron slices.
func (n *Network) reindex() {
	for l := range n.Layers {
		for i := range n.Layers[l].Neurons {
			n.Layers[l].Neurons[i].Incoming = nil
			n.Layers[l].Neurons[i].Outgoing = nil
		}
	}
	for ci, c := range n.Connections {
		from := n.Neuron(c.From)
		from.Outgoing = append(from.Outgoing, ci)
		to := n.Neuron(c.To)
		to.Incoming = append(to.Incoming, ci)
	}
}

// uniform draws from [-r, r].
func uniform(rng *rand.Rand, r float64) float64 {
	return (rng.Float64()*2 - 1) * r
}
