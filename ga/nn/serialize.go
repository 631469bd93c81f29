package nn

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LayerDelimiter separates layers in the text format. ParseText also accepts
// '|', so that a network fits on a single line of a config file.
const LayerDelimiter = "\n"

// FormatText renders the network in the compact text format. The first line
// lists the layer sizes; every following line holds one non-input layer where
// each neuron contributes its incoming weights (one per neuron of the previous
// layer, 0 when there is no enabled connection) followed by its bias.
// Activation kinds and the enabled flags of zero-weight connections are not
// part of this format; use Record for a lossless encoding.
func (n *Network) FormatText() string {
	var sb strings.Builder
	for i, size := range n.Topology().Sizes() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(size))
	}
	for l := 1; l < len(n.Layers); l++ {
		sb.WriteString(LayerDelimiter)
		first := true
		write := func(v float64) {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		for i := range n.Layers[l].Neurons {
			for j := range n.Layers[l-1].Neurons {
				w := 0.0
				if ci, ok := n.ConnectionIndex(NeuronRef{Layer: l - 1, Index: j}, NeuronRef{Layer: l, Index: i}); ok && n.Connections[ci].Enabled {
					w = n.Connections[ci].Weight
				}
				write(w)
			}
			write(n.Layers[l].Neurons[i].Bias)
		}
	}
	return sb.String()
}

// ParseText decodes a network produced by FormatText. Every neuron gets the
// given activation kind and the network is fully connected with the decoded
// weights. Malformed input yields a *SerializationError.
func ParseText(text string, activation ActivationKind, params Params) (*Network, error) {
	if !activation.Valid() {
		return nil, fmt.Errorf("%w: unknown activation kind %d", ErrConfiguration, int(activation))
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '|' })
	if len(lines) == 0 {
		return nil, serializationErrorf(0, nil, "empty genome")
	}

	headerTokens, err := splitTokens(lines[0])
	if err != nil {
		return nil, serializationErrorf(1, err, "malformed header")
	}
	sizes := make([]int, len(headerTokens))
	for i, tok := range headerTokens {
		size, err := strconv.Atoi(tok)
		if err != nil {
			return nil, serializationErrorf(1, err, "layer size %d is not an integer", i)
		}
		if size <= 0 {
			return nil, serializationErrorf(1, nil, "layer size %d is %d", i, size)
		}
		sizes[i] = size
	}
	if len(sizes) < 2 {
		return nil, serializationErrorf(1, nil, "need at least 2 layer sizes, got %d", len(sizes))
	}
	if len(lines) != len(sizes) {
		return nil, serializationErrorf(0, nil, "header declares %d layers but found %d layer lines", len(sizes), len(lines)-1)
	}

	// Every layer line is checked against the header before any neuron is
	// allocated, so an oversized header costs no more than its own text.
	values := make([][]float64, len(sizes))
	for l := 1; l < len(sizes); l++ {
		line := l + 1
		tokens, err := splitTokens(lines[l])
		if err != nil {
			return nil, serializationErrorf(line, err, "layer %d", l)
		}
		stride := sizes[l-1] + 1
		if sizes[l] > len(tokens) || stride > len(tokens) || sizes[l]*stride != len(tokens) {
			return nil, serializationErrorf(line, nil, "layer %d has %d values, header declares %d neurons of %d inputs",
				l, len(tokens), sizes[l], sizes[l-1])
		}
		values[l] = make([]float64, len(tokens))
		for k, tok := range tokens {
			v, err := parseFinite(tok)
			if err != nil {
				return nil, serializationErrorf(line, err, "value %d of neuron %d", k%stride, k/stride)
			}
			values[l][k] = v
		}
	}

	params = params.withDefaults()
	n := &Network{Params: params, Layers: make([]Layer, len(sizes))}
	for l, size := range sizes {
		n.Layers[l].Activation = activation
		for i := 0; i < size; i++ {
			n.Layers[l].addNeuron(0, activation)
		}
	}
	for l := 1; l < len(sizes); l++ {
		stride := sizes[l-1] + 1
		for i := 0; i < sizes[l]; i++ {
			row := values[l][i*stride : (i+1)*stride]
			for j, w := range row[:stride-1] {
				n.Connections = append(n.Connections, Connection{
					From:    NeuronRef{Layer: l - 1, Index: j},
					To:      NeuronRef{Layer: l, Index: i},
					Weight:  w,
					Enabled: true,
				})
			}
			n.Layers[l].Neurons[i].Bias = row[stride-1]
		}
	}
	n.reindex()
	return n, nil
}

// splitTokens splits a comma-separated line. Empty fields are rejected,
// except for a single trailing one left by a trailing comma.
func splitTokens(line string) ([]string, error) {
	parts := strings.Split(line, ",")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = strings.TrimSpace(p)
		if tokens[i] == "" {
			return nil, fmt.Errorf("field %d is empty", i+1)
		}
	}
	return tokens, nil
}

func parseFinite(tok string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", tok)
	}
	return v, nil
}

// NetworkRecord is the lossless structured form of a Network.
type NetworkRecord struct {
	Params      Params             `json:"params"`
	Layers      []LayerRecord      `json:"layers"`
	Connections []ConnectionRecord `json:"connections"`
}

// LayerRecord is the structured form of a Layer.
type LayerRecord struct {
	Activation ActivationKind `json:"activation"`
	NextID     int            `json:"next_id"`
	Neurons    []NeuronRecord `json:"neurons"`
}

// NeuronRecord is the structured form of a Neuron.
type NeuronRecord struct {
	ID         int            `json:"id"`
	Bias       float64        `json:"bias"`
	Activation ActivationKind `json:"activation"`
}

// ConnectionRecord is the structured form of a Connection.
type ConnectionRecord struct {
	From    NeuronRef `json:"from"`
	To      NeuronRef `json:"to"`
	Weight  float64   `json:"weight"`
	Enabled bool      `json:"enabled"`
}

// Record converts the network to its structured form.
func (n *Network) Record() NetworkRecord {
	rec := NetworkRecord{
		Params:      n.Params,
		Layers:      make([]LayerRecord, len(n.Layers)),
		Connections: make([]ConnectionRecord, len(n.Connections)),
	}
	for l, layer := range n.Layers {
		lr := LayerRecord{Activation: layer.Activation, NextID: layer.NextID, Neurons: make([]NeuronRecord, len(layer.Neurons))}
		for i, neuron := range layer.Neurons {
			lr.Neurons[i] = NeuronRecord{ID: neuron.ID, Bias: neuron.Bias, Activation: neuron.Activation}
		}
		rec.Layers[l] = lr
	}
	for ci, c := range n.Connections {
		rec.Connections[ci] = ConnectionRecord{From: c.From, To: c.To, Weight: c.Weight, Enabled: c.Enabled}
	}
	return rec
}

// FromRecord rebuilds a network from its structured form, validating layer
// sizes, activation kinds, connection endpoints and numeric values.
func FromRecord(rec NetworkRecord) (*Network, error) {
	if len(rec.Layers) < 2 {
		return nil, serializationErrorf(0, nil, "need at least 2 layers, got %d", len(rec.Layers))
	}
	n := &Network{Params: rec.Params.withDefaults(), Layers: make([]Layer, len(rec.Layers))}
	for l, lr := range rec.Layers {
		if len(lr.Neurons) == 0 {
			return nil, serializationErrorf(0, nil, "layer %d is empty", l)
		}
		if !lr.Activation.Valid() {
			return nil, serializationErrorf(0, nil, "layer %d has unknown activation %d", l, int(lr.Activation))
		}
		layer := Layer{Activation: lr.Activation, NextID: lr.NextID, Neurons: make([]Neuron, len(lr.Neurons))}
		seen := make(map[int]bool, len(lr.Neurons))
		for i, nr := range lr.Neurons {
			if !nr.Activation.Valid() {
				return nil, serializationErrorf(0, nil, "neuron %d/%d has unknown activation %d", l, i, int(nr.Activation))
			}
			if math.IsNaN(nr.Bias) || math.IsInf(nr.Bias, 0) {
				return nil, serializationErrorf(0, nil, "neuron %d/%d has non-finite bias", l, i)
			}
			if seen[nr.ID] {
				return nil, serializationErrorf(0, nil, "layer %d has duplicate neuron id %d", l, nr.ID)
			}
			seen[nr.ID] = true
			if nr.ID >= layer.NextID {
				layer.NextID = nr.ID + 1
			}
			layer.Neurons[i] = Neuron{ID: nr.ID, Bias: nr.Bias, Activation: nr.Activation}
		}
		n.Layers[l] = layer
	}

	pairs := make(map[[2]NeuronRef]bool, len(rec.Connections))
	n.Connections = make([]Connection, 0, len(rec.Connections))
	for ci, cr := range rec.Connections {
		if !n.validRef(cr.From) || !n.validRef(cr.To) || cr.To.Layer != cr.From.Layer+1 {
			return nil, serializationErrorf(0, nil, "connection %d joins %v and %v, which are not adjacent layers", ci, cr.From, cr.To)
		}
		if math.IsNaN(cr.Weight) || math.IsInf(cr.Weight, 0) {
			return nil, serializationErrorf(0, nil, "connection %d has non-finite weight", ci)
		}
		key := [2]NeuronRef{cr.From, cr.To}
		if pairs[key] {
			return nil, serializationErrorf(0, nil, "connection %d duplicates %v -> %v", ci, cr.From, cr.To)
		}
		pairs[key] = true
		weight := cr.Weight
		if !cr.Enabled {
			weight = 0
		}
		n.Connections = append(n.Connections, Connection{From: cr.From, To: cr.To, Weight: weight, Enabled: cr.Enabled})
	}
	n.reindex()
	return n, nil
}

func (n *Network) validRef(ref NeuronRef) bool {
	return ref.Layer >= 0 && ref.Layer < len(n.Layers) && ref.Index >= 0 && ref.Index < len(n.Layers[ref.Layer].Neurons)
}

// MarshalJSON encodes the network through its structured record.
func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Record())
}

// UnmarshalJSON decodes and validates a structured record.
func (n *Network) UnmarshalJSON(data []byte) error {
	var rec NetworkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return serializationErrorf(0, err, "decode network")
	}
	decoded, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

// GobEncode lets checkpoints store networks without exposing the derived
// incoming and outgoing index lists.
func (n *Network) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n.Record()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode is the inverse of GobEncode.
func (n *Network) GobDecode(data []byte) error {
	var rec NetworkRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return serializationErrorf(0, err, "decode network")
	}
	decoded, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}
