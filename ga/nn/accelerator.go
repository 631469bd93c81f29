package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Accelerator evaluates a batch of input vectors against a network. It must
// produce the same numbers as Network.Evaluate for every row (up to floating
// point rounding). Implementations are called synchronously from the
// evaluating goroutine.
type Accelerator interface {
	BatchEvaluate(n *Network, batch [][]float64) ([][]float64, error)
}

// EvaluateBatch evaluates every row of batch. When acc is nil the scalar path
// is used. When acc fails, the scalar path produces the outputs and the
// accelerator's error is returned alongside them, so the outputs are always
// usable and a non-nil error only reports the fallback.
func (n *Network) EvaluateBatch(batch [][]float64, acc Accelerator) ([][]float64, error) {
	if acc != nil {
		out, err := acc.BatchEvaluate(n, batch)
		if err == nil && len(out) == len(batch) {
			return out, nil
		}
		if err == nil {
			err = fmt.Errorf("accelerator returned %d rows for a batch of %d", len(out), len(batch))
		}
		return n.evaluateScalar(batch), err
	}
	return n.evaluateScalar(batch), nil
}

func (n *Network) evaluateScalar(batch [][]float64) [][]float64 {
	out := make([][]float64, len(batch))
	for i, row := range batch {
		out[i] = n.Evaluate(row)
	}
	return out
}

// DenseAccelerator evaluates batches as dense matrix products with gonum.
// Each layer is computed as [1 X]·[b; W] for the whole batch at once, where W
// holds the enabled connection weights and zero elsewhere. The bias row comes
// first so every neuron accumulates bias then weighted inputs, in the same
// order as Network.Evaluate.
type DenseAccelerator struct{}

// NewDenseAccelerator returns a ready to use DenseAccelerator.
func NewDenseAccelerator() *DenseAccelerator {
	return &DenseAccelerator{}
}

// BatchEvaluate implements Accelerator. Panics raised by gonum on malformed
// networks are returned as errors.
func (DenseAccelerator) BatchEvaluate(n *Network, batch [][]float64) (out [][]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("dense accelerator: %v", r)
		}
	}()
	if len(batch) == 0 {
		return [][]float64{}, nil
	}

	rows, inSize := len(batch), n.InputSize()
	// Column 0 of every activation matrix is the constant 1 the bias row
	// multiplies.
	x := withBiasColumn(rows, inSize)
	for r, row := range batch {
		for c := 0; c < inSize && c < len(row); c++ {
			x.Set(r, c+1, Sanitize(row[c]))
		}
	}

	for l := 1; l < len(n.Layers); l++ {
		prev := len(n.Layers[l-1].Neurons)
		neurons := n.Layers[l].Neurons
		cur := len(neurons)
		w := mat.NewDense(prev+1, cur, nil)
		for j := range neurons {
			w.Set(0, j, neurons[j].Bias)
		}
		for _, ci := range n.connectionsInto(l) {
			c := n.Connections[ci]
			w.Set(c.From.Index+1, c.To.Index, w.At(c.From.Index+1, c.To.Index)+c.Weight)
		}

		y := withBiasColumn(rows, cur)
		sums := y.Slice(0, rows, 1, cur+1).(*mat.Dense)
		sums.Mul(x, w)
		sums.Apply(func(_, j int, v float64) float64 {
			return Sanitize(neurons[j].Activation.Activate(v))
		}, sums)
		x = y
	}

	_, cols := x.Dims()
	out = make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = make([]float64, cols-1)
		for c := range out[r] {
			out[r][c] = x.At(r, c+1)
		}
	}
	return out, nil
}

func withBiasColumn(rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols+1, nil)
	for r := 0; r < rows; r++ {
		m.Set(r, 0, 1)
	}
	return m
}

func (n *Network) connectionsInto(layer int) []int {
	var idx []int
	for ci, c := range n.Connections {
		if c.Enabled && c.To.Layer == layer {
			idx = append(idx, ci)
		}
	}
	return idx
}
