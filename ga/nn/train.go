package nn

// Train runs Params.Epochs iterations of gradient descent towards targets and
// returns the network's output for inputs after training. Targets shorter than
// the output layer leave the missing outputs untrained.
func (n *Network) Train(inputs, targets []float64) []float64 {
	return n.train(inputs, func(outputs []float64) []float64 {
		signal := make([]float64, len(outputs))
		for i := range outputs {
			if i < len(targets) {
				signal[i] = outputs[i] - Sanitize(targets[i])
			}
		}
		return signal
	})
}

// TrainSignal is like Train but takes the output error (output minus desired
// value) directly, for callers whose objective has no explicit target vector.
func (n *Network) TrainSignal(inputs, errSignal []float64) []float64 {
	signal := make([]float64, n.OutputSize())
	for i := range signal {
		if i < len(errSignal) {
			signal[i] = Sanitize(errSignal[i])
		}
	}
	return n.train(inputs, func([]float64) []float64 { return signal })
}

func (n *Network) train(inputs []float64, errorOf func(outputs []float64) []float64) []float64 {
	lr := n.Params.LearningRate
	last := len(n.Layers) - 1

	for epoch := 0; epoch < n.Params.Epochs; epoch++ {
		acts := n.forward(inputs)

		deltas := make([][]float64, len(n.Layers))
		signal := errorOf(acts[last])
		deltas[last] = make([]float64, len(acts[last]))
		for i, a := range acts[last] {
			deltas[last][i] = Sanitize(signal[i] * n.Layers[last].Neurons[i].Activation.Derivative(a))
		}

		for l := last - 1; l > 0; l-- {
			deltas[l] = make([]float64, len(acts[l]))
			for i := range n.Layers[l].Neurons {
				neuron := &n.Layers[l].Neurons[i]
				var sum float64
				for _, ci := range neuron.Outgoing {
					c := &n.Connections[ci]
					if c.Enabled {
						sum += c.Weight * deltas[l+1][c.To.Index]
					}
				}
				deltas[l][i] = Sanitize(sum * neuron.Activation.Derivative(acts[l][i]))
			}
		}

		for ci := range n.Connections {
			c := &n.Connections[ci]
			if !c.Enabled {
				continue
			}
			c.Weight = Sanitize(c.Weight - lr*deltas[c.To.Layer][c.To.Index]*acts[c.From.Layer][c.From.Index])
		}
		for l := 1; l <= last; l++ {
			for i := range n.Layers[l].Neurons {
				neuron := &n.Layers[l].Neurons[i]
				neuron.Bias = Sanitize(neuron.Bias - lr*deltas[l][i])
			}
		}
	}
	return n.Evaluate(inputs)
}
