package nn

import (
	"fmt"
	"math"
	"strings"
)

// ActivationKind identifies one of the supported neuron activation functions.
// The set is closed: every switch over ActivationKind in this package handles
// all kinds and panics on anything else.
type ActivationKind int

const (
	Sigmoid ActivationKind = iota
	ReLU
	Tanh
)

// activationNames maps each kind to the name used in config files and serialized genomes.
var activationNames = map[ActivationKind]string{
	Sigmoid: "sigmoid",
	ReLU:    "relu",
	Tanh:    "tanh",
}

// Activations returns every supported kind in declaration order.
func Activations() []ActivationKind {
	return []ActivationKind{Sigmoid, ReLU, Tanh}
}

// ParseActivation retrieves an activation kind by name (case-insensitive).
func ParseActivation(name string) (ActivationKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range activationNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown activation function: %q", name)
}

// Valid reports whether k is one of the supported kinds.
func (k ActivationKind) Valid() bool {
	_, ok := activationNames[k]
	return ok
}

func (k ActivationKind) String() string {
	if n, ok := activationNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ActivationKind(%d)", int(k))
}

// MarshalText encodes the kind by name so JSON genomes stay human-readable.
func (k ActivationKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown activation kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *ActivationKind) UnmarshalText(text []byte) error {
	kind, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Activate applies the activation function to x.
func (k ActivationKind) Activate(x float64) float64 {
	switch k {
	case Sigmoid:
		return 1.0 / (1.0 + math.Exp(-x))
	case ReLU:
		return math.Max(0, x)
	case Tanh:
		return math.Tanh(x)
	}
	panic(fmt.Sprintf("nn: unknown activation kind %d", int(k)))
}

// Derivative returns the slope of the activation function expressed in terms
// of its output a = Activate(x).
func (k ActivationKind) Derivative(a float64) float64 {
	switch k {
	case Sigmoid:
		return a * (1 - a)
	case ReLU:
		if a > 0 {
			return 1
		}
		return 0
	case Tanh:
		return 1 - a*a
	}
	panic(fmt.Sprintf("nn: unknown activation kind %d", int(k)))
}

// Sanitize replaces NaN and infinities with 0.
func Sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
