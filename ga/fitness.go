package ga

import (
	"context"
	"math"
)

// FitnessHandle is the write side of one genome's fitness accumulator for a
// single evaluation window. Exactly one driver owns a handle at a time, so
// it is not safe for concurrent use.
type FitnessHandle struct {
	genome *Genome
}

// Key returns the key of the genome the handle writes to.
func (h *FitnessHandle) Key() int {
	return h.genome.Key
}

// Add accumulates delta. NaN and infinite deltas are ignored.
func (h *FitnessHandle) Add(delta float64) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	h.genome.Fitness += delta
}

// Set replaces the accumulated fitness. NaN and infinite values are ignored.
func (h *FitnessHandle) Set(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	h.genome.Fitness = value
}

// Value returns the fitness accumulated so far.
func (h *FitnessHandle) Value() float64 {
	return h.genome.Fitness
}

// Evaluation is everything a driver gets for one genome's window.
type Evaluation struct {
	Key        int
	Generation int
	Window     float64 // simulation time budget in seconds
	Controller *Controller
	Fitness    *FitnessHandle
}

// Driver runs the simulation that scores one genome. Evaluate must return
// once the window has elapsed; its context is never cancelled mid-window.
// A returned error is logged and counted, and the genome keeps whatever
// fitness it accumulated.
type Driver interface {
	Evaluate(ctx context.Context, eval Evaluation) error
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, eval Evaluation) error

// Evaluate calls f(ctx, eval).
func (f DriverFunc) Evaluate(ctx context.Context, eval Evaluation) error {
	return f(ctx, eval)
}
