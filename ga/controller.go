package ga

import (
	"log/slog"

	"github.com/GunPocket/GACar/ga/nn"
)

// Controller is the read-only view of a genome's network handed to drivers.
// It routes batch evaluation through the configured accelerator and falls
// back to the scalar path when the accelerator fails.
type Controller struct {
	network     *nn.Network
	accelerator nn.Accelerator
	logger      *slog.Logger
	key         int
}

func newController(g *Genome, acc nn.Accelerator, logger *slog.Logger) *Controller {
	return &Controller{network: g.Network, accelerator: acc, logger: logger, key: g.Key}
}

// Evaluate computes the network's outputs for one input vector.
func (c *Controller) Evaluate(inputs []float64) []float64 {
	return c.network.Evaluate(inputs)
}

// EvaluateBatch computes the outputs for several input vectors at once.
func (c *Controller) EvaluateBatch(batch [][]float64) [][]float64 {
	out, err := c.network.EvaluateBatch(batch, c.accelerator)
	if err != nil {
		c.logger.Warn("accelerator failed, using scalar evaluation", "genome", c.key, "error", err)
	}
	return out
}

// Topology returns the controller's network shape.
func (c *Controller) Topology() nn.Topology {
	return c.network.Topology()
}
