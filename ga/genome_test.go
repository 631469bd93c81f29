package ga

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunPocket/GACar/ga/nn"
)

var smallTopology = nn.Topology{Inputs: 3, Hidden: []int{4}, Outputs: 2}

func newTestGenome(t *testing.T, key int, seed int64) *Genome {
	t.Helper()
	g, err := NewRandomGenome(key, smallTopology, nn.Tanh, nn.DefaultParams(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return g
}

func TestCreatePopulation(t *testing.T) {
	population, err := CreatePopulation(5, smallTopology, nn.ReLU, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, population, 5)
	for i, g := range population {
		assert.Equal(t, i+1, g.Key)
		assert.Zero(t, g.Fitness)
		assert.False(t, g.Elite)
		assert.True(t, g.Network.Topology().Equal(smallTopology))
	}

	_, err = CreatePopulation(3, nn.Topology{Inputs: 2, Hidden: []int{0}, Outputs: 1}, nn.ReLU, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, nn.ErrConfiguration)
	_, err = CreatePopulation(0, smallTopology, nn.ReLU, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestGenomeCrossoverResetsState(t *testing.T) {
	a := newTestGenome(t, 1, 1)
	b := newTestGenome(t, 2, 2)
	a.Fitness, a.Elite = 10, true
	b.Fitness, b.Elite = 5, true

	child, err := a.Crossover(9, b, nn.CrossoverUniform, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, 9, child.Key)
	assert.Zero(t, child.Fitness)
	assert.False(t, child.Elite)
	assert.NotSame(t, a.Network, child.Network)

	other, err := NewRandomGenome(3, nn.Topology{Inputs: 3, Outputs: 2}, nn.Tanh, nn.DefaultParams(), rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	_, err = a.Crossover(10, other, nn.CrossoverUniform, rand.New(rand.NewSource(3)))
	assert.ErrorIs(t, err, nn.ErrConfiguration)
	_, err = a.Crossover(10, nil, nn.CrossoverUniform, rand.New(rand.NewSource(3)))
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestMutateClearsElite(t *testing.T) {
	g := newTestGenome(t, 1, 1)
	g.Elite = true
	res := g.Mutate(MutationConfig{Rate: 0}, rand.New(rand.NewSource(1)))
	assert.False(t, res.Mutated)
	assert.Equal(t, MutationNone, res.Kind)
	assert.False(t, g.Elite)
}

func TestMutateRateZeroLeavesNetworkUnchanged(t *testing.T) {
	g := newTestGenome(t, 1, 1)
	before := g.Network.Record()
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		g.Mutate(MutationConfig{Rate: 0, Mode: MutationModeGenome}, rng)
		g.Mutate(MutationConfig{Rate: 0, Mode: MutationModeGene}, rng)
	}
	assert.Equal(t, before, g.Network.Record())
}

func TestMutateGenomeModeRate(t *testing.T) {
	const trials = 5000
	const rate = 0.2
	rng := rand.New(rand.NewSource(42))
	kinds := make(map[MutationKind]int)
	mutated := 0
	for i := 0; i < trials; i++ {
		g := newTestGenome(t, i, int64(i))
		res := g.Mutate(MutationConfig{Rate: rate, Mode: MutationModeGenome}, rng)
		if res.Mutated {
			mutated++
			kinds[res.Kind]++
		}
	}
	observed := float64(mutated) / trials
	// Five standard deviations of a binomial proportion.
	tolerance := 5 * math.Sqrt(rate*(1-rate)/trials)
	assert.InDelta(t, rate, observed, tolerance)
	for _, kind := range structuralOperators {
		assert.Positive(t, kinds[kind], "operator %s never chosen", kind)
	}
}

func TestMutateGeneModePerturbsWeightsAndBiases(t *testing.T) {
	g := newTestGenome(t, 1, 1)
	before := g.Network.Clone()
	res := g.Mutate(MutationConfig{Rate: 1, Mode: MutationModeGene}, rand.New(rand.NewSource(5)))

	require.True(t, res.Mutated)
	assert.Equal(t, MutationPerGene, res.Kind)
	enabled := 0
	for _, c := range before.Connections {
		if c.Enabled {
			enabled++
		}
	}
	assert.Equal(t, enabled+4+2, res.Genes)
	for ci, c := range g.Network.Connections {
		assert.LessOrEqual(t, math.Abs(c.Weight-before.Connections[ci].Weight), g.Network.Params.WeightPerturb)
	}
	assert.True(t, g.Network.Topology().Equal(smallTopology))
}

func TestGenomeClone(t *testing.T) {
	g := newTestGenome(t, 1, 1)
	g.Fitness = 3
	clone := g.Clone(7)
	assert.Equal(t, 7, clone.Key)
	assert.Equal(t, 3.0, clone.Fitness)
	clone.Network.Connections[0].Weight = 99
	assert.NotEqual(t, 99.0, g.Network.Connections[0].Weight)
}

func TestFitnessHandleIgnoresNonFinite(t *testing.T) {
	g := newTestGenome(t, 4, 1)
	h := &FitnessHandle{genome: g}
	h.Add(2)
	h.Add(math.NaN())
	h.Add(math.Inf(1))
	h.Add(0.5)
	assert.Equal(t, 2.5, h.Value())
	h.Set(math.Inf(-1))
	assert.Equal(t, 2.5, g.Fitness)
	h.Set(-1)
	assert.Equal(t, -1.0, g.Fitness)
	assert.Equal(t, 4, h.Key())
}

func TestParseMutationMode(t *testing.T) {
	m, err := ParseMutationMode("")
	require.NoError(t, err)
	assert.Equal(t, MutationModeGenome, m)
	m, err = ParseMutationMode("GENE")
	require.NoError(t, err)
	assert.Equal(t, MutationModeGene, m)
	_, err = ParseMutationMode("always")
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}
