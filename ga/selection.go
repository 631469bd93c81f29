package ga

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/GunPocket/GACar/ga/nn"
)

// Selection chooses how parents are drawn from the mating pool.
type Selection int

const (
	// SelectionUniform draws every pool member with equal probability.
	SelectionUniform Selection = iota
	// SelectionWeighted draws proportionally to fitness shifted so that the
	// weakest pool member has weight zero. Pools with no fitness spread fall
	// back to uniform draws.
	SelectionWeighted
)

func (s Selection) String() string {
	switch s {
	case SelectionUniform:
		return "uniform"
	case SelectionWeighted:
		return "weighted"
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// ParseSelection maps "uniform" and "weighted" to a Selection. An empty name
// selects SelectionUniform.
func ParseSelection(name string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "uniform":
		return SelectionUniform, nil
	case "weighted":
		return SelectionWeighted, nil
	}
	return 0, fmt.Errorf("%w: unknown selection %q", nn.ErrConfiguration, name)
}

// RankByFitness sorts genomes by fitness, highest first. Ties keep their
// current relative order.
func RankByFitness(genomes []*Genome) {
	sort.SliceStable(genomes, func(i, j int) bool {
		return genomes[i].Fitness > genomes[j].Fitness
	})
}

// EliteCount returns max(1, round(size*fraction)) clamped to size.
func EliteCount(size int, fraction float64) int {
	n := int(math.Round(float64(size) * fraction))
	return min(max(1, n), size)
}

// MatingPoolSize returns max(2, ceil(size*fraction)) clamped to size.
func MatingPoolSize(size int, fraction float64) int {
	n := int(math.Ceil(float64(size) * fraction))
	return min(max(2, n), size)
}

// parentPicker draws parents from a ranked mating pool.
type parentPicker struct {
	pool       []*Genome
	cumulative []float64 // running weight totals, nil for uniform draws
}

func newParentPicker(pool []*Genome, selection Selection) *parentPicker {
	p := &parentPicker{pool: pool}
	if selection != SelectionWeighted || len(pool) == 0 {
		return p
	}
	low := pool[0].Fitness
	for _, g := range pool {
		low = math.Min(low, g.Fitness)
	}
	total := 0.0
	cumulative := make([]float64, len(pool))
	for i, g := range pool {
		total += g.Fitness - low
		cumulative[i] = total
	}
	if total > 0 {
		p.cumulative = cumulative
	}
	return p
}

func (p *parentPicker) pick(rng *rand.Rand) *Genome {
	if p.cumulative == nil {
		return p.pool[rng.Intn(len(p.pool))]
	}
	total := p.cumulative[len(p.cumulative)-1]
	r := rng.Float64() * total
	i := sort.SearchFloat64s(p.cumulative, r)
	// Skip zero-weight members that share the running total.
	for i < len(p.pool)-1 && p.cumulative[i] <= r {
		i++
	}
	return p.pool[i]
}
