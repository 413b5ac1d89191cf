package genetic

import (
	"math/rand"
	"sort"
)

// Population is a fixed-size set of chromosomes. Size and elite count are
// invariant across generations.
type Population struct {
	chromosomes []*Chromosome
	eliteCount  int
}

// NewPopulation creates a random initial population from a gene template.
func NewPopulation(template []Gene, size, eliteCount int, rng *rand.Rand) (*Population, error) {
	if size < 2 {
		return nil, ErrPopulationTooSmall
	}
	if eliteCount < 0 || eliteCount > size {
		return nil, ErrInvalidEliteCount
	}

	chromosomes := make([]*Chromosome, size)
	for i := range chromosomes {
		chromosomes[i] = NewChromosome(template, rng)
	}
	return &Population{chromosomes: chromosomes, eliteCount: eliteCount}, nil
}

// newPopulationFrom wraps existing chromosomes. Used for snapshot restore
// and generation replacement.
func newPopulationFrom(chromosomes []*Chromosome, eliteCount int) *Population {
	return &Population{chromosomes: chromosomes, eliteCount: eliteCount}
}

// Size returns the fixed population size.
func (p *Population) Size() int {
	return len(p.chromosomes)
}

// EliteCount returns the fixed elite carry-over count.
func (p *Population) EliteCount() int {
	return p.eliteCount
}

// Chromosomes returns deep copies of the current generation.
func (p *Population) Chromosomes() []*Chromosome {
	out := make([]*Chromosome, len(p.chromosomes))
	for i, c := range p.chromosomes {
		out[i] = c.Copy()
	}
	return out
}

// Best returns a copy of the fittest chromosome.
func (p *Population) Best() *Chromosome {
	best := p.chromosomes[0]
	for _, c := range p.chromosomes[1:] {
		if c.Fitness > best.Fitness {
			best = c
		}
	}
	return best.Copy()
}

// ranked returns the chromosomes sorted by descending fitness. The sort is
// stable so equal-fitness elites keep their relative order.
func (p *Population) ranked() []*Chromosome {
	out := make([]*Chromosome, len(p.chromosomes))
	copy(out, p.chromosomes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Fitness > out[j].Fitness
	})
	return out
}

// replace swaps in the next generation. The new generation must keep the
// population size.
func (p *Population) replace(next []*Chromosome) {
	if len(next) != len(p.chromosomes) {
		// A replacement of the wrong size is a programming error in the
		// evolution step; keep the old generation rather than shrinking.
		return
	}
	p.chromosomes = next
}
