package genetic

import (
	"fmt"
	"math/rand"
	"sort"
)

// Chromosome is a candidate configuration: an ordered, fixed-length gene
// sequence plus a scalar fitness. Fitness is zero until evaluated and
// never negative.
type Chromosome struct {
	Genes   []Gene  `json:"genes"`
	Fitness float64 `json:"fitness"`
}

// NewChromosome builds a chromosome from a gene template, redrawing every
// value randomly within its bounds.
func NewChromosome(template []Gene, rng *rand.Rand) *Chromosome {
	genes := make([]Gene, len(template))
	for i, g := range template {
		c := g.Copy()
		c.Mutate(rng)
		genes[i] = c
	}
	return &Chromosome{Genes: genes}
}

// Copy returns an independent deep copy, fitness included.
func (c *Chromosome) Copy() *Chromosome {
	genes := make([]Gene, len(c.Genes))
	for i, g := range c.Genes {
		genes[i] = g.Copy()
	}
	return &Chromosome{Genes: genes, Fitness: c.Fitness}
}

// Validate checks every gene against its bounds.
func (c *Chromosome) Validate() error {
	for _, g := range c.Genes {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SameShape reports whether two chromosomes have identical gene count and
// per-position gene types. Crossover is only defined over same-shaped
// chromosomes.
func (c *Chromosome) SameShape(other *Chromosome) bool {
	if len(c.Genes) != len(other.Genes) {
		return false
	}
	for i := range c.Genes {
		if !sameKind(c.Genes[i], other.Genes[i]) {
			return false
		}
	}
	return true
}

// Crossover recombines two parents into two children using the given
// number of crossover points. Children preserve gene count and
// per-position type because whole genes are exchanged in place.
func Crossover(a, b *Chromosome, points int, rng *rand.Rand) (*Chromosome, *Chromosome, error) {
	if !a.SameShape(b) {
		return nil, nil, ErrShapeMismatch
	}
	n := len(a.Genes)
	if n == 0 {
		return a.Copy(), b.Copy(), nil
	}
	if points < 1 {
		points = 1
	}
	if points >= n {
		points = n - 1
	}

	cuts := crossoverCuts(n, points, rng)

	child1 := make([]Gene, n)
	child2 := make([]Gene, n)
	swap := false
	cut := 0
	for i := 0; i < n; i++ {
		for cut < len(cuts) && cuts[cut] == i {
			swap = !swap
			cut++
		}
		if swap {
			child1[i] = b.Genes[i].Copy()
			child2[i] = a.Genes[i].Copy()
		} else {
			child1[i] = a.Genes[i].Copy()
			child2[i] = b.Genes[i].Copy()
		}
	}

	return &Chromosome{Genes: child1}, &Chromosome{Genes: child2}, nil
}

// crossoverCuts picks the sorted, distinct cut positions in (0, n).
func crossoverCuts(n, points int, rng *rand.Rand) []int {
	if points > n-1 {
		points = n - 1
	}
	perm := rng.Perm(n - 1)
	cuts := make([]int, points)
	for i := 0; i < points; i++ {
		cuts[i] = perm[i] + 1
	}
	sort.Ints(cuts)
	return cuts
}

// MutateChromosome applies per-gene mutation with independent probability
// rate. Each mutated gene redraws its value within bounds.
func MutateChromosome(c *Chromosome, rate float64, rng *rand.Rand) {
	for _, g := range c.Genes {
		if rng.Float64() < rate {
			g.Mutate(rng)
		}
	}
}

func (c *Chromosome) String() string {
	return fmt.Sprintf("chromosome{genes=%d fitness=%.4f}", len(c.Genes), c.Fitness)
}
