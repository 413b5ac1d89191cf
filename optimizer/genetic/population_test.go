package genetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPopulationValidation(t *testing.T) {
	rng := testRNG()

	_, err := NewPopulation(testTemplate(), 1, 0, rng)
	assert.ErrorIs(t, err, ErrPopulationTooSmall)

	_, err = NewPopulation(testTemplate(), 10, 11, rng)
	assert.ErrorIs(t, err, ErrInvalidEliteCount)

	p, err := NewPopulation(testTemplate(), 10, 2, rng)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Size())
	assert.Equal(t, 2, p.EliteCount())
}

func TestRankedIsStableDescending(t *testing.T) {
	a := &Chromosome{Genes: []Gene{&IntGene{Key: "a.x", Value: 1, Min: 1, Max: 10}}, Fitness: 0.3}
	b := &Chromosome{Genes: []Gene{&IntGene{Key: "a.x", Value: 2, Min: 1, Max: 10}}, Fitness: 0.9}
	c := &Chromosome{Genes: []Gene{&IntGene{Key: "a.x", Value: 3, Min: 1, Max: 10}}, Fitness: 0.3}

	p := newPopulationFrom([]*Chromosome{a, b, c}, 1)
	ranked := p.ranked()

	require.Len(t, ranked, 3)
	assert.Same(t, b, ranked[0])
	assert.Same(t, a, ranked[1]) // stable: a before c at equal fitness
	assert.Same(t, c, ranked[2])
}

func TestReplaceRefusesWrongSize(t *testing.T) {
	rng := testRNG()
	p, err := NewPopulation(testTemplate(), 4, 1, rng)
	require.NoError(t, err)

	p.replace([]*Chromosome{NewChromosome(testTemplate(), rng)})
	assert.Equal(t, 4, p.Size())
}

func TestTournamentSelectFavorsFitness(t *testing.T) {
	rng := testRNG()
	weak := &Chromosome{Genes: []Gene{&IntGene{Key: "a.x", Value: 1, Min: 1, Max: 10}}, Fitness: 0.1}
	strong := &Chromosome{Genes: []Gene{&IntGene{Key: "a.x", Value: 9, Min: 1, Max: 10}}, Fitness: 0.9}
	ranked := []*Chromosome{strong, weak}

	strongWins := 0
	for i := 0; i < 1000; i++ {
		if tournamentSelect(ranked, 3, rng) == strong {
			strongWins++
		}
	}
	assert.Greater(t, strongWins, 700)
}

func TestRouletteSelectZeroFitnessFallsBackToUniform(t *testing.T) {
	rng := testRNG()
	ranked := []*Chromosome{
		{Genes: []Gene{&IntGene{Key: "a.x", Value: 1, Min: 1, Max: 10}}},
		{Genes: []Gene{&IntGene{Key: "a.x", Value: 2, Min: 1, Max: 10}}},
	}

	seen := map[*Chromosome]int{}
	for i := 0; i < 1000; i++ {
		seen[rouletteSelect(ranked, rng)]++
	}
	assert.Len(t, seen, 2)
}
