package genetic

import "math/rand"

// SelectionMethod picks parents from a ranked generation.
type SelectionMethod string

const (
	// SelectionTournament samples k candidates and keeps the fittest.
	SelectionTournament SelectionMethod = "tournament"

	// SelectionRoulette picks proportionally to fitness.
	SelectionRoulette SelectionMethod = "roulette"
)

// selectParent picks one parent according to the configured method.
// ranked must be sorted by descending fitness and non-empty.
func selectParent(method SelectionMethod, ranked []*Chromosome, tournamentSize int, rng *rand.Rand) *Chromosome {
	switch method {
	case SelectionRoulette:
		return rouletteSelect(ranked, rng)
	default:
		return tournamentSelect(ranked, tournamentSize, rng)
	}
}

func tournamentSelect(ranked []*Chromosome, size int, rng *rand.Rand) *Chromosome {
	if size < 2 {
		size = 3
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	best := ranked[rng.Intn(len(ranked))]
	for i := 1; i < size; i++ {
		candidate := ranked[rng.Intn(len(ranked))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

func rouletteSelect(ranked []*Chromosome, rng *rand.Rand) *Chromosome {
	var total float64
	for _, c := range ranked {
		total += c.Fitness
	}
	if total <= 0 {
		// All fitness zero: fall back to uniform draw.
		return ranked[rng.Intn(len(ranked))]
	}

	target := rng.Float64() * total
	var acc float64
	for _, c := range ranked {
		acc += c.Fitness
		if acc >= target {
			return c
		}
	}
	return ranked[len(ranked)-1]
}
