package genetic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yunusovt983/selfheal/monitoring"
)

// workerCountFitness rewards larger worker counts, giving evolution a
// deterministic gradient to climb.
func workerCountFitness(c *Chromosome, _ []Sample) (float64, error) {
	g := c.Genes[0].(*IntGene)
	return float64(g.Value) / float64(g.Max), nil
}

func testOptimizerConfig() Config {
	return Config{
		PopulationSize: 20,
		EliteCount:     3,
		MutationRate:   0.2,
		Selection:      SelectionTournament,
		TournamentSize: 3,
		EvolveInterval: time.Hour,
		SampleWindow:   16,
		Seed:           7,
	}
}

func TestNewOptimizerValidation(t *testing.T) {
	_, err := NewOptimizer(testOptimizerConfig(), testTemplate(), nil)
	assert.ErrorIs(t, err, ErrNilFitness)

	_, err = NewOptimizer(testOptimizerConfig(), nil, workerCountFitness)
	assert.ErrorIs(t, err, ErrEmptyTemplate)

	bad := testOptimizerConfig()
	bad.MutationRate = 1.5
	_, err = NewOptimizer(bad, testTemplate(), workerCountFitness)
	assert.ErrorIs(t, err, ErrInvalidMutationRate)

	invalid := []Gene{&IntGene{Key: "a.b", Value: 50, Min: 1, Max: 32}}
	_, err = NewOptimizer(testOptimizerConfig(), invalid, workerCountFitness)
	assert.Error(t, err)
}

func TestEvolveImprovesChampion(t *testing.T) {
	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), workerCountFitness)
	require.NoError(t, err)

	champion, improved, err := o.Evolve()
	require.NoError(t, err)
	require.True(t, improved)
	require.NotNil(t, champion)

	first := champion.Fitness
	for i := 0; i < 30; i++ {
		_, _, err := o.Evolve()
		require.NoError(t, err)
	}

	final := o.Champion()
	require.NotNil(t, final)
	assert.GreaterOrEqual(t, final.Fitness, first)
	assert.Equal(t, 31, o.Generation())
	assert.Len(t, o.Population(), 20)
}

// genesKey fingerprints a chromosome by its gene values so elite survival
// can be checked across generations.
func genesKey(c *Chromosome) string {
	var b strings.Builder
	for _, g := range c.Genes {
		switch gene := g.(type) {
		case *IntGene:
			fmt.Fprintf(&b, "%s=%d;", gene.Key, gene.Value)
		case *FloatGene:
			fmt.Fprintf(&b, "%s=%g;", gene.Key, gene.Value)
		case *BoolGene:
			fmt.Fprintf(&b, "%s=%t;", gene.Key, gene.Value)
		case *CategoricalGene:
			fmt.Fprintf(&b, "%s=%s;", gene.Key, gene.Value)
		}
	}
	return b.String()
}

func TestEliteChromosomesSurviveUnchanged(t *testing.T) {
	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), workerCountFitness)
	require.NoError(t, err)

	before := o.Population()
	for _, c := range before {
		f, err := workerCountFitness(c, nil)
		require.NoError(t, err)
		c.Fitness = f
	}
	sort.SliceStable(before, func(i, j int) bool { return before[i].Fitness > before[j].Fitness })

	_, _, err = o.Evolve()
	require.NoError(t, err)

	after := make(map[string]bool)
	for _, c := range o.Population() {
		after[genesKey(c)] = true
	}
	for i := 0; i < 3; i++ {
		assert.True(t, after[genesKey(before[i])],
			"elite rank %d should reappear in the next generation", i)
	}
}

func TestEvolveKeepsElites(t *testing.T) {
	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), workerCountFitness)
	require.NoError(t, err)

	_, _, err = o.Evolve()
	require.NoError(t, err)

	// The champion of the previous generation survives as an elite, so the
	// next generation's best can never regress.
	bestBefore := o.Champion().Fitness
	_, _, err = o.Evolve()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, o.Champion().Fitness, bestBefore)
}

func TestEvolveWithRouletteSelection(t *testing.T) {
	config := testOptimizerConfig()
	config.Selection = SelectionRoulette

	o, err := NewOptimizer(config, testTemplate(), workerCountFitness)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := o.Evolve()
		require.NoError(t, err)
	}
	assert.NotNil(t, o.Champion())
}

func TestFitnessErrorScoresZero(t *testing.T) {
	fitness := func(c *Chromosome, _ []Sample) (float64, error) {
		return 0, errors.New("metrics backend unavailable")
	}

	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), fitness)
	require.NoError(t, err)

	champion, improved, err := o.Evolve()
	require.NoError(t, err)
	require.True(t, improved) // first champion, even at fitness zero
	assert.Zero(t, champion.Fitness)
	assert.Len(t, o.Population(), 20)
}

func TestFitnessPanicIsolates(t *testing.T) {
	calls := 0
	fitness := func(c *Chromosome, _ []Sample) (float64, error) {
		calls++
		if calls%2 == 0 {
			panic("bad chromosome")
		}
		return workerCountFitness(c, nil)
	}

	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), fitness)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_, _, err := o.Evolve()
		require.NoError(t, err)
	})
	assert.Len(t, o.Population(), 20)
}

func TestNegativeFitnessClampedToZero(t *testing.T) {
	fitness := func(*Chromosome, []Sample) (float64, error) { return -5, nil }

	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), fitness)
	require.NoError(t, err)

	champion, _, err := o.Evolve()
	require.NoError(t, err)
	assert.Zero(t, champion.Fitness)
}

func TestShouldEvolveGating(t *testing.T) {
	config := testOptimizerConfig()
	config.EvolveInterval = time.Hour

	o, err := NewOptimizer(config, testTemplate(), workerCountFitness)
	require.NoError(t, err)

	// Fresh optimizer: lastEvolve is zero, so the interval has elapsed.
	assert.True(t, o.ShouldEvolve())

	_, _, err = o.Evolve()
	require.NoError(t, err)
	assert.False(t, o.ShouldEvolve())

	// A Critical sample arms the anomaly trigger and overrides the gate.
	o.UpdateFitnessData(monitoring.HealthMetrics{ErrorRate: 0.9}, monitoring.HealthStatus{Level: monitoring.StatusCritical})
	assert.True(t, o.ShouldEvolve())

	_, _, err = o.Evolve()
	require.NoError(t, err)
	assert.False(t, o.ShouldEvolve())
}

func TestConvergenceOnFitnessThreshold(t *testing.T) {
	config := testOptimizerConfig()
	config.FitnessThreshold = 0.01

	o, err := NewOptimizer(config, testTemplate(), workerCountFitness)
	require.NoError(t, err)

	_, _, err = o.Evolve()
	require.NoError(t, err)

	assert.False(t, o.ShouldEvolve())

	// Anomaly lets evolution resume past convergence.
	o.UpdateFitnessData(monitoring.HealthMetrics{}, monitoring.HealthStatus{Level: monitoring.StatusFailed})
	assert.True(t, o.ShouldEvolve())
}

func TestConvergenceOnPlateau(t *testing.T) {
	config := testOptimizerConfig()
	config.PlateauGenerations = 2
	config.MutationRate = 0
	fitness := func(*Chromosome, []Sample) (float64, error) { return 0.5, nil }

	o, err := NewOptimizer(config, testTemplate(), fitness)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := o.Evolve()
		require.NoError(t, err)
	}
	assert.False(t, o.ShouldEvolve())
}

func TestChampionCallbackOnImprovement(t *testing.T) {
	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), workerCountFitness)
	require.NoError(t, err)

	var proposed []*Chromosome
	o.SetChampionCallback(func(c *Chromosome) {
		proposed = append(proposed, c)
	})

	_, improved, err := o.Evolve()
	require.NoError(t, err)
	require.True(t, improved)
	require.Len(t, proposed, 1)
	assert.Equal(t, o.Champion().Fitness, proposed[0].Fitness)
}

func TestUpdateFitnessDataWindowBounded(t *testing.T) {
	config := testOptimizerConfig()
	config.SampleWindow = 4

	o, err := NewOptimizer(config, testTemplate(), workerCountFitness)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		o.UpdateFitnessData(monitoring.HealthMetrics{Throughput: float64(i)}, monitoring.HealthStatus{Level: monitoring.StatusHealthy})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.samples, 4)
	assert.Equal(t, float64(6), o.samples[0].Metrics.Throughput)
}

func TestRestorePopulation(t *testing.T) {
	o, err := NewOptimizer(testOptimizerConfig(), testTemplate(), workerCountFitness)
	require.NoError(t, err)

	snapshot := o.Population()
	require.NoError(t, o.RestorePopulation(12, snapshot))
	assert.Equal(t, 12, o.Generation())

	// Wrong size is rejected.
	assert.Error(t, o.RestorePopulation(1, snapshot[:3]))
}

func TestOptimizerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testOptimizerConfig()
	config.EvolveInterval = 10 * time.Millisecond

	o, err := NewOptimizer(config, testTemplate(), workerCountFitness)
	require.NoError(t, err)

	require.NoError(t, o.Start())
	assert.ErrorIs(t, o.Start(), ErrAlreadyRunning)

	// An anomalous sample kicks the loop ahead of the ticker.
	o.UpdateFitnessData(monitoring.HealthMetrics{ErrorRate: 1}, monitoring.HealthStatus{Level: monitoring.StatusFailed})

	require.Eventually(t, func() bool {
		return o.Generation() > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, o.Stop())
	require.NoError(t, o.Stop())
}
