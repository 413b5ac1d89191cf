package genetic

import (
	"context"
	"math/rand"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/yunusovt983/selfheal/monitoring"
)

var log = logging.Logger("selfheal/optimizer")

// Sample is one unit of live fitness data: a metrics snapshot plus its
// health classification.
type Sample struct {
	Metrics monitoring.HealthMetrics
	Status  monitoring.HealthStatus
}

// FitnessFunc scores a candidate configuration against recent live data.
// The formula is injected by the host; the optimizer mandates none. An
// error (or panic) isolates to the one chromosome, which scores zero.
type FitnessFunc func(c *Chromosome, samples []Sample) (float64, error)

// SnapshotStore persists population snapshots between generations.
type SnapshotStore interface {
	SavePopulationSnapshot(ctx context.Context, generation int, chromosomes []*Chromosome) error
}

// Config holds configuration for the optimizer.
type Config struct {
	PopulationSize int             `json:"population_size"`
	EliteCount     int             `json:"elite_count"`
	MutationRate   float64         `json:"mutation_rate"`
	CrossoverPoints int            `json:"crossover_points"`
	Selection      SelectionMethod `json:"selection"`
	TournamentSize int             `json:"tournament_size"`

	// EvolveInterval gates scheduled evolution.
	EvolveInterval time.Duration `json:"evolve_interval"`

	// FitnessThreshold stops evolution early once the champion reaches it.
	// Zero disables the threshold stop.
	FitnessThreshold float64 `json:"fitness_threshold"`

	// PlateauGenerations stops evolution after this many generations
	// without champion improvement. Zero disables the plateau stop.
	PlateauGenerations int `json:"plateau_generations"`

	// SampleWindow bounds the live fitness-data buffer.
	SampleWindow int `json:"sample_window"`

	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns a default optimizer configuration.
func DefaultConfig() Config {
	return Config{
		PopulationSize:     50,
		EliteCount:         4,
		MutationRate:       0.1,
		CrossoverPoints:    1,
		Selection:          SelectionTournament,
		TournamentSize:     3,
		EvolveInterval:     5 * time.Minute,
		PlateauGenerations: 20,
		SampleWindow:       256,
	}
}

// Optimizer evolves a population of configuration candidates on its own
// schedule. It never blocks the monitoring path and never mutates live
// configuration: champions are only proposed through the callback.
type Optimizer struct {
	config  Config
	fitness FitnessFunc

	mu         sync.Mutex
	rng        *rand.Rand
	population *Population
	generation int
	champion   *Chromosome
	plateau    int
	converged  bool
	anomaly    bool
	samples    []Sample
	lastEvolve time.Time

	onChampion func(*Chromosome)
	snapshots  SnapshotStore

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	kick    chan struct{}
}

// NewOptimizer creates an optimizer with a random initial population drawn
// from the gene template.
func NewOptimizer(config Config, template []Gene, fitness FitnessFunc) (*Optimizer, error) {
	if fitness == nil {
		return nil, ErrNilFitness
	}
	if len(template) == 0 {
		return nil, ErrEmptyTemplate
	}
	if config.PopulationSize <= 0 {
		config.PopulationSize = DefaultConfig().PopulationSize
	}
	if config.SampleWindow <= 0 {
		config.SampleWindow = DefaultConfig().SampleWindow
	}
	if config.EvolveInterval <= 0 {
		config.EvolveInterval = DefaultConfig().EvolveInterval
	}
	if config.MutationRate < 0 || config.MutationRate > 1 {
		return nil, ErrInvalidMutationRate
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	for _, g := range template {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}

	pop, err := NewPopulation(template, config.PopulationSize, config.EliteCount, rng)
	if err != nil {
		return nil, err
	}

	return &Optimizer{
		config:     config,
		fitness:    fitness,
		rng:        rng,
		population: pop,
		kick:       make(chan struct{}, 1),
	}, nil
}

// SetChampionCallback registers the proposal sink for improved champions.
func (o *Optimizer) SetChampionCallback(fn func(*Chromosome)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChampion = fn
}

// SetSnapshotStore enables population snapshot persistence.
func (o *Optimizer) SetSnapshotStore(s SnapshotStore) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = s
}

// UpdateFitnessData feeds one live sample into the fitness buffer. A
// Critical or Failed classification arms the anomaly trigger, which lets
// the next evolution run ahead of schedule and past convergence.
func (o *Optimizer) UpdateFitnessData(metrics monitoring.HealthMetrics, status monitoring.HealthStatus) {
	o.mu.Lock()
	o.samples = append(o.samples, Sample{Metrics: metrics, Status: status})
	if len(o.samples) > o.config.SampleWindow {
		o.samples = o.samples[1:]
	}

	anomalous := status.Level == monitoring.StatusCritical || status.Level == monitoring.StatusFailed
	if anomalous {
		o.anomaly = true
	}
	o.mu.Unlock()

	if anomalous {
		select {
		case o.kick <- struct{}{}:
		default:
		}
	}
}

// ShouldEvolve reports whether a scheduled generation is due. An anomaly
// always permits evolution; otherwise convergence (threshold or plateau
// stop) suppresses it and the interval gates it.
func (o *Optimizer) ShouldEvolve() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.anomaly {
		return true
	}
	if o.converged {
		return false
	}
	return time.Since(o.lastEvolve) >= o.config.EvolveInterval
}

// Evolve advances exactly one generation and returns the new champion if
// it improves on the prior one. The bool result reports improvement.
func (o *Optimizer) Evolve() (*Chromosome, bool, error) {
	o.mu.Lock()

	samples := make([]Sample, len(o.samples))
	copy(samples, o.samples)

	o.evaluate(samples)

	ranked := o.population.ranked()
	best := ranked[0]

	next := make([]*Chromosome, 0, o.population.Size())
	for i := 0; i < o.population.EliteCount() && i < len(ranked); i++ {
		next = append(next, ranked[i].Copy())
	}

	for len(next) < o.population.Size() {
		p1 := selectParent(o.config.Selection, ranked, o.config.TournamentSize, o.rng)
		p2 := selectParent(o.config.Selection, ranked, o.config.TournamentSize, o.rng)

		c1, c2, err := Crossover(p1, p2, o.config.CrossoverPoints, o.rng)
		if err != nil {
			o.mu.Unlock()
			return nil, false, err
		}

		MutateChromosome(c1, o.config.MutationRate, o.rng)
		MutateChromosome(c2, o.config.MutationRate, o.rng)

		next = append(next, c1)
		if len(next) < o.population.Size() {
			next = append(next, c2)
		}
	}

	o.population.replace(next)
	o.generation++
	o.lastEvolve = time.Now()
	o.anomaly = false

	improved := o.champion == nil || best.Fitness > o.champion.Fitness
	if improved {
		o.champion = best.Copy()
		o.plateau = 0
	} else {
		o.plateau++
	}

	if o.config.FitnessThreshold > 0 && o.champion != nil && o.champion.Fitness >= o.config.FitnessThreshold {
		o.converged = true
		log.Infof("optimizer converged at generation %d: champion fitness %.4f reached threshold", o.generation, o.champion.Fitness)
	}
	if o.config.PlateauGenerations > 0 && o.plateau >= o.config.PlateauGenerations {
		o.converged = true
		log.Infof("optimizer converged at generation %d: plateau of %d generations", o.generation, o.plateau)
	}

	generation := o.generation
	champion := o.champion.Copy()
	onChampion := o.onChampion
	snapshots := o.snapshots
	snapshot := o.population.Chromosomes()
	o.mu.Unlock()

	log.Debugf("generation %d evolved: best fitness %.4f, improved=%v", generation, best.Fitness, improved)

	if snapshots != nil {
		if err := snapshots.SavePopulationSnapshot(context.Background(), generation, snapshot); err != nil {
			log.Warnf("failed to persist population snapshot for generation %d: %v", generation, err)
		}
	}

	if improved && onChampion != nil {
		onChampion(champion.Copy())
	}

	if !improved {
		return nil, false, nil
	}
	return champion, true, nil
}

// evaluate scores every chromosome. Must be called with o.mu held.
func (o *Optimizer) evaluate(samples []Sample) {
	for _, c := range o.population.chromosomes {
		c.Fitness = o.safeFitness(c, samples)
	}
}

// safeFitness isolates fitness-function failures to one chromosome: an
// error or panic scores zero and the chromosome stays in the population.
func (o *Optimizer) safeFitness(c *Chromosome, samples []Sample) (fitness float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("fitness function panicked, scoring chromosome zero: %v", r)
			fitness = 0
		}
	}()

	f, err := o.fitness(c, samples)
	if err != nil {
		log.Debugf("fitness evaluation failed, scoring chromosome zero: %v", err)
		return 0
	}
	if f < 0 {
		return 0
	}
	return f
}

// RestorePopulation replaces the current generation with a persisted
// snapshot, typically loaded through a SnapshotStore on startup. The
// snapshot must keep the population size and a uniform shape.
func (o *Optimizer) RestorePopulation(generation int, chromosomes []*Chromosome) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(chromosomes) != o.population.Size() {
		return ErrPopulationTooSmall
	}
	for _, c := range chromosomes {
		if !chromosomes[0].SameShape(c) {
			return ErrShapeMismatch
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}

	restored := make([]*Chromosome, len(chromosomes))
	for i, c := range chromosomes {
		restored[i] = c.Copy()
	}
	o.population = newPopulationFrom(restored, o.population.EliteCount())
	o.generation = generation
	o.champion = nil
	o.plateau = 0
	o.converged = false
	return nil
}

// Champion returns a copy of the best chromosome found so far, or nil.
func (o *Optimizer) Champion() *Chromosome {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.champion == nil {
		return nil
	}
	return o.champion.Copy()
}

// Generation returns the number of generations evolved.
func (o *Optimizer) Generation() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Population returns deep copies of the current generation.
func (o *Optimizer) Population() []*Chromosome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.population.Chromosomes()
}

// Start launches the background evolution loop.
func (o *Optimizer) Start() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true

	o.wg.Add(1)
	go o.loop(ctx)

	log.Infof("optimizer started, interval=%v", o.config.EvolveInterval)
	return nil
}

// Stop cancels the evolution loop and waits for it to drain.
func (o *Optimizer) Stop() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if !o.running {
		return nil
	}

	o.cancel()
	o.wg.Wait()
	o.running = false

	log.Info("optimizer stopped")
	return nil
}

func (o *Optimizer) loop(ctx context.Context) {
	defer o.wg.Done()

	// Tick well below the evolve interval so anomaly triggers and interval
	// adjustments are picked up promptly; ShouldEvolve does the gating.
	tick := o.config.EvolveInterval / 4
	if tick < time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
		case <-ticker.C:
		}

		if !o.ShouldEvolve() {
			continue
		}
		if _, _, err := o.Evolve(); err != nil {
			log.Errorf("evolution step failed: %v", err)
		}
	}
}
