package genetic

import "errors"

var (
	// ErrShapeMismatch is returned when crossover is attempted between
	// chromosomes of different gene count or per-position type.
	ErrShapeMismatch = errors.New("chromosomes have different shapes")

	// ErrPopulationTooSmall is returned for population sizes below two.
	ErrPopulationTooSmall = errors.New("population size must be at least 2")

	// ErrInvalidEliteCount is returned when elite count is negative or
	// exceeds the population size.
	ErrInvalidEliteCount = errors.New("elite count must be between 0 and population size")

	// ErrInvalidMutationRate is returned for rates outside [0, 1].
	ErrInvalidMutationRate = errors.New("mutation rate must be between 0 and 1")

	// ErrNilFitness is returned when no fitness function is injected.
	ErrNilFitness = errors.New("fitness function is required")

	// ErrEmptyTemplate is returned when the gene template has no genes.
	ErrEmptyTemplate = errors.New("gene template is empty")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("optimizer already running")
)
