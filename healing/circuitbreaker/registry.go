package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry manages one breaker per named protected operation. Unknown
// names are created lazily with the registry's default configuration.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config

	promRegistry *prometheus.Registry
	trips        *prometheus.CounterVec
	rejections   *prometheus.CounterVec
}

// NewRegistry creates a breaker registry with the given default config.
func NewRegistry(config Config) *Registry {
	promRegistry := prometheus.NewRegistry()

	r := &Registry{
		breakers:     make(map[string]*Breaker),
		config:       config,
		promRegistry: promRegistry,
	}

	r.trips = promauto.With(promRegistry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "selfheal",
		Subsystem: "circuitbreaker",
		Name:      "trips_total",
		Help:      "Total transitions into the open state per operation",
	}, []string{"operation"})

	r.rejections = promauto.With(promRegistry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "selfheal",
		Subsystem: "circuitbreaker",
		Name:      "rejections_total",
		Help:      "Total short-circuited calls per operation",
	}, []string{"operation"})

	return r
}

// Get returns the breaker for an operation, creating it if it does not
// exist yet.
func (r *Registry) Get(operation string) *Breaker {
	r.mu.RLock()
	b, exists := r.breakers[operation]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if b, exists := r.breakers[operation]; exists {
		return b
	}

	config := r.config
	userCallback := config.OnStateChange
	config.OnStateChange = func(name string, from, to State) {
		if to == StateOpen {
			r.trips.WithLabelValues(name).Inc()
		}
		if userCallback != nil {
			userCallback(name, from, to)
		}
	}

	b = New(operation, config)
	r.breakers[operation] = b

	log.Debugf("created circuit breaker for operation %s", operation)
	return b
}

// Execute runs fn through the named operation's breaker.
func (r *Registry) Execute(operation string, fn func() error) error {
	err := r.Get(operation).Execute(fn)
	if err == ErrCircuitOpen {
		r.rejections.WithLabelValues(operation).Inc()
	}
	return err
}

// State returns the state for an operation. Operations never seen return
// StateClosed without creating a breaker.
func (r *Registry) State(operation string) State {
	r.mu.RLock()
	b, exists := r.breakers[operation]
	r.mu.RUnlock()

	if !exists {
		return StateClosed
	}
	return b.State()
}

// States returns the state of every known breaker.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}

// Reset administratively closes the named breaker if it exists.
func (r *Registry) Reset(operation string) bool {
	r.mu.RLock()
	b, exists := r.breakers[operation]
	r.mu.RUnlock()

	if !exists {
		return false
	}
	b.Reset()
	return true
}

// ForceOpen administratively opens the named breaker, creating it first if
// needed.
func (r *Registry) ForceOpen(operation string) {
	r.Get(operation).ForceOpen()
}

// PrometheusRegistry returns the registry's metric registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.promRegistry
}
