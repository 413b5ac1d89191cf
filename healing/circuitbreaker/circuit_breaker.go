// Package circuitbreaker isolates failing call paths. Each named protected
// operation gets a breaker with a sliding window of recent outcomes; once
// the failure rate in the window crosses the configured threshold the
// breaker opens and calls fail fast until a half-open probe budget proves
// the operation has recovered.
package circuitbreaker

import (
	"context"
	"math"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("selfheal/circuitbreaker")

// State represents the current state of a circuit breaker.
type State int

const (
	// StateClosed - calls pass through, outcomes are counted.
	StateClosed State = iota
	// StateOpen - calls are rejected immediately.
	StateOpen
	// StateHalfOpen - a limited number of probe calls test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds configuration parameters for a circuit breaker.
type Config struct {
	// WindowSize is the number of most-recent outcomes kept while closed.
	WindowSize int

	// MinRequestThreshold is the minimum number of outcomes in the window
	// before the failure rate is considered meaningful.
	MinRequestThreshold int

	// FailureThreshold is the failure-rate fraction (0..1) that opens the
	// breaker once MinRequestThreshold is met.
	FailureThreshold float64

	// ResetTimeout is the open period after which the breaker half-opens.
	ResetTimeout time.Duration

	// HalfOpenRequestLimit is the probe budget while half-open.
	HalfOpenRequestLimit int

	// HalfOpenSuccessThreshold is the success fraction among completed
	// probes required to close the breaker.
	HalfOpenSuccessThreshold float64

	// IsSuccessful decides whether an error counts as a failure. Nil means
	// any non-nil error is a failure.
	IsSuccessful func(err error) bool

	// OnStateChange is called on every state transition.
	OnStateChange func(name string, from State, to State)
}

// DefaultConfig returns a default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:               20,
		MinRequestThreshold:      10,
		FailureThreshold:         0.5,
		ResetTimeout:             30 * time.Second,
		HalfOpenRequestLimit:     5,
		HalfOpenSuccessThreshold: 0.6,
	}
}

// window is a ring of the most-recent call outcomes.
type window struct {
	outcomes []bool // true = failure
	size     int
	next     int
	count    int
	failures int
}

func newWindow(size int) *window {
	return &window{outcomes: make([]bool, size), size: size}
}

func (w *window) record(failure bool) {
	if w.count == w.size {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.next] = failure
	if failure {
		w.failures++
	}
	w.next = (w.next + 1) % w.size
}

func (w *window) failureRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.count)
}

func (w *window) reset() {
	w.next = 0
	w.count = 0
	w.failures = 0
}

// Breaker is a circuit breaker for one named protected operation. State
// only changes through recorded call outcomes and the administrative
// Reset/ForceOpen operations; there is no direct external mutation.
type Breaker struct {
	name   string
	config Config

	mu         sync.Mutex
	state      State
	generation uint64
	window     *window
	openedAt   time.Time

	// Half-open probe accounting.
	probesStarted   int
	probesCompleted int
	probeSuccesses  int
}

// New creates a circuit breaker with the given configuration. Zero config
// fields fall back to DefaultConfig values.
func New(name string, config Config) *Breaker {
	def := DefaultConfig()
	if config.WindowSize <= 0 {
		config.WindowSize = def.WindowSize
	}
	if config.MinRequestThreshold <= 0 {
		config.MinRequestThreshold = def.MinRequestThreshold
	}
	if config.FailureThreshold <= 0 || config.FailureThreshold > 1 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.HalfOpenRequestLimit <= 0 {
		config.HalfOpenRequestLimit = def.HalfOpenRequestLimit
	}
	if config.HalfOpenSuccessThreshold <= 0 || config.HalfOpenSuccessThreshold > 1 {
		config.HalfOpenSuccessThreshold = def.HalfOpenSuccessThreshold
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = func(err error) bool { return err == nil }
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		window: newWindow(config.WindowSize),
	}
}

// Execute runs fn through the breaker. It returns ErrCircuitOpen without
// invoking fn when the breaker rejects the call. Safe for concurrent use:
// the admission decision and the outcome count are updated as a unit.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterRequest(generation, false)
			panic(r)
		}
	}()

	result := fn()
	b.afterRequest(generation, b.config.IsSuccessful(result))
	return result
}

// Call is Execute with context plumbing for the operation body.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	return b.Execute(func() error { return fn(ctx) })
}

// Name returns the protected operation name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, applying the open->half-open timeout
// transition if due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// FailureRate returns the failure fraction of the current window.
func (b *Breaker) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window.failureRate()
}

// Reset administratively closes the breaker and clears the window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed, time.Now())
	b.window.reset()
}

// ForceOpen administratively opens the breaker; the reset timeout starts
// from now.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateOpen, time.Now())
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.currentState(now) {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.probesStarted >= b.config.HalfOpenRequestLimit {
			return b.generation, ErrCircuitOpen
		}
		b.probesStarted++
	}
	return b.generation, nil
}

func (b *Breaker) afterRequest(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)
	if b.generation != before {
		// The breaker transitioned while the call was in flight; the
		// outcome belongs to a stale generation and must not be counted.
		return
	}

	switch state {
	case StateClosed:
		b.window.record(!success)
		if b.window.count >= b.config.MinRequestThreshold &&
			b.window.failureRate() >= b.config.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.probesCompleted++
		if success {
			b.probeSuccesses++
		}
		b.evaluateProbes(now)
	}
}

// evaluateProbes decides the half-open outcome. The breaker closes once
// the completed probe budget meets the success threshold; it reopens as
// soon as enough probes have failed that the threshold is unreachable, or
// when the exhausted budget falls short.
func (b *Breaker) evaluateProbes(now time.Time) {
	limit := b.config.HalfOpenRequestLimit
	required := int(math.Ceil(float64(limit) * b.config.HalfOpenSuccessThreshold))
	if required < 1 {
		required = 1
	}

	failures := b.probesCompleted - b.probeSuccesses
	if failures > limit-required {
		// Unreachable threshold: a further probe failure budget no longer
		// exists, reopen without waiting for the remaining probes.
		b.setState(StateOpen, now)
		return
	}

	if b.probesCompleted >= limit {
		ratio := float64(b.probeSuccesses) / float64(b.probesCompleted)
		if ratio >= b.config.HalfOpenSuccessThreshold {
			b.setState(StateClosed, now)
		} else {
			b.setState(StateOpen, now)
		}
	}
}

// currentState applies the timed Open -> HalfOpen transition. Must be
// called with the mutex held.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.config.ResetTimeout {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

// setState performs a transition. Must be called with the mutex held.
func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.generation++

	switch state {
	case StateOpen:
		b.openedAt = now
	case StateHalfOpen:
		b.probesStarted = 0
		b.probesCompleted = 0
		b.probeSuccesses = 0
	case StateClosed:
		b.window.reset()
	}

	log.Infof("circuit breaker %q changed from %s to %s", b.name, prev, state)

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}
