package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/yunusovt983/selfheal/monitoring"
)

var log = logging.Logger("selfheal/recovery")

// HealthVerifier re-checks a component's health after a strategy succeeds.
// The monitoring.Monitor satisfies this interface.
type HealthVerifier interface {
	CheckNow(ctx context.Context, component string) (monitoring.HealthStatus, error)
}

// Escalation is emitted to the external coordination/alerting boundary
// when automated recovery gives up. The core does not resolve manual
// interventions itself.
type Escalation struct {
	Component   string    `json:"component"`
	FailureType string    `json:"failure_type"`
	Attempts    []Result  `json:"attempts"`
	Timestamp   time.Time `json:"timestamp"`
}

// Persister appends recovery results to durable history.
type Persister interface {
	SaveRecoveryResult(ctx context.Context, result Result) error
}

// ManagerConfig holds configuration for the recovery manager.
type ManagerConfig struct {
	// AttemptTimeout bounds one strategy execution. An overrun counts as a
	// failed attempt, not a crash.
	AttemptTimeout time.Duration

	// HistoryLimit bounds the in-memory result history per component.
	HistoryLimit int

	// PauseAfterEscalation blocks further automated recovery for a
	// component after escalation until Acknowledge is called.
	PauseAfterEscalation bool
}

// DefaultManagerConfig returns a default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AttemptTimeout: 30 * time.Second,
		HistoryLimit:   256,
	}
}

// Manager owns the failure-type -> plan map and drives recovery execution.
// At most one recovery is in flight per component at a time.
type Manager struct {
	config   ManagerConfig
	executor Executor

	mu       sync.RWMutex
	plans    map[string]Plan
	active   map[string]struct{}
	paused   map[string]struct{}
	history  map[string][]Result
	verifier HealthVerifier

	onEscalation func(Escalation)
	persister    Persister

	stats Stats
}

// Stats aggregates recovery activity.
type Stats struct {
	Attempts    uint64 `json:"attempts"`
	Successes   uint64 `json:"successes"`
	Failures    uint64 `json:"failures"`
	Escalations uint64 `json:"escalations"`
}

// NewManager creates a recovery manager around the host's executor.
func NewManager(config ManagerConfig, executor Executor) *Manager {
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = DefaultManagerConfig().AttemptTimeout
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultManagerConfig().HistoryLimit
	}

	return &Manager{
		config:   config,
		executor: executor,
		plans:    make(map[string]Plan),
		active:   make(map[string]struct{}),
		paused:   make(map[string]struct{}),
		history:  make(map[string][]Result),
	}
}

// SetVerifier wires the post-recovery health re-check.
func (m *Manager) SetVerifier(v HealthVerifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifier = v
}

// SetEscalationCallback wires the manual-intervention sink.
func (m *Manager) SetEscalationCallback(fn func(Escalation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEscalation = fn
}

// SetPersister enables durable result history.
func (m *Manager) SetPersister(p Persister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persister = p
}

// AddPlan registers a plan. Duplicate failure types are rejected; use
// SetPlan to replace.
func (m *Manager) AddPlan(plan Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plans[plan.FailureType]; exists {
		return ErrDuplicatePlan
	}
	m.plans[plan.FailureType] = plan
	log.Debugf("recovery plan added for failure type %s", plan.FailureType)
	return nil
}

// SetPlan registers or replaces a plan; last write wins.
func (m *Manager) SetPlan(plan Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.FailureType] = plan
	return nil
}

// RemovePlan deletes a plan.
func (m *Manager) RemovePlan(failureType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plans[failureType]; !exists {
		return ErrUnknownPlan
	}
	delete(m.plans, failureType)
	return nil
}

// Plans returns a copy of the registered plans.
func (m *Manager) Plans() map[string]Plan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Plan, len(m.plans))
	for k, v := range m.plans {
		out[k] = v
	}
	return out
}

// History returns a copy of the recorded attempts for a component.
func (m *Manager) History(component string) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := m.history[component]
	out := make([]Result, len(results))
	copy(out, results)
	return out
}

// GetStats returns aggregate recovery statistics.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Acknowledge clears the escalation pause for a component, re-enabling
// automated recovery.
func (m *Manager) Acknowledge(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paused, component)
	log.Infof("escalation acknowledged for component %s", component)
}

// RequestRecovery is the entry point triggered on Critical/Failed status.
// It runs the plan for the failure type to completion: the primary
// strategy with bounded retries, then each fallback once, then
// escalation. A second request for a component with a recovery in flight
// is rejected with ErrRecoveryInFlight.
func (m *Manager) RequestRecovery(ctx context.Context, component, failureType string, status monitoring.HealthStatus) error {
	m.mu.Lock()
	if _, paused := m.paused[component]; paused {
		m.mu.Unlock()
		return ErrRecoveryPaused
	}
	if _, busy := m.active[component]; busy {
		m.mu.Unlock()
		return ErrRecoveryInFlight
	}
	m.active[component] = struct{}{}
	plan, hasPlan := m.plans[failureType]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.active, component)
		m.mu.Unlock()
	}()

	log.Infof("recovery requested for %s (failure type %s, status %s)", component, failureType, status)

	if !hasPlan {
		log.Warnf("no recovery plan for failure type %s, escalating immediately", failureType)
		m.escalate(component, failureType, nil)
		return ErrRecoveryExhausted
	}

	var attempts []Result

	// Primary strategy: at most MaxRetries attempts total; zero means a
	// single attempt.
	primaryTries := plan.MaxRetries
	if primaryTries < 1 {
		primaryTries = 1
	}
	for try := 0; try < primaryTries; try++ {
		if try > 0 && plan.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(plan.RetryDelay):
			}
		}

		result := m.attempt(ctx, component, plan.Primary)
		attempts = append(attempts, result)
		if result.Success {
			return m.verify(ctx, component)
		}
	}

	// Fallback strategies in declared order, once each.
	for _, strategy := range plan.Fallbacks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result := m.attempt(ctx, component, strategy)
		attempts = append(attempts, result)
		if result.Success {
			return m.verify(ctx, component)
		}
	}

	m.escalate(component, failureType, attempts)
	return ErrRecoveryExhausted
}

// attempt executes one strategy with the attempt timeout and records the
// result in history regardless of outcome.
func (m *Manager) attempt(ctx context.Context, component string, strategy Strategy) Result {
	attemptCtx, cancel := context.WithTimeout(ctx, m.config.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := m.executor.ExecuteStrategy(attemptCtx, component, strategy)
	end := time.Now()

	result := Result{
		ID:        uuid.NewString(),
		Component: component,
		Strategy:  strategy,
		Success:   err == nil,
		Duration:  end.Sub(start),
		Start:     start,
		End:       end,
	}
	if err != nil {
		result.Error = err.Error()
	}

	m.record(result)

	if err != nil {
		log.Warnf("recovery strategy %s failed for %s after %v: %v", strategy, component, result.Duration, err)
	} else {
		log.Infof("recovery strategy %s succeeded for %s in %v", strategy, component, result.Duration)
	}
	return result
}

// verify triggers an immediate health re-check before declaring the
// recovery verified-successful. A missing verifier counts as verified.
func (m *Manager) verify(ctx context.Context, component string) error {
	m.mu.RLock()
	verifier := m.verifier
	m.mu.RUnlock()

	if verifier == nil {
		return nil
	}

	status, err := verifier.CheckNow(ctx, component)
	if err != nil {
		log.Warnf("post-recovery health check failed for %s: %v", component, err)
		return err
	}
	if status.Level == monitoring.StatusCritical || status.Level == monitoring.StatusFailed {
		log.Warnf("recovery for %s not verified: component still %s", component, status)
		return ErrRecoveryExhausted
	}

	log.Infof("recovery verified for %s: %s", component, status)
	return nil
}

func (m *Manager) record(result Result) {
	m.mu.Lock()
	m.stats.Attempts++
	if result.Success {
		m.stats.Successes++
	} else {
		m.stats.Failures++
	}

	results := append(m.history[result.Component], result)
	if len(results) > m.config.HistoryLimit {
		results = results[len(results)-m.config.HistoryLimit:]
	}
	m.history[result.Component] = results
	persister := m.persister
	m.mu.Unlock()

	if persister != nil {
		if err := persister.SaveRecoveryResult(context.Background(), result); err != nil {
			log.Warnf("failed to persist recovery result %s: %v", result.ID, err)
		}
	}
}

func (m *Manager) escalate(component, failureType string, attempts []Result) {
	m.mu.Lock()
	m.stats.Escalations++
	if m.config.PauseAfterEscalation {
		m.paused[component] = struct{}{}
	}
	onEscalation := m.onEscalation
	m.mu.Unlock()

	log.Errorf("recovery exhausted for %s (failure type %s), escalating to manual intervention", component, failureType)

	if onEscalation != nil {
		onEscalation(Escalation{
			Component:   component,
			FailureType: failureType,
			Attempts:    attempts,
			Timestamp:   time.Now(),
		})
	}
}
