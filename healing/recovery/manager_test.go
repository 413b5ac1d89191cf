package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunusovt983/selfheal/monitoring"
)

// scriptedExecutor records every strategy execution and answers from a
// per-strategy script.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []Strategy
	results map[Strategy]error
	block   chan struct{}
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{results: make(map[Strategy]error)}
}

func (e *scriptedExecutor) ExecuteStrategy(ctx context.Context, component string, strategy Strategy) error {
	e.mu.Lock()
	e.calls = append(e.calls, strategy)
	err := e.results[strategy]
	block := e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (e *scriptedExecutor) callLog() []Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Strategy, len(e.calls))
	copy(out, e.calls)
	return out
}

func testPlan() Plan {
	return Plan{
		FailureType: "component_failed",
		Primary:     StrategyRestart,
		Fallbacks:   []Strategy{StrategyReconfigure},
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
	}
}

func criticalStatus() monitoring.HealthStatus {
	return monitoring.HealthStatus{Level: monitoring.StatusCritical, Reason: "error rate"}
}

func TestPlanValidation(t *testing.T) {
	assert.ErrorIs(t, Plan{}.Validate(), ErrEmptyFailureType)
	assert.ErrorIs(t, Plan{FailureType: "x", Primary: "reboot"}.Validate(), ErrInvalidStrategy)
	assert.ErrorIs(t, Plan{FailureType: "x", Primary: StrategyRestart, Fallbacks: []Strategy{"nope"}}.Validate(), ErrInvalidStrategy)
	assert.ErrorIs(t, Plan{FailureType: "x", Primary: StrategyRestart, MaxRetries: -1}.Validate(), ErrInvalidRetries)
	assert.NoError(t, testPlan().Validate())
}

func TestAddPlanRejectsDuplicates(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), newScriptedExecutor())

	require.NoError(t, m.AddPlan(testPlan()))
	assert.ErrorIs(t, m.AddPlan(testPlan()), ErrDuplicatePlan)

	// SetPlan replaces.
	replacement := testPlan()
	replacement.MaxRetries = 5
	require.NoError(t, m.SetPlan(replacement))
	assert.Equal(t, 5, m.Plans()["component_failed"].MaxRetries)

	require.NoError(t, m.RemovePlan("component_failed"))
	assert.ErrorIs(t, m.RemovePlan("component_failed"), ErrUnknownPlan)
}

func TestRecoveryPrimaryRetriesThenFallback(t *testing.T) {
	exec := newScriptedExecutor()
	exec.results[StrategyRestart] = errors.New("restart keeps failing")

	m := NewManager(DefaultManagerConfig(), exec)
	require.NoError(t, m.AddPlan(testPlan()))

	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	require.NoError(t, err)

	// Two consecutive primary failures are followed by exactly one
	// fallback attempt, never a third primary.
	assert.Equal(t, []Strategy{
		StrategyRestart, StrategyRestart,
		StrategyReconfigure,
	}, exec.callLog())

	history := m.History("bitswap")
	require.Len(t, history, 3)
	assert.False(t, history[0].Success)
	assert.True(t, history[2].Success)
	assert.NotEmpty(t, history[0].ID)
	assert.NotEmpty(t, history[0].Error)

	stats := m.GetStats()
	assert.Equal(t, uint64(3), stats.Attempts)
	assert.Equal(t, uint64(1), stats.Successes)
	assert.Equal(t, uint64(2), stats.Failures)
}

func TestRecoveryStopsOnFirstSuccess(t *testing.T) {
	exec := newScriptedExecutor()

	m := NewManager(DefaultManagerConfig(), exec)
	require.NoError(t, m.AddPlan(testPlan()))

	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	require.NoError(t, err)
	assert.Equal(t, []Strategy{StrategyRestart}, exec.callLog())
}

func TestRecoveryEscalatesWhenExhausted(t *testing.T) {
	exec := newScriptedExecutor()
	exec.results[StrategyRestart] = errors.New("down")
	exec.results[StrategyReconfigure] = errors.New("still down")

	m := NewManager(DefaultManagerConfig(), exec)
	require.NoError(t, m.AddPlan(testPlan()))

	var escalations []Escalation
	m.SetEscalationCallback(func(e Escalation) {
		escalations = append(escalations, e)
	})

	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.ErrorIs(t, err, ErrRecoveryExhausted)

	require.Len(t, escalations, 1)
	assert.Equal(t, "bitswap", escalations[0].Component)
	assert.Equal(t, "component_failed", escalations[0].FailureType)
	assert.Len(t, escalations[0].Attempts, 3)
	assert.Equal(t, uint64(1), m.GetStats().Escalations)
}

func TestRecoveryEscalatesWithoutPlan(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), newScriptedExecutor())

	var escalated bool
	m.SetEscalationCallback(func(Escalation) { escalated = true })

	err := m.RequestRecovery(context.Background(), "bitswap", "unmapped_failure", criticalStatus())
	assert.ErrorIs(t, err, ErrRecoveryExhausted)
	assert.True(t, escalated)
}

func TestRecoverySingleFlightPerComponent(t *testing.T) {
	exec := newScriptedExecutor()
	exec.block = make(chan struct{})

	m := NewManager(DefaultManagerConfig(), exec)
	require.NoError(t, m.AddPlan(testPlan()))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	}()

	require.Eventually(t, func() bool {
		return len(exec.callLog()) == 1
	}, time.Second, 5*time.Millisecond)

	// Same component is rejected; another component proceeds independently.
	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.ErrorIs(t, err, ErrRecoveryInFlight)

	close(exec.block)
	require.NoError(t, <-firstDone)

	err = m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	require.NoError(t, err)
}

func TestRecoveryAttemptTimeout(t *testing.T) {
	exec := newScriptedExecutor()
	exec.block = make(chan struct{}) // never released; attempts time out

	config := DefaultManagerConfig()
	config.AttemptTimeout = 20 * time.Millisecond

	m := NewManager(config, exec)
	plan := testPlan()
	plan.MaxRetries = 0
	plan.Fallbacks = nil
	require.NoError(t, m.AddPlan(plan))

	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.ErrorIs(t, err, ErrRecoveryExhausted)

	history := m.History("bitswap")
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Contains(t, history[0].Error, "context deadline exceeded")
}

func TestRecoveryVerification(t *testing.T) {
	exec := newScriptedExecutor()
	m := NewManager(DefaultManagerConfig(), exec)
	require.NoError(t, m.AddPlan(testPlan()))

	verdict := monitoring.HealthStatus{Level: monitoring.StatusCritical}
	m.SetVerifier(verifierFunc(func(ctx context.Context, component string) (monitoring.HealthStatus, error) {
		return verdict, nil
	}))

	// Strategy succeeds but the component is still critical.
	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.ErrorIs(t, err, ErrRecoveryExhausted)

	verdict = monitoring.HealthStatus{Level: monitoring.StatusHealthy}
	err = m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.NoError(t, err)
}

type verifierFunc func(ctx context.Context, component string) (monitoring.HealthStatus, error)

func (f verifierFunc) CheckNow(ctx context.Context, component string) (monitoring.HealthStatus, error) {
	return f(ctx, component)
}

func TestPauseAfterEscalation(t *testing.T) {
	exec := newScriptedExecutor()
	exec.results[StrategyRestart] = errors.New("down")
	exec.results[StrategyReconfigure] = errors.New("down")

	config := DefaultManagerConfig()
	config.PauseAfterEscalation = true

	m := NewManager(config, exec)
	require.NoError(t, m.AddPlan(testPlan()))

	err := m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	require.ErrorIs(t, err, ErrRecoveryExhausted)

	err = m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.ErrorIs(t, err, ErrRecoveryPaused)

	// Other components are unaffected by the pause.
	exec.results[StrategyRestart] = nil
	err = m.RequestRecovery(context.Background(), "gateway", "component_failed", criticalStatus())
	assert.NoError(t, err)

	m.Acknowledge("bitswap")
	err = m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus())
	assert.NoError(t, err)
}

func TestHistoryBounded(t *testing.T) {
	exec := newScriptedExecutor()

	config := DefaultManagerConfig()
	config.HistoryLimit = 3

	m := NewManager(config, exec)
	plan := testPlan()
	plan.MaxRetries = 0
	require.NoError(t, m.AddPlan(plan))

	for i := 0; i < 5; i++ {
		require.NoError(t, m.RequestRecovery(context.Background(), "bitswap", "component_failed", criticalStatus()))
	}
	assert.Len(t, m.History("bitswap"), 3)
}

func TestRecoveryHonorsContextCancellation(t *testing.T) {
	exec := newScriptedExecutor()
	exec.results[StrategyRestart] = errors.New("down")

	m := NewManager(DefaultManagerConfig(), exec)
	plan := testPlan()
	plan.RetryDelay = time.Hour
	require.NoError(t, m.AddPlan(plan))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.RequestRecovery(ctx, "bitswap", "component_failed", criticalStatus())
	}()

	require.Eventually(t, func() bool {
		return len(exec.callLog()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
