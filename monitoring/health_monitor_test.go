package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestThresholdsClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name    string
		metrics HealthMetrics
		want    StatusLevel
	}{
		{"healthy", HealthMetrics{ErrorRate: 0.01, ResponseTime: 50 * time.Millisecond, CPU: 0.3, Memory: 0.3}, StatusHealthy},
		{"degraded error rate", HealthMetrics{ErrorRate: 0.1}, StatusDegraded},
		{"critical error rate", HealthMetrics{ErrorRate: 0.3}, StatusCritical},
		{"failed error rate", HealthMetrics{ErrorRate: 0.6}, StatusFailed},
		{"degraded latency", HealthMetrics{ResponseTime: 300 * time.Millisecond}, StatusDegraded},
		{"critical latency", HealthMetrics{ResponseTime: 2 * time.Second}, StatusCritical},
		{"failed latency", HealthMetrics{ResponseTime: 6 * time.Second}, StatusFailed},
		{"degraded cpu", HealthMetrics{CPU: 0.85}, StatusDegraded},
		{"critical memory", HealthMetrics{Memory: 0.99}, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := th.Classify(tt.metrics)
			assert.Equal(t, tt.want, got.Level)
			if tt.want == StatusHealthy {
				assert.Empty(t, got.Reason)
			} else {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestClassifyWorstViolationWins(t *testing.T) {
	th := DefaultThresholds()

	// Degraded CPU plus critical error rate classifies critical.
	status := th.Classify(HealthMetrics{CPU: 0.85, ErrorRate: 0.3})
	assert.Equal(t, StatusCritical, status.Level)
	assert.Contains(t, status.Reason, "error rate")

	// A failure-level error rate outranks a critical latency.
	status = th.Classify(HealthMetrics{ResponseTime: 2 * time.Second, ErrorRate: 0.6})
	assert.Equal(t, StatusFailed, status.Level)
	assert.Contains(t, status.Reason, "error rate")
}

func testMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:             10 * time.Millisecond,
		FetchTimeout:         50 * time.Millisecond,
		MaxConsecutiveMisses: 3,
		HistorySize:          8,
		Thresholds:           DefaultThresholds(),
	}
}

func TestMonitorEmitsStatusChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	var errorRate atomic.Value
	errorRate.Store(0.0)
	source := MetricsSourceFunc(func(_ context.Context, component string) (HealthMetrics, error) {
		return HealthMetrics{ErrorRate: errorRate.Load().(float64), Timestamp: time.Now()}, nil
	})

	m := NewMonitor(testMonitorConfig(), source)
	m.Register("bitswap")

	require.NoError(t, m.Start())
	defer func() { require.NoError(t, m.Stop()) }()

	// First classification is itself a change (unknown -> healthy).
	change := waitForChange(t, m.Events())
	assert.Equal(t, "bitswap", change.Component)
	assert.Equal(t, StatusHealthy, change.To.Level)

	errorRate.Store(0.3)
	change = waitForChange(t, m.Events())
	assert.Equal(t, StatusCritical, change.To.Level)
	assert.Equal(t, StatusHealthy, change.From.Level)

	status, ok := m.Status("bitswap")
	require.True(t, ok)
	assert.Equal(t, StatusCritical, status.Level)
}

func TestMonitorUnchangedStatusNotSignaled(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		return HealthMetrics{}, nil
	})

	m := NewMonitor(testMonitorConfig(), source)
	m.Register("blockstore")

	require.NoError(t, m.Start())
	defer func() { require.NoError(t, m.Stop()) }()

	waitForChange(t, m.Events())

	select {
	case change := <-m.Events():
		t.Fatalf("unexpected status change event: %+v", change)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMonitorConsecutiveMissesDegradeToCritical(t *testing.T) {
	defer goleak.VerifyNone(t)

	var failing atomic.Bool
	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		if failing.Load() {
			return HealthMetrics{}, errors.New("connection refused")
		}
		return HealthMetrics{}, nil
	})

	m := NewMonitor(testMonitorConfig(), source)
	m.Register("gateway")

	require.NoError(t, m.Start())
	defer func() { require.NoError(t, m.Stop()) }()

	change := waitForChange(t, m.Events())
	require.Equal(t, StatusHealthy, change.To.Level)

	failing.Store(true)
	change = waitForChange(t, m.Events())
	assert.Equal(t, StatusCritical, change.To.Level)
	assert.Contains(t, change.To.Reason, "misses")

	// Recovery: a successful sample resets the miss counter. The status
	// may pass through Failed if misses keep accumulating before the
	// source comes back.
	failing.Store(false)
	require.Eventually(t, func() bool {
		status, ok := m.Status("gateway")
		return ok && status.Level == StatusHealthy
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMonitorPersistentMissesEscalateToFailed(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		return HealthMetrics{}, errors.New("connection refused")
	})

	config := testMonitorConfig()
	config.MaxConsecutiveMisses = 2
	m := NewMonitor(config, source)
	m.Register("gateway")

	require.NoError(t, m.Start())
	defer func() { require.NoError(t, m.Stop()) }()

	change := waitForChange(t, m.Events())
	require.Equal(t, StatusCritical, change.To.Level)

	// Twice the miss limit without a sample escalates to Failed.
	change = waitForChange(t, m.Events())
	assert.Equal(t, StatusFailed, change.To.Level)
	assert.Contains(t, change.To.Reason, "misses")
}

func TestMonitorCheckNow(t *testing.T) {
	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		return HealthMetrics{ErrorRate: 0.6}, nil
	})

	m := NewMonitor(testMonitorConfig(), source)
	m.Register("api")

	status, err := m.CheckNow(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status.Level)

	_, err = m.CheckNow(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestMonitorSignals(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		return HealthMetrics{ErrorRate: 0.1}, nil
	})

	config := testMonitorConfig()
	config.Interval = time.Hour // only signal-driven checks
	m := NewMonitor(config, source)

	require.NoError(t, m.Start())
	defer func() { require.NoError(t, m.Stop()) }()

	require.NoError(t, m.Signal(ComponentUpdated{Component: "worker"}))
	require.NoError(t, m.Signal(CheckHealth{Component: "worker"}))

	change := waitForChange(t, m.Events())
	assert.Equal(t, StatusDegraded, change.To.Level)

	// Relaxed thresholds reclassify the same metrics as healthy.
	relaxed := DefaultThresholds()
	relaxed.ErrorRateDegraded = 0.5
	require.NoError(t, m.Signal(UpdateAlertThresholds{Thresholds: relaxed}))
	require.NoError(t, m.Signal(CheckHealth{Component: "worker"}))

	change = waitForChange(t, m.Events())
	assert.Equal(t, StatusHealthy, change.To.Level)

	require.NoError(t, m.Signal(ComponentUpdated{Component: "worker", Removed: true}))
	require.Eventually(t, func() bool {
		_, ok := m.Status("worker")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorHistoryBounded(t *testing.T) {
	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		return HealthMetrics{}, nil
	})

	config := testMonitorConfig()
	config.HistorySize = 4
	m := NewMonitor(config, source)
	m.Register("db")

	for i := 0; i < 10; i++ {
		_, err := m.CheckNow(context.Background(), "db")
		require.NoError(t, err)
	}

	assert.Len(t, m.MetricsHistory("db"), 4)
	assert.Len(t, m.StatusHistory("db"), 4)
}

func TestMonitorStats(t *testing.T) {
	source := MetricsSourceFunc(func(_ context.Context, component string) (HealthMetrics, error) {
		switch component {
		case "bad":
			return HealthMetrics{ErrorRate: 0.3}, nil
		case "dead":
			return HealthMetrics{ErrorRate: 0.9}, nil
		default:
			return HealthMetrics{}, nil
		}
	})

	m := NewMonitor(testMonitorConfig(), source)
	m.Register("good")
	m.Register("bad")
	m.Register("dead")
	m.Register("unknown")

	for _, name := range []string{"good", "bad", "dead"} {
		_, err := m.CheckNow(context.Background(), name)
		require.NoError(t, err)
	}

	stats := m.Stats()
	assert.Equal(t, 4, stats.TotalComponents)
	assert.Equal(t, 1, stats.HealthyComponents)
	assert.Equal(t, 1, stats.CriticalComponents)
	assert.Equal(t, 1, stats.FailedComponents)
	assert.Equal(t, 1, stats.UnknownComponents)
}

func TestMonitorStartTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := MetricsSourceFunc(func(context.Context, string) (HealthMetrics, error) {
		return HealthMetrics{}, nil
	})
	m := NewMonitor(testMonitorConfig(), source)

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrAlreadyRunning)
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func waitForChange(t *testing.T, events <-chan StatusChange) StatusChange {
	t.Helper()
	select {
	case change := <-events:
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status change")
		return StatusChange{}
	}
}
