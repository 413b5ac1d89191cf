// Package monitoring provides component health monitoring: it polls a
// metrics source, classifies each component into a health status using
// configurable thresholds, and emits status-change events for the rest of
// the self-healing core.
package monitoring

import (
	"context"
	"fmt"
	"time"
)

// HealthMetrics is an immutable snapshot of a component's health metrics
// at a single point in time.
type HealthMetrics struct {
	Timestamp    time.Time          `json:"timestamp"`
	CPU          float64            `json:"cpu"`
	Memory       float64            `json:"memory"`
	ResponseTime time.Duration      `json:"response_time"`
	ErrorRate    float64            `json:"error_rate"`
	Throughput   float64            `json:"throughput"`
	Custom       map[string]float64 `json:"custom,omitempty"`
}

// Clone returns a deep copy of the metrics snapshot.
func (m HealthMetrics) Clone() HealthMetrics {
	out := m
	if m.Custom != nil {
		out.Custom = make(map[string]float64, len(m.Custom))
		for k, v := range m.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// StatusLevel is the closed set of health classifications.
type StatusLevel int

const (
	StatusHealthy StatusLevel = iota
	StatusDegraded
	StatusCritical
	StatusFailed
)

func (s StatusLevel) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusDegraded:
		return "DEGRADED"
	case StatusCritical:
		return "CRITICAL"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// HealthStatus is the classification derived from the latest metrics plus
// recent history. Reason is empty for Healthy.
type HealthStatus struct {
	Level     StatusLevel `json:"level"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Healthy reports whether the status is the healthy classification.
func (s HealthStatus) Healthy() bool {
	return s.Level == StatusHealthy
}

func (s HealthStatus) String() string {
	if s.Reason == "" {
		return s.Level.String()
	}
	return fmt.Sprintf("%s (%s)", s.Level, s.Reason)
}

// MetricsSource supplies health metrics per component. Implementations are
// external to the core; a fetch error is treated as a missing sample by
// the monitor, not as a failed component.
type MetricsSource interface {
	GetMetrics(ctx context.Context, component string) (HealthMetrics, error)
}

// MetricsSourceFunc adapts a function to the MetricsSource interface.
type MetricsSourceFunc func(ctx context.Context, component string) (HealthMetrics, error)

func (f MetricsSourceFunc) GetMetrics(ctx context.Context, component string) (HealthMetrics, error) {
	return f(ctx, component)
}

// Thresholds configures health classification. No defaults are mandated by
// the core; DefaultThresholds gives a reasonable starting point that
// callers are expected to tune per component.
type Thresholds struct {
	// ErrorRate cutoffs (fraction of failing requests, 0..1).
	ErrorRateDegraded float64 `json:"error_rate_degraded"`
	ErrorRateCritical float64 `json:"error_rate_critical"`
	ErrorRateFailed   float64 `json:"error_rate_failed"`

	// ResponseTime cutoffs.
	ResponseTimeDegraded time.Duration `json:"response_time_degraded"`
	ResponseTimeCritical time.Duration `json:"response_time_critical"`
	ResponseTimeFailed   time.Duration `json:"response_time_failed"`

	// Resource usage cutoffs (fraction of capacity, 0..1).
	CPUDegraded    float64 `json:"cpu_degraded"`
	CPUCritical    float64 `json:"cpu_critical"`
	MemoryDegraded float64 `json:"memory_degraded"`
	MemoryCritical float64 `json:"memory_critical"`
}

// DefaultThresholds returns baseline classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRateDegraded:    0.05,
		ErrorRateCritical:    0.25,
		ErrorRateFailed:      0.50,
		ResponseTimeDegraded: 200 * time.Millisecond,
		ResponseTimeCritical: time.Second,
		ResponseTimeFailed:   5 * time.Second,
		CPUDegraded:          0.80,
		CPUCritical:          0.95,
		MemoryDegraded:       0.80,
		MemoryCritical:       0.95,
	}
}

// Classify derives a health status from a single metrics snapshot. The
// worst violated threshold wins; the returned reason names it.
func (t Thresholds) Classify(m HealthMetrics) HealthStatus {
	now := m.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	switch {
	case t.ErrorRateFailed > 0 && m.ErrorRate >= t.ErrorRateFailed:
		return HealthStatus{Level: StatusFailed, Reason: fmt.Sprintf("error rate %.2f above failure threshold %.2f", m.ErrorRate, t.ErrorRateFailed), Timestamp: now}
	case t.ResponseTimeFailed > 0 && m.ResponseTime >= t.ResponseTimeFailed:
		return HealthStatus{Level: StatusFailed, Reason: fmt.Sprintf("response time %v above failure threshold %v", m.ResponseTime, t.ResponseTimeFailed), Timestamp: now}
	case t.ErrorRateCritical > 0 && m.ErrorRate >= t.ErrorRateCritical:
		return HealthStatus{Level: StatusCritical, Reason: fmt.Sprintf("error rate %.2f above critical threshold %.2f", m.ErrorRate, t.ErrorRateCritical), Timestamp: now}
	case t.ResponseTimeCritical > 0 && m.ResponseTime >= t.ResponseTimeCritical:
		return HealthStatus{Level: StatusCritical, Reason: fmt.Sprintf("response time %v above critical threshold %v", m.ResponseTime, t.ResponseTimeCritical), Timestamp: now}
	case t.CPUCritical > 0 && m.CPU >= t.CPUCritical:
		return HealthStatus{Level: StatusCritical, Reason: fmt.Sprintf("cpu usage %.2f above critical threshold %.2f", m.CPU, t.CPUCritical), Timestamp: now}
	case t.MemoryCritical > 0 && m.Memory >= t.MemoryCritical:
		return HealthStatus{Level: StatusCritical, Reason: fmt.Sprintf("memory usage %.2f above critical threshold %.2f", m.Memory, t.MemoryCritical), Timestamp: now}
	case t.ErrorRateDegraded > 0 && m.ErrorRate >= t.ErrorRateDegraded:
		return HealthStatus{Level: StatusDegraded, Reason: fmt.Sprintf("error rate %.2f above threshold %.2f", m.ErrorRate, t.ErrorRateDegraded), Timestamp: now}
	case t.ResponseTimeDegraded > 0 && m.ResponseTime >= t.ResponseTimeDegraded:
		return HealthStatus{Level: StatusDegraded, Reason: fmt.Sprintf("response time %v above threshold %v", m.ResponseTime, t.ResponseTimeDegraded), Timestamp: now}
	case t.CPUDegraded > 0 && m.CPU >= t.CPUDegraded:
		return HealthStatus{Level: StatusDegraded, Reason: fmt.Sprintf("cpu usage %.2f above threshold %.2f", m.CPU, t.CPUDegraded), Timestamp: now}
	case t.MemoryDegraded > 0 && m.Memory >= t.MemoryDegraded:
		return HealthStatus{Level: StatusDegraded, Reason: fmt.Sprintf("memory usage %.2f above threshold %.2f", m.Memory, t.MemoryDegraded), Timestamp: now}
	default:
		return HealthStatus{Level: StatusHealthy, Timestamp: now}
	}
}
