package monitoring

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("selfheal/monitoring")

// Signal is a control message accepted by the monitor's signal channel.
// The set of signals is closed; signals to a single monitor are processed
// in FIFO order.
type Signal interface {
	isSignal()
}

// CheckHealth forces an immediate health check of one component.
type CheckHealth struct {
	Component string
}

// ComponentUpdated registers a component for monitoring, or removes it
// when Removed is set.
type ComponentUpdated struct {
	Component string
	Removed   bool
}

// AdjustMonitorRate changes the polling interval of the running loop.
type AdjustMonitorRate struct {
	Interval time.Duration
}

// UpdateAlertThresholds replaces the classification thresholds.
type UpdateAlertThresholds struct {
	Thresholds Thresholds
}

// Shutdown stops the monitoring loop.
type Shutdown struct{}

func (CheckHealth) isSignal()           {}
func (ComponentUpdated) isSignal()      {}
func (AdjustMonitorRate) isSignal()     {}
func (UpdateAlertThresholds) isSignal() {}
func (Shutdown) isSignal()              {}

// StatusChange is emitted when a component's classification changes
// between ticks. Redundant (unchanged) statuses are not signaled.
type StatusChange struct {
	Component string
	From      HealthStatus
	To        HealthStatus
	Metrics   HealthMetrics
}

// MonitorConfig holds configuration for the health monitor.
type MonitorConfig struct {
	// Interval is the polling period of the monitoring loop.
	Interval time.Duration

	// FetchTimeout bounds a single metrics fetch. A fetch that does not
	// complete in time counts as a miss.
	FetchTimeout time.Duration

	// MaxConsecutiveMisses is the number of consecutive missing samples
	// after which a component degrades to Critical.
	MaxConsecutiveMisses int

	// HistorySize bounds the per-component metrics and status ring buffers.
	HistorySize int

	// Thresholds drive status classification.
	Thresholds Thresholds
}

// DefaultMonitorConfig returns a default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:             10 * time.Second,
		FetchTimeout:         5 * time.Second,
		MaxConsecutiveMisses: 3,
		HistorySize:          128,
		Thresholds:           DefaultThresholds(),
	}
}

type componentState struct {
	name       string
	metrics    []HealthMetrics
	statuses   []HealthStatus
	last       HealthStatus
	haveStatus bool
	misses     int
}

// Monitor polls a MetricsSource for every registered component, classifies
// health, and emits status-change events.
type Monitor struct {
	config MonitorConfig
	source MetricsSource

	mu         sync.RWMutex
	components map[string]*componentState
	onChange   func(StatusChange)

	signals chan Signal
	events  chan StatusChange

	collector *HealthCollector

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a health monitor over the given metrics source.
func NewMonitor(config MonitorConfig, source MetricsSource) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultMonitorConfig().Interval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultMonitorConfig().FetchTimeout
	}
	if config.MaxConsecutiveMisses <= 0 {
		config.MaxConsecutiveMisses = DefaultMonitorConfig().MaxConsecutiveMisses
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultMonitorConfig().HistorySize
	}

	return &Monitor{
		config:     config,
		source:     source,
		components: make(map[string]*componentState),
		signals:    make(chan Signal, 64),
		events:     make(chan StatusChange, 64),
		collector:  NewHealthCollector(),
	}
}

// Start launches the monitoring loop. It is an error to start a running
// monitor twice.
func (m *Monitor) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop(ctx)

	log.Infof("health monitor started, interval=%v", m.config.Interval)
	return nil
}

// Stop cancels the monitoring loop and waits for it to drain.
func (m *Monitor) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.running = false

	log.Info("health monitor stopped")
	return nil
}

// Signal enqueues a control signal without blocking. It returns
// ErrSignalQueueFull when the queue cannot accept another signal.
func (m *Monitor) Signal(s Signal) error {
	select {
	case m.signals <- s:
		return nil
	default:
		return ErrSignalQueueFull
	}
}

// Events returns the status-change event stream. Events are dropped rather
// than blocking the monitoring loop when the consumer falls behind.
func (m *Monitor) Events() <-chan StatusChange {
	return m.events
}

// SetStatusChangeCallback sets a callback invoked on every status change,
// in addition to the event channel.
func (m *Monitor) SetStatusChangeCallback(fn func(StatusChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Register adds a component to the monitored set.
func (m *Monitor) Register(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.components[component]; ok {
		return
	}
	m.components[component] = &componentState{name: component}
	log.Debugf("registered component %s", component)
}

// Unregister removes a component from the monitored set.
func (m *Monitor) Unregister(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.components, component)
	m.collector.Remove(component)
}

// Status returns the latest classification for a component. The second
// return is false when the component has not produced a status yet.
func (m *Monitor) Status(component string) (HealthStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.components[component]
	if !ok || !cs.haveStatus {
		return HealthStatus{}, false
	}
	return cs.last, true
}

// AllStatuses returns the latest classification per component.
func (m *Monitor) AllStatuses() map[string]HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]HealthStatus, len(m.components))
	for name, cs := range m.components {
		if cs.haveStatus {
			out[name] = cs.last
		}
	}
	return out
}

// MetricsHistory returns a copy of the bounded metrics history.
func (m *Monitor) MetricsHistory(component string) []HealthMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.components[component]
	if !ok {
		return nil
	}
	out := make([]HealthMetrics, len(cs.metrics))
	copy(out, cs.metrics)
	return out
}

// StatusHistory returns a copy of the bounded status history.
func (m *Monitor) StatusHistory(component string) []HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.components[component]
	if !ok {
		return nil
	}
	out := make([]HealthStatus, len(cs.statuses))
	copy(out, cs.statuses)
	return out
}

// CheckNow performs a synchronous health check of one component and
// returns the resulting status. Used by the recovery manager to verify a
// recovery before declaring it successful.
func (m *Monitor) CheckNow(ctx context.Context, component string) (HealthStatus, error) {
	m.mu.RLock()
	_, ok := m.components[component]
	m.mu.RUnlock()
	if !ok {
		return HealthStatus{}, ErrUnknownComponent
	}

	m.checkComponent(ctx, component)

	status, ok := m.Status(component)
	if !ok {
		return HealthStatus{}, ErrNoSample
	}
	return status, nil
}

// Collector returns the prometheus collector exporting per-component
// health metrics.
func (m *Monitor) Collector() *HealthCollector {
	return m.collector
}

// Stats returns aggregate counts over all monitored components.
func (m *Monitor) Stats() HealthStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := HealthStats{TotalComponents: len(m.components)}
	for _, cs := range m.components {
		if !cs.haveStatus {
			stats.UnknownComponents++
			continue
		}
		switch cs.last.Level {
		case StatusHealthy:
			stats.HealthyComponents++
		case StatusDegraded:
			stats.DegradedComponents++
		case StatusCritical:
			stats.CriticalComponents++
		case StatusFailed:
			stats.FailedComponents++
		}
	}
	return stats
}

// HealthStats provides aggregate health statistics.
type HealthStats struct {
	TotalComponents    int `json:"total_components"`
	HealthyComponents  int `json:"healthy_components"`
	DegradedComponents int `json:"degraded_components"`
	CriticalComponents int `json:"critical_components"`
	FailedComponents   int `json:"failed_components"`
	UnknownComponents  int `json:"unknown_components"`
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-m.signals:
			if stop := m.handleSignal(ctx, sig, ticker); stop {
				return
			}
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) handleSignal(ctx context.Context, sig Signal, ticker *time.Ticker) bool {
	switch s := sig.(type) {
	case CheckHealth:
		m.checkComponent(ctx, s.Component)
	case ComponentUpdated:
		if s.Removed {
			m.Unregister(s.Component)
		} else {
			m.Register(s.Component)
		}
	case AdjustMonitorRate:
		if s.Interval > 0 {
			m.mu.Lock()
			m.config.Interval = s.Interval
			m.mu.Unlock()
			ticker.Reset(s.Interval)
			log.Infof("monitor interval adjusted to %v", s.Interval)
		}
	case UpdateAlertThresholds:
		m.mu.Lock()
		m.config.Thresholds = s.Thresholds
		m.mu.Unlock()
		log.Info("alert thresholds updated")
	case Shutdown:
		go func() { _ = m.Stop() }()
		return true
	}
	return false
}

func (m *Monitor) checkAll(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		m.checkComponent(ctx, name)
	}
}

func (m *Monitor) checkComponent(ctx context.Context, component string) {
	m.mu.RLock()
	thresholds := m.config.Thresholds
	timeout := m.config.FetchTimeout
	m.mu.RUnlock()

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	metrics, err := m.source.GetMetrics(fetchCtx, component)
	cancel()

	if err != nil {
		m.recordMiss(component, err)
		return
	}

	status := thresholds.Classify(metrics)
	m.recordSample(component, metrics, status)
}

// recordMiss counts a missing sample. The component degrades to Critical
// after MaxConsecutiveMisses in a row and to Failed after twice that many.
func (m *Monitor) recordMiss(component string, err error) {
	m.mu.Lock()
	cs, ok := m.components[component]
	if !ok {
		m.mu.Unlock()
		return
	}

	cs.misses++
	misses := cs.misses
	limit := m.config.MaxConsecutiveMisses
	m.mu.Unlock()

	log.Debugf("metrics fetch miss for %s (%d consecutive): %v", component, misses, err)

	if misses < limit {
		return
	}

	level := StatusCritical
	if misses >= 2*limit {
		level = StatusFailed
	}
	status := HealthStatus{
		Level:     level,
		Reason:    "consecutive metrics fetch misses",
		Timestamp: time.Now(),
	}
	m.commitStatus(component, HealthMetrics{}, status, false)
}

func (m *Monitor) recordSample(component string, metrics HealthMetrics, status HealthStatus) {
	m.commitStatus(component, metrics, status, true)
}

func (m *Monitor) commitStatus(component string, metrics HealthMetrics, status HealthStatus, sampled bool) {
	m.mu.Lock()
	cs, ok := m.components[component]
	if !ok {
		m.mu.Unlock()
		return
	}

	if sampled {
		cs.misses = 0
		cs.metrics = append(cs.metrics, metrics)
		if len(cs.metrics) > m.config.HistorySize {
			cs.metrics = cs.metrics[1:]
		}
	}

	cs.statuses = append(cs.statuses, status)
	if len(cs.statuses) > m.config.HistorySize {
		cs.statuses = cs.statuses[1:]
	}

	prev := cs.last
	hadStatus := cs.haveStatus
	cs.last = status
	cs.haveStatus = true
	onChange := m.onChange
	m.mu.Unlock()

	if sampled {
		m.collector.Observe(component, metrics, status)
	} else {
		m.collector.ObserveStatus(component, status)
	}

	changed := !hadStatus || prev.Level != status.Level || prev.Reason != status.Reason
	if !changed {
		return
	}

	change := StatusChange{Component: component, From: prev, To: status, Metrics: metrics}
	log.Infof("component %s health changed from %s to %s", component, prev, status)

	select {
	case m.events <- change:
	default:
		log.Warnf("status change event dropped for %s, consumer too slow", component)
	}

	if onChange != nil {
		onChange(change)
	}
}
