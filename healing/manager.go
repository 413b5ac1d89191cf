// Package healing wires the self-healing control loop together: the
// health monitor feeds status changes to the recovery manager and the
// genetic optimizer, optimizer champions are proposed to the adaptive
// configuration store, and escalations leave through the coordination
// boundary.
package healing

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/coordination"
	"github.com/yunusovt983/selfheal/healing/circuitbreaker"
	"github.com/yunusovt983/selfheal/healing/recovery"
	"github.com/yunusovt983/selfheal/monitoring"
	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

var log = logging.Logger("selfheal/manager")

// FailureClassifier maps a status change onto a recovery failure type.
type FailureClassifier func(change monitoring.StatusChange) string

// DefaultFailureClassifier keys recovery plans by status level.
func DefaultFailureClassifier(change monitoring.StatusChange) string {
	switch change.To.Level {
	case monitoring.StatusFailed:
		return "component_failed"
	default:
		return "component_critical"
	}
}

// ManagerConfig holds configuration for the integration manager.
type ManagerConfig struct {
	// AutoRecover triggers recovery on Critical/Failed status changes.
	AutoRecover bool

	// ShutdownGrace bounds the drain of in-flight recoveries on Stop.
	ShutdownGrace time.Duration
}

// DefaultManagerConfig returns a default integration configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AutoRecover:   true,
		ShutdownGrace: 30 * time.Second,
	}
}

// Manager composes the self-healing core.
type Manager struct {
	config ManagerConfig

	Monitor     *monitoring.Monitor
	Breakers    *circuitbreaker.Registry
	Recovery    *recovery.Manager
	Config      *adaptive.Store
	Optimizer   *genetic.Optimizer
	Coordinator coordination.Coordinator

	classify FailureClassifier

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager wires the components into a closed feedback loop. Optimizer
// and coordinator may be nil; monitor, breakers, recovery and config are
// required.
func NewManager(config ManagerConfig, monitor *monitoring.Monitor, breakers *circuitbreaker.Registry,
	recoveryMgr *recovery.Manager, configStore *adaptive.Store, optimizer *genetic.Optimizer,
	coordinator coordination.Coordinator) *Manager {

	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultManagerConfig().ShutdownGrace
	}
	if coordinator == nil {
		coordinator = coordination.NopCoordinator{}
	}

	m := &Manager{
		config:      config,
		Monitor:     monitor,
		Breakers:    breakers,
		Recovery:    recoveryMgr,
		Config:      configStore,
		Optimizer:   optimizer,
		Coordinator: coordinator,
		classify:    DefaultFailureClassifier,
	}

	recoveryMgr.SetVerifier(monitor)
	recoveryMgr.SetEscalationCallback(m.onEscalation)

	if optimizer != nil {
		optimizer.SetChampionCallback(m.onChampion)
	}

	return m
}

// SetFailureClassifier replaces the status-to-failure-type mapping.
func (m *Manager) SetFailureClassifier(fn FailureClassifier) {
	if fn != nil {
		m.classify = fn
	}
}

// Start launches the monitor, optimizer and the event pump.
func (m *Manager) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return monitoring.ErrAlreadyRunning
	}

	if err := m.Monitor.Start(); err != nil {
		return err
	}
	if m.Optimizer != nil {
		if err := m.Optimizer.Start(); err != nil {
			_ = m.Monitor.Stop()
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.eventPump(ctx)

	log.Info("self-healing manager started")
	return nil
}

// Stop shuts the loops down and drains in-flight recoveries within the
// configured grace period.
func (m *Manager) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return nil
	}

	m.cancel()

	if m.Optimizer != nil {
		_ = m.Optimizer.Stop()
	}
	_ = m.Monitor.Stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.config.ShutdownGrace):
		log.Warn("shutdown grace period elapsed with recoveries still in flight")
	}

	m.running = false
	log.Info("self-healing manager stopped")
	return nil
}

// eventPump consumes status-change events and fans them out to the
// optimizer, the coordinator and the recovery manager.
func (m *Manager) eventPump(ctx context.Context) {
	defer m.wg.Done()

	events := m.Monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-events:
			m.handleStatusChange(ctx, change)
		}
	}
}

func (m *Manager) handleStatusChange(ctx context.Context, change monitoring.StatusChange) {
	if m.Optimizer != nil {
		m.Optimizer.UpdateFitnessData(change.Metrics, change.To)
	}

	if err := m.Coordinator.ReportHealth(ctx, change.Component, change.To, change.Metrics); err != nil {
		log.Debugf("health report for %s not delivered: %v", change.Component, err)
	}

	if !m.config.AutoRecover {
		return
	}
	if change.To.Level != monitoring.StatusCritical && change.To.Level != monitoring.StatusFailed {
		return
	}

	failureType := m.classify(change)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		err := m.Recovery.RequestRecovery(ctx, change.Component, failureType, change.To)
		switch err {
		case nil:
		case recovery.ErrRecoveryInFlight, recovery.ErrRecoveryPaused:
			log.Debugf("recovery for %s skipped: %v", change.Component, err)
		default:
			log.Warnf("recovery for %s did not succeed: %v", change.Component, err)
		}
	}()
}

// onChampion proposes an optimizer champion to the configuration store.
func (m *Manager) onChampion(champion *genetic.Chromosome) {
	err := m.Config.Apply(adaptive.ApplyChromosome{Chromosome: champion})
	if err != nil {
		log.Warnf("optimizer champion rejected by configuration store: %v", err)
		return
	}
	log.Infof("optimizer champion applied as configuration version %d (fitness %.4f)",
		m.Config.Version(), champion.Fitness)
}

// onEscalation forwards exhausted recoveries to the coordination boundary.
func (m *Manager) onEscalation(e recovery.Escalation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.Coordinator.RequestHealing(ctx, "operator", e.Component, string(recovery.StrategyManualIntervention))
	if err != nil {
		log.Errorf("manual intervention request for %s not delivered: %v", e.Component, err)
	}
}
