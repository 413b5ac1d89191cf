// Package coordination is the outbound boundary to an optional external
// coordination service. The core reports health and requests healing
// actions; leader election and cluster-wide state sync live on the other
// side of this interface and are not implemented here.
package coordination

import (
	"context"

	"github.com/yunusovt983/selfheal/monitoring"
)

// Coordinator is the external coordination peer.
type Coordinator interface {
	// ReportHealth forwards a component's classification and metrics.
	ReportHealth(ctx context.Context, component string, status monitoring.HealthStatus, metrics monitoring.HealthMetrics) error

	// RequestHealing asks the coordination layer to carry out a healing
	// action on a target, typically after local recovery has escalated.
	RequestHealing(ctx context.Context, target, component, action string) error
}

// NopCoordinator discards all calls. Used when the core runs standalone.
type NopCoordinator struct{}

func (NopCoordinator) ReportHealth(context.Context, string, monitoring.HealthStatus, monitoring.HealthMetrics) error {
	return nil
}

func (NopCoordinator) RequestHealing(context.Context, string, string, string) error {
	return nil
}
