// Package recovery maps failure types to ordered recovery strategies,
// executes them with bounded retries, and escalates to the external
// coordination boundary when every strategy is exhausted.
package recovery

import (
	"context"
	"time"
)

// Strategy is the closed set of recovery strategies. It is a tag, not a
// behavior: the host supplies the behavior through an Executor.
type Strategy string

const (
	StrategyRestart            Strategy = "restart"
	StrategyReconfigure        Strategy = "reconfigure"
	StrategyFallback           Strategy = "fallback"
	StrategyScaleResources     Strategy = "scale_resources"
	StrategyManualIntervention Strategy = "manual_intervention"
)

// Valid reports whether the tag is one of the enumerated strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRestart, StrategyReconfigure, StrategyFallback,
		StrategyScaleResources, StrategyManualIntervention:
		return true
	default:
		return false
	}
}

// Executor carries out a recovery strategy against a component. The
// component handle semantics belong to the host; the manager only
// sequences attempts and interprets the error result.
type Executor interface {
	ExecuteStrategy(ctx context.Context, component string, strategy Strategy) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, component string, strategy Strategy) error

func (f ExecutorFunc) ExecuteStrategy(ctx context.Context, component string, strategy Strategy) error {
	return f(ctx, component, strategy)
}

// Plan is the ordered, retry-bounded strategy list for one failure type.
// MaxRetries bounds the total number of primary attempts before the
// fallbacks run; zero and one both mean a single attempt.
type Plan struct {
	FailureType string        `json:"failure_type"`
	Primary     Strategy      `json:"primary"`
	Fallbacks   []Strategy    `json:"fallbacks,omitempty"`
	MaxRetries  int           `json:"max_retries"`
	RetryDelay  time.Duration `json:"retry_delay"`
}

// Validate checks the plan's strategies and bounds.
func (p Plan) Validate() error {
	if p.FailureType == "" {
		return ErrEmptyFailureType
	}
	if !p.Primary.Valid() {
		return ErrInvalidStrategy
	}
	for _, s := range p.Fallbacks {
		if !s.Valid() {
			return ErrInvalidStrategy
		}
	}
	if p.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	return nil
}

// Result records one recovery attempt. Results are appended to an
// immutable history and never mutated.
type Result struct {
	ID        string        `json:"id"`
	Component string        `json:"component"`
	Strategy  Strategy      `json:"strategy"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Error     string        `json:"error,omitempty"`
}
