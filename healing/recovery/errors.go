package recovery

import "errors"

var (
	// ErrDuplicatePlan is returned when adding a plan for a failure type
	// that already has one.
	ErrDuplicatePlan = errors.New("recovery plan already exists for failure type")

	// ErrUnknownPlan is returned when removing a plan that does not exist.
	ErrUnknownPlan = errors.New("no recovery plan for failure type")

	// ErrRecoveryInFlight rejects a recovery request while another recovery
	// for the same component is active.
	ErrRecoveryInFlight = errors.New("recovery already in flight for component")

	// ErrRecoveryPaused rejects automated recovery for a component that has
	// escalated and awaits operator acknowledgement.
	ErrRecoveryPaused = errors.New("recovery paused pending manual acknowledgement")

	// ErrRecoveryExhausted reports that every strategy of the plan failed
	// and the failure was escalated.
	ErrRecoveryExhausted = errors.New("all recovery strategies exhausted")

	// ErrEmptyFailureType rejects plans without a failure type.
	ErrEmptyFailureType = errors.New("failure type must not be empty")

	// ErrInvalidStrategy rejects strategies outside the enumerated set.
	ErrInvalidStrategy = errors.New("invalid recovery strategy")

	// ErrInvalidRetries rejects negative retry bounds.
	ErrInvalidRetries = errors.New("max retries must not be negative")
)
