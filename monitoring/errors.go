package monitoring

import "errors"

var (
	// ErrAlreadyRunning is returned when Start is called on a running monitor.
	ErrAlreadyRunning = errors.New("health monitor already running")

	// ErrSignalQueueFull is returned when the signal channel cannot accept
	// another control message without blocking.
	ErrSignalQueueFull = errors.New("monitor signal queue full")

	// ErrUnknownComponent is returned for operations on an unregistered component.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrNoSample is returned when a component has produced no status yet.
	ErrNoSample = errors.New("no health sample available")
)
