package circuitbreaker

import "errors"

// ErrCircuitOpen is returned when a call is short-circuited because the
// breaker is open or the half-open probe budget is spent. It indicates no
// fault of the callee.
var ErrCircuitOpen = errors.New("circuit breaker is open")
