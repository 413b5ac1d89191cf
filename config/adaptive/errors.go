package adaptive

import (
	"errors"
	"fmt"
)

// ValidationError rejects a configuration change; the store is left
// untouched when it is returned.
type ValidationError struct {
	Parameter string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Parameter, e.Reason)
}

// IsValidationError reports whether err is a configuration validation
// failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrUnknownVersion is returned when rolling back to a version that is
// neither current nor retained in history.
var ErrUnknownVersion = errors.New("unknown configuration version")
