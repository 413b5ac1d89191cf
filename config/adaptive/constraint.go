package adaptive

import (
	"fmt"
	"time"
)

// Constraint validates a parameter value before commit.
type Constraint struct {
	Kind ValueKind `json:"kind"`

	MinInt *int64 `json:"min_int,omitempty"`
	MaxInt *int64 `json:"max_int,omitempty"`

	MinFloat *float64 `json:"min_float,omitempty"`
	MaxFloat *float64 `json:"max_float,omitempty"`

	MinDuration *time.Duration `json:"min_duration,omitempty"`
	MaxDuration *time.Duration `json:"max_duration,omitempty"`

	// Allowed restricts string values to an enumerated set. Empty means
	// any string.
	Allowed []string `json:"allowed,omitempty"`
}

// IntConstraint builds an integer range constraint.
func IntConstraint(min, max int64) Constraint {
	return Constraint{Kind: KindInt, MinInt: &min, MaxInt: &max}
}

// FloatConstraint builds a float range constraint.
func FloatConstraint(min, max float64) Constraint {
	return Constraint{Kind: KindFloat, MinFloat: &min, MaxFloat: &max}
}

// DurationConstraint builds a duration range constraint.
func DurationConstraint(min, max time.Duration) Constraint {
	return Constraint{Kind: KindDuration, MinDuration: &min, MaxDuration: &max}
}

// StringConstraint builds an enumerated string constraint.
func StringConstraint(allowed ...string) Constraint {
	return Constraint{Kind: KindString, Allowed: allowed}
}

// BoolConstraint builds a boolean constraint.
func BoolConstraint() Constraint {
	return Constraint{Kind: KindBool}
}

// Check validates a value against the constraint.
func (c Constraint) Check(name string, v Value) error {
	if v.Kind != c.Kind {
		return &ValidationError{
			Parameter: name,
			Reason:    fmt.Sprintf("expected %s value, got %s", c.Kind, v.Kind),
		}
	}

	switch v.Kind {
	case KindInt:
		if c.MinInt != nil && v.Int < *c.MinInt {
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %d below minimum %d", v.Int, *c.MinInt)}
		}
		if c.MaxInt != nil && v.Int > *c.MaxInt {
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %d above maximum %d", v.Int, *c.MaxInt)}
		}
	case KindFloat:
		if c.MinFloat != nil && v.Float < *c.MinFloat {
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %g below minimum %g", v.Float, *c.MinFloat)}
		}
		if c.MaxFloat != nil && v.Float > *c.MaxFloat {
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %g above maximum %g", v.Float, *c.MaxFloat)}
		}
	case KindDuration:
		if c.MinDuration != nil && v.Duration < *c.MinDuration {
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %v below minimum %v", v.Duration, *c.MinDuration)}
		}
		if c.MaxDuration != nil && v.Duration > *c.MaxDuration {
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %v above maximum %v", v.Duration, *c.MaxDuration)}
		}
	case KindString:
		if len(c.Allowed) > 0 {
			for _, a := range c.Allowed {
				if v.String_ == a {
					return nil
				}
			}
			return &ValidationError{Parameter: name, Reason: fmt.Sprintf("value %q not among allowed values", v.String_)}
		}
	}
	return nil
}
