// Package adaptive implements the versioned, constraint-validated live
// parameter store consumed by the rest of the self-healing core. Every
// applied change produces a new immutable version; prior versions are
// retained for rollback.
package adaptive

import (
	"fmt"
	"time"
)

// ValueKind is the closed set of parameter value types.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindDuration
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Value is one typed configuration value. The zero Value is a false bool.
type Value struct {
	Kind     ValueKind     `json:"kind"`
	Bool     bool          `json:"bool,omitempty"`
	Int      int64         `json:"int,omitempty"`
	Float    float64       `json:"float,omitempty"`
	String_  string        `json:"string,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// BoolValue builds a boolean value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// IntValue builds an integer value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue builds a float value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue builds a string value.
func StringValue(v string) Value { return Value{Kind: KindString, String_: v} }

// DurationValue builds a duration value.
func DurationValue(v time.Duration) Value { return Value{Kind: KindDuration, Duration: v} }

// Equal reports bit-for-bit equality of kind and payload.
func (v Value) Equal(other Value) bool {
	return v == other
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.String_
	case KindDuration:
		return v.Duration.String()
	default:
		return "<invalid>"
	}
}

// Source records where a configuration version came from.
type Source string

const (
	SourceDefault     Source = "default"
	SourceGAOptimized Source = "ga_optimized"
	SourceManual      Source = "manual"
)

// Config is one immutable configuration version.
type Config struct {
	Parameters   map[string]Value `json:"parameters"`
	Version      uint64           `json:"version"`
	Timestamp    time.Time        `json:"timestamp"`
	FitnessScore *float64         `json:"fitness_score,omitempty"`
	Source       Source           `json:"source"`
}

// Clone returns a deep copy of the configuration version.
func (c *Config) Clone() *Config {
	out := &Config{
		Parameters: make(map[string]Value, len(c.Parameters)),
		Version:    c.Version,
		Timestamp:  c.Timestamp,
		Source:     c.Source,
	}
	for k, v := range c.Parameters {
		out.Parameters[k] = v
	}
	if c.FitnessScore != nil {
		score := *c.FitnessScore
		out.FitnessScore = &score
	}
	return out
}

// Get returns a parameter value by name.
func (c *Config) Get(name string) (Value, bool) {
	v, ok := c.Parameters[name]
	return v, ok
}
