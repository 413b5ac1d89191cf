// Package genetic implements the genetic-algorithm optimizer of the
// self-healing core. A population of configuration candidates is evolved
// against a fitness function fed with live health data; winning candidates
// are proposed to the adaptive configuration store, never applied directly.
package genetic

import (
	"fmt"
	"math/rand"
)

// Gene is one typed, bounded configuration parameter within a chromosome.
// The implementing set is closed: BoolGene, IntGene, FloatGene and
// CategoricalGene. A gene's value always stays within its declared
// bounds or options, including after mutation.
type Gene interface {
	// Name is the parameter key, in "component.parameter" form.
	Name() string

	// Copy returns an independent deep copy.
	Copy() Gene

	// Mutate redraws the value within bounds using the given source of
	// randomness.
	Mutate(rng *rand.Rand)

	// Validate reports whether the current value honors the declared bounds.
	Validate() error

	// sealed prevents implementations outside this package.
	sealed()
}

// BoolGene is a boolean parameter.
type BoolGene struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

func (g *BoolGene) Name() string { return g.Key }

func (g *BoolGene) Copy() Gene {
	c := *g
	return &c
}

func (g *BoolGene) Mutate(rng *rand.Rand) {
	g.Value = rng.Intn(2) == 1
}

func (g *BoolGene) Validate() error { return nil }

func (*BoolGene) sealed() {}

// IntGene is an integer parameter bounded by [Min, Max].
type IntGene struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
}

func (g *IntGene) Name() string { return g.Key }

func (g *IntGene) Copy() Gene {
	c := *g
	return &c
}

func (g *IntGene) Mutate(rng *rand.Rand) {
	if g.Max <= g.Min {
		g.Value = g.Min
		return
	}
	g.Value = g.Min + rng.Int63n(g.Max-g.Min+1)
}

func (g *IntGene) Validate() error {
	if g.Max < g.Min {
		return fmt.Errorf("gene %s: max %d below min %d", g.Key, g.Max, g.Min)
	}
	if g.Value < g.Min || g.Value > g.Max {
		return fmt.Errorf("gene %s: value %d outside [%d, %d]", g.Key, g.Value, g.Min, g.Max)
	}
	return nil
}

func (*IntGene) sealed() {}

// FloatGene is a floating-point parameter bounded by [Min, Max].
type FloatGene struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (g *FloatGene) Name() string { return g.Key }

func (g *FloatGene) Copy() Gene {
	c := *g
	return &c
}

func (g *FloatGene) Mutate(rng *rand.Rand) {
	if g.Max <= g.Min {
		g.Value = g.Min
		return
	}
	g.Value = g.Min + rng.Float64()*(g.Max-g.Min)
}

func (g *FloatGene) Validate() error {
	if g.Max < g.Min {
		return fmt.Errorf("gene %s: max %g below min %g", g.Key, g.Max, g.Min)
	}
	if g.Value < g.Min || g.Value > g.Max {
		return fmt.Errorf("gene %s: value %g outside [%g, %g]", g.Key, g.Value, g.Min, g.Max)
	}
	return nil
}

func (*FloatGene) sealed() {}

// CategoricalGene is a parameter drawn from a fixed option set.
type CategoricalGene struct {
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Options []string `json:"options"`
}

func (g *CategoricalGene) Name() string { return g.Key }

func (g *CategoricalGene) Copy() Gene {
	c := *g
	c.Options = make([]string, len(g.Options))
	copy(c.Options, g.Options)
	return &c
}

func (g *CategoricalGene) Mutate(rng *rand.Rand) {
	if len(g.Options) == 0 {
		return
	}
	g.Value = g.Options[rng.Intn(len(g.Options))]
}

func (g *CategoricalGene) Validate() error {
	if len(g.Options) == 0 {
		return fmt.Errorf("gene %s: no options declared", g.Key)
	}
	for _, opt := range g.Options {
		if g.Value == opt {
			return nil
		}
	}
	return fmt.Errorf("gene %s: value %q not among declared options", g.Key, g.Value)
}

func (*CategoricalGene) sealed() {}

// sameKind reports whether two genes have the same concrete type.
func sameKind(a, b Gene) bool {
	switch a.(type) {
	case *BoolGene:
		_, ok := b.(*BoolGene)
		return ok
	case *IntGene:
		_, ok := b.(*IntGene)
		return ok
	case *FloatGene:
		_, ok := b.(*FloatGene)
		return ok
	case *CategoricalGene:
		_, ok := b.(*CategoricalGene)
		return ok
	default:
		return false
	}
}
