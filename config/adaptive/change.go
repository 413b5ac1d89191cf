package adaptive

import "github.com/yunusovt983/selfheal/optimizer/genetic"

// Change is the closed set of configuration change operations accepted by
// Store.Apply.
type Change interface {
	isChange()
}

// Add introduces a new parameter. Adding an existing parameter fails.
type Add struct {
	Name  string
	Value Value
}

// Update replaces an existing parameter. Updating a missing parameter fails.
type Update struct {
	Name  string
	Value Value
}

// Remove deletes a parameter. Removing a missing parameter fails.
type Remove struct {
	Name string
}

// ResetToDefault replaces the whole parameter map with the store defaults.
type ResetToDefault struct{}

// ApplyComplete replaces the whole parameter map at once.
type ApplyComplete struct {
	Parameters map[string]Value
	Source     Source
}

// ApplyChromosome translates an optimizer chromosome into parameter
// updates. This is the sole bridge from the genetic optimizer to live
// configuration; gene names are "component.parameter" keys.
type ApplyChromosome struct {
	Chromosome *genetic.Chromosome
}

func (Add) isChange()             {}
func (Update) isChange()          {}
func (Remove) isChange()          {}
func (ResetToDefault) isChange()  {}
func (ApplyComplete) isChange()   {}
func (ApplyChromosome) isChange() {}
