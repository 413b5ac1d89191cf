package adaptive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

var log = logging.Logger("selfheal/config")

// ChangeEvent describes one committed configuration change.
type ChangeEvent struct {
	Type      string    `json:"type"`
	Version   uint64    `json:"version"`
	Source    Source    `json:"source"`
	Changed   []string  `json:"changed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeCallback observes committed changes. Callback errors are logged
// and never roll back the already-committed change.
type ChangeCallback func(event ChangeEvent, config *Config) error

// Persister saves committed configuration versions. Persistence failures
// are logged but do not fail the commit; the in-memory store remains the
// owner of the current version.
type Persister interface {
	SaveConfigVersion(ctx context.Context, config *Config) error
}

// StoreConfig holds configuration for the store itself.
type StoreConfig struct {
	// HistoryLimit bounds retained prior versions. Older versions are
	// pruned and become unavailable for rollback.
	HistoryLimit int
}

// DefaultStoreConfig returns a default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{HistoryLimit: 100}
}

// Store is the adaptive configuration store: the single writer of live
// configuration state. Reads return clones; writes happen under a short
// exclusive critical section and are all-or-nothing.
type Store struct {
	config StoreConfig

	mu          sync.RWMutex
	current     *Config
	history     []*Config
	defaults    map[string]Value
	constraints map[string]Constraint
	callbacks   []ChangeCallback
	subscribers []chan ChangeEvent

	persister Persister
}

// NewStore creates a store seeded with the given defaults as version 1.
// Defaults are validated against the constraints up front.
func NewStore(config StoreConfig, defaults map[string]Value, constraints map[string]Constraint) (*Store, error) {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultStoreConfig().HistoryLimit
	}
	if constraints == nil {
		constraints = make(map[string]Constraint)
	}

	for name, value := range defaults {
		if c, ok := constraints[name]; ok {
			if err := c.Check(name, value); err != nil {
				return nil, fmt.Errorf("invalid default: %w", err)
			}
		}
	}

	params := make(map[string]Value, len(defaults))
	for k, v := range defaults {
		params[k] = v
	}
	defaultsCopy := make(map[string]Value, len(defaults))
	for k, v := range defaults {
		defaultsCopy[k] = v
	}

	return &Store{
		config:      config,
		defaults:    defaultsCopy,
		constraints: constraints,
		current: &Config{
			Parameters: params,
			Version:    1,
			Timestamp:  time.Now(),
			Source:     SourceDefault,
		},
	}, nil
}

// SetPersister enables version persistence.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// Current returns an immutable snapshot of the live configuration.
func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Version returns the current version number.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Version
}

// History returns clones of the retained prior versions, oldest first.
func (s *Store) History() []*Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Config, len(s.history))
	for i, c := range s.history {
		out[i] = c.Clone()
	}
	return out
}

// OnChange registers a change callback.
func (s *Store) OnChange(cb ChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Subscribe returns a channel receiving committed change events. Slow
// subscribers drop events rather than blocking commits.
func (s *Store) Subscribe() <-chan ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ChangeEvent, 16)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Apply validates and commits a change. On validation failure the store is
// left untouched and a *ValidationError is returned. On success the
// version increments by exactly one, the prior version is appended to the
// bounded history, and callbacks plus subscribers are notified.
func (s *Store) Apply(change Change) error {
	s.mu.Lock()

	next := s.current.Clone()
	event := ChangeEvent{Source: SourceManual}

	var err error
	switch c := change.(type) {
	case Add:
		event.Type = "add"
		event.Changed = []string{c.Name}
		err = s.applyAdd(next, c)
	case Update:
		event.Type = "update"
		event.Changed = []string{c.Name}
		err = s.applyUpdate(next, c)
	case Remove:
		event.Type = "remove"
		event.Changed = []string{c.Name}
		err = s.applyRemove(next, c)
	case ResetToDefault:
		event.Type = "reset"
		event.Source = SourceDefault
		err = s.applyReset(next)
	case ApplyComplete:
		event.Type = "apply_complete"
		if c.Source != "" {
			event.Source = c.Source
		}
		err = s.applyComplete(next, c)
	case ApplyChromosome:
		event.Type = "apply_chromosome"
		event.Source = SourceGAOptimized
		event.Changed, err = s.applyChromosome(next, c)
	default:
		err = fmt.Errorf("unsupported change type %T", change)
	}

	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.commit(next, event.Source)
	event.Version = next.Version
	event.Timestamp = next.Timestamp

	callbacks := make([]ChangeCallback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	subscribers := make([]chan ChangeEvent, len(s.subscribers))
	copy(subscribers, s.subscribers)
	persister := s.persister
	snapshot := next.Clone()
	s.mu.Unlock()

	log.Infof("configuration %s committed as version %d (source=%s)", event.Type, event.Version, event.Source)

	s.notify(event, snapshot, callbacks, subscribers, persister)
	return nil
}

// Rollback re-commits the parameter map of a prior version as a new
// version. The version counter never decreases.
func (s *Store) Rollback(version uint64) error {
	s.mu.Lock()

	var target *Config
	if s.current.Version == version {
		target = s.current
	} else {
		for _, c := range s.history {
			if c.Version == version {
				target = c
				break
			}
		}
	}
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}

	next := target.Clone()
	next.Source = SourceManual
	s.commit(next, SourceManual)

	event := ChangeEvent{
		Type:      "rollback",
		Version:   next.Version,
		Source:    SourceManual,
		Timestamp: next.Timestamp,
	}

	callbacks := make([]ChangeCallback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	subscribers := make([]chan ChangeEvent, len(s.subscribers))
	copy(subscribers, s.subscribers)
	persister := s.persister
	snapshot := next.Clone()
	s.mu.Unlock()

	log.Infof("configuration rolled back to version %d parameters, committed as version %d", version, event.Version)

	s.notify(event, snapshot, callbacks, subscribers, persister)
	return nil
}

func (s *Store) applyAdd(next *Config, c Add) error {
	if _, exists := next.Parameters[c.Name]; exists {
		return &ValidationError{Parameter: c.Name, Reason: "parameter already exists"}
	}
	if err := s.check(c.Name, c.Value); err != nil {
		return err
	}
	next.Parameters[c.Name] = c.Value
	return nil
}

func (s *Store) applyUpdate(next *Config, c Update) error {
	if _, exists := next.Parameters[c.Name]; !exists {
		return &ValidationError{Parameter: c.Name, Reason: "parameter does not exist"}
	}
	if err := s.check(c.Name, c.Value); err != nil {
		return err
	}
	next.Parameters[c.Name] = c.Value
	return nil
}

func (s *Store) applyRemove(next *Config, c Remove) error {
	if _, exists := next.Parameters[c.Name]; !exists {
		return &ValidationError{Parameter: c.Name, Reason: "parameter does not exist"}
	}
	delete(next.Parameters, c.Name)
	return nil
}

func (s *Store) applyReset(next *Config) error {
	next.Parameters = make(map[string]Value, len(s.defaults))
	for k, v := range s.defaults {
		next.Parameters[k] = v
	}
	next.FitnessScore = nil
	return nil
}

func (s *Store) applyComplete(next *Config, c ApplyComplete) error {
	for name, value := range c.Parameters {
		if err := s.check(name, value); err != nil {
			return err
		}
	}
	next.Parameters = make(map[string]Value, len(c.Parameters))
	for k, v := range c.Parameters {
		next.Parameters[k] = v
	}
	next.FitnessScore = nil
	return nil
}

// applyChromosome translates every gene into a parameter upsert. All genes
// are validated before any is applied; a single invalid gene rejects the
// whole chromosome.
func (s *Store) applyChromosome(next *Config, c ApplyChromosome) ([]string, error) {
	if c.Chromosome == nil {
		return nil, &ValidationError{Reason: "nil chromosome"}
	}

	values := make(map[string]Value, len(c.Chromosome.Genes))
	changed := make([]string, 0, len(c.Chromosome.Genes))
	for _, gene := range c.Chromosome.Genes {
		name := gene.Name()
		if !strings.Contains(name, ".") {
			return nil, &ValidationError{Parameter: name, Reason: "gene name is not a component.parameter key"}
		}

		value, err := geneValue(gene)
		if err != nil {
			return nil, err
		}
		if err := s.check(name, value); err != nil {
			return nil, err
		}
		values[name] = value
		changed = append(changed, name)
	}

	for name, value := range values {
		next.Parameters[name] = value
	}

	fitness := c.Chromosome.Fitness
	next.FitnessScore = &fitness
	return changed, nil
}

// geneValue maps a gene's concrete type onto a config value.
func geneValue(g genetic.Gene) (Value, error) {
	switch gene := g.(type) {
	case *genetic.BoolGene:
		return BoolValue(gene.Value), nil
	case *genetic.IntGene:
		return IntValue(gene.Value), nil
	case *genetic.FloatGene:
		return FloatValue(gene.Value), nil
	case *genetic.CategoricalGene:
		return StringValue(gene.Value), nil
	default:
		return Value{}, &ValidationError{Parameter: g.Name(), Reason: "unsupported gene type"}
	}
}

// check validates a value against the constraint map. Parameters without a
// declared constraint are unconstrained.
func (s *Store) check(name string, v Value) error {
	c, ok := s.constraints[name]
	if !ok {
		return nil
	}
	return c.Check(name, v)
}

// commit atomically replaces the current version. Must be called with the
// write lock held.
func (s *Store) commit(next *Config, source Source) {
	s.history = append(s.history, s.current)
	if len(s.history) > s.config.HistoryLimit {
		s.history = s.history[len(s.history)-s.config.HistoryLimit:]
	}

	next.Version = s.current.Version + 1
	next.Timestamp = time.Now()
	next.Source = source
	s.current = next
}

func (s *Store) notify(event ChangeEvent, snapshot *Config, callbacks []ChangeCallback, subscribers []chan ChangeEvent, persister Persister) {
	for _, cb := range callbacks {
		if err := cb(event, snapshot.Clone()); err != nil {
			log.Warnf("configuration change callback failed (change stays committed): %v", err)
		}
	}

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			log.Debugf("configuration change event dropped, subscriber too slow")
		}
	}

	if persister != nil {
		if err := persister.SaveConfigVersion(context.Background(), snapshot); err != nil {
			log.Warnf("failed to persist configuration version %d: %v", snapshot.Version, err)
		}
	}
}
