package storage

import (
	"context"
	"sync"

	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/healing/recovery"
	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

// MemoryStore keeps all records in memory. Intended for tests and for
// hosts that do not require persistence across restarts.
type MemoryStore struct {
	mu sync.RWMutex

	configs  map[uint64]*adaptive.Config
	versions []uint64
	results  []recovery.Result

	snapshot           []byte
	snapshotGeneration int
	haveSnapshot       bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[uint64]*adaptive.Config)}
}

func (s *MemoryStore) SaveConfigVersion(_ context.Context, config *adaptive.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[config.Version]; !exists {
		s.versions = append(s.versions, config.Version)
	}
	s.configs[config.Version] = config.Clone()
	return nil
}

func (s *MemoryStore) GetConfigVersion(_ context.Context, version uint64) (*adaptive.Config, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.configs[version]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (s *MemoryStore) ListConfigVersions(_ context.Context, limit int) ([]*adaptive.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions
	if limit > 0 && len(versions) > limit {
		versions = versions[len(versions)-limit:]
	}

	out := make([]*adaptive.Config, 0, len(versions))
	for _, v := range versions {
		out = append(out, s.configs[v].Clone())
	}
	return out, nil
}

func (s *MemoryStore) SaveRecoveryResult(_ context.Context, result recovery.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *MemoryStore) ListRecoveryResults(_ context.Context, component string, limit int) ([]recovery.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []recovery.Result
	for _, r := range s.results {
		if component == "" || r.Component == component {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) SavePopulationSnapshot(_ context.Context, generation int, chromosomes []*genetic.Chromosome) error {
	payload, err := EncodePopulation(generation, chromosomes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = payload
	s.snapshotGeneration = generation
	s.haveSnapshot = true
	return nil
}

func (s *MemoryStore) LoadPopulationSnapshot(_ context.Context) (int, []*genetic.Chromosome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.haveSnapshot {
		return 0, nil, false, nil
	}
	generation, chromosomes, err := DecodePopulation(s.snapshot)
	if err != nil {
		return 0, nil, false, err
	}
	return generation, chromosomes, true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
