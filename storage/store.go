// Package storage persists the core's versioned state: committed
// configuration versions, recovery attempt history and optimizer
// population snapshots. Records are stored as versioned key-value rows
// with JSON payloads; memory and sqlite backends are provided.
package storage

import (
	"context"

	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/healing/recovery"
	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

// Store is the persistence boundary of the self-healing core. It
// satisfies adaptive.Persister, recovery.Persister and
// genetic.SnapshotStore.
type Store interface {
	SaveConfigVersion(ctx context.Context, config *adaptive.Config) error
	GetConfigVersion(ctx context.Context, version uint64) (*adaptive.Config, bool, error)
	ListConfigVersions(ctx context.Context, limit int) ([]*adaptive.Config, error)

	SaveRecoveryResult(ctx context.Context, result recovery.Result) error
	ListRecoveryResults(ctx context.Context, component string, limit int) ([]recovery.Result, error)

	SavePopulationSnapshot(ctx context.Context, generation int, chromosomes []*genetic.Chromosome) error
	LoadPopulationSnapshot(ctx context.Context) (int, []*genetic.Chromosome, bool, error)

	Close() error
}
