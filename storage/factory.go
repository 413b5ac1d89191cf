package storage

import (
	"context"
	"fmt"
)

// NewStore builds a store backend by kind. Supported kinds are "memory"
// (the default) and "sqlite", which requires a database path.
func NewStore(ctx context.Context, kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		s := NewSQLiteStore(sqlitePath)
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
