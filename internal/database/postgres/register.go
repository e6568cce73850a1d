package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// Register wires the global pool into the database backend registry.
// When hnswEnabled is set, the reference index is built before returning.
func Register(ctx context.Context, defaultRadius int, hnswEnabled bool) error {
	pool := GetGlobalPool()
	if pool == nil {
		return fmt.Errorf("register postgres backend: pool not initialized")
	}

	store := NewRepository(pool, defaultRadius)
	refs := NewReferenceRepository(pool)
	if hnswEnabled {
		if err := refs.EnableHNSW(ctx); err != nil {
			return fmt.Errorf("enable reference HNSW: %w", err)
		}
	}

	database.RegisterPostgresBackend(
		func() database.Store { return store },
		func() database.ReferenceReader { return refs },
	)
	database.RegisterReferenceHNSWRebuilder(refs)
	return nil
}
