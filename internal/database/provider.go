package database

import (
	"context"
	"errors"
	"sync"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
}

var (
	backendMu       sync.RWMutex
	postgresStore   func() Store
	postgresRefs    func() ReferenceReader
	referenceHNSW   HNSWRebuilder
	backendIsActive bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called from cmd to avoid import cycles with the postgres package.
func RegisterPostgresBackend(store func() Store, refs func() ReferenceReader) {
	backendMu.Lock()
	defer backendMu.Unlock()
	postgresStore = store
	postgresRefs = refs
	backendIsActive = true
}

// RegisterReferenceHNSWRebuilder registers the HNSW rebuilder for the reference repository.
func RegisterReferenceHNSWRebuilder(rebuilder HNSWRebuilder) {
	backendMu.Lock()
	defer backendMu.Unlock()
	referenceHNSW = rebuilder
}

// GetReferenceHNSWRebuilder returns the registered rebuilder, or nil if not registered.
func GetReferenceHNSWRebuilder() HNSWRebuilder {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return referenceHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendIsActive
}

// GetStore returns the punch Store from the PostgreSQL backend
func GetStore(ctx context.Context) (Store, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if !backendIsActive {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresStore == nil {
		return nil, errors.New("PostgreSQL store not registered")
	}
	return postgresStore(), nil
}

// GetReferenceReader returns a ReferenceReader from the PostgreSQL backend
func GetReferenceReader(ctx context.Context) (ReferenceReader, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if !backendIsActive {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresRefs == nil {
		return nil, errors.New("PostgreSQL reference reader not registered")
	}
	return postgresRefs(), nil
}

// resetBackend clears registrations; used by tests.
func resetBackend() {
	backendMu.Lock()
	defer backendMu.Unlock()
	postgresStore = nil
	postgresRefs = nil
	referenceHNSW = nil
	backendIsActive = false
}
