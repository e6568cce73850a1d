package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// ReferenceRepository reads enrolled facial references with an optional in-memory HNSW index.
type ReferenceRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

var (
	_ database.ReferenceReader = (*ReferenceRepository)(nil)
	_ database.HNSWRebuilder   = (*ReferenceRepository)(nil)
)

// NewReferenceRepository creates a new PostgreSQL reference repository.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

const referenceColumns = `id, employee_id, embedding, model, created_at`

// scanReferenceRow scans one reference row plus optional trailing columns.
func scanReferenceRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.FacialReference, error) {
	var ref database.FacialReference
	var vec pgvector.Vector

	dest := append([]any{&ref.ID, &ref.EmployeeID, &vec, &ref.Model, &ref.CreatedAt}, extraDest...)
	if err := scanner.Scan(dest...); err != nil {
		return ref, fmt.Errorf("scan facial reference: %w", err)
	}
	ref.Embedding = vec.Slice()
	return ref, nil
}

func scanReferences(rows *sql.Rows) ([]database.FacialReference, error) {
	var refs []database.FacialReference
	for rows.Next() {
		ref, err := scanReferenceRow(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facial references: %w", err)
	}
	return refs, nil
}

// ReferencesForEmployee returns all references of one employee.
func (r *ReferenceRepository) ReferencesForEmployee(
	ctx context.Context, employeeID string,
) ([]database.FacialReference, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+referenceColumns+` FROM facial_references WHERE employee_id = $1 ORDER BY id`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", mapError(err))
	}
	defer rows.Close()

	return scanReferences(rows)
}

// AllReferences returns every enrolled reference.
func (r *ReferenceRepository) AllReferences(ctx context.Context) ([]database.FacialReference, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+referenceColumns+` FROM facial_references ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query all references: %w", mapError(err))
	}
	defer rows.Close()

	return scanReferences(rows)
}

// FindNearest returns up to limit references ordered by cosine distance.
// Uses the in-memory HNSW index if enabled, otherwise pgvector.
func (r *ReferenceRepository) FindNearest(
	ctx context.Context, embedding []float32, limit int,
) ([]database.FacialReference, []float64, error) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswEnabled && r.hnswIndex != nil {
		if r.hnswIndex.Count() == 0 {
			return nil, nil, nil
		}
		refs, distances, err := r.hnswIndex.Search(embedding, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("HNSW search: %w", err)
		}
		return refs, distances, nil
	}
	return r.findNearestPostgres(ctx, embedding, limit)
}

// findNearestPostgres searches with pgvector, aligning ef_search with the in-memory graph.
func (r *ReferenceRepository) findNearestPostgres(
	ctx context.Context, embedding []float32, limit int,
) ([]database.FacialReference, []float64, error) {
	tx, err := r.pool.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", mapError(err))
	}

	query := `SELECT ` + referenceColumns + `, embedding <=> $1::vector AS distance
		FROM facial_references
		ORDER BY embedding <=> $1::vector
		LIMIT $2`

	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest references: %w", mapError(err))
	}
	defer rows.Close()

	var (
		refs      []database.FacialReference
		distances []float64
	)
	for rows.Next() {
		var dist float64
		ref, err := scanReferenceRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, ref)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nearest references: %w", err)
	}
	return refs, distances, nil
}

// EnableHNSW builds the in-memory HNSW index from all stored references.
// This should be called once at startup.
func (r *ReferenceRepository) EnableHNSW(ctx context.Context) error {
	refs, err := r.AllReferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load references: %w", err)
	}

	idx := database.NewHNSWIndex()
	idx.BuildFromReferences(refs)

	r.hnswMu.Lock()
	r.hnswIndex = idx
	r.hnswEnabled = true
	r.hnswMu.Unlock()

	log.Info().Int("references", idx.Count()).Msg("reference HNSW index built")
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *ReferenceRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *ReferenceRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of references in the HNSW index.
func (r *ReferenceRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (r *ReferenceRepository) RebuildHNSW(ctx context.Context) error {
	return r.EnableHNSW(ctx)
}
