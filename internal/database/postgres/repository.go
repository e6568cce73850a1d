package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/kozaktomas/punch-clock/internal/database"
)

// Repository implements database.Store on PostgreSQL.
type Repository struct {
	pool          *Pool
	defaultRadius int
}

var _ database.Store = (*Repository)(nil)

// NewRepository creates a store. defaultRadius is returned as the geofencing
// default when no geofencing_settings row exists.
func NewRepository(pool *Pool, defaultRadius int) *Repository {
	return &Repository{pool: pool, defaultRadius: defaultRadius}
}

// getOne runs a single-row query into dest, mapping no rows to ErrNotFound.
func getOne(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	if err := sqlx.GetContext(ctx, q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrNotFound
		}
		return mapError(err)
	}
	return nil
}

// rowsAffected returns the affected row count of an exec result.
func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
