package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/database"
)

const entryColumns = `
	e.id, e.employee_id, e.punch_kind, e.punch_timestamp,
	to_char(e.work_date, 'YYYY-MM-DD') AS work_date, e.ledger_slot,
	e.location_lat, e.location_lng, e.location_address, e.work_location_id,
	e.status, e.created_at`

// EntriesForDay returns the live entries of an employee on a work date.
func (r *Repository) EntriesForDay(ctx context.Context, employeeID, workDate string) ([]database.TimeEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM time_entries e
		WHERE e.employee_id = $1 AND e.work_date = $2 AND e.status <> 'rejected'
		ORDER BY e.punch_timestamp`

	var entries []database.TimeEntry
	if err := r.pool.db.SelectContext(ctx, &entries, query, employeeID, workDate); err != nil {
		return nil, fmt.Errorf("query entries for day: %w", mapError(err))
	}
	return entries, nil
}

// GetTimeEntry returns a single entry.
func (r *Repository) GetTimeEntry(ctx context.Context, entryID string) (*database.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries e WHERE e.id = $1`

	var entry database.TimeEntry
	if err := getOne(ctx, r.pool.db, &entry, query, entryID); err != nil {
		return nil, fmt.Errorf("get time entry %s: %w", entryID, err)
	}
	return &entry, nil
}

// EntriesWithoutAudit returns entries no audit record points at, oldest first.
func (r *Repository) EntriesWithoutAudit(ctx context.Context, limit int) ([]database.TimeEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM time_entries e
		WHERE NOT EXISTS (SELECT 1 FROM audit_records a WHERE a.time_entry_id = e.id)
		ORDER BY e.created_at, e.id
		LIMIT $1`

	var entries []database.TimeEntry
	if err := r.pool.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("query entries without audit: %w", mapError(err))
	}
	return entries, nil
}
