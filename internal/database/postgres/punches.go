package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// CommitPunch inserts the entry and applies the audit link in one transaction.
// The entry id is fixed by the caller, so a retried commit after an ambiguous
// failure neither duplicates the entry nor its audit record.
func (r *Repository) CommitPunch(ctx context.Context, entry *database.TimeEntry, link database.AuditLink) error {
	if entry.ID == "" {
		return errors.New("commit punch: entry id is required")
	}
	if link.AuditID == "" && link.Fallback == nil {
		return errors.New("commit punch: audit link or fallback record is required")
	}
	if entry.LedgerSlot == "" {
		entry.LedgerSlot = database.SlotDay
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := r.pool.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO time_entries (id, employee_id, punch_kind, punch_timestamp, work_date, ledger_slot,
		                          location_lat, location_lng, location_address, work_location_id,
		                          status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.EmployeeID, entry.PunchKind, entry.PunchTimestamp, entry.WorkDate, entry.LedgerSlot,
		entry.LocationLat, entry.LocationLng, entry.LocationAddress, entry.WorkLocationID,
		entry.Status, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert time entry: %w", mapError(err))
	}

	if link.Fallback != nil {
		link.Fallback.TimeEntryID = &entry.ID
		if err := insertAudit(ctx, tx, link.Fallback, true); err != nil {
			return fmt.Errorf("insert fallback audit: %w", err)
		}
	} else {
		if err := linkAudit(ctx, tx, link.AuditID, entry.ID, link.Status, link.Result); err != nil {
			return fmt.Errorf("link audit %s: %w", link.AuditID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit punch: %w", mapError(err))
	}
	return nil
}
