package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kozaktomas/punch-clock/internal/database"
)

const auditColumns = `
	id, employee_id, attempt_image_ref, confidence_score, liveness_passed, status,
	recognition_result, time_entry_id, created_at, reviewed_at, reviewed_by`

// auditRow carries the JSONB payload next to the record fields.
type auditRow struct {
	database.AuditRecord
	Result []byte `db:"recognition_result"`
}

func (row *auditRow) toRecord() (*database.AuditRecord, error) {
	rec := row.AuditRecord
	if len(row.Result) > 0 {
		if err := json.Unmarshal(row.Result, &rec.RecognitionResult); err != nil {
			return nil, fmt.Errorf("decode recognition result of audit %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// InsertAudit persists a new audit record, generating its id when empty.
func (r *Repository) InsertAudit(ctx context.Context, rec *database.AuditRecord) error {
	if err := insertAudit(ctx, r.pool.db, rec, false); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// insertAudit writes rec. With ignoreConflict the statement becomes a no-op
// when the id or the entry link already exists.
func insertAudit(ctx context.Context, ex sqlx.ExecerContext, rec *database.AuditRecord, ignoreConflict bool) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = database.AuditPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec.RecognitionResult)
	if err != nil {
		return fmt.Errorf("encode recognition result: %w", err)
	}

	query := `
		INSERT INTO audit_records (id, employee_id, attempt_image_ref, confidence_score, liveness_passed,
		                           status, recognition_result, time_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if ignoreConflict {
		query += ` ON CONFLICT DO NOTHING`
	}

	_, err = ex.ExecContext(ctx, query,
		rec.ID, rec.EmployeeID, rec.AttemptImageRef, rec.ConfidenceScore, rec.LivenessPassed,
		rec.Status, payload, rec.TimeEntryID, rec.CreatedAt)
	return mapError(err)
}

// GetAudit returns one audit record.
func (r *Repository) GetAudit(ctx context.Context, auditID string) (*database.AuditRecord, error) {
	var row auditRow
	query := `SELECT ` + auditColumns + ` FROM audit_records WHERE id = $1`
	if err := getOne(ctx, r.pool.db, &row, query, auditID); err != nil {
		return nil, fmt.Errorf("get audit %s: %w", auditID, err)
	}
	return row.toRecord()
}

// AuditForEntry returns the record linked to an entry.
func (r *Repository) AuditForEntry(ctx context.Context, entryID string) (*database.AuditRecord, error) {
	var row auditRow
	query := `SELECT ` + auditColumns + ` FROM audit_records WHERE time_entry_id = $1`
	if err := getOne(ctx, r.pool.db, &row, query, entryID); err != nil {
		return nil, fmt.Errorf("get audit for entry %s: %w", entryID, err)
	}
	return row.toRecord()
}

// ListAudits returns records matching filter, newest first.
func (r *Repository) ListAudits(ctx context.Context, filter database.AuditFilter) ([]database.AuditRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conds = append(conds, fmt.Sprintf("employee_id = $%d", len(args)))
	}

	query := `SELECT ` + auditColumns + ` FROM audit_records`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []auditRow
	if err := r.pool.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list audits: %w", mapError(err))
	}

	records := make([]database.AuditRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// UpdateAuditOutcome rewrites status and payload of a record not yet reviewed.
func (r *Repository) UpdateAuditOutcome(
	ctx context.Context, auditID string, status database.AuditStatus, result database.RecognitionResult,
) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode recognition result: %w", err)
	}

	res, err := r.pool.db.ExecContext(ctx, `
		UPDATE audit_records SET status = $2, recognition_result = $3
		WHERE id = $1 AND reviewed_at IS NULL`,
		auditID, status, payload)
	if err != nil {
		return fmt.Errorf("update audit outcome: %w", mapError(err))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update audit outcome %s: %w", auditID, database.ErrNotFound)
	}
	return nil
}

// LinkAudit points an audit record at a time entry.
func (r *Repository) LinkAudit(ctx context.Context, auditID, entryID string) error {
	if err := linkAudit(ctx, r.pool.db, auditID, entryID, "", nil); err != nil {
		return fmt.Errorf("link audit %s: %w", auditID, err)
	}
	return nil
}

// linkAudit sets time_entry_id and optionally status and payload. A reviewed
// record keeps its status and payload. Linking the same pair twice succeeds; a
// record linked elsewhere yields ErrAuditAlreadyLinked.
func linkAudit(
	ctx context.Context, ext sqlx.ExtContext, auditID, entryID string,
	status database.AuditStatus, result *database.RecognitionResult,
) error {
	var payload []byte
	if result != nil {
		var err error
		if payload, err = json.Marshal(result); err != nil {
			return fmt.Errorf("encode recognition result: %w", err)
		}
	}

	res, err := ext.ExecContext(ctx, `
		UPDATE audit_records
		SET time_entry_id = $2,
		    status = CASE WHEN reviewed_at IS NULL THEN COALESCE(NULLIF($3, ''), status) ELSE status END,
		    recognition_result = CASE WHEN reviewed_at IS NULL
		        THEN COALESCE($4::jsonb, recognition_result) ELSE recognition_result END
		WHERE id = $1 AND (time_entry_id IS NULL OR time_entry_id = $2)`,
		auditID, entryID, string(status), payload)
	if err != nil {
		return mapError(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var linked sql.NullString
	err = ext.QueryRowxContext(ctx, "SELECT time_entry_id FROM audit_records WHERE id = $1", auditID).Scan(&linked)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return mapError(err)
	}
	if linked.Valid && linked.String != entryID {
		return database.ErrAuditAlreadyLinked
	}
	return nil
}

// ReviewAudit records an admin decision on an audit record.
func (r *Repository) ReviewAudit(
	ctx context.Context, auditID string, status database.AuditStatus, reviewerID string, at time.Time,
) error {
	res, err := r.pool.db.ExecContext(ctx, `
		UPDATE audit_records SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1`,
		auditID, status, reviewerID, at)
	if err != nil {
		return fmt.Errorf("review audit: %w", mapError(err))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("review audit %s: %w", auditID, database.ErrNotFound)
	}
	return nil
}
