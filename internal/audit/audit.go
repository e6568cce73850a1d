// Package audit records every facial verification attempt and keeps accepted
// time entries linked to exactly one audit record.
package audit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/rs/zerolog/log"
)

const (
	reconcileBatchSize = 100
	defaultListLimit   = 50
	maxListLimit       = 500
)

var (
	// ErrInvalidDecision is returned when a review decision is not approved or rejected.
	ErrInvalidDecision = errors.New("review decision must be approved or rejected")
	// ErrInvalidConfidence is returned when a confidence score lies outside [0,1].
	ErrInvalidConfidence = errors.New("confidence score must be within [0,1]")
)

// Store is the persistence the trail needs.
type Store interface {
	database.AuditStore
	EntriesWithoutAudit(ctx context.Context, limit int) ([]database.TimeEntry, error)
}

// Trail creates, updates, links and reviews audit records.
type Trail struct {
	store Store
	now   func() time.Time
}

// NewTrail creates a trail backed by store.
func NewTrail(store Store) *Trail {
	return &Trail{store: store, now: time.Now}
}

// AttemptParams describes one verification attempt.
type AttemptParams struct {
	EmployeeID     string
	ImageRef       string
	Confidence     *float64
	LivenessPassed bool
	Status         database.AuditStatus // pending when empty
	Result         database.RecognitionResult
}

// LogAttempt persists an attempt, successful or not.
func (t *Trail) LogAttempt(ctx context.Context, p AttemptParams) (*database.AuditRecord, error) {
	if p.Confidence != nil && (math.IsNaN(*p.Confidence) || *p.Confidence < 0 || *p.Confidence > 1) {
		return nil, fmt.Errorf("log attempt: %w (got %v)", ErrInvalidConfidence, *p.Confidence)
	}

	rec := &database.AuditRecord{
		AttemptImageRef:   p.ImageRef,
		ConfidenceScore:   p.Confidence,
		LivenessPassed:    p.LivenessPassed,
		Status:            p.Status,
		RecognitionResult: p.Result,
		CreatedAt:         t.now().UTC(),
	}
	if rec.Status == "" {
		rec.Status = database.AuditPending
	}
	if p.EmployeeID != "" {
		id := p.EmployeeID
		rec.EmployeeID = &id
	}

	if err := t.store.InsertAudit(ctx, rec); err != nil {
		return nil, fmt.Errorf("log attempt: %w", err)
	}
	return rec, nil
}

// RecordOutcome replaces the decision payload of a record that has not been reviewed.
func (t *Trail) RecordOutcome(
	ctx context.Context, auditID string, status database.AuditStatus, result database.RecognitionResult,
) error {
	return t.store.UpdateAuditOutcome(ctx, auditID, status, result)
}

// LinkToTimeEntry links a record to an entry. Linking the same pair again is a
// no-op; linking to a different entry fails with database.ErrAuditAlreadyLinked.
func (t *Trail) LinkToTimeEntry(ctx context.Context, auditID, entryID string) error {
	return t.store.LinkAudit(ctx, auditID, entryID)
}

// Review records an admin decision. It never touches the linked time entry.
func (t *Trail) Review(ctx context.Context, auditID string, decision database.AuditStatus, reviewerID string) error {
	if decision != database.AuditApproved && decision != database.AuditRejected {
		return fmt.Errorf("review audit %s: %w", auditID, ErrInvalidDecision)
	}
	if reviewerID == "" {
		return fmt.Errorf("review audit %s: reviewer is required", auditID)
	}
	if err := t.store.ReviewAudit(ctx, auditID, decision, reviewerID, t.now().UTC()); err != nil {
		return err
	}
	log.Info().Str("audit_id", auditID).Str("decision", string(decision)).Str("reviewer", reviewerID).Msg("audit reviewed")
	return nil
}

// Fallback builds the synthetic record for an entry accepted without a face match.
func (t *Trail) Fallback(employeeID, entryID, reason string) *database.AuditRecord {
	rec := &database.AuditRecord{
		LivenessPassed: false,
		Status:         database.AuditPending,
		RecognitionResult: database.RecognitionResult{
			Kind:    database.ResultFallback,
			Source:  database.SourceFallback,
			Success: false,
			Reason:  reason,
		},
		CreatedAt: t.now().UTC(),
	}
	if employeeID != "" {
		id := employeeID
		rec.EmployeeID = &id
	}
	if entryID != "" {
		id := entryID
		rec.TimeEntryID = &id
	}
	return rec
}

// ReconcileOrphans creates a fallback record for every time entry that has no
// linked audit record and returns how many were created. progress, when set,
// is called after each entry with the running totals.
func (t *Trail) ReconcileOrphans(ctx context.Context, progress func(done, total int)) (int, error) {
	var created, seen int
	for {
		orphans, err := t.store.EntriesWithoutAudit(ctx, reconcileBatchSize)
		if err != nil {
			return created, fmt.Errorf("list orphan entries: %w", err)
		}
		if len(orphans) == 0 {
			return created, nil
		}

		total := seen + len(orphans)
		createdInBatch := 0
		for _, entry := range orphans {
			if err := ctx.Err(); err != nil {
				return created, err
			}
			rec := t.Fallback(entry.EmployeeID, entry.ID, "reconciled: entry had no linked audit record")
			err := t.store.InsertAudit(ctx, rec)
			switch {
			case err == nil:
				created++
				createdInBatch++
				log.Info().Str("entry_id", entry.ID).Str("audit_id", rec.ID).Msg("created fallback audit record")
			case errors.Is(err, database.ErrAuditAlreadyLinked):
				// Linked concurrently by a retried commit.
			default:
				return created, fmt.Errorf("create fallback audit for entry %s: %w", entry.ID, err)
			}
			seen++
			if progress != nil {
				progress(seen, total)
			}
		}

		if createdInBatch == 0 {
			return created, nil
		}
	}
}

// Get returns one audit record.
func (t *Trail) Get(ctx context.Context, auditID string) (*database.AuditRecord, error) {
	return t.store.GetAudit(ctx, auditID)
}

// ForEntry returns the record linked to an entry.
func (t *Trail) ForEntry(ctx context.Context, entryID string) (*database.AuditRecord, error) {
	return t.store.AuditForEntry(ctx, entryID)
}

// List returns audit records for the admin view, newest first.
func (t *Trail) List(ctx context.Context, filter database.AuditFilter) ([]database.AuditRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	filter.Limit = min(filter.Limit, maxListLimit)
	return t.store.ListAudits(ctx, filter)
}
