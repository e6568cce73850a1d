package database

import (
	"context"
	"time"
)

// ProfileReader provides read-only access to identity and admin-managed data.
type ProfileReader interface {
	// GetEmployee returns the employee or ErrNotFound
	GetEmployee(ctx context.Context, employeeID string) (*Employee, error)
	// HasFacialReference reports whether at least one reference embedding is enrolled
	HasFacialReference(ctx context.Context, employeeID string) (bool, error)
	// ActiveWorkLocations returns all active locations
	ActiveWorkLocations(ctx context.Context) ([]WorkLocation, error)
	// GeofencingPolicy returns the current policy, or defaults if none is stored
	GeofencingPolicy(ctx context.Context) (GeofencingPolicy, error)
	// WorkSchedule returns the employee schedule, nil if the employee has none
	WorkSchedule(ctx context.Context, employeeID string) (*WorkSchedule, error)
}

// TimeEntryReader provides read access to accepted punches.
type TimeEntryReader interface {
	// EntriesForDay returns the non-rejected entries of an employee on a work date (YYYY-MM-DD)
	EntriesForDay(ctx context.Context, employeeID, workDate string) ([]TimeEntry, error)
	// GetTimeEntry returns the entry or ErrNotFound
	GetTimeEntry(ctx context.Context, entryID string) (*TimeEntry, error)
	// EntriesWithoutAudit returns entries that no audit record points at, oldest first
	EntriesWithoutAudit(ctx context.Context, limit int) ([]TimeEntry, error)
}

// AuditStore provides access to audit records.
type AuditStore interface {
	// InsertAudit persists a new audit record
	InsertAudit(ctx context.Context, rec *AuditRecord) error
	// GetAudit returns the record or ErrNotFound
	GetAudit(ctx context.Context, auditID string) (*AuditRecord, error)
	// ListAudits returns records matching the filter, newest first
	ListAudits(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
	// UpdateAuditOutcome replaces status and recognition result of an unreviewed record
	UpdateAuditOutcome(ctx context.Context, auditID string, status AuditStatus, result RecognitionResult) error
	// LinkAudit sets time_entry_id. Idempotent for the same pair,
	// ErrAuditAlreadyLinked when linked elsewhere, ErrNotFound when missing.
	LinkAudit(ctx context.Context, auditID, entryID string) error
	// ReviewAudit records an admin decision
	ReviewAudit(ctx context.Context, auditID string, status AuditStatus, reviewerID string, at time.Time) error
	// AuditForEntry returns the primary audit of an entry or ErrNotFound
	AuditForEntry(ctx context.Context, entryID string) (*AuditRecord, error)
}

// PunchCommitter writes an accepted punch and its audit link as one unit.
type PunchCommitter interface {
	// CommitPunch inserts the entry (idempotent on entry.ID) and applies link in a
	// single transaction. Returns ErrDuplicatePunch when the ledger slot is taken.
	CommitPunch(ctx context.Context, entry *TimeEntry, link AuditLink) error
}

// ReferenceReader provides read access to enrolled facial reference embeddings.
type ReferenceReader interface {
	// ReferencesForEmployee returns all references of one employee
	ReferencesForEmployee(ctx context.Context, employeeID string) ([]FacialReference, error)
	// FindNearest returns up to limit references ordered by cosine distance
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]FacialReference, []float64, error)
}

// Store aggregates everything the punch core needs from persistence.
type Store interface {
	ProfileReader
	TimeEntryReader
	AuditStore
	PunchCommitter
}
