package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pool := NewPoolFromDB(sqlx.NewDb(db, "postgres"))
	return NewRepository(pool, 100), mock
}

func testEntry() *database.TimeEntry {
	return &database.TimeEntry{
		ID:             "7d1f7c62-4d0c-4a53-9d39-9c3c1a0e5b11",
		EmployeeID:     "E1",
		PunchKind:      database.PunchIn,
		PunchTimestamp: time.Date(2026, 3, 10, 11, 5, 0, 0, time.UTC),
		WorkDate:       "2026-03-10",
		LedgerSlot:     database.SlotShift,
		Status:         database.EntryApproved,
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"ledger unique violation", &pq.Error{Code: "23505", Constraint: ledgerSlotIndex}, database.ErrDuplicatePunch},
		{"audit link unique violation", &pq.Error{Code: "23505", Constraint: auditEntryIndex}, database.ErrAuditAlreadyLinked},
		{"connection failure", &pq.Error{Code: "08006"}, database.ErrStoreUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, database.ErrStoreUnavailable},
		{"serialization failure", &pq.Error{Code: "40001"}, database.ErrStoreUnavailable},
		{"bad connection", driver.ErrBadConn, database.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, database.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	t.Run("other unique violation passes through", func(t *testing.T) {
		err := mapError(&pq.Error{Code: "23505", Constraint: "employees_pkey"})
		assert.False(t, errors.Is(err, database.ErrDuplicatePunch))
		assert.False(t, errors.Is(err, database.ErrStoreUnavailable))
	})

	assert.NoError(t, mapError(nil))
}

func TestCommitPunch_LinksExistingAudit(t *testing.T) {
	repo, mock := newMockRepository(t)
	entry := testEntry()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO time_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE audit_records").
		WithArgs("a1", entry.ID, "approved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result := &database.RecognitionResult{Kind: database.ResultAccepted, Success: true}
	err := repo.CommitPunch(context.Background(), entry, database.AuditLink{
		AuditID: "a1",
		Status:  database.AuditApproved,
		Result:  result,
	})
	require.NoError(t, err)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPunch_LinkKeepsReviewedOutcome(t *testing.T) {
	repo, mock := newMockRepository(t)
	entry := testEntry()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO time_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_records") +
		`(?s).*status = CASE WHEN reviewed_at IS NULL .* ELSE status END` +
		`.*recognition_result = CASE WHEN reviewed_at IS NULL .* ELSE recognition_result END`).
		WithArgs("a1", entry.ID, "approved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CommitPunch(context.Background(), entry, database.AuditLink{
		AuditID: "a1",
		Status:  database.AuditApproved,
		Result:  &database.RecognitionResult{Kind: database.ResultAccepted, Success: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPunch_InsertsFallbackAudit(t *testing.T) {
	repo, mock := newMockRepository(t)
	entry := testEntry()
	fallback := &database.AuditRecord{
		ID:                "f1",
		Status:            database.AuditApproved,
		RecognitionResult: database.RecognitionResult{Kind: database.ResultFallback, Source: database.SourceFallback},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO time_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records") + "(?s).*ON CONFLICT DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CommitPunch(context.Background(), entry, database.AuditLink{Fallback: fallback})
	require.NoError(t, err)
	require.NotNil(t, fallback.TimeEntryID)
	assert.Equal(t, entry.ID, *fallback.TimeEntryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPunch_DuplicateSlot(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO time_entries").
		WillReturnError(&pq.Error{Code: "23505", Constraint: ledgerSlotIndex})
	mock.ExpectRollback()

	err := repo.CommitPunch(context.Background(), testEntry(), database.AuditLink{AuditID: "a1"})
	assert.ErrorIs(t, err, database.ErrDuplicatePunch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPunch_RequiresLink(t *testing.T) {
	repo, _ := newMockRepository(t)
	err := repo.CommitPunch(context.Background(), testEntry(), database.AuditLink{})
	assert.Error(t, err)
}

func TestLinkAudit(t *testing.T) {
	t.Run("linked elsewhere", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("UPDATE audit_records").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT time_entry_id FROM audit_records")).
			WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"time_entry_id"}).AddRow("other-entry"))

		err := repo.LinkAudit(context.Background(), "a1", "e1")
		assert.ErrorIs(t, err, database.ErrAuditAlreadyLinked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("UPDATE audit_records").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT time_entry_id FROM audit_records")).
			WillReturnRows(sqlmock.NewRows([]string{"time_entry_id"}))

		err := repo.LinkAudit(context.Background(), "a1", "e1")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("same pair", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("UPDATE audit_records").
			WithArgs("a1", "e1", "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.LinkAudit(context.Background(), "a1", "e1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetEmployee(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM employees e").
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "is_active", "has_facial_reference"}).
			AddRow("E1", "Ana Souza", true, true))

	emp, err := repo.GetEmployee(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", emp.FullName)
	assert.True(t, emp.HasFacialReference)
}

func TestGetEmployee_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM employees e").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "is_active", "has_facial_reference"}))

	_, err := repo.GetEmployee(context.Background(), "nobody")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestGeofencingPolicy_DefaultsWhenUnset(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM geofencing_settings").
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "default_radius_meters"}))

	policy, err := repo.GeofencingPolicy(context.Background())
	require.NoError(t, err)
	assert.False(t, policy.Enabled)
	assert.Equal(t, 100, policy.DefaultRadiusMeters)
}

func TestWorkSchedule_None(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM work_schedules").
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows([]string{
			"employee_id", "clock_in_time", "clock_out_time", "break_start_time", "break_end_time", "tolerance_minutes",
		}))

	s, err := repo.WorkSchedule(context.Background(), "E1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestActiveWorkLocations_Unavailable(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM work_locations").WillReturnError(driver.ErrBadConn)

	_, err := repo.ActiveWorkLocations(context.Background())
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}

func TestListAudits_Filters(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 3, 10, 11, 5, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND employee_id = $2 ORDER BY created_at DESC, id LIMIT $3")).
		WithArgs("pending", "E1", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "employee_id", "attempt_image_ref", "confidence_score", "liveness_passed", "status",
			"recognition_result", "time_entry_id", "created_at", "reviewed_at", "reviewed_by",
		}).AddRow("a1", "E1", "sha256:ab", 0.42, true, "pending",
			[]byte(`{"kind":"low_confidence","source":"face_match","success":false}`), nil, created, nil, nil))

	records, err := repo.ListAudits(context.Background(), database.AuditFilter{
		Status:     database.AuditPending,
		EmployeeID: "E1",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, database.ResultLowConfidence, records[0].RecognitionResult.Kind)
	require.NotNil(t, records[0].ConfidenceScore)
	assert.InDelta(t, 0.42, *records[0].ConfidenceScore, 1e-9)
	assert.Nil(t, records[0].TimeEntryID)
}

func TestReviewAudit_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("UPDATE audit_records SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReviewAudit(context.Background(), "missing", database.AuditApproved, "admin", time.Now())
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestUpdateAuditOutcome(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("UPDATE audit_records SET status = \\$2, recognition_result = \\$3").
		WithArgs("a1", "rejected", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateAuditOutcome(context.Background(), "a1", database.AuditRejected,
		database.RecognitionResult{Kind: database.ResultAlreadyPunched})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
