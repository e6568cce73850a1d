package database

import (
	"fmt"
	"strings"
	"time"
)

// LocationType classifies a work location.
type LocationType string

const (
	LocationOffice     LocationType = "office"
	LocationHomeOffice LocationType = "home_office"
	LocationField      LocationType = "field"
)

// PunchKind is one of the four daily punch events.
type PunchKind string

const (
	PunchIn       PunchKind = "IN"
	PunchOut      PunchKind = "OUT"
	PunchBreakIn  PunchKind = "BREAK_IN"
	PunchBreakOut PunchKind = "BREAK_OUT"
)

// AllPunchKinds lists every punch kind in display order.
var AllPunchKinds = []PunchKind{PunchIn, PunchBreakIn, PunchBreakOut, PunchOut}

// ParsePunchKind accepts the canonical names case-insensitively.
func ParsePunchKind(s string) (PunchKind, error) {
	k := PunchKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case PunchIn, PunchOut, PunchBreakIn, PunchBreakOut:
		return k, nil
	}
	return "", fmt.Errorf("unknown punch kind %q", s)
}

// EntryStatus is the lifecycle status of a time entry.
type EntryStatus string

const (
	EntryPending  EntryStatus = "pending"
	EntryApproved EntryStatus = "approved"
	EntryRejected EntryStatus = "rejected"
)

// AuditStatus is the review status of an audit record.
type AuditStatus string

const (
	AuditPending  AuditStatus = "pending"
	AuditApproved AuditStatus = "approved"
	AuditRejected AuditStatus = "rejected"
)

// Employee is the subset of the identity profile the punch core reads.
type Employee struct {
	ID                 string `db:"id" json:"id"`
	FullName           string `db:"full_name" json:"full_name"`
	IsActive           bool   `db:"is_active" json:"is_active"`
	HasFacialReference bool   `db:"has_facial_reference" json:"has_facial_reference"`
}

// WorkLocation is an admin-managed place where punches are accepted.
// Coordinates and radius are optional; a location without coordinates never matches.
type WorkLocation struct {
	ID           string       `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Type         LocationType `db:"type" json:"type"`
	Latitude     *float64     `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64     `db:"longitude" json:"longitude,omitempty"`
	RadiusMeters *int         `db:"radius_meters" json:"radius_meters,omitempty"`
	IsActive     bool         `db:"is_active" json:"is_active"`
}

// GeofencingPolicy is the process-wide geofencing setting, loaded per request.
type GeofencingPolicy struct {
	Enabled             bool `db:"enabled" json:"enabled"`
	DefaultRadiusMeters int  `db:"default_radius_meters" json:"default_radius_meters"`
}

// WorkSchedule holds an employee's daily schedule as "HH:MM" wall-clock times.
type WorkSchedule struct {
	EmployeeID       string `db:"employee_id" json:"employee_id"`
	ClockInTime      string `db:"clock_in_time" json:"clock_in_time"`
	ClockOutTime     string `db:"clock_out_time" json:"clock_out_time"`
	BreakStartTime   string `db:"break_start_time" json:"break_start_time"`
	BreakEndTime     string `db:"break_end_time" json:"break_end_time"`
	ToleranceMinutes int    `db:"tolerance_minutes" json:"tolerance_minutes"`
}

// ClockInWindow returns the inclusive window [clockIn-tolerance, clockIn+tolerance]
// on the calendar day of `day`, in day's location.
func (s *WorkSchedule) ClockInWindow(day time.Time) (time.Time, time.Time, error) {
	hm, err := time.Parse("15:04", s.ClockInTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse clock-in time %q: %w", s.ClockInTime, err)
	}
	y, m, d := day.Date()
	center := time.Date(y, m, d, hm.Hour(), hm.Minute(), 0, 0, day.Location())
	tol := time.Duration(max(s.ToleranceMinutes, 0)) * time.Minute
	return center.Add(-tol), center.Add(tol), nil
}

// TimeEntry is an accepted punch. Immutable after creation except Status.
type TimeEntry struct {
	ID              string      `db:"id" json:"id"`
	EmployeeID      string      `db:"employee_id" json:"employee_id"`
	PunchKind       PunchKind   `db:"punch_kind" json:"punch_kind"`
	PunchTimestamp  time.Time   `db:"punch_timestamp" json:"punch_timestamp"`
	WorkDate        string      `db:"work_date" json:"work_date"` // YYYY-MM-DD in the configured timezone
	LedgerSlot      string      `db:"ledger_slot" json:"-"`
	LocationLat     *float64    `db:"location_lat" json:"location_lat,omitempty"`
	LocationLng     *float64    `db:"location_lng" json:"location_lng,omitempty"`
	LocationAddress string      `db:"location_address" json:"location_address,omitempty"`
	WorkLocationID  *string     `db:"work_location_id" json:"work_location_id,omitempty"`
	Status          EntryStatus `db:"status" json:"status"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// ResultKind tags the variant carried by RecognitionResult.
type ResultKind string

const (
	ResultAccepted         ResultKind = "accepted"
	ResultNoFace           ResultKind = "no_face"
	ResultLowConfidence    ResultKind = "low_confidence"
	ResultLivenessFailed   ResultKind = "liveness_failed"
	ResultIdentityMismatch ResultKind = "identity_mismatch"
	ResultAlreadyPunched   ResultKind = "already_punched"
	ResultFallback         ResultKind = "fallback"
)

// Audit record sources.
const (
	SourceFaceMatch = "face_match"
	SourceFallback  = "fallback"
)

// RecognitionResult describes what happened during a verification attempt.
type RecognitionResult struct {
	Kind               ResultKind `json:"kind"`
	Source             string     `json:"source"`
	Success            bool       `json:"success"`
	Reason             string     `json:"reason,omitempty"`
	PunchKind          PunchKind  `json:"punch_kind,omitempty"`
	Threshold          float64    `json:"threshold,omitempty"`
	ExpectedEmployeeID string     `json:"expected_employee_id,omitempty"`
	MatchedEmployeeID  string     `json:"matched_employee_id,omitempty"`
	OverrideBy         string     `json:"override_by,omitempty"`
}

// AuditRecord is durable evidence of one verification attempt.
type AuditRecord struct {
	ID                string            `db:"id" json:"id"`
	EmployeeID        *string           `db:"employee_id" json:"employee_id,omitempty"`
	AttemptImageRef   string            `db:"attempt_image_ref" json:"attempt_image_ref"`
	ConfidenceScore   *float64          `db:"confidence_score" json:"confidence_score"`
	LivenessPassed    bool              `db:"liveness_passed" json:"liveness_passed"`
	Status            AuditStatus       `db:"status" json:"status"`
	RecognitionResult RecognitionResult `db:"-" json:"recognition_result"`
	TimeEntryID       *string           `db:"time_entry_id" json:"time_entry_id,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	ReviewedAt        *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy        *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// AuditFilter narrows audit listings for the admin view.
type AuditFilter struct {
	Status     AuditStatus
	EmployeeID string
	Limit      int
}

// FacialReference is an enrolled reference embedding for an employee.
type FacialReference struct {
	ID         int64
	EmployeeID string
	Embedding  []float32
	Model      string
	CreatedAt  time.Time
}

// AuditLink tells CommitPunch how to attach the audit record to a new entry:
// either link an existing record (AuditID) or insert Fallback.
type AuditLink struct {
	AuditID  string
	Status   AuditStatus
	Result   *RecognitionResult
	Fallback *AuditRecord
}
