package database

import "errors"

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePunch is returned when the ledger slot for (employee, day, kind) is taken.
	ErrDuplicatePunch = errors.New("punch already recorded for this slot")
	// ErrAuditAlreadyLinked is returned when an audit record is linked to a different entry.
	ErrAuditAlreadyLinked = errors.New("audit record already linked to another time entry")
	// ErrStoreUnavailable marks transient persistence failures that are safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
