package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/lib/pq"
)

const (
	ledgerSlotIndex = "time_entries_ledger_slot_key"
	auditEntryIndex = "audit_records_time_entry_key"
)

// mapError translates driver errors into the database package sentinels.
// Errors that match none of them are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505" && pqErr.Constraint == ledgerSlotIndex:
			return fmt.Errorf("%w: %v", database.ErrDuplicatePunch, err)
		case pqErr.Code == "23505" && pqErr.Constraint == auditEntryIndex:
			return fmt.Errorf("%w: %v", database.ErrAuditAlreadyLinked, err)
		case pqErr.Code.Class() == "08", // connection exception
			pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03", // admin/crash shutdown, cannot connect now
			pqErr.Code == "53300", // too many connections
			pqErr.Code == "40001", pqErr.Code == "40P01": // serialization failure, deadlock
			return fmt.Errorf("%w: %v", database.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", database.ErrStoreUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", database.ErrStoreUnavailable, err)
	}
	return err
}
