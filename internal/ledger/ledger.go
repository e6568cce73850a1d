// Package ledger tracks which punch kinds an employee has already used on a
// calendar day and computes the ledger slot a new punch occupies.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// ScheduleReader loads an employee's work schedule, nil when none exists.
type ScheduleReader interface {
	WorkSchedule(ctx context.Context, employeeID string) (*database.WorkSchedule, error)
}

// Ledger answers one-per-day questions from stored time entries.
// Calendar days are evaluated in loc.
type Ledger struct {
	entries   database.TimeEntryReader
	schedules ScheduleReader
	loc       *time.Location
}

// New creates a ledger. A nil loc means UTC.
func New(entries database.TimeEntryReader, schedules ScheduleReader, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{entries: entries, schedules: schedules, loc: loc}
}

// Location returns the timezone calendar days are evaluated in.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// WorkDate returns the calendar day of t as YYYY-MM-DD.
func (l *Ledger) WorkDate(t time.Time) string {
	return t.In(l.loc).Format(time.DateOnly)
}

// Check is the ledger verdict for a prospective punch.
type Check struct {
	Allowed  bool
	Slot     string
	WorkDate string
}

// Slot returns the ledger slot a punch of kind at `at` occupies.
// Only a scheduled IN deviates from the one-per-day slot: inside the clock-in
// window it takes the shift slot, outside it the single extra slot of the day.
func (l *Ledger) Slot(kind database.PunchKind, at time.Time, schedule *database.WorkSchedule) string {
	if kind != database.PunchIn || schedule == nil {
		return database.SlotDay
	}
	inWindow, ok := l.inClockInWindow(at, schedule)
	if !ok {
		return database.SlotDay
	}
	if inWindow {
		return database.SlotShift
	}
	return database.SlotExtra
}

// inClockInWindow reports whether at lies in the schedule's clock-in window on
// its own calendar day. ok is false when the schedule cannot be parsed.
func (l *Ledger) inClockInWindow(at time.Time, schedule *database.WorkSchedule) (inWindow, ok bool) {
	local := at.In(l.loc)
	from, to, err := schedule.ClockInWindow(local)
	if err != nil {
		return false, false
	}
	return !local.Before(from) && !local.After(to), true
}

// CanPunch decides whether employeeID may record kind at asOf.
func (l *Ledger) CanPunch(
	ctx context.Context, employeeID string, kind database.PunchKind, asOf time.Time,
) (Check, error) {
	schedule, err := l.scheduleFor(ctx, employeeID, kind)
	if err != nil {
		return Check{}, err
	}

	workDate := l.WorkDate(asOf)
	entries, err := l.entries.EntriesForDay(ctx, employeeID, workDate)
	if err != nil {
		return Check{}, fmt.Errorf("load entries for %s on %s: %w", employeeID, workDate, err)
	}

	slot := l.Slot(kind, asOf, schedule)
	return Check{
		Allowed:  !l.slotUsed(entries, kind, slot, schedule),
		Slot:     slot,
		WorkDate: workDate,
	}, nil
}

// RecordedKindsToday returns the kinds that a new punch at asOf could not use.
func (l *Ledger) RecordedKindsToday(
	ctx context.Context, employeeID string, asOf time.Time,
) (map[database.PunchKind]bool, error) {
	schedule, err := l.scheduleFor(ctx, employeeID, database.PunchIn)
	if err != nil {
		return nil, err
	}

	workDate := l.WorkDate(asOf)
	entries, err := l.entries.EntriesForDay(ctx, employeeID, workDate)
	if err != nil {
		return nil, fmt.Errorf("load entries for %s on %s: %w", employeeID, workDate, err)
	}

	used := make(map[database.PunchKind]bool, len(database.AllPunchKinds))
	for _, kind := range database.AllPunchKinds {
		var s *database.WorkSchedule
		if kind == database.PunchIn {
			s = schedule
		}
		if l.slotUsed(entries, kind, l.Slot(kind, asOf, s), s) {
			used[kind] = true
		}
	}
	return used, nil
}

func (l *Ledger) scheduleFor(ctx context.Context, employeeID string, kind database.PunchKind) (*database.WorkSchedule, error) {
	if kind != database.PunchIn {
		return nil, nil
	}
	schedule, err := l.schedules.WorkSchedule(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("load schedule for %s: %w", employeeID, err)
	}
	return schedule, nil
}

// slotUsed reports whether a live entry already holds slot. For the shift slot
// an existing IN counts when its own timestamp falls inside the clock-in window.
// The extra slot admits one out-of-window IN per day.
func (l *Ledger) slotUsed(entries []database.TimeEntry, kind database.PunchKind, slot string, schedule *database.WorkSchedule) bool {
	for _, e := range entries {
		if e.PunchKind != kind || e.Status == database.EntryRejected {
			continue
		}
		switch {
		case slot == database.SlotDay:
			return true
		case slot == database.SlotShift:
			if e.LedgerSlot == database.SlotShift {
				return true
			}
			if in, ok := l.inClockInWindow(e.PunchTimestamp, schedule); ok && in {
				return true
			}
		case slot == database.SlotExtra:
			if e.LedgerSlot == database.SlotExtra {
				return true
			}
		}
	}
	return false
}
