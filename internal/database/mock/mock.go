// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/punch-clock/internal/database"
)

type slotKey struct {
	employeeID string
	workDate   string
	kind       database.PunchKind
	slot       string
}

// MockStore is an in-memory database.Store. The ledger slot map is guarded by
// the same mutex as entry inserts, so CommitPunch serialises like the unique index.
type MockStore struct {
	mu sync.Mutex

	employees     map[string]database.Employee
	locations     []database.WorkLocation
	policy        *database.GeofencingPolicy
	defaultRadius int
	schedules     map[string]database.WorkSchedule

	entries    map[string]*database.TimeEntry
	entryOrder []string
	slots      map[slotKey]string
	audits     map[string]*database.AuditRecord
	auditOrder []string

	// Error injection
	GetEmployeeError   error
	ProfileError       error
	EntriesError       error
	InsertAuditError   error
	UpdateAuditError   error
	LinkAuditError     error
	ReviewAuditError   error
	ListAuditsError    error
	CommitErrors       []error // returned in order by successive CommitPunch calls before any write
	CommitLostAcks     int     // number of commits that apply but still report ErrStoreUnavailable
	GetEmployeeCalls   int
	CommitPunchCalls   int
	InsertAuditCalls   int
	EntriesForDayCalls int
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates an empty store with geofencing disabled.
func NewMockStore() *MockStore {
	return &MockStore{
		employees:     make(map[string]database.Employee),
		defaultRadius: 100,
		schedules:     make(map[string]database.WorkSchedule),
		entries:       make(map[string]*database.TimeEntry),
		slots:         make(map[slotKey]string),
		audits:        make(map[string]*database.AuditRecord),
	}
}

// AddEmployee registers an employee.
func (m *MockStore) AddEmployee(emp database.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
}

// AddLocation registers a work location.
func (m *MockStore) AddLocation(loc database.WorkLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = append(m.locations, loc)
}

// SetPolicy stores the geofencing policy.
func (m *MockStore) SetPolicy(p database.GeofencingPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = &p
}

// SetSchedule stores an employee schedule.
func (m *MockStore) SetSchedule(s database.WorkSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.EmployeeID] = s
}

// AddEntry inserts an entry without any audit record, as a crashed commit would leave it.
func (m *MockStore) AddEntry(entry database.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.LedgerSlot == "" {
		entry.LedgerSlot = database.SlotDay
	}
	m.insertEntryLocked(&entry)
}

// Entries returns a copy of all entries in insertion order.
func (m *MockStore) Entries() []database.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.TimeEntry, 0, len(m.entryOrder))
	for _, id := range m.entryOrder {
		out = append(out, *m.entries[id])
	}
	return out
}

// Audits returns a copy of all audit records in insertion order.
func (m *MockStore) Audits() []database.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.AuditRecord, 0, len(m.auditOrder))
	for _, id := range m.auditOrder {
		out = append(out, cloneAudit(m.audits[id]))
	}
	return out
}

func cloneAudit(a *database.AuditRecord) database.AuditRecord {
	c := *a
	if a.TimeEntryID != nil {
		id := *a.TimeEntryID
		c.TimeEntryID = &id
	}
	return c
}

// GetEmployee returns the employee or ErrNotFound.
func (m *MockStore) GetEmployee(ctx context.Context, employeeID string) (*database.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetEmployeeCalls++
	if m.GetEmployeeError != nil {
		return nil, m.GetEmployeeError
	}
	emp, ok := m.employees[employeeID]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", employeeID, database.ErrNotFound)
	}
	return &emp, nil
}

// HasFacialReference reports the employee's HasFacialReference flag.
func (m *MockStore) HasFacialReference(ctx context.Context, employeeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileError != nil {
		return false, m.ProfileError
	}
	return m.employees[employeeID].HasFacialReference, nil
}

// ActiveWorkLocations returns the active locations.
func (m *MockStore) ActiveWorkLocations(ctx context.Context) ([]database.WorkLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileError != nil {
		return nil, m.ProfileError
	}
	var out []database.WorkLocation
	for _, loc := range m.locations {
		if loc.IsActive {
			out = append(out, loc)
		}
	}
	return out, nil
}

// GeofencingPolicy returns the stored policy or a disabled default.
func (m *MockStore) GeofencingPolicy(ctx context.Context) (database.GeofencingPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileError != nil {
		return database.GeofencingPolicy{}, m.ProfileError
	}
	if m.policy == nil {
		return database.GeofencingPolicy{DefaultRadiusMeters: m.defaultRadius}, nil
	}
	return *m.policy, nil
}

// WorkSchedule returns the employee schedule or nil.
func (m *MockStore) WorkSchedule(ctx context.Context, employeeID string) (*database.WorkSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileError != nil {
		return nil, m.ProfileError
	}
	s, ok := m.schedules[employeeID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// EntriesForDay returns live entries of an employee on a work date.
func (m *MockStore) EntriesForDay(ctx context.Context, employeeID, workDate string) ([]database.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesForDayCalls++
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	var out []database.TimeEntry
	for _, id := range m.entryOrder {
		e := m.entries[id]
		if e.EmployeeID == employeeID && e.WorkDate == workDate && e.Status != database.EntryRejected {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PunchTimestamp.Before(out[j].PunchTimestamp) })
	return out, nil
}

// GetTimeEntry returns an entry or ErrNotFound.
func (m *MockStore) GetTimeEntry(ctx context.Context, entryID string) (*database.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	e, ok := m.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("time entry %s: %w", entryID, database.ErrNotFound)
	}
	c := *e
	return &c, nil
}

// EntriesWithoutAudit returns entries no audit record points at.
func (m *MockStore) EntriesWithoutAudit(ctx context.Context, limit int) ([]database.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	linked := make(map[string]bool, len(m.audits))
	for _, a := range m.audits {
		if a.TimeEntryID != nil {
			linked[*a.TimeEntryID] = true
		}
	}
	var out []database.TimeEntry
	for _, id := range m.entryOrder {
		if linked[id] {
			continue
		}
		out = append(out, *m.entries[id])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// InsertAudit stores a new audit record.
func (m *MockStore) InsertAudit(ctx context.Context, rec *database.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertAuditCalls++
	if m.InsertAuditError != nil {
		return m.InsertAuditError
	}
	if rec.TimeEntryID != nil && m.linkedAuditLocked(*rec.TimeEntryID) != "" {
		return database.ErrAuditAlreadyLinked
	}
	m.insertAuditLocked(rec)
	return nil
}

func (m *MockStore) insertAuditLocked(rec *database.AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = database.AuditPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	c := cloneAudit(rec)
	m.audits[rec.ID] = &c
	m.auditOrder = append(m.auditOrder, rec.ID)
}

// linkedAuditLocked returns the id of the audit linked to entryID, if any.
func (m *MockStore) linkedAuditLocked(entryID string) string {
	for id, a := range m.audits {
		if a.TimeEntryID != nil && *a.TimeEntryID == entryID {
			return id
		}
	}
	return ""
}

// GetAudit returns a record or ErrNotFound.
func (m *MockStore) GetAudit(ctx context.Context, auditID string) (*database.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[auditID]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", auditID, database.ErrNotFound)
	}
	c := cloneAudit(a)
	return &c, nil
}

// AuditForEntry returns the record linked to an entry.
func (m *MockStore) AuditForEntry(ctx context.Context, entryID string) (*database.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.linkedAuditLocked(entryID)
	if id == "" {
		return nil, fmt.Errorf("audit for entry %s: %w", entryID, database.ErrNotFound)
	}
	c := cloneAudit(m.audits[id])
	return &c, nil
}

// ListAudits filters records, newest first.
func (m *MockStore) ListAudits(ctx context.Context, filter database.AuditFilter) ([]database.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListAuditsError != nil {
		return nil, m.ListAuditsError
	}
	var out []database.AuditRecord
	for i := len(m.auditOrder) - 1; i >= 0; i-- {
		a := m.audits[m.auditOrder[i]]
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.EmployeeID != "" && (a.EmployeeID == nil || *a.EmployeeID != filter.EmployeeID) {
			continue
		}
		out = append(out, cloneAudit(a))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateAuditOutcome rewrites status and payload of an unreviewed record.
func (m *MockStore) UpdateAuditOutcome(
	ctx context.Context, auditID string, status database.AuditStatus, result database.RecognitionResult,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateAuditError != nil {
		return m.UpdateAuditError
	}
	a, ok := m.audits[auditID]
	if !ok || a.ReviewedAt != nil {
		return fmt.Errorf("update audit outcome %s: %w", auditID, database.ErrNotFound)
	}
	a.Status = status
	a.RecognitionResult = result
	return nil
}

// LinkAudit points an audit record at an entry.
func (m *MockStore) LinkAudit(ctx context.Context, auditID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LinkAuditError != nil {
		return m.LinkAuditError
	}
	if err := m.checkLinkLocked(auditID, entryID); err != nil {
		return err
	}
	m.audits[auditID].TimeEntryID = &entryID
	return nil
}

func (m *MockStore) checkLinkLocked(auditID, entryID string) error {
	a, ok := m.audits[auditID]
	if !ok {
		return fmt.Errorf("link audit %s: %w", auditID, database.ErrNotFound)
	}
	if a.TimeEntryID != nil && *a.TimeEntryID != entryID {
		return fmt.Errorf("link audit %s: %w", auditID, database.ErrAuditAlreadyLinked)
	}
	if other := m.linkedAuditLocked(entryID); other != "" && other != auditID {
		return fmt.Errorf("link audit %s: %w", auditID, database.ErrAuditAlreadyLinked)
	}
	return nil
}

// ReviewAudit records an admin decision.
func (m *MockStore) ReviewAudit(
	ctx context.Context, auditID string, status database.AuditStatus, reviewerID string, at time.Time,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReviewAuditError != nil {
		return m.ReviewAuditError
	}
	a, ok := m.audits[auditID]
	if !ok {
		return fmt.Errorf("review audit %s: %w", auditID, database.ErrNotFound)
	}
	a.Status = status
	a.ReviewedBy = &reviewerID
	a.ReviewedAt = &at
	return nil
}

// CommitPunch inserts the entry and applies the link atomically.
func (m *MockStore) CommitPunch(ctx context.Context, entry *database.TimeEntry, link database.AuditLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitPunchCalls++

	if len(m.CommitErrors) > 0 {
		err := m.CommitErrors[0]
		m.CommitErrors = m.CommitErrors[1:]
		if err != nil {
			return err
		}
	}
	if entry.ID == "" {
		return fmt.Errorf("commit punch: entry id is required")
	}
	if link.AuditID == "" && link.Fallback == nil {
		return fmt.Errorf("commit punch: audit link or fallback record is required")
	}
	if entry.LedgerSlot == "" {
		entry.LedgerSlot = database.SlotDay
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, exists := m.entries[entry.ID]
	if !exists && entry.Status != database.EntryRejected {
		if _, taken := m.slots[entryKey(entry)]; taken {
			return fmt.Errorf("insert time entry: %w", database.ErrDuplicatePunch)
		}
	}

	// Validate the link before writing anything.
	if link.Fallback == nil {
		if err := m.checkLinkLocked(link.AuditID, entry.ID); err != nil {
			return err
		}
	}

	if !exists {
		c := *entry
		m.insertEntryLocked(&c)
	}

	if link.Fallback != nil {
		link.Fallback.TimeEntryID = &entry.ID
		_, dup := m.audits[link.Fallback.ID]
		if !dup && m.linkedAuditLocked(entry.ID) == "" {
			m.insertAuditLocked(link.Fallback)
		}
	} else {
		a := m.audits[link.AuditID]
		id := entry.ID
		a.TimeEntryID = &id
		if a.ReviewedAt == nil {
			if link.Status != "" {
				a.Status = link.Status
			}
			if link.Result != nil {
				a.RecognitionResult = *link.Result
			}
		}
	}

	if m.CommitLostAcks > 0 {
		m.CommitLostAcks--
		return fmt.Errorf("commit punch: %w", database.ErrStoreUnavailable)
	}
	return nil
}

func entryKey(e *database.TimeEntry) slotKey {
	return slotKey{employeeID: e.EmployeeID, workDate: e.WorkDate, kind: e.PunchKind, slot: e.LedgerSlot}
}

func (m *MockStore) insertEntryLocked(e *database.TimeEntry) {
	m.entries[e.ID] = e
	m.entryOrder = append(m.entryOrder, e.ID)
	if e.Status != database.EntryRejected {
		m.slots[entryKey(e)] = e.ID
	}
}

// MockReferenceReader is an in-memory database.ReferenceReader using brute-force cosine search.
type MockReferenceReader struct {
	mu   sync.RWMutex
	refs []database.FacialReference

	// Error injection
	ReferencesError  error
	FindNearestError error
}

var _ database.ReferenceReader = (*MockReferenceReader)(nil)

// NewMockReferenceReader creates an empty reader.
func NewMockReferenceReader() *MockReferenceReader {
	return &MockReferenceReader{}
}

// AddReference adds a reference embedding.
func (m *MockReferenceReader) AddReference(ref database.FacialReference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref.ID == 0 {
		ref.ID = int64(len(m.refs) + 1)
	}
	m.refs = append(m.refs, ref)
}

// ReferencesForEmployee returns the references of one employee.
func (m *MockReferenceReader) ReferencesForEmployee(
	ctx context.Context, employeeID string,
) ([]database.FacialReference, error) {
	if m.ReferencesError != nil {
		return nil, m.ReferencesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.FacialReference
	for _, r := range m.refs {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindNearest returns the closest references by cosine distance.
func (m *MockReferenceReader) FindNearest(
	ctx context.Context, embedding []float32, limit int,
) ([]database.FacialReference, []float64, error) {
	if m.FindNearestError != nil {
		return nil, nil, m.FindNearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		ref  database.FacialReference
		dist float64
	}
	all := make([]scored, 0, len(m.refs))
	for _, r := range m.refs {
		all = append(all, scored{r, database.CosineDistance(embedding, r.Embedding)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	refs := make([]database.FacialReference, 0, len(all))
	distances := make([]float64, 0, len(all))
	for _, s := range all {
		refs = append(refs, s.ref)
		distances = append(distances, s.dist)
	}
	return refs, distances, nil
}
