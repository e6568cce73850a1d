// Package punch decides whether a punch is accepted: geofencing, face
// verification and the daily ledger are checked in order, and an accepted
// punch is stored together with its audit record in one commit.
package punch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/kozaktomas/punch-clock/internal/audit"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/facematch"
	"github.com/kozaktomas/punch-clock/internal/geo"
	"github.com/kozaktomas/punch-clock/internal/ledger"
	"github.com/kozaktomas/punch-clock/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidRequest is returned for malformed requests. It is not a rejection.
	ErrInvalidRequest = errors.New("invalid punch request")
	// ErrUnknownEmployee is returned when the employee does not exist.
	ErrUnknownEmployee = errors.New("unknown employee")
)

// Override is an admin-approved punch without a face match.
type Override struct {
	ApprovedBy string `json:"approved_by"`
	Reason     string `json:"reason"`
}

// Request is one punch attempt. Face is a result computed by the caller; when
// it is nil and Capture is set the configured matcher is consulted.
// ExpectedEmployeeID is passed to the matcher, empty means 1:N identification.
type Request struct {
	EmployeeID         string
	Kind               database.PunchKind
	Coords             *geo.Point
	Address            string
	Face               *facematch.Result
	Capture            []byte
	ExpectedEmployeeID string
	Override           *Override
	Now                time.Time
}

// Settings are the process-wide policy knobs. The geofencing policy is not
// here, it is loaded from the profile store on every request.
type Settings struct {
	Face                facematch.Policy
	AllowManualOverride bool
	CommitRetries       int
	Location            *time.Location
}

// Deps are the collaborators of an Authorizer. Matcher and Metrics are optional.
type Deps struct {
	Profiles database.ProfileReader
	Store    database.Store
	Matcher  facematch.Matcher
	Metrics  *metrics.Registry
}

// Authorizer runs the punch state machine. It is safe for concurrent use.
type Authorizer struct {
	profiles database.ProfileReader
	store    database.Store
	matcher  facematch.Matcher
	metrics  *metrics.Registry
	ledger   *ledger.Ledger
	trail    *audit.Trail
	settings Settings

	now        func() time.Time
	newID      func() string
	newBackOff func() backoff.BackOff
}

// NewAuthorizer creates an authorizer. Profiles defaults to Store.
func NewAuthorizer(deps Deps, settings Settings) *Authorizer {
	if deps.Profiles == nil {
		deps.Profiles = deps.Store
	}
	if settings.CommitRetries < 0 {
		settings.CommitRetries = 0
	}
	return &Authorizer{
		profiles: deps.Profiles,
		store:    deps.Store,
		matcher:  deps.Matcher,
		metrics:  deps.Metrics,
		ledger:   ledger.New(deps.Store, deps.Profiles, settings.Location),
		trail:    audit.NewTrail(deps.Store),
		settings: settings,
		now:      time.Now,
		newID:    uuid.NewString,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

// Ledger returns the ledger the authorizer checks against.
func (a *Authorizer) Ledger() *ledger.Ledger {
	return a.ledger
}

// Trail returns the audit trail the authorizer writes to.
func (a *Authorizer) Trail() *audit.Trail {
	return a.trail
}

// attempt carries the state of one Authorize call between steps.
type attempt struct {
	req        Request
	now        time.Time
	logger     zerolog.Logger
	state      State
	locationID *string
	auditID    string
	faceResult *database.RecognitionResult
}

// Authorize runs one request through the state machine. Rejections are
// returned as a Decision; an error means the request could not be decided,
// and wraps database.ErrStoreUnavailable when persistence was unreachable.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (*Decision, error) {
	start := time.Now()
	if err := validate(req); err != nil {
		return nil, err
	}

	at := &attempt{
		req:   req,
		now:   req.Now,
		state: StateReceived,
		logger: log.With().
			Str("employee_id", req.EmployeeID).
			Str("punch_kind", string(req.Kind)).
			Logger(),
	}
	if at.now.IsZero() {
		at.now = a.now()
	}

	decision, err := a.run(ctx, at)
	switch {
	case err != nil:
		at.logger.Error().Err(err).Str("state", string(at.state)).Msg("punch authorization failed")
		a.metrics.RecordDecision("error", "", time.Since(start))
		return nil, err
	case decision.Committed():
		at.logger.Info().
			Str("entry_id", decision.Entry.ID).
			Str("audit_id", decision.AuditID).
			Str("slot", decision.Entry.LedgerSlot).
			Msg("punch committed")
	default:
		at.logger.Warn().
			Str("reason", string(decision.Reason)).
			Str("audit_id", decision.AuditID).
			Str("state", string(decision.LastState)).
			Msg("punch rejected")
	}
	a.metrics.RecordDecision(string(decision.State), string(decision.Reason), time.Since(start))
	return decision, nil
}

func validate(req Request) error {
	if req.EmployeeID == "" {
		return fmt.Errorf("%w: employee id is required", ErrInvalidRequest)
	}
	if _, err := database.ParsePunchKind(string(req.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Override != nil && req.Override.ApprovedBy == "" {
		return fmt.Errorf("%w: override requires an approving admin", ErrInvalidRequest)
	}
	return nil
}

func (a *Authorizer) run(ctx context.Context, at *attempt) (*Decision, error) {
	if d, err := a.checkGeo(ctx, at); d != nil || err != nil {
		return d, err
	}
	at.state = StateGeoChecked

	if d, err := a.checkFace(ctx, at); d != nil || err != nil {
		return d, err
	}
	at.state = StateFaceChecked

	entryID := a.newID()
	check, err := a.ledger.CanPunch(ctx, at.req.EmployeeID, at.req.Kind, at.now)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return a.rejectAlreadyPunched(ctx, at)
	}
	at.state = StateLedgerChecked

	return a.commit(ctx, at, entryID, check)
}

// checkGeo resolves the work location when geofencing is enabled.
func (a *Authorizer) checkGeo(ctx context.Context, at *attempt) (*Decision, error) {
	policy, err := a.profiles.GeofencingPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load geofencing policy: %w", err)
	}
	if !policy.Enabled {
		return nil, nil
	}
	if at.req.Coords == nil {
		return rejected(at.state, ReasonOutsideAllowedArea, ""), nil
	}

	locations, err := a.profiles.ActiveWorkLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load work locations: %w", err)
	}
	loc := geo.Locate(*at.req.Coords, locations, policy.DefaultRadiusMeters)
	if loc == nil {
		return rejected(at.state, ReasonOutsideAllowedArea, ""), nil
	}
	id := loc.ID
	at.locationID = &id
	at.logger = at.logger.With().Str("work_location_id", id).Logger()
	return nil, nil
}

// checkFace requires an active, enrolled employee and either a confident match
// or a permitted override. Every match attempt is logged to the audit trail.
func (a *Authorizer) checkFace(ctx context.Context, at *attempt) (*Decision, error) {
	emp, err := a.profiles.GetEmployee(ctx, at.req.EmployeeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEmployee, at.req.EmployeeID)
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	if !emp.IsActive {
		return rejected(at.state, ReasonEmployeeInactive, ""), nil
	}

	enrolled, err := a.profiles.HasFacialReference(ctx, emp.ID)
	if err != nil {
		return nil, fmt.Errorf("check facial reference: %w", err)
	}
	if !enrolled {
		return rejected(at.state, ReasonFacialRegistrationRequired, ""), nil
	}

	if at.req.Override != nil {
		if !a.settings.AllowManualOverride {
			return rejected(at.state, ReasonManualOverrideNotAllowed, ""), nil
		}
		at.logger = at.logger.With().Str("override_by", at.req.Override.ApprovedBy).Logger()
		return nil, nil
	}

	result := at.req.Face
	if result == nil && len(at.req.Capture) > 0 && a.matcher != nil {
		result, err = a.matcher.Verify(ctx, at.req.Capture, at.req.ExpectedEmployeeID)
		if err != nil {
			return nil, fmt.Errorf("verify face: %w", err)
		}
	}

	outcome := facematch.Classify(result, emp.ID, a.settings.Face)
	a.metrics.RecordMatch(string(outcome))

	confident := outcome == facematch.OutcomeConfident
	recognition := database.RecognitionResult{
		Kind:               outcome.ResultKind(),
		Source:             database.SourceFaceMatch,
		Success:            confident,
		PunchKind:          at.req.Kind,
		Threshold:          a.settings.Face.SimilarityThreshold,
		ExpectedEmployeeID: emp.ID,
	}
	params := audit.AttemptParams{
		EmployeeID: emp.ID,
		Status:     database.AuditPending,
		Result:     recognition,
	}
	if result != nil {
		confidence := 0.0
		if !math.IsNaN(result.Confidence) {
			confidence = min(max(result.Confidence, 0), 1)
		}
		params.Confidence = &confidence
		params.LivenessPassed = result.LivenessPassed
		params.ImageRef = result.RawImageRef
		params.Result.MatchedEmployeeID = result.MatchedEmployeeID
	}
	if params.ImageRef == "" && len(at.req.Capture) > 0 {
		params.ImageRef = facematch.ImageRef(at.req.Capture)
	}
	if !confident {
		params.Status = database.AuditRejected
		params.Result.Reason = string(ReasonFaceNotRecognized)
	}

	rec, err := a.trail.LogAttempt(ctx, params)
	if err != nil {
		return nil, err
	}
	if !confident {
		return rejected(at.state, ReasonFaceNotRecognized, rec.ID), nil
	}
	at.auditID = rec.ID
	at.faceResult = &params.Result
	return nil, nil
}

// rejectAlreadyPunched records the refused attempt and returns the rejection.
func (a *Authorizer) rejectAlreadyPunched(ctx context.Context, at *attempt) (*Decision, error) {
	if at.auditID != "" {
		result := *at.faceResult
		result.Kind = database.ResultAlreadyPunched
		result.Success = false
		result.Reason = string(ReasonAlreadyPunchedToday)
		if err := a.trail.RecordOutcome(ctx, at.auditID, database.AuditRejected, result); err != nil {
			return nil, fmt.Errorf("record already punched outcome: %w", err)
		}
		return rejected(at.state, ReasonAlreadyPunchedToday, at.auditID), nil
	}

	// Override attempts have no match record yet.
	rec, err := a.trail.LogAttempt(ctx, audit.AttemptParams{
		EmployeeID: at.req.EmployeeID,
		Status:     database.AuditRejected,
		Result: database.RecognitionResult{
			Kind:       database.ResultAlreadyPunched,
			Source:     database.SourceFallback,
			Reason:     string(ReasonAlreadyPunchedToday),
			PunchKind:  at.req.Kind,
			OverrideBy: at.req.Override.ApprovedBy,
		},
	})
	if err != nil {
		return nil, err
	}
	return rejected(at.state, ReasonAlreadyPunchedToday, rec.ID), nil
}

// commit stores the entry and its audit link as one unit, retrying transient
// failures. Retries reuse entryID, so a commit whose acknowledgement was lost
// is not applied twice.
func (a *Authorizer) commit(ctx context.Context, at *attempt, entryID string, check ledger.Check) (*Decision, error) {
	entry := &database.TimeEntry{
		ID:              entryID,
		EmployeeID:      at.req.EmployeeID,
		PunchKind:       at.req.Kind,
		PunchTimestamp:  at.now.UTC(),
		WorkDate:        check.WorkDate,
		LedgerSlot:      check.Slot,
		LocationAddress: at.req.Address,
		WorkLocationID:  at.locationID,
		Status:          database.EntryApproved,
		CreatedAt:       a.now().UTC(),
	}
	if at.req.Coords != nil {
		lat, lng := at.req.Coords.Lat, at.req.Coords.Lng
		entry.LocationLat = &lat
		entry.LocationLng = &lng
	}

	auditID := at.auditID
	var link database.AuditLink
	if auditID != "" {
		result := *at.faceResult
		link = database.AuditLink{AuditID: at.auditID, Status: database.AuditApproved, Result: &result}
	} else {
		fallback := a.trail.Fallback(at.req.EmployeeID, entryID, at.req.Override.Reason)
		fallback.ID = a.newID()
		fallback.RecognitionResult.PunchKind = at.req.Kind
		fallback.RecognitionResult.OverrideBy = at.req.Override.ApprovedBy
		link = database.AuditLink{Fallback: fallback}
		entry.Status = database.EntryPending
		auditID = fallback.ID
	}

	tries := 0
	op := func() error {
		tries++
		err := a.store.CommitPunch(ctx, entry, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrStoreUnavailable) {
			return backoff.Permanent(err)
		}
		at.logger.Warn().Err(err).Int("attempt", tries).Str("entry_id", entryID).Msg("commit failed, retrying")
		return err
	}
	notify := func(error, time.Duration) { a.metrics.RecordCommitRetry() }

	b := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), uint64(a.settings.CommitRetries)), ctx)
	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrDuplicatePunch):
		// Lost the race for the slot to a concurrent request.
		return a.rejectAlreadyPunched(ctx, at)
	default:
		a.metrics.RecordCommitFailure()
		return nil, fmt.Errorf("commit punch after %d attempts: %w", tries, err)
	}

	return &Decision{State: StateCommitted, LastState: StateLedgerChecked, Entry: entry, AuditID: auditID}, nil
}

// RecordedKindsToday lists the punch kinds already used by employeeID today.
func (a *Authorizer) RecordedKindsToday(ctx context.Context, employeeID string) (map[database.PunchKind]bool, error) {
	return a.ledger.RecordedKindsToday(ctx, employeeID, a.now())
}
