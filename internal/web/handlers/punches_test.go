package handlers

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/facematch"
	"github.com/kozaktomas/punch-clock/internal/punch"
)

var frame = base64.StdEncoding.EncodeToString([]byte("jpeg-frame"))

func serve(fn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	fn(recorder, req)
	return recorder
}

func TestPunchesHandler_Create_Commits(t *testing.T) {
	auth, store, matcher := newTestAuthorizer(t, false)
	h := NewPunchesHandler(auth)

	req := requestWithClaims(t, "POST", "/api/v1/punches", map[string]any{"kind": "in", "image": frame}, employeeClaims)
	recorder := serve(h.Create, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var d punch.Decision
	parseJSONResponse(t, recorder, &d)
	if d.State != punch.StateCommitted || d.Entry == nil || d.AuditID == "" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.Entry.EmployeeID != "E1" || d.Entry.PunchKind != database.PunchIn {
		t.Errorf("unexpected entry: %+v", d.Entry)
	}
	if matcher.calls != 1 {
		t.Errorf("expected matcher to be called once, got %d", matcher.calls)
	}
	if len(store.Entries()) != 1 {
		t.Errorf("expected 1 stored entry, got %d", len(store.Entries()))
	}
}

func TestPunchesHandler_Create_SecondPunchIsRejected(t *testing.T) {
	auth, store, _ := newTestAuthorizer(t, false)
	h := NewPunchesHandler(auth)
	body := map[string]any{"kind": "OUT", "image": frame}

	assertStatusCode(t, serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", body, employeeClaims)), http.StatusCreated)
	recorder := serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", body, employeeClaims))

	assertStatusCode(t, recorder, http.StatusUnprocessableEntity)
	var d punch.Decision
	parseJSONResponse(t, recorder, &d)
	if d.Reason != punch.ReasonAlreadyPunchedToday {
		t.Errorf("expected AlreadyPunchedToday, got %s", d.Reason)
	}
	if len(store.Entries()) != 1 {
		t.Errorf("expected 1 stored entry, got %d", len(store.Entries()))
	}
}

func TestPunchesHandler_Create_FaceNotRecognized(t *testing.T) {
	auth, store, matcher := newTestAuthorizer(t, false)
	matcher.result = &facematch.Result{MatchedEmployeeID: "E2", Confidence: 0.99, LivenessPassed: true}
	h := NewPunchesHandler(auth)

	req := requestWithClaims(t, "POST", "/api/v1/punches", map[string]any{"kind": "IN", "image": frame}, employeeClaims)
	recorder := serve(h.Create, req)

	assertStatusCode(t, recorder, http.StatusUnprocessableEntity)
	var d punch.Decision
	parseJSONResponse(t, recorder, &d)
	if d.Reason != punch.ReasonFaceNotRecognized || d.AuditID == "" {
		t.Errorf("unexpected decision: %+v", d)
	}
	if len(store.Entries()) != 0 {
		t.Errorf("expected no entries, got %d", len(store.Entries()))
	}
}

func TestPunchesHandler_Create_BadRequests(t *testing.T) {
	auth, _, matcher := newTestAuthorizer(t, true)
	h := NewPunchesHandler(auth)
	lat := 1.5

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown kind", map[string]any{"kind": "LUNCH", "image": frame}},
		{"missing image", map[string]any{"kind": "IN"}},
		{"bad base64", map[string]any{"kind": "IN", "image": "%%%"}},
		{"half coordinates", map[string]any{"kind": "IN", "image": frame, "latitude": lat}},
		{"client face result", map[string]any{"kind": "IN", "face": map[string]any{"confidence": 1}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", tc.body, employeeClaims))
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
	if matcher.calls != 0 {
		t.Errorf("matcher must not be called for bad requests, got %d calls", matcher.calls)
	}
}

func TestPunchesHandler_Create_EmployeeCannotActForOthers(t *testing.T) {
	auth, _, _ := newTestAuthorizer(t, true)
	h := NewPunchesHandler(auth)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"other employee", map[string]any{"kind": "IN", "image": frame, "employee_id": "E2"}},
		{"override", map[string]any{"kind": "IN", "override": map[string]any{"reason": "camera broken"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", tc.body, employeeClaims))
			assertStatusCode(t, recorder, http.StatusForbidden)
		})
	}
}

func TestPunchesHandler_Create_AdminOverride(t *testing.T) {
	auth, store, matcher := newTestAuthorizer(t, true)
	h := NewPunchesHandler(auth)

	body := map[string]any{"kind": "IN", "employee_id": "E2", "override": map[string]any{"reason": "camera broken"}}
	recorder := serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", body, adminClaims))

	assertStatusCode(t, recorder, http.StatusCreated)
	if matcher.calls != 0 {
		t.Errorf("override must not consult the matcher, got %d calls", matcher.calls)
	}
	entries := store.Entries()
	if len(entries) != 1 || entries[0].EmployeeID != "E2" || entries[0].Status != database.EntryPending {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	audits := store.Audits()
	if len(audits) != 1 || audits[0].RecognitionResult.OverrideBy != "A1" {
		t.Errorf("expected fallback audit approved by A1, got %+v", audits)
	}
}

func TestPunchesHandler_Create_OverrideDisabled(t *testing.T) {
	auth, store, _ := newTestAuthorizer(t, false)
	h := NewPunchesHandler(auth)

	body := map[string]any{"kind": "IN", "employee_id": "E2", "override": map[string]any{"reason": "camera broken"}}
	recorder := serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", body, adminClaims))

	assertStatusCode(t, recorder, http.StatusUnprocessableEntity)
	var d punch.Decision
	parseJSONResponse(t, recorder, &d)
	if d.Reason != punch.ReasonManualOverrideNotAllowed {
		t.Errorf("expected ManualOverrideNotAllowed, got %s", d.Reason)
	}
	if len(store.Entries()) != 0 {
		t.Errorf("expected no entries, got %d", len(store.Entries()))
	}
}

func TestPunchesHandler_Create_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		subject    string
		storeErr   error
		matcherErr error
		expected   int
	}{
		{"unknown employee", "E9", nil, nil, http.StatusNotFound},
		{"store down", "E1", database.ErrStoreUnavailable, nil, http.StatusServiceUnavailable},
		{"matcher down", "E1", nil, facematch.ErrMatcherUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth, store, matcher := newTestAuthorizer(t, false)
			store.GetEmployeeError = tc.storeErr
			matcher.err = tc.matcherErr
			claims := *employeeClaims
			claims.Subject = tc.subject

			h := NewPunchesHandler(auth)
			req := requestWithClaims(t, "POST", "/api/v1/punches", map[string]any{"kind": "IN", "image": frame}, &claims)
			assertStatusCode(t, serve(h.Create, req), tc.expected)
		})
	}
}

func TestPunchesHandler_Create_Unauthenticated(t *testing.T) {
	auth, _, _ := newTestAuthorizer(t, false)
	h := NewPunchesHandler(auth)

	recorder := serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", map[string]any{"kind": "IN"}, nil))
	assertStatusCode(t, recorder, http.StatusUnauthorized)
}

func TestPunchesHandler_Today(t *testing.T) {
	auth, _, _ := newTestAuthorizer(t, false)
	h := NewPunchesHandler(auth)
	assertStatusCode(t, serve(h.Create, requestWithClaims(t, "POST", "/api/v1/punches", map[string]any{"kind": "IN", "image": frame}, employeeClaims)), http.StatusCreated)

	recorder := serve(h.Today, requestWithClaims(t, "GET", "/api/v1/punches/today", nil, employeeClaims))
	assertStatusCode(t, recorder, http.StatusOK)
	var resp TodayResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.EmployeeID != "E1" || len(resp.Recorded) != 1 || resp.Recorded[0] != database.PunchIn {
		t.Errorf("unexpected recorded kinds: %+v", resp)
	}
	if len(resp.Available) != 3 {
		t.Errorf("expected 3 available kinds, got %v", resp.Available)
	}

	recorder = serve(h.Today, requestWithClaims(t, "GET", "/api/v1/punches/today?employee_id=E2", nil, employeeClaims))
	assertStatusCode(t, recorder, http.StatusForbidden)

	recorder = serve(h.Today, requestWithClaims(t, "GET", "/api/v1/punches/today?employee_id=E2", nil, adminClaims))
	assertStatusCode(t, recorder, http.StatusOK)
	parseJSONResponse(t, recorder, &resp)
	if resp.EmployeeID != "E2" || len(resp.Recorded) != 0 {
		t.Errorf("unexpected response for E2: %+v", resp)
	}
}
