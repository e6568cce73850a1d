package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/database/mock"
	"github.com/kozaktomas/punch-clock/internal/facematch"
	"github.com/kozaktomas/punch-clock/internal/punch"
	"github.com/kozaktomas/punch-clock/internal/web/middleware"
)

var (
	employeeClaims = &middleware.Claims{Subject: "E1", Role: middleware.RoleEmployee, ExpiresAt: time.Now().Add(time.Hour)}
	adminClaims    = &middleware.Claims{Subject: "A1", Role: middleware.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour)}
)

// fakeMatcher returns a fixed result for every frame
type fakeMatcher struct {
	result *facematch.Result
	err    error
	calls  int
}

func (f *fakeMatcher) Verify(ctx context.Context, image []byte, expected string) (*facematch.Result, error) {
	f.calls++
	return f.result, f.err
}

// newTestAuthorizer builds an authorizer over an in-memory store with one
// enrolled employee E1 and a matcher that recognizes E1.
func newTestAuthorizer(t *testing.T, allowOverride bool) (*punch.Authorizer, *mock.MockStore, *fakeMatcher) {
	t.Helper()
	store := mock.NewMockStore()
	store.AddEmployee(database.Employee{ID: "E1", FullName: "Ana", IsActive: true, HasFacialReference: true})
	store.AddEmployee(database.Employee{ID: "E2", FullName: "Bruno", IsActive: true, HasFacialReference: true})
	matcher := &fakeMatcher{result: &facematch.Result{MatchedEmployeeID: "E1", Confidence: 0.98, LivenessPassed: true}}
	auth := punch.NewAuthorizer(punch.Deps{Store: store, Matcher: matcher}, punch.Settings{
		Face:                facematch.Policy{SimilarityThreshold: 0.9, LivenessRequired: true},
		AllowManualOverride: allowOverride,
		CommitRetries:       0,
		Location:            time.UTC,
	})
	return auth, store, matcher
}

// requestWithClaims creates a request carrying the given caller claims
func requestWithClaims(t *testing.T, method, path string, body any, claims *middleware.Claims) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if claims != nil {
		req = req.WithContext(middleware.SetClaimsInContext(req.Context(), claims))
	}
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// assertStatusCode checks the recorder's status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Fatalf("expected status %d, got %d: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// parseJSONResponse decodes the recorder body into dst
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to parse response: %v (%s)", err, recorder.Body.String())
	}
}
