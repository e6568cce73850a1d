package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/punch-clock/internal/audit"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/facematch"
	"github.com/kozaktomas/punch-clock/internal/punch"
)

func TestRespondJSON_SetsContentTypeAndStatus(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusCreated, map[string]string{"status": "ok"})

	if recorder.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "something went wrong")

	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["error"] != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got '%s'", result["error"])
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"kind":"IN","face":{"confidence":1}}`))
	recorder := httptest.NewRecorder()

	var body CreatePunchRequest
	if err := decodeJSON(recorder, req, &body); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("a\nb\rc"); got != "abc" {
		t.Errorf("expected 'abc', got '%s'", got)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid request", fmt.Errorf("%w: kind", punch.ErrInvalidRequest), http.StatusBadRequest},
		{"invalid decision", audit.ErrInvalidDecision, http.StatusBadRequest},
		{"invalid confidence", audit.ErrInvalidConfidence, http.StatusBadRequest},
		{"unknown employee", fmt.Errorf("%w: E9", punch.ErrUnknownEmployee), http.StatusNotFound},
		{"not found", fmt.Errorf("get audit: %w", database.ErrNotFound), http.StatusNotFound},
		{"already linked", database.ErrAuditAlreadyLinked, http.StatusConflict},
		{"store unavailable", fmt.Errorf("commit: %w", database.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"matcher unavailable", facematch.ErrMatcherUnavailable, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.expected {
				t.Errorf("expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestRespondDomainError_HidesInternalDetails(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/audits", nil)
	recorder := httptest.NewRecorder()

	respondDomainError(recorder, req, errors.New("pq: password authentication failed"))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	if strings.Contains(recorder.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", recorder.Body.String())
	}
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		expected int
		status   string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"database up", fakePinger{}, http.StatusOK, "ok"},
		{"database down", fakePinger{err: database.ErrStoreUnavailable}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/health", nil)
			recorder := httptest.NewRecorder()

			NewHealthHandler(tc.db).Check(recorder, req)

			assertStatusCode(t, recorder, tc.expected)
			var result map[string]string
			parseJSONResponse(t, recorder, &result)
			if result["status"] != tc.status {
				t.Errorf("expected status '%s', got '%s'", tc.status, result["status"])
			}
		})
	}
}
