package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Records(t *testing.T) {
	r := New()

	r.RecordDecision("committed", "", 20*time.Millisecond)
	r.RecordDecision("rejected", "AlreadyPunchedToday", time.Millisecond)
	r.RecordDecision("rejected", "AlreadyPunchedToday", time.Millisecond)
	r.RecordCommitRetry()
	r.RecordReconciled(3)
	r.RecordReconciled(0)
	r.RecordCacheHit("locations")
	r.RecordCacheMiss("locations")

	if got := testutil.ToFloat64(r.Decisions.WithLabelValues("rejected", "AlreadyPunchedToday")); got != 2 {
		t.Errorf("rejected decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.CommitRetries); got != 1 {
		t.Errorf("commit retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ReconciledAudits); got != 3 {
		t.Errorf("reconciled = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.CacheRequests.WithLabelValues("locations", "hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	r.RecordDecision("committed", "", time.Second)
	r.RecordCommitRetry()
	r.RecordCommitFailure()
	r.RecordMatch("confident")
	r.RecordReconciled(1)
	r.RecordReview("approved")
	r.RecordCacheHit("policy")
	r.RecordCacheMiss("policy")
}

func TestRegistry_Handler(t *testing.T) {
	r := New()
	r.RecordMatch("low_confidence")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `punch_face_match_outcomes_total{outcome="low_confidence"} 1`) {
		t.Errorf("expected match outcome in exposition, got:\n%s", body)
	}
}
