// Package metrics holds the Prometheus collectors of the punch service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all collectors. A nil *Registry is valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Authorization decisions
	Decisions        *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Commit path
	CommitRetries  prometheus.Counter
	CommitFailures prometheus.Counter

	// Face matching
	MatchOutcomes *prometheus.CounterVec

	// Maintenance
	ReconciledAudits prometheus.Counter
	AuditReviews     *prometheus.CounterVec

	// Profile cache
	CacheRequests *prometheus.CounterVec
}

// New creates a registry with every collector registered, plus the Go and
// process collectors.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punch_decisions_total",
				Help: "Punch authorization decisions by final state and rejection reason",
			},
			[]string{"state", "reason"},
		),

		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "punch_decision_duration_seconds",
				Help:    "Time spent authorizing a punch",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"state"},
		),

		CommitRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "punch_commit_retries_total",
				Help: "Commit attempts retried after a transient store failure",
			},
		),

		CommitFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "punch_commit_failures_total",
				Help: "Commits that failed after exhausting retries",
			},
		),

		MatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punch_face_match_outcomes_total",
				Help: "Face match classifications",
			},
			[]string{"outcome"},
		),

		ReconciledAudits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "punch_reconciled_audits_total",
				Help: "Fallback audit records created for orphan time entries",
			},
		),

		AuditReviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punch_audit_reviews_total",
				Help: "Admin audit reviews by decision",
			},
			[]string{"decision"},
		),

		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punch_profile_cache_requests_total",
				Help: "Profile cache lookups by key kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Decisions,
		r.DecisionDuration,
		r.CommitRetries,
		r.CommitFailures,
		r.MatchOutcomes,
		r.ReconciledAudits,
		r.AuditReviews,
		r.CacheRequests,
	)

	return r
}

// Handler returns the HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts one authorization decision and its duration.
func (r *Registry) RecordDecision(state, reason string, d time.Duration) {
	if r == nil {
		return
	}
	r.Decisions.WithLabelValues(state, reason).Inc()
	r.DecisionDuration.WithLabelValues(state).Observe(d.Seconds())
}

// RecordCommitRetry counts a retried commit.
func (r *Registry) RecordCommitRetry() {
	if r == nil {
		return
	}
	r.CommitRetries.Inc()
}

// RecordCommitFailure counts a commit that gave up.
func (r *Registry) RecordCommitFailure() {
	if r == nil {
		return
	}
	r.CommitFailures.Inc()
}

// RecordMatch counts a face match classification.
func (r *Registry) RecordMatch(outcome string) {
	if r == nil {
		return
	}
	r.MatchOutcomes.WithLabelValues(outcome).Inc()
}

// RecordReconciled adds n created fallback records.
func (r *Registry) RecordReconciled(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.ReconciledAudits.Add(float64(n))
}

// RecordReview counts an admin review.
func (r *Registry) RecordReview(decision string) {
	if r == nil {
		return
	}
	r.AuditReviews.WithLabelValues(decision).Inc()
}

// RecordCacheHit counts a profile cache hit.
func (r *Registry) RecordCacheHit(kind string) {
	if r == nil {
		return
	}
	r.CacheRequests.WithLabelValues(kind, "hit").Inc()
}

// RecordCacheMiss counts a profile cache miss.
func (r *Registry) RecordCacheMiss(kind string) {
	if r == nil {
		return
	}
	r.CacheRequests.WithLabelValues(kind, "miss").Inc()
}
