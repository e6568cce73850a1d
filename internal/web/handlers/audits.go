package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/punch-clock/internal/audit"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/metrics"
	"github.com/kozaktomas/punch-clock/internal/web/middleware"
	"github.com/rs/zerolog/log"
)

// AuditsHandler handles the admin audit endpoints
type AuditsHandler struct {
	trail   *audit.Trail
	metrics *metrics.Registry
}

// NewAuditsHandler creates a new audits handler
func NewAuditsHandler(trail *audit.Trail, m *metrics.Registry) *AuditsHandler {
	return &AuditsHandler{trail: trail, metrics: m}
}

// List handles GET /audits?status=&employee_id=&limit=
func (h *AuditsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.AuditFilter{
		Status:     database.AuditStatus(q.Get("status")),
		EmployeeID: q.Get("employee_id"),
	}
	switch filter.Status {
	case "", database.AuditPending, database.AuditApproved, database.AuditRejected:
	default:
		respondError(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.trail.List(r.Context(), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []database.AuditRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// Get handles GET /audits/{id}
func (h *AuditsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.trail.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// ReviewRequest is the body of POST /audits/{id}/review.
type ReviewRequest struct {
	Decision database.AuditStatus `json:"decision"`
}

// Review handles reviewAudit. The reviewer is the calling admin.
func (h *AuditsHandler) Review(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	auditID := chi.URLParam(r, "id")

	var body ReviewRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := h.trail.Review(r.Context(), auditID, body.Decision, claims.Subject); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.metrics.RecordReview(string(body.Decision))

	rec, err := h.trail.Get(r.Context(), auditID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// ReconcileResponse reports how many fallback records were created.
type ReconcileResponse struct {
	Count int `json:"count"`
}

// Reconcile handles reconcileOrphanAudits
func (h *AuditsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	count, err := h.trail.ReconcileOrphans(r.Context(), nil)
	h.metrics.RecordReconciled(count)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	log.Info().Int("count", count).Msg("reconciled orphan time entries")
	respondJSON(w, http.StatusOK, ReconcileResponse{Count: count})
}
