package handlers

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/geo"
	"github.com/kozaktomas/punch-clock/internal/punch"
	"github.com/kozaktomas/punch-clock/internal/web/middleware"
)

// PunchesHandler handles punch endpoints
type PunchesHandler struct {
	authorizer *punch.Authorizer
}

// NewPunchesHandler creates a new punches handler
func NewPunchesHandler(authorizer *punch.Authorizer) *PunchesHandler {
	return &PunchesHandler{authorizer: authorizer}
}

// overrideRequest is the admin part of a manual override.
type overrideRequest struct {
	Reason string `json:"reason"`
}

// CreatePunchRequest is the body of POST /punches. Image is a base64 camera
// frame. EmployeeID and Override are accepted from admins only.
type CreatePunchRequest struct {
	Kind               string           `json:"kind"`
	Latitude           *float64         `json:"latitude"`
	Longitude          *float64         `json:"longitude"`
	Address            string           `json:"address"`
	Image              string           `json:"image"`
	ExpectedEmployeeID string           `json:"expected_employee_id"`
	EmployeeID         string           `json:"employee_id"`
	Override           *overrideRequest `json:"override"`
}

// Create handles POST /punches. A committed punch is 201, a rejection is 422
// with the decision carrying the reason.
func (h *PunchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body CreatePunchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	kind, err := database.ParsePunchKind(body.Kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := punch.Request{
		EmployeeID:         claims.Subject,
		Kind:               kind,
		Address:            body.Address,
		ExpectedEmployeeID: body.ExpectedEmployeeID,
		Now:                time.Now(),
	}

	if body.EmployeeID != "" && body.EmployeeID != claims.Subject {
		if !claims.IsAdmin() {
			respondError(w, http.StatusForbidden, "cannot punch for another employee")
			return
		}
		req.EmployeeID = body.EmployeeID
	}

	if (body.Latitude == nil) != (body.Longitude == nil) {
		respondError(w, http.StatusBadRequest, "latitude and longitude must be given together")
		return
	}
	if body.Latitude != nil {
		req.Coords = &geo.Point{Lat: *body.Latitude, Lng: *body.Longitude}
	}

	if body.Override != nil {
		if !claims.IsAdmin() {
			respondError(w, http.StatusForbidden, "manual override requires an admin")
			return
		}
		req.Override = &punch.Override{ApprovedBy: claims.Subject, Reason: body.Override.Reason}
	} else {
		if body.Image == "" {
			respondError(w, http.StatusBadRequest, "image is required")
			return
		}
		req.Capture, err = base64.StdEncoding.DecodeString(body.Image)
		if err != nil {
			respondError(w, http.StatusBadRequest, "image must be base64 encoded")
			return
		}
	}

	decision, err := h.authorizer.Authorize(r.Context(), req)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	if decision.Committed() {
		respondJSON(w, http.StatusCreated, decision)
		return
	}
	respondJSON(w, http.StatusUnprocessableEntity, decision)
}

// TodayResponse lists the punch kinds already used today.
type TodayResponse struct {
	EmployeeID string               `json:"employee_id"`
	WorkDate   string               `json:"work_date"`
	Recorded   []database.PunchKind `json:"recorded"`
	Available  []database.PunchKind `json:"available"`
}

// Today handles GET /punches/today. Admins may pass ?employee_id=.
func (h *PunchesHandler) Today(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	employeeID := claims.Subject
	if id := r.URL.Query().Get("employee_id"); id != "" && id != employeeID {
		if !claims.IsAdmin() {
			respondError(w, http.StatusForbidden, "cannot view another employee")
			return
		}
		employeeID = id
	}

	used, err := h.authorizer.RecordedKindsToday(r.Context(), employeeID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := TodayResponse{
		EmployeeID: employeeID,
		WorkDate:   h.authorizer.Ledger().WorkDate(time.Now()),
		Recorded:   []database.PunchKind{},
		Available:  []database.PunchKind{},
	}
	for _, kind := range database.AllPunchKinds {
		if used[kind] {
			resp.Recorded = append(resp.Recorded, kind)
		} else {
			resp.Available = append(resp.Available, kind)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
