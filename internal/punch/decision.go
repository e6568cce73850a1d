package punch

import (
	"github.com/kozaktomas/punch-clock/internal/database"
)

// State is a step of a single authorization attempt.
type State string

const (
	StateReceived      State = "received"
	StateGeoChecked    State = "geo_checked"
	StateFaceChecked   State = "face_checked"
	StateLedgerChecked State = "ledger_checked"
	StateCommitted     State = "committed"
	StateRejected      State = "rejected"
)

// Reason is the typed cause of a rejection, rendered by callers as a specific message.
type Reason string

const (
	ReasonFacialRegistrationRequired Reason = "FacialRegistrationRequired"
	ReasonFaceNotRecognized          Reason = "FaceNotRecognized"
	ReasonOutsideAllowedArea         Reason = "OutsideAllowedArea"
	ReasonAlreadyPunchedToday        Reason = "AlreadyPunchedToday"
	ReasonEmployeeInactive           Reason = "EmployeeInactive"
	ReasonManualOverrideNotAllowed   Reason = "ManualOverrideNotAllowed"
)

// Decision is the terminal result of Authorize. LastState is the last step
// passed before a rejection.
type Decision struct {
	State     State               `json:"state"`
	LastState State               `json:"last_state,omitempty"`
	Reason    Reason              `json:"reason,omitempty"`
	Entry     *database.TimeEntry `json:"entry,omitempty"`
	AuditID   string              `json:"audit_id,omitempty"`
}

// Committed reports whether the punch was accepted and stored.
func (d *Decision) Committed() bool {
	return d != nil && d.State == StateCommitted
}

func rejected(last State, reason Reason, auditID string) *Decision {
	return &Decision{State: StateRejected, LastState: last, Reason: reason, AuditID: auditID}
}
