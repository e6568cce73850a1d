// Package facematch defines the face verification contract consumed by the
// punch authorizer and a concrete matcher backed by stored reference embeddings.
package facematch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// Result is what a matcher reports for one captured image.
// MatchedEmployeeID is empty when no identity could be established.
type Result struct {
	MatchedEmployeeID string  `json:"matched_employee_id,omitempty"`
	Confidence        float64 `json:"confidence"`
	LivenessPassed    bool    `json:"liveness_passed"`
	RawImageRef       string  `json:"raw_image_ref"`
}

// Matcher verifies a captured image. expectedEmployeeID may be empty for 1:N identification.
type Matcher interface {
	Verify(ctx context.Context, image []byte, expectedEmployeeID string) (*Result, error)
}

// Policy holds the thresholds a result must satisfy to count as a confident match.
type Policy struct {
	SimilarityThreshold float64
	LivenessRequired    bool
}

// Outcome classifies a Result against a Policy.
type Outcome string

const (
	OutcomeConfident        Outcome = "confident"
	OutcomeNoFace           Outcome = "no_face"
	OutcomeLowConfidence    Outcome = "low_confidence"
	OutcomeLivenessFailed   Outcome = "liveness_failed"
	OutcomeIdentityMismatch Outcome = "identity_mismatch"
)

// Classify decides whether r is a confident match for expectedEmployeeID.
// A result below the threshold is never confident, so raising the threshold
// can only turn confident outcomes into rejections. A NaN confidence is low.
func Classify(r *Result, expectedEmployeeID string, p Policy) Outcome {
	switch {
	case r == nil || r.MatchedEmployeeID == "":
		return OutcomeNoFace
	case math.IsNaN(r.Confidence) || !(r.Confidence >= p.SimilarityThreshold):
		return OutcomeLowConfidence
	case p.LivenessRequired && !r.LivenessPassed:
		return OutcomeLivenessFailed
	case expectedEmployeeID != "" && r.MatchedEmployeeID != expectedEmployeeID:
		return OutcomeIdentityMismatch
	}
	return OutcomeConfident
}

// ResultKind maps the outcome to the persisted recognition result kind.
func (o Outcome) ResultKind() database.ResultKind {
	switch o {
	case OutcomeConfident:
		return database.ResultAccepted
	case OutcomeLowConfidence:
		return database.ResultLowConfidence
	case OutcomeLivenessFailed:
		return database.ResultLivenessFailed
	case OutcomeIdentityMismatch:
		return database.ResultIdentityMismatch
	}
	return database.ResultNoFace
}

// Confidence converts a cosine distance into a similarity score in [0,1].
// An undefined distance, as for a zero-norm embedding, scores 0.
func Confidence(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	return min(max(1-distance, 0), 1)
}

// ImageRef returns a content reference for a captured frame. Frames are not stored.
func ImageRef(image []byte) string {
	sum := sha256.Sum256(image)
	return "sha256:" + hex.EncodeToString(sum[:])
}
