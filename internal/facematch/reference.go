package facematch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// MinDetScore is the detection score below which a face is ignored.
const MinDetScore = 0.5

// FaceEmbedder computes embeddings for the faces in an image.
type FaceEmbedder interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error)
}

// ReferenceMatcher verifies captures against enrolled reference embeddings.
type ReferenceMatcher struct {
	embedder    FaceEmbedder
	refs        database.ReferenceReader
	minLiveness float64
}

var _ Matcher = (*ReferenceMatcher)(nil)

// NewReferenceMatcher creates a matcher. A face passes liveness when its score
// is at least minLiveness.
func NewReferenceMatcher(embedder FaceEmbedder, refs database.ReferenceReader, minLiveness float64) *ReferenceMatcher {
	return &ReferenceMatcher{embedder: embedder, refs: refs, minLiveness: minLiveness}
}

// Verify embeds the primary face and compares it with stored references.
// With an expected employee the closest reference of that employee is used,
// unless another employee's reference is strictly closer, which reports that
// employee instead so the caller sees an identity mismatch.
func (m *ReferenceMatcher) Verify(ctx context.Context, image []byte, expectedEmployeeID string) (*Result, error) {
	if len(image) == 0 {
		return nil, errors.New("verify: empty image")
	}

	res := &Result{RawImageRef: ImageRef(image)}

	faces, err := m.embedder.ComputeFaceEmbeddings(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("compute face embeddings: %w", err)
	}
	face := PrimaryFace(faces.Faces)
	if face == nil {
		return res, nil
	}
	res.LivenessPassed = face.LivenessScore >= m.minLiveness

	nearest, distances, err := m.refs.FindNearest(ctx, face.Embedding, 1)
	if err != nil {
		return nil, fmt.Errorf("find nearest reference: %w", err)
	}

	if expectedEmployeeID == "" {
		if len(nearest) > 0 {
			res.MatchedEmployeeID = nearest[0].EmployeeID
			res.Confidence = Confidence(distances[0])
		}
		return res, nil
	}

	own, err := m.refs.ReferencesForEmployee(ctx, expectedEmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load references of %s: %w", expectedEmployeeID, err)
	}
	best := -1.0
	for _, ref := range own {
		d := database.CosineDistance(face.Embedding, ref.Embedding)
		if best < 0 || d < best {
			best = d
		}
	}

	switch {
	case len(nearest) > 0 && nearest[0].EmployeeID != expectedEmployeeID && (best < 0 || distances[0] < best):
		res.MatchedEmployeeID = nearest[0].EmployeeID
		res.Confidence = Confidence(distances[0])
	case best >= 0:
		res.MatchedEmployeeID = expectedEmployeeID
		res.Confidence = Confidence(best)
	}
	return res, nil
}

// PrimaryFace returns the largest face with a usable detection, or nil.
func PrimaryFace(faces []FaceDetection) *FaceDetection {
	var (
		primary  *FaceDetection
		bestArea float64
	)
	for i := range faces {
		f := &faces[i]
		if f.DetScore < MinDetScore || len(f.Embedding) == 0 {
			continue
		}
		area := BBoxArea(f.BBox)
		if primary == nil || area > bestArea {
			primary = f
			bestArea = area
		}
	}
	return primary
}

// BBoxArea returns the area of an [x1, y1, x2, y2] box, 0 when malformed.
func BBoxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
