package facematch

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/database/mock"
)

type fakeEmbedder struct {
	resp  *FaceResponse
	err   error
	calls int
}

func (f *fakeEmbedder) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	f.calls++
	return f.resp, f.err
}

func faceWith(embedding []float32, liveness float64) *FaceResponse {
	return &FaceResponse{
		FacesCount: 1,
		Faces: []FaceDetection{{
			Embedding:     embedding,
			BBox:          []float64{0, 0, 100, 100},
			DetScore:      0.95,
			LivenessScore: liveness,
		}},
	}
}

func newRefs() *mock.MockReferenceReader {
	refs := mock.NewMockReferenceReader()
	refs.AddReference(database.FacialReference{EmployeeID: "E1", Embedding: []float32{1, 0, 0}})
	refs.AddReference(database.FacialReference{EmployeeID: "E2", Embedding: []float32{0, 1, 0}})
	return refs
}

func TestReferenceMatcher_Identify(t *testing.T) {
	m := NewReferenceMatcher(&fakeEmbedder{resp: faceWith([]float32{0.99, 0.01, 0}, 0.9)}, newRefs(), 0.5)

	res, err := m.Verify(context.Background(), []byte("img"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MatchedEmployeeID != "E1" {
		t.Errorf("expected E1, got %q", res.MatchedEmployeeID)
	}
	if res.Confidence < 0.99 {
		t.Errorf("expected high confidence, got %f", res.Confidence)
	}
	if !res.LivenessPassed {
		t.Error("expected liveness to pass")
	}
	if res.RawImageRef != ImageRef([]byte("img")) {
		t.Errorf("unexpected image ref %q", res.RawImageRef)
	}
}

func TestReferenceMatcher_ExpectedEmployee(t *testing.T) {
	m := NewReferenceMatcher(&fakeEmbedder{resp: faceWith([]float32{0.9, 0.1, 0}, 0.2)}, newRefs(), 0.5)

	res, err := m.Verify(context.Background(), []byte("img"), "E1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MatchedEmployeeID != "E1" {
		t.Errorf("expected E1, got %q", res.MatchedEmployeeID)
	}
	if res.LivenessPassed {
		t.Error("expected liveness to fail below minimum score")
	}
}

func TestReferenceMatcher_Imposter(t *testing.T) {
	// The capture is E2's face while E1 is expected.
	m := NewReferenceMatcher(&fakeEmbedder{resp: faceWith([]float32{0, 1, 0}, 0.9)}, newRefs(), 0.5)

	res, err := m.Verify(context.Background(), []byte("img"), "E1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MatchedEmployeeID != "E2" {
		t.Errorf("expected E2 to be reported, got %q", res.MatchedEmployeeID)
	}
	if got := Classify(res, "E1", Policy{SimilarityThreshold: 0.9, LivenessRequired: true}); got != OutcomeIdentityMismatch {
		t.Errorf("expected identity mismatch, got %s", got)
	}
}

func TestReferenceMatcher_NoFace(t *testing.T) {
	m := NewReferenceMatcher(&fakeEmbedder{resp: &FaceResponse{}}, newRefs(), 0.5)

	res, err := m.Verify(context.Background(), []byte("img"), "E1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MatchedEmployeeID != "" || res.Confidence != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestReferenceMatcher_Errors(t *testing.T) {
	embedErr := errors.New("boom")
	m := NewReferenceMatcher(&fakeEmbedder{err: embedErr}, newRefs(), 0.5)
	if _, err := m.Verify(context.Background(), []byte("img"), ""); !errors.Is(err, embedErr) {
		t.Errorf("expected wrapped embedder error, got %v", err)
	}

	if _, err := m.Verify(context.Background(), nil, ""); err == nil {
		t.Error("expected error for empty image")
	}

	refs := newRefs()
	refs.FindNearestError = errors.New("db down")
	m = NewReferenceMatcher(&fakeEmbedder{resp: faceWith([]float32{1, 0, 0}, 0.9)}, refs, 0.5)
	if _, err := m.Verify(context.Background(), []byte("img"), "E1"); err == nil {
		t.Error("expected error when reference lookup fails")
	}
}
