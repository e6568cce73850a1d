package facematch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0, 0, 0}

func TestEmbeddingClient_ComputeFaceEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %s", ct)
		}
		data, _ := io.ReadAll(file)
		if len(data) != len(jpegHeader) {
			t.Errorf("expected %d bytes, got %d", len(jpegHeader), len(data))
		}

		json.NewEncoder(w).Encode(FaceResponse{
			FacesCount: 1,
			Model:      "buffalo_l",
			Faces: []FaceDetection{{
				Dim:           3,
				Embedding:     []float32{0.1, 0.2, 0.3},
				BBox:          []float64{1, 2, 30, 40},
				DetScore:      0.98,
				LivenessScore: 0.87,
			}},
		})
	}))
	defer server.Close()

	client := NewEmbeddingClient(server.URL+"/", 100)
	resp, err := client.ComputeFaceEmbeddings(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FacesCount != 1 || len(resp.Faces) != 1 {
		t.Fatalf("expected one face, got %+v", resp)
	}
	if resp.Faces[0].LivenessScore != 0.87 {
		t.Errorf("expected liveness score 0.87, got %v", resp.Faces[0].LivenessScore)
	}
}

func TestEmbeddingClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewEmbeddingClient(server.URL, 0)
	_, err := client.ComputeFaceEmbeddings(context.Background(), jpegHeader)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, ErrMatcherUnavailable) {
		t.Error("a single failure should not open the circuit")
	}
}

func TestEmbeddingClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewEmbeddingClient(server.URL, 0)
	for i := 0; i < breakerFailures; i++ {
		if _, err := client.ComputeFaceEmbeddings(context.Background(), jpegHeader); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := client.ComputeFaceEmbeddings(context.Background(), jpegHeader)
	if !errors.Is(err, ErrMatcherUnavailable) {
		t.Fatalf("expected ErrMatcherUnavailable, got %v", err)
	}
	if got := hits.Load(); got != breakerFailures {
		t.Errorf("expected %d upstream calls, got %d", breakerFailures, got)
	}
}

func TestEmbeddingClient_ContextCanceled(t *testing.T) {
	client := NewEmbeddingClient("http://127.0.0.1:1", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.ComputeFaceEmbeddings(ctx, jpegHeader); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("plain text body"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType() = %s, want %s", got, tt.want)
			}
		})
	}
}
