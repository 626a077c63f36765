package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Photoroom/dataroom/internal/domain"
)

func testVector() []float32 {
	v := make([]float32, domain.EmbeddingDim)
	for i := range v {
		v[i] = float32(i)
	}
	return v
}

func TestForImage(t *testing.T) {
	var gotHeader, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if fhs := r.MultipartForm.File["imageFile"]; len(fhs) == 1 {
			gotFilename = fhs[0].Filename
		}
		json.NewEncoder(w).Encode(map[string]any{"imageEmbedding": testVector()})
	}))
	defer srv.Close()

	c := NewClient(Config{ImageURL: srv.URL, HeaderKey: "X-Api-Key", HeaderValue: "secret"})
	vec, err := c.ForImage(context.Background(), "cat.png", []byte("png-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != domain.EmbeddingDim {
		t.Errorf("got %d dimensions", len(vec))
	}
	if gotHeader != "secret" {
		t.Errorf("auth header = %q", gotHeader)
	}
	if gotFilename != "cat.png" {
		t.Errorf("filename = %q", gotFilename)
	}
}

func TestForText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("caption"); got != "a red chair" {
			t.Errorf("caption = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"textEmbedding": testVector()})
	}))
	defer srv.Close()

	c := NewClient(Config{TextURL: srv.URL})
	vec, err := c.ForText(context.Background(), "a red chair")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != domain.EmbeddingDim {
		t.Errorf("got %d dimensions", len(vec))
	}
}

func TestForImage_WrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"imageEmbedding": []float32{1, 2, 3}})
	}))
	defer srv.Close()

	c := NewClient(Config{ImageURL: srv.URL})
	if _, err := c.ForImage(context.Background(), "x.png", nil); err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestForImage_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{ImageURL: srv.URL})
	_, err := c.ForImage(context.Background(), "x.png", nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status in message", err)
	}
}

func TestForImage_NotConfigured(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.ForImage(context.Background(), "x.png", nil); err == nil {
		t.Fatal("expected configuration error")
	}
}
