// Package embedding talks to the embedding inference service. Images and
// text captions map into the same 768-dimensional space.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/metrics"
)

// DefaultTimeout bounds one inference call.
const DefaultTimeout = 30 * time.Second

// Config holds the inference service settings. HeaderKey/HeaderValue carry
// an optional static auth header.
type Config struct {
	ImageURL    string
	TextURL     string
	HeaderKey   string
	HeaderValue string
	// RequestsPerSecond throttles calls to the service; zero means no limit.
	RequestsPerSecond float64
}

// Client fetches embeddings over HTTP with client-side rate limiting.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an embedding client.
func NewClient(cfg Config) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// ForImage embeds an image file. The service resizes internally, so the
// payload is sent as-is.
func (c *Client) ForImage(ctx context.Context, filename string, data []byte) ([]float32, error) {
	if c.cfg.ImageURL == "" {
		return nil, fmt.Errorf("image embedding service not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("imageFile", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var parsed struct {
		ImageEmbedding []float32 `json:"imageEmbedding"`
	}
	if err := c.post(ctx, "image", c.cfg.ImageURL, &body, mw.FormDataContentType(), &parsed); err != nil {
		return nil, err
	}
	return checkDim(parsed.ImageEmbedding)
}

// ForText embeds a text caption.
func (c *Client) ForText(ctx context.Context, text string) ([]float32, error) {
	if c.cfg.TextURL == "" {
		return nil, fmt.Errorf("text embedding service not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("caption", text); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var parsed struct {
		TextEmbedding []float32 `json:"textEmbedding"`
	}
	if err := c.post(ctx, "text", c.cfg.TextURL, &body, mw.FormDataContentType(), &parsed); err != nil {
		return nil, err
	}
	return checkDim(parsed.TextEmbedding)
}

func (c *Client) post(ctx context.Context, kind, url string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.HeaderKey != "" {
		req.Header.Set(c.cfg.HeaderKey, c.cfg.HeaderValue)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.EmbeddingRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("decode embedding response: %w", err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}

func checkDim(vector []float32) ([]float32, error) {
	if len(vector) != domain.EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vector), domain.EmbeddingDim)
	}
	return vector, nil
}
