package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/Photoroom/dataroom/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds connection parameters for an OpenSearch store.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// Store implements db.Store over the OpenSearch REST API.
type Store struct {
	client    *opensearch.Client
	transport *http.Transport
}

// NewStore creates an OpenSearch store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("addresses is required")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for local clusters
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, transport: transport}, nil
}

// Ping checks cluster connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: db.OpPing, Err: statusError(res)}
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() {
	s.transport.CloseIdleConnections()
}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for cluster: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// closeBody drains and closes the response body so the connection can be reused.
func closeBody(res *opensearchapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

// statusError summarizes a non-2xx response.
func statusError(res *opensearchapi.Response) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error.Type != "" {
		return fmt.Errorf("status %d: %s: %s", res.StatusCode, body.Error.Type, body.Error.Reason)
	}
	return fmt.Errorf("status %d", res.StatusCode)
}

// decode reads a 2xx response body into out.
func decode(res *opensearchapi.Response, op string, out any) error {
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: op, Err: statusError(res)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}
