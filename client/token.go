package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// TokenSource resolves the credential attached to a connection attempt.
// An empty token connects without one.
type TokenSource interface {
	// Token returns the current credential, fetching one if needed.
	Token(ctx context.Context) (string, error)
	// Refresh discards any cached credential and fetches a fresh one. The
	// session calls it once after an unauthorized close.
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource always presents the same credential. Refresh returns
// the same value, so an unauthorized close with a static token falls
// straight back to the standard backoff.
type StaticTokenSource struct {
	token string
}

var _ TokenSource = (*StaticTokenSource)(nil)

// NewStaticTokenSource creates a source around a fixed token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

func (s *StaticTokenSource) Refresh(ctx context.Context) (string, error) {
	return s.token, nil
}

// tokenPayload mirrors the server's token discovery response
type tokenPayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Enabled   bool      `json:"enabled"`
}

// EndpointTokenSource discovers tokens from the server's token endpoint
// and caches the value until it expires or a Refresh discards it.
type EndpointTokenSource struct {
	endpoint string
	client   *http.Client

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
	fetched   bool
}

var _ TokenSource = (*EndpointTokenSource)(nil)

// NewEndpointTokenSource creates a source backed by the given discovery
// URL, e.g. http://localhost:8080/api/v1/auth/token.
func NewEndpointTokenSource(endpoint string) *EndpointTokenSource {
	return &EndpointTokenSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *EndpointTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.fetched && (s.expiresAt.IsZero() || time.Now().Before(s.expiresAt)) {
		token := s.cached
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()
	return s.fetch(ctx)
}

func (s *EndpointTokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.cached = ""
	s.expiresAt = time.Time{}
	s.fetched = false
	s.mu.Unlock()
	return s.fetch(ctx)
}

func (s *EndpointTokenSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("invalid token endpoint: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token discovery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token discovery failed: status %d", resp.StatusCode)
	}

	var payload tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}

	s.mu.Lock()
	s.cached = payload.Token
	s.expiresAt = payload.ExpiresAt
	s.fetched = true
	s.mu.Unlock()

	return payload.Token, nil
}
