package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CredentialProvider supplies a short-lived bearer credential for chat API
// requests. Failures degrade to unauthenticated requests; the server is the
// final authority on access control.
type CredentialProvider interface {
	IDToken(ctx context.Context) (string, error)
	Identity() string
}

// StaticCredentials wraps a fixed token, typically taken from the
// environment.
type StaticCredentials struct {
	Token string
	Label string
}

func (s StaticCredentials) IDToken(context.Context) (string, error) {
	if s.Token == "" {
		return "", fmt.Errorf("no token configured")
	}
	return s.Token, nil
}

func (s StaticCredentials) Identity() string {
	return s.Label
}

// PasswordCredentials logs into the assistant server's /auth/login endpoint
// and caches the issued token until shortly before it expires.
type PasswordCredentials struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewPasswordCredentials builds a provider that authenticates with the given
// account.
func NewPasswordCredentials(baseURL, username, password string) *PasswordCredentials {
	return &PasswordCredentials{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PasswordCredentials) IDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.expiresAt.Add(-time.Minute)) {
		return p.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"username": p.username,
		"password": p.password,
	})
	if err != nil {
		return "", fmt.Errorf("encode login request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}

	var payload struct {
		AuthToken string    `json:"auth_token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if payload.AuthToken == "" {
		return "", fmt.Errorf("login response missing token")
	}
	p.token = payload.AuthToken
	p.expiresAt = payload.ExpiresAt
	if p.expiresAt.IsZero() {
		p.expiresAt = time.Now().Add(time.Hour)
	}
	return p.token, nil
}

func (p *PasswordCredentials) Identity() string {
	return p.username
}
