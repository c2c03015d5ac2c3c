package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"schoolchat/internal/auth"
	"schoolchat/internal/models"
)

// requestTimeout caps every chat API call; an exceeded cap is reported as a
// timeout failure, never retried here.
const requestTimeout = 30 * time.Second

// Client performs authenticated request/response exchanges against the remote
// chat API and normalizes every failure into the ErrorKind taxonomy.
type Client struct {
	baseURL    string
	creds      auth.CredentialProvider
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient builds a gateway client for the API at baseURL. creds may be nil;
// requests are then sent unauthenticated and the server decides.
func NewClient(baseURL string, creds auth.CredentialProvider) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{},
		timeout:    requestTimeout,
	}
}

// SendMessage submits one user message under the session and returns the
// chat response. The call is bounded by the request timeout and is not
// retried.
func (c *Client) SendMessage(ctx context.Context, text, sessionID string) (*models.ChatResponse, error) {
	body, err := json.Marshal(models.ChatRequest{Message: text, SessionID: sessionID})
	if err != nil {
		return nil, &Error{Kind: KindUnexpected, Message: "could not encode request", Err: err}
	}

	var resp models.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSourceURL fetches a time-limited access link for a cited document.
func (c *Client) GetSourceURL(ctx context.Context, sourceID, location string) (*models.SourceURLResponse, error) {
	path := "/sources/" + url.PathEscape(sourceID)
	if location != "" {
		path += "?s3Uri=" + url.QueryEscape(location)
	}
	var resp models.SourceURLResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestAuth checks whether the current credential is accepted. It never
// returns an error; any failure reads as not authenticated.
func (c *Client) TestAuth(ctx context.Context) (bool, string) {
	var resp struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return false, ""
	}
	identity := resp.Username
	if identity == "" && c.creds != nil {
		identity = c.creds.Identity()
	}
	return true, identity
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindUnexpected, Message: "could not build request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// A missing credential is not fatal; the server is the final authority
	// on access control.
	if c.creds != nil {
		if token, err := c.creds.IDToken(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		} else if err != nil {
			log.Printf("credential unavailable, sending unauthenticated request: %v", err)
		}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return classifyStatus(httpResp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return &Error{Kind: KindUnexpected, Message: "could not decode response", Err: err}
	}
	return nil
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "the request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "the request timed out", Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindNetworkError, Message: "could not reach the chat service", Err: err}
	}
	return &Error{Kind: KindUnexpected, Message: "request failed", Err: err}
}

func classifyStatus(resp *http.Response) *Error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuthenticationFailed, Message: "authentication failed", Status: resp.StatusCode}
	case http.StatusForbidden:
		return &Error{Kind: KindAccessForbidden, Message: "access denied", Status: resp.StatusCode}
	}

	var errResp models.ErrorResponse
	message := ""
	if err := json.Unmarshal(payload, &errResp); err == nil {
		message = errResp.Error
	}
	if message == "" {
		message = fmt.Sprintf("the chat service returned status %d", resp.StatusCode)
	}
	return &Error{Kind: KindServerError, Message: message, Status: resp.StatusCode}
}
