package models

import "time"

// Wire types for the chat API. Field names follow the endpoint's JSON
// contract, which uses camelCase.

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatResponse is the POST /chat response body. Success is false for
// guardrail-blocked inputs and server-side processing errors; Response still
// carries the text to display.
type ChatResponse struct {
	Success      bool     `json:"success"`
	Response     string   `json:"response"`
	SessionID    string   `json:"sessionId,omitempty"`
	QueryType    string   `json:"queryType,omitempty"`
	ResponseTime float64  `json:"responseTime"`
	Sources      []Source `json:"sources,omitempty"`
}

// ErrorResponse is the body of non-2xx chat API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SourceURLResponse is the GET /sources/{sourceId} response body.
type SourceURLResponse struct {
	PresignedURL string    `json:"presignedUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
