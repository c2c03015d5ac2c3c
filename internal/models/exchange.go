package models

import "time"

// Exchange is one persisted user/assistant turn pair, keyed by session.
// MessageID is sequential within a session ("conv1", "conv2", ...).
type Exchange struct {
	SessionID     string    `json:"session_id"`
	MessageID     string    `json:"message_id"`
	UserMessage   string    `json:"user_message"`
	AssistantText string    `json:"assistant_response"`
	QueryType     string    `json:"query_type"`
	ResponseTime  float64   `json:"response_time_seconds"`
	CreatedAt     time.Time `json:"created_at"`
}
