package models

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation log. The log is append-only and
// ordered by insertion; messages are never mutated after append.
type Message struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	ResponseTime float64   `json:"response_time,omitempty"`
	Sources      []Source  `json:"sources,omitempty"`
	IsError      bool      `json:"is_error,omitempty"`
}
