package chat

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"schoolchat/internal/gateway"
	"schoolchat/internal/models"
)

// errorReplyText is the fixed apology shown as a synthetic assistant message
// when a send fails; the raw failure text goes to the error slot only.
const errorReplyText = "I'm sorry, I encountered an error while processing your request. Please try again."

// Sender is the gateway contract the manager depends on.
type Sender interface {
	SendMessage(ctx context.Context, text, sessionID string) (*models.ChatResponse, error)
}

// Manager is the single source of truth for one conversation: the append-only
// message log, the session identity, the busy/error flags, and the current
// sources view. Exactly one gateway call is in flight at a time; a Send
// issued while busy is dropped without side effects.
type Manager struct {
	gateway Sender

	mu          sync.Mutex
	sessionID   string
	messages    []models.Message
	sources     []models.Source
	busy        bool
	lastErr     string
	lastSession int64
}

// View is the materialized snapshot the presentation layer renders from.
type View struct {
	SessionID           string
	Messages            []models.Message
	Sources             []models.Source
	Busy                bool
	Err                 string
	MessageCount        int
	AverageResponseTime float64
}

// NewManager creates a manager with a fresh session. Session ids are never
// persisted; a new process always starts a new conversation.
func NewManager(gw Sender) *Manager {
	m := &Manager{gateway: gw}
	m.sessionID = m.newSessionID()
	return m
}

// Send submits one user message. It reports whether the intent was accepted:
// blank input, a call already in flight, or a missing session id make it a
// silent no-op; the UI must not issue a second request while one is
// outstanding.
func (m *Manager) Send(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	m.mu.Lock()
	if m.busy || m.sessionID == "" {
		m.mu.Unlock()
		return false
	}
	m.busy = true
	m.lastErr = ""
	m.messages = append(m.messages, models.Message{
		ID:        m.newMessageID(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	sessionID := m.sessionID
	m.mu.Unlock()

	resp, err := m.gateway.SendMessage(ctx, text, sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if m.sessionID != sessionID {
		// The conversation was cleared mid-flight; the stale response does
		// not belong to the new session.
		return true
	}
	if err != nil {
		m.lastErr = gateway.MessageOf(err)
		m.messages = append(m.messages, models.Message{
			ID:        m.newMessageID(),
			Role:      models.RoleAssistant,
			Content:   errorReplyText,
			Timestamp: time.Now(),
			IsError:   true,
		})
		return true
	}

	m.messages = append(m.messages, models.Message{
		ID:           m.newMessageID(),
		Role:         models.RoleAssistant,
		Content:      resp.Response,
		Timestamp:    time.Now(),
		ResponseTime: resp.ResponseTime,
		Sources:      copySources(resp.Sources),
	})
	m.sources = copySources(resp.Sources)
	return true
}

// Clear empties the log and starts a new session. Irreversible, no
// confirmation step.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.sources = nil
	m.lastErr = ""
	m.sessionID = m.newSessionID()
}

// SessionID returns the active session identifier.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// AverageResponseTime is the mean response time in seconds over assistant
// messages that carry one; zero when none do.
func (m *Manager) AverageResponseTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return averageResponseTime(m.messages)
}

// View returns a copy of the current conversation state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		SessionID:           m.sessionID,
		Messages:            append([]models.Message(nil), m.messages...),
		Sources:             copySources(m.sources),
		Busy:                m.busy,
		Err:                 m.lastErr,
		MessageCount:        len(m.messages),
		AverageResponseTime: averageResponseTime(m.messages),
	}
}

func averageResponseTime(messages []models.Message) float64 {
	var sum float64
	var count int
	for _, msg := range messages {
		if msg.Role == models.RoleAssistant && msg.ResponseTime > 0 {
			sum += msg.ResponseTime
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func copySources(sources []models.Source) []models.Source {
	if len(sources) == 0 {
		return nil
	}
	return append([]models.Source(nil), sources...)
}

// newSessionID derives the session identifier from the wall clock, bumped
// past the previous one so rapid resets stay unique.
func (m *Manager) newSessionID() string {
	milli := time.Now().UnixMilli()
	if milli <= m.lastSession {
		milli = m.lastSession + 1
	}
	m.lastSession = milli
	return fmt.Sprintf("sess-%d", milli)
}

// newMessageID adds a random component so same-millisecond sends cannot
// collide.
func (m *Manager) newMessageID() string {
	return fmt.Sprintf("msg-%d-%04d", time.Now().UnixMilli(), rand.Intn(10000))
}
