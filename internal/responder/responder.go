package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"schoolchat/internal/kb"
	"schoolchat/internal/models"
)

// Query classifications, mirrored into the chat response's queryType field.
const (
	QueryGreeting      = "greeting"
	QueryFarewell      = "farewell"
	QueryKnowledgeBase = "knowledge_base"
	QueryBlocked       = "blocked"
	QueryError         = "error"
)

// Fixed response texts. ErrorText doubles as the server-side apology for any
// pipeline failure.
const (
	BlockedText = "Please keep your questions appropriate and school-related."
	ErrorText   = "I'm sorry, I encountered an error while processing your request. Please try again."

	greetingText = `Hello! I'm here to help you with information about our schools. Ask me about:

- Academic programs and curriculum
- School hours and schedules
- Contact information and staff directory
- Sports and extracurricular activities
- Transportation and bus routes
- School calendar and events
- Enrollment and registration

What would you like to know?`

	farewellText = "Thank you for using the school assistant! If you have any more questions about our schools, feel free to ask anytime. Have a great day!"
)

const maxContextChars = 8000

// Service turns a classified query plus retrieved context into a response.
// With no chat model configured it degrades to a knowledge-base-grounded
// fallback so the server stays usable offline.
type Service struct {
	chatModel model.ToolCallingChatModel
	guard     *Guardrail
}

// NewService builds a responder. chatModel may be nil.
func NewService(chatModel model.ToolCallingChatModel, guard *Guardrail) *Service {
	return &Service{chatModel: chatModel, guard: guard}
}

// Allow applies the input guardrail.
func (s *Service) Allow(message string) bool {
	return s.guard.Allow(message)
}

// Request carries everything generation needs for one turn.
type Request struct {
	Message   string
	QueryType string
	Exchanges []models.Exchange
	Chunks    []kb.Result
}

// Respond produces the assistant text for the request.
func (s *Service) Respond(ctx context.Context, req Request) (string, error) {
	switch req.QueryType {
	case QueryGreeting:
		return greetingText, nil
	case QueryFarewell:
		return farewellText, nil
	}
	if s.chatModel == nil {
		return fallbackAnswer(req), nil
	}

	prompt := fmt.Sprintf(`You are an assistant for a school community that helps students, parents, staff, and community members.

Recent conversation context:
%s

Knowledge Base Context:
%s

Use the retrieved context to provide accurate, detailed responses.
If the information is insufficient, clearly state that you don't have specific information about the topic and suggest contacting the school directly.
Be conversational and helpful, and provide specific details when available.`,
		conversationContext(req.Exchanges), kbContext(req.Chunks))

	out, err := s.chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: prompt},
		{Role: schema.User, Content: req.Message},
	})
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	return out.Content, nil
}

func fallbackAnswer(req Request) string {
	if len(req.Chunks) == 0 {
		return "I don't have specific information about that. Please contact the school office directly for help with this question."
	}
	var b strings.Builder
	b.WriteString("Here is what I found in the school documents:\n")
	for _, chunk := range req.Chunks {
		fmt.Fprintf(&b, "\nFrom %s:\n%s\n", chunk.Filename, chunk.Content)
	}
	return b.String()
}

func conversationContext(exchanges []models.Exchange) string {
	if len(exchanges) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", ex.UserMessage, ex.AssistantText)
	}
	return b.String()
}

func kbContext(chunks []kb.Result) string {
	if len(chunks) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, chunk := range chunks {
		if b.Len()+len(chunk.Content) > maxContextChars {
			break
		}
		fmt.Fprintf(&b, "[Source %d] %s: %s\n\n", i+1, chunk.Filename, chunk.Content)
	}
	return b.String()
}
