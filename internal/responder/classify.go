package responder

import (
	"context"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const classifyPrompt = `You are a query classifier for a school-community assistant. Classify the user message into one of these categories:

1. "greeting" - Initial hellos, good morning/afternoon/evening, introductory messages
2. "farewell" - Thank you messages, goodbye, see you later, closing statements
3. "knowledge_base" - Any questions or requests for information

Respond with ONLY the category name (greeting, farewell, or knowledge_base). No explanation.`

// Classify labels the message as greeting, farewell, or knowledge_base.
// A configured chat model does the labeling; otherwise (or when the model
// call fails) a keyword heuristic decides, defaulting to knowledge_base.
func (s *Service) Classify(ctx context.Context, message string) string {
	if s.chatModel != nil {
		out, err := s.chatModel.Generate(ctx, []*schema.Message{
			{Role: schema.System, Content: classifyPrompt},
			{Role: schema.User, Content: message},
		})
		if err == nil {
			label := strings.ToLower(strings.TrimSpace(out.Content))
			switch label {
			case QueryGreeting, QueryFarewell, QueryKnowledgeBase:
				return label
			}
		} else {
			log.Printf("classify via model failed, using heuristic: %v", err)
		}
	}
	return heuristicClassify(message)
}

var (
	greetingWords = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "howdy"}
	farewellWords = []string{"bye", "goodbye", "thank you", "thanks", "see you", "that's all", "have a good"}
)

func heuristicClassify(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	trimmed := strings.TrimRight(normalized, "!.?, ")
	for _, w := range greetingWords {
		if trimmed == w || strings.HasPrefix(normalized, w+" ") || strings.HasPrefix(normalized, w+",") || strings.HasPrefix(normalized, w+"!") {
			return QueryGreeting
		}
	}
	for _, w := range farewellWords {
		if strings.Contains(normalized, w) {
			return QueryFarewell
		}
	}
	return QueryKnowledgeBase
}
