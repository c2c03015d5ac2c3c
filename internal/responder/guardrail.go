package responder

import "strings"

// Guardrail screens user input against a configured blocklist. A nil
// guardrail, or one with no terms, allows everything: absence of a guardrail
// never blocks the pipeline.
type Guardrail struct {
	blocked []string
}

// NewGuardrail builds a guardrail from the configured terms.
func NewGuardrail(terms []string) *Guardrail {
	blocked := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			blocked = append(blocked, t)
		}
	}
	return &Guardrail{blocked: blocked}
}

// Allow reports whether the text passes the guardrail.
func (g *Guardrail) Allow(text string) bool {
	if g == nil || len(g.blocked) == 0 {
		return true
	}
	normalized := strings.ToLower(text)
	for _, term := range g.blocked {
		if strings.Contains(normalized, term) {
			return false
		}
	}
	return true
}
