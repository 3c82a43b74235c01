package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is one model response plus the token accounting reported by the
// backend for the call.
type Reply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Provider answers one prompt context. Implementations must be safe for
// concurrent use.
type Provider interface {
	Respond(ctx context.Context, messages []Message) (Reply, error)
}
