package ai

import "context"

type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Provider generates one assistant reply for a prompt. Implementations are
// the closed set selected by the configured provider tag; none of them is
// retried automatically.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
