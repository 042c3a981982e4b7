package llm

import (
	"context"

	"github.com/swaralabs/swara/domain/repositories"
)

// DisabledLLM is wired in when no reply backend is configured. Every chat
// attempt reports repositories.ErrNotConfigured so the session can tell
// "no backend" apart from "backend failed".
type DisabledLLM struct{}

var _ repositories.LargeLanguageModel = (*DisabledLLM)(nil)

// NewDisabledLLM creates the disabled reply generator
func NewDisabledLLM() *DisabledLLM {
	return &DisabledLLM{}
}

// GenerateChat always reports the not-configured condition
func (d *DisabledLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return nil, repositories.ErrNotConfigured
}
