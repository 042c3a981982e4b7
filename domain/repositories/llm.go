package repositories

import (
	"context"
	"errors"
)

// ErrNotConfigured indicates no language model backend is wired in. Callers
// translate it into a no_reply outcome instead of an error frame.
var ErrNotConfigured = errors.New("language model not configured")

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// GenerateChat creates a chat session seeded with history
	GenerateChat(ctx context.Context, history []ChatMessage) (ChatSession, error)
}

// ChatSession represents an ongoing conversation session
type ChatSession interface {
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	History() ([]ChatMessage, error)
}

// ChatDelta is one increment of a streamed reply. Err is set on the last
// delta when the stream failed partway.
type ChatDelta struct {
	Text string
	Err  error
}

// ChatSessionStreamer is implemented by chat sessions that can stream the
// reply incrementally. Callers type-assert for it and fall back to
// SendMessage when absent.
type ChatSessionStreamer interface {
	StreamMessage(ctx context.Context, message ChatMessage) (<-chan ChatDelta, error)
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
