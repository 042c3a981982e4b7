package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/swaralabs/swara/domain/repositories"
)

// EchoReplyPrefix is the marker the offline generator puts in front of its
// fallback echo replies. The session's echo suppression heuristic keys on
// it, so the two must agree.
const EchoReplyPrefix = "You said:"

// RuleBasedLLM is the offline reply generator. A handful of keyword rules
// cover small talk, everything else gets an echo reply that invites the
// user to keep talking.
type RuleBasedLLM struct{}

var _ repositories.LargeLanguageModel = (*RuleBasedLLM)(nil)

// NewRuleBasedLLM creates the offline reply generator
func NewRuleBasedLLM() *RuleBasedLLM {
	return &RuleBasedLLM{}
}

// GenerateChat creates a chat session seeded with history
func (r *RuleBasedLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &RuleBasedChatSession{
		history: append([]repositories.ChatMessage{}, history...),
	}, nil
}

// RuleBasedChatSession implements ChatSession with keyword rules
type RuleBasedChatSession struct {
	history []repositories.ChatMessage
}

var _ repositories.ChatSession = (*RuleBasedChatSession)(nil)

// SendMessage produces a rule-based reply
func (s *RuleBasedChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	reply := repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: replyFor(message.Content),
	}
	s.history = append(s.history, message, reply)
	return reply, nil
}

// History returns the locally tracked conversation history
func (s *RuleBasedChatSession) History() ([]repositories.ChatMessage, error) {
	return s.history, nil
}

func replyFor(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))

	switch {
	case normalized == "":
		return "I didn't catch anything. Could you try again?"
	case hasGreeting(normalized):
		return "Hello! It's nice to hear your voice. What's on your mind?"
	case strings.Contains(normalized, "how are you"):
		return "I'm doing well, thanks for asking! How are you doing today?"
	case containsAny(normalized, "thank you", "thanks"):
		return "You're very welcome!"
	case containsAny(normalized, "bye", "goodbye", "see you"):
		return "Goodbye! Talk to you soon."
	case strings.Contains(normalized, "your name"):
		return "I'm Swara, your voice companion."
	default:
		return fmt.Sprintf("%s '%s'. Tell me more about that.", EchoReplyPrefix, strings.TrimSpace(text))
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasGreeting(s string) bool {
	for _, w := range strings.Fields(s) {
		switch strings.Trim(w, ".,!?") {
		case "hello", "hi", "hey":
			return true
		}
	}
	return false
}
