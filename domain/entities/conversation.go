package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationStatus represents the lifecycle state of a conversation
type ConversationStatus string

const (
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusExpired ConversationStatus = "expired"
	ConversationStatusClosed  ConversationStatus = "closed"
)

// TurnRole represents who produced a turn
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Conversation retention defaults
const (
	// ConversationTTL is how long a conversation is kept after its last turn
	ConversationTTL = 24 * time.Hour
	// IdleRotationWindow is the idle gap after which a new utterance starts
	// a fresh conversation instead of extending the old one
	IdleRotationWindow = 30 * time.Minute
)

// Turn represents a single exchange entry within a conversation
type Turn struct {
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Role       TurnRole  `json:"role" bson:"role"`
	Text       string    `json:"text" bson:"text"`
	DurationMs int64     `json:"duration_ms" bson:"duration_ms"`
	Suppressed bool      `json:"suppressed,omitempty" bson:"suppressed,omitempty"`
}

// Conversation represents one spoken exchange history for a session
type Conversation struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID    string             `json:"session_id" bson:"session_id"`
	StartedAt    time.Time          `json:"started_at" bson:"started_at"`
	LastActiveAt time.Time          `json:"last_active_at" bson:"last_active_at"`
	LastTurnAt   *time.Time         `json:"last_turn_at" bson:"last_turn_at"`
	ExpiresAt    time.Time          `json:"expires_at" bson:"expires_at"`
	Status       ConversationStatus `json:"status" bson:"status"`
	Turns        []Turn             `json:"turns" bson:"turns"`
	Language     string             `json:"language" bson:"language"`
}

// NewConversation creates a fresh conversation bound to a session
func NewConversation(sessionID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           primitive.NewObjectID(),
		SessionID:    sessionID,
		StartedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ConversationTTL),
		Status:       ConversationStatusActive,
		Turns:        make([]Turn, 0),
		Language:     "en-US",
	}
}

// AddTurn appends a turn and refreshes the activity timestamps
func (c *Conversation) AddTurn(role TurnRole, text string, durationMs int64) {
	now := time.Now()
	c.Turns = append(c.Turns, Turn{
		Timestamp:  now,
		Role:       role,
		Text:       text,
		DurationMs: durationMs,
	})
	c.LastTurnAt = &now
	c.Touch()
}

// AddSuppressedTurn records an assistant turn that was generated but never
// spoken, so the history stays faithful to what the model produced
func (c *Conversation) AddSuppressedTurn(text string) {
	now := time.Now()
	c.Turns = append(c.Turns, Turn{
		Timestamp:  now,
		Role:       TurnRoleAssistant,
		Text:       text,
		Suppressed: true,
	})
	c.LastTurnAt = &now
	c.Touch()
}

// Touch refreshes the last activity timestamp and extends expiration
func (c *Conversation) Touch() {
	c.LastActiveAt = time.Now()
	c.ExpiresAt = c.LastActiveAt.Add(ConversationTTL)
}

// IsExpired reports whether the conversation should no longer be extended
func (c *Conversation) IsExpired() bool {
	return time.Now().After(c.ExpiresAt) || c.Status != ConversationStatusActive
}

// ShouldRotate reports whether the next utterance belongs in a new
// conversation because this one has been idle past the rotation window
func (c *Conversation) ShouldRotate() bool {
	if c.LastTurnAt == nil {
		return false
	}
	return time.Since(*c.LastTurnAt) > IdleRotationWindow
}

// Close marks the conversation as deliberately ended
func (c *Conversation) Close() {
	c.Status = ConversationStatusClosed
	c.Touch()
}

// Expire marks the conversation as aged out
func (c *Conversation) Expire() {
	c.Status = ConversationStatusExpired
}

// History returns the turns for language model context
func (c *Conversation) History() []Turn {
	return c.Turns
}

// Validate checks the conversation invariants
func (c *Conversation) Validate() error {
	if c.SessionID == "" {
		return errors.New("session_id is required")
	}

	switch c.Status {
	case ConversationStatusActive, ConversationStatusExpired, ConversationStatusClosed:
	default:
		return errors.New("invalid conversation status")
	}

	return nil
}
