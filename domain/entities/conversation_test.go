package entities

import (
	"testing"
	"time"
)

func TestConversationCreation(t *testing.T) {
	sessionID := "session-abc-123"
	conv := NewConversation(sessionID)

	if conv.SessionID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, conv.SessionID)
	}

	if conv.Status != ConversationStatusActive {
		t.Errorf("Expected status %s, got %s", ConversationStatusActive, conv.Status)
	}

	if len(conv.Turns) != 0 {
		t.Errorf("Expected empty turns, got %d turns", len(conv.Turns))
	}

	if conv.ID.IsZero() {
		t.Error("Expected a generated conversation ID")
	}
}

func TestAddTurn(t *testing.T) {
	conv := NewConversation("session-1")

	userText := "hello there"
	conv.AddTurn(TurnRoleUser, userText, 1500)

	if len(conv.Turns) != 1 {
		t.Errorf("Expected 1 turn, got %d", len(conv.Turns))
	}

	if conv.Turns[0].Role != TurnRoleUser {
		t.Errorf("Expected user role, got %s", conv.Turns[0].Role)
	}

	if conv.Turns[0].Text != userText {
		t.Errorf("Expected text %s, got %s", userText, conv.Turns[0].Text)
	}

	if conv.LastTurnAt == nil {
		t.Error("Expected LastTurnAt to be set")
	}

	conv.AddTurn(TurnRoleAssistant, "Hi! How can I help?", 2100)

	if len(conv.Turns) != 2 {
		t.Errorf("Expected 2 turns, got %d", len(conv.Turns))
	}

	if conv.Turns[1].Role != TurnRoleAssistant {
		t.Errorf("Expected assistant role, got %s", conv.Turns[1].Role)
	}
}

func TestAddSuppressedTurn(t *testing.T) {
	conv := NewConversation("session-1")
	conv.AddSuppressedTurn("You said: 'hello'.")

	if len(conv.Turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(conv.Turns))
	}
	if !conv.Turns[0].Suppressed {
		t.Error("Expected turn to be marked suppressed")
	}
	if conv.Turns[0].Role != TurnRoleAssistant {
		t.Errorf("Expected assistant role, got %s", conv.Turns[0].Role)
	}
}

func TestConversationExpiration(t *testing.T) {
	conv := NewConversation("session-1")

	if conv.IsExpired() {
		t.Error("Conversation should not be expired initially")
	}

	conv.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if !conv.IsExpired() {
		t.Error("Conversation should be expired when ExpiresAt is in the past")
	}

	conv.ExpiresAt = time.Now().Add(1 * time.Hour)
	conv.Status = ConversationStatusClosed
	if !conv.IsExpired() {
		t.Error("Conversation should be expired when status is closed")
	}
}

func TestShouldRotate(t *testing.T) {
	conv := NewConversation("session-1")

	if conv.ShouldRotate() {
		t.Error("Should not rotate when no turns exist")
	}

	conv.AddTurn(TurnRoleUser, "hello", 1000)
	if conv.ShouldRotate() {
		t.Error("Should not rotate when last turn is recent")
	}

	oldTime := time.Now().Add(-31 * time.Minute)
	conv.LastTurnAt = &oldTime
	if !conv.ShouldRotate() {
		t.Error("Should rotate when last turn is past the idle window")
	}
}

func TestConversationValidation(t *testing.T) {
	conv := NewConversation("session-1")
	if err := conv.Validate(); err != nil {
		t.Errorf("Valid conversation should not have validation errors, got: %v", err)
	}

	conv.SessionID = ""
	if err := conv.Validate(); err == nil {
		t.Error("Conversation with empty session ID should have validation error")
	}

	conv.SessionID = "session-1"
	conv.Status = ConversationStatus("invalid")
	if err := conv.Validate(); err == nil {
		t.Error("Conversation with invalid status should have validation error")
	}
}

func TestTouchExtendsExpiration(t *testing.T) {
	conv := NewConversation("session-1")
	originalLastActive := conv.LastActiveAt
	originalExpiresAt := conv.ExpiresAt

	time.Sleep(10 * time.Millisecond)

	conv.Touch()

	if !conv.LastActiveAt.After(originalLastActive) {
		t.Error("LastActiveAt should be updated to a later time")
	}

	if !conv.ExpiresAt.After(originalExpiresAt) {
		t.Error("ExpiresAt should be extended")
	}

	expectedExpiration := conv.LastActiveAt.Add(ConversationTTL)
	if conv.ExpiresAt.Sub(expectedExpiration).Abs() > time.Second {
		t.Error("ExpiresAt should be the TTL from LastActiveAt")
	}
}
