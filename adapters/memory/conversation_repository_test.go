package memory

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/swaralabs/swara/domain/entities"
)

func TestConversationRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	conversation := entities.NewConversation("session-001")
	conversation.AddTurn(entities.TurnRoleUser, "hello there", 1200)

	if err := repo.Create(ctx, conversation); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	if conversation.ID.IsZero() {
		t.Fatal("Expected conversation ID to be assigned")
	}

	retrieved, err := repo.GetLastBySessionID(ctx, "session-001")
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected conversation, got nil")
	}
	if retrieved.SessionID != "session-001" {
		t.Errorf("Expected session ID 'session-001', got '%s'", retrieved.SessionID)
	}
	if len(retrieved.Turns) != 1 {
		t.Errorf("Expected 1 turn, got %d", len(retrieved.Turns))
	}
	if retrieved.Status != entities.ConversationStatusActive {
		t.Errorf("Expected status %s, got %s", entities.ConversationStatusActive, retrieved.Status)
	}
}

func TestConversationRepository_GetLastReturnsNilWhenMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	retrieved, err := repo.GetLastBySessionID(ctx, "unknown-session")
	if err != nil {
		t.Fatalf("Expected no error for missing conversation, got %v", err)
	}
	if retrieved != nil {
		t.Errorf("Expected nil for missing conversation, got %+v", retrieved)
	}
}

func TestConversationRepository_GetLastPicksMostRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	older := entities.NewConversation("session-002")
	older.LastActiveAt = time.Now().Add(-2 * time.Hour)
	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("Failed to create older conversation: %v", err)
	}

	newer := entities.NewConversation("session-002")
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("Failed to create newer conversation: %v", err)
	}

	retrieved, err := repo.GetLastBySessionID(ctx, "session-002")
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if retrieved.ID != newer.ID {
		t.Errorf("Expected newest conversation %s, got %s", newer.ID.Hex(), retrieved.ID.Hex())
	}
}

func TestConversationRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	conversation := entities.NewConversation("session-003")
	if err := repo.Create(ctx, conversation); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	conversation.AddTurn(entities.TurnRoleUser, "how are you", 900)
	conversation.AddTurn(entities.TurnRoleAssistant, "doing well", 0)
	if err := repo.Update(ctx, conversation); err != nil {
		t.Fatalf("Failed to update conversation: %v", err)
	}

	retrieved, err := repo.GetLastBySessionID(ctx, "session-003")
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if len(retrieved.Turns) != 2 {
		t.Errorf("Expected 2 turns, got %d", len(retrieved.Turns))
	}
	if retrieved.Turns[1].Role != entities.TurnRoleAssistant {
		t.Errorf("Expected assistant turn, got %s", retrieved.Turns[1].Role)
	}
}

func TestConversationRepository_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	conversation := entities.NewConversation("session-404")
	conversation.ID = primitive.NewObjectID()
	if err := repo.Update(ctx, conversation); err == nil {
		t.Error("Expected error updating a conversation that was never created")
	}
}

func TestConversationRepository_StoredStateIsIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	conversation := entities.NewConversation("session-005")
	conversation.AddTurn(entities.TurnRoleUser, "original", 100)
	if err := repo.Create(ctx, conversation); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	// Mutating the caller's copy must not leak into the store
	conversation.Turns[0].Text = "mutated"

	retrieved, err := repo.GetLastBySessionID(ctx, "session-005")
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if retrieved.Turns[0].Text != "original" {
		t.Errorf("Expected stored turn text 'original', got '%s'", retrieved.Turns[0].Text)
	}
}

func TestConversationRepository_ListRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	for i := 0; i < 5; i++ {
		c := entities.NewConversation("session-list")
		c.LastActiveAt = time.Now().Add(time.Duration(-i) * time.Hour)
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Failed to create conversation %d: %v", i, err)
		}
	}

	recent, err := repo.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("Failed to list conversations: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 conversations, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].LastActiveAt.After(recent[i-1].LastActiveAt) {
			t.Error("Expected conversations sorted by most recent activity first")
		}
	}
}

func TestConversationRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository()

	expired := entities.NewConversation("session-expired")
	expired.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Failed to create expired conversation: %v", err)
	}

	fresh := entities.NewConversation("session-fresh")
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("Failed to create fresh conversation: %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("Failed to delete expired conversations: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted conversation, got %d", deleted)
	}

	gone, err := repo.GetLastBySessionID(ctx, "session-expired")
	if err != nil {
		t.Fatalf("Failed to query deleted conversation: %v", err)
	}
	if gone != nil {
		t.Error("Expected expired conversation to be removed")
	}

	kept, err := repo.GetLastBySessionID(ctx, "session-fresh")
	if err != nil {
		t.Fatalf("Failed to query fresh conversation: %v", err)
	}
	if kept == nil {
		t.Error("Expected fresh conversation to survive cleanup")
	}
}
