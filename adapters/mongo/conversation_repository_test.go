package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swaralabs/swara/domain/entities"
)

// TestConversationRepository_Integration exercises the repository against a
// real MongoDB instance (skipped if MONGODB_URI is not set)
func TestConversationRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	testDB := client.Database("swara_test")
	defer testDB.Drop(ctx)

	repo := NewConversationRepository(testDB)

	t.Run("CreateAndGetLast", func(t *testing.T) {
		conversation := entities.NewConversation("it-session-001")
		conversation.AddTurn(entities.TurnRoleUser, "hello there", 1200)

		if err := repo.Create(ctx, conversation); err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}

		retrieved, err := repo.GetLastBySessionID(ctx, "it-session-001")
		if err != nil {
			t.Fatalf("Failed to get conversation: %v", err)
		}
		if retrieved == nil {
			t.Fatal("Expected conversation, got nil")
		}
		if retrieved.SessionID != "it-session-001" {
			t.Errorf("Expected session ID 'it-session-001', got '%s'", retrieved.SessionID)
		}
		if len(retrieved.Turns) != 1 {
			t.Errorf("Expected 1 turn, got %d", len(retrieved.Turns))
		}
	})

	t.Run("GetLastReturnsNilWhenMissing", func(t *testing.T) {
		retrieved, err := repo.GetLastBySessionID(ctx, "it-session-missing")
		if err != nil {
			t.Fatalf("Expected no error for missing conversation, got %v", err)
		}
		if retrieved != nil {
			t.Error("Expected nil for missing conversation")
		}
	})

	t.Run("Update", func(t *testing.T) {
		conversation := entities.NewConversation("it-session-002")
		if err := repo.Create(ctx, conversation); err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}

		conversation.AddTurn(entities.TurnRoleUser, "how are you", 900)
		conversation.AddTurn(entities.TurnRoleAssistant, "doing well", 0)
		if err := repo.Update(ctx, conversation); err != nil {
			t.Fatalf("Failed to update conversation: %v", err)
		}

		retrieved, err := repo.GetLastBySessionID(ctx, "it-session-002")
		if err != nil {
			t.Fatalf("Failed to get conversation: %v", err)
		}
		if len(retrieved.Turns) != 2 {
			t.Errorf("Expected 2 turns, got %d", len(retrieved.Turns))
		}
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		expired := entities.NewConversation("it-session-003")
		expired.ExpiresAt = time.Now().Add(-1 * time.Hour)
		if err := repo.Create(ctx, expired); err != nil {
			t.Fatalf("Failed to create expired conversation: %v", err)
		}

		deleted, err := repo.DeleteExpired(ctx, time.Now())
		if err != nil {
			t.Fatalf("Failed to delete expired conversations: %v", err)
		}
		if deleted < 1 {
			t.Errorf("Expected at least 1 deleted conversation, got %d", deleted)
		}
	})
}
