package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swaralabs/swara/domain/entities"
	"github.com/swaralabs/swara/domain/repositories"
)

type ConversationRepository struct {
	collection *mongo.Collection
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database) repositories.ConversationRepository {
	return &ConversationRepository{
		collection: db.Collection("conversations"),
	}
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

// GetLastBySessionID implements repositories.ConversationRepository
func (r *ConversationRepository) GetLastBySessionID(ctx context.Context, sessionID string) (*entities.Conversation, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	filter := bson.M{"session_id": sessionID}
	opts := options.FindOne().SetSort(bson.M{"last_active_at": -1})

	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, filter, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No conversation found, return nil without error
		}
		return nil, fmt.Errorf("failed to get last conversation for session %s: %w", sessionID, err)
	}

	return &conversation, nil
}

// Update implements repositories.ConversationRepository
func (r *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ID.IsZero() {
		return errors.New("conversation ID cannot be empty")
	}

	update := bson.M{
		"$set": bson.M{
			"session_id":     conversation.SessionID,
			"last_active_at": conversation.LastActiveAt,
			"last_turn_at":   conversation.LastTurnAt,
			"expires_at":     conversation.ExpiresAt,
			"status":         conversation.Status,
			"turns":          conversation.Turns,
			"language":       conversation.Language,
		},
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": conversation.ID},
		update,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation with ID %s not found", conversation.ID.Hex())
	}

	return nil
}

// ListRecent implements repositories.ConversationRepository
func (r *ConversationRepository) ListRecent(ctx context.Context, limit int) ([]*entities.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.M{"last_active_at": -1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	conversations := make([]*entities.Conversation, 0, limit)
	for cursor.Next(ctx) {
		var conversation entities.Conversation
		if err := cursor.Decode(&conversation); err != nil {
			return nil, fmt.Errorf("failed to decode conversation: %w", err)
		}
		conversations = append(conversations, &conversation)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

// DeleteExpired implements repositories.ConversationRepository
func (r *ConversationRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired conversations: %w", err)
	}
	return result.DeletedCount, nil
}
