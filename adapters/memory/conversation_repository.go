package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/swaralabs/swara/domain/entities"
	"github.com/swaralabs/swara/domain/repositories"
)

// ConversationRepository is an in-memory implementation of
// ConversationRepository. It is the default storage backend when no MongoDB
// instance is configured, suitable for development and single-node use.
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[primitive.ObjectID]*entities.Conversation
}

// Ensure ConversationRepository implements the repository interface
var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new in-memory conversation repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[primitive.ObjectID]*entities.Conversation),
	}
}

// Create implements repositories.ConversationRepository
func (m *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}
	if _, exists := m.conversations[conversation.ID]; exists {
		return errors.New("conversation already exists")
	}

	m.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

// GetLastBySessionID implements repositories.ConversationRepository
func (m *ConversationRepository) GetLastBySessionID(ctx context.Context, sessionID string) (*entities.Conversation, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *entities.Conversation
	for _, c := range m.conversations {
		if c.SessionID != sessionID {
			continue
		}
		if latest == nil || c.LastActiveAt.After(latest.LastActiveAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil // No conversation found, return nil without error
	}

	return cloneConversation(latest), nil
}

// Update implements repositories.ConversationRepository
func (m *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ID.IsZero() {
		return errors.New("conversation ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.ID]; !exists {
		return errors.New("conversation not found")
	}

	m.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

// ListRecent implements repositories.ConversationRepository
func (m *ConversationRepository) ListRecent(ctx context.Context, limit int) ([]*entities.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*entities.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastActiveAt.After(all[j].LastActiveAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	result := make([]*entities.Conversation, len(all))
	for i, c := range all {
		result[i] = cloneConversation(c)
	}
	return result, nil
}

// DeleteExpired implements repositories.ConversationRepository
func (m *ConversationRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, c := range m.conversations {
		if c.ExpiresAt.Before(cutoff) {
			delete(m.conversations, id)
			deleted++
		}
	}
	return deleted, nil
}

// cloneConversation copies a conversation so callers cannot mutate stored state
func cloneConversation(c *entities.Conversation) *entities.Conversation {
	clone := *c
	clone.Turns = make([]entities.Turn, len(c.Turns))
	copy(clone.Turns, c.Turns)
	if c.LastTurnAt != nil {
		t := *c.LastTurnAt
		clone.LastTurnAt = &t
	}
	return &clone
}
