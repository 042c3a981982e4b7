package repositories

import (
	"context"
	"time"

	"github.com/swaralabs/swara/domain/entities"
)

// ConversationRepository defines data access methods for conversations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	// GetLastBySessionID returns the most recent conversation for a session,
	// or nil without error when none exists
	GetLastBySessionID(ctx context.Context, sessionID string) (*entities.Conversation, error)
	Update(ctx context.Context, conversation *entities.Conversation) error
	ListRecent(ctx context.Context, limit int) ([]*entities.Conversation, error)
	// DeleteExpired removes conversations whose expiry is before the cutoff
	// and returns how many were deleted
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
