package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
)

const defaultCleanupInterval = 30 * time.Minute

// ConversationCleanup deletes expired conversation records in the background
type ConversationCleanup struct {
	conversations repositories.ConversationRepository
	interval      time.Duration
	logger        *zap.Logger
	stopChan      chan struct{}
}

// NewConversationCleanup creates the cleanup service. A non-positive interval
// selects the default sweep period.
func NewConversationCleanup(conversations repositories.ConversationRepository, interval time.Duration, logger *zap.Logger) *ConversationCleanup {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &ConversationCleanup{
		conversations: conversations,
		interval:      interval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *ConversationCleanup) Start() {
	go s.cleanupLoop()
	s.logger.Info("Conversation cleanup started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *ConversationCleanup) Stop() {
	close(s.stopChan)
	s.logger.Info("Conversation cleanup stopped")
}

func (s *ConversationCleanup) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First sweep shortly after startup, then on the regular interval
	initialTimer := time.NewTimer(time.Minute)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *ConversationCleanup) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := s.conversations.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to delete expired conversations", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Expired conversations deleted", zap.Int64("count", deleted))
	}
}
