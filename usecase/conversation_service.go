package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain"
	"github.com/swaralabs/swara/domain/entities"
	"github.com/swaralabs/swara/domain/repositories"
	"github.com/swaralabs/swara/internal/config"
)

// ErrEmptyText rejects chat requests with nothing to say
var ErrEmptyText = errors.New("text is required")

// VoiceTurn is the outcome of one single-shot voice exchange. NoReply carries
// the reason when the turn resolved without a spoken reply; Audio is empty in
// that case.
type VoiceTurn struct {
	Transcript string
	Reply      string
	Audio      []byte
	NoReply    string
}

// ConversationService runs the voice pipeline as one-shot calls for the HTTP
// surface: a whole clip in, transcript plus reply plus synthesized audio out.
// The streaming loop lives in VoiceSession; this service covers clients that
// cannot hold a socket open.
type ConversationService struct {
	stt           repositories.SpeechToText
	llm           repositories.LargeLanguageModel
	tts           repositories.TextToSpeech
	conversations repositories.ConversationRepository
	pipeline      config.PipelineConfig
	logger        *zap.Logger
}

// NewConversationService creates the single-shot pipeline service
func NewConversationService(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	conversations repositories.ConversationRepository,
	pipeline config.PipelineConfig,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		stt:           stt,
		llm:           llm,
		tts:           tts,
		conversations: conversations,
		pipeline:      pipeline,
		logger:        logger,
	}
}

// Chat produces a reply for one text message, seeded with the session's
// recorded history. repositories.ErrNotConfigured passes through unwrapped so
// callers can map it to their own signal.
func (s *ConversationService) Chat(ctx context.Context, sessionID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	s.logger.Info("Chat request",
		zap.String("sessionID", sessionID),
		zap.String("text", preview(text)))

	conversation, fresh := s.loadConversation(ctx, sessionID)
	conversation.AddTurn(entities.TurnRoleUser, text, 0)

	reply, err := s.generate(ctx, conversation, text)
	if err != nil {
		return "", err
	}

	conversation.AddTurn(entities.TurnRoleAssistant, reply, 0)
	s.store(ctx, conversation, fresh)

	s.logger.Info("Chat reply", zap.String("reply", preview(reply)))
	return reply, nil
}

// Voice runs one complete exchange: audio clip in, transcript, reply and
// synthesized reply audio out. Empty input, a missing model and a suppressed
// echo all resolve to a VoiceTurn with a NoReply reason rather than an error.
func (s *ConversationService) Voice(ctx context.Context, sessionID string, audio []byte) (*VoiceTurn, error) {
	if len(audio) == 0 {
		return &VoiceTurn{NoReply: domain.NoReplyNoSpeech}, nil
	}

	s.logger.Info("Voice request",
		zap.String("sessionID", sessionID),
		zap.Int("audioBytes", len(audio)))

	transcript, err := s.transcribe(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return &VoiceTurn{NoReply: domain.NoReplyNoSpeech}, nil
	}

	s.logger.Info("Transcription completed", zap.String("transcript", preview(transcript)))

	conversation, fresh := s.loadConversation(ctx, sessionID)
	conversation.AddTurn(entities.TurnRoleUser, transcript, 0)

	reply, err := s.generate(ctx, conversation, transcript)
	if err != nil {
		if errors.Is(err, repositories.ErrNotConfigured) {
			s.store(ctx, conversation, fresh)
			return &VoiceTurn{Transcript: transcript, NoReply: domain.NoReplyNotConfigured}, nil
		}
		s.store(ctx, conversation, fresh)
		return nil, err
	}

	if s.pipeline.EchoSuppression && replyEchoesTranscript(reply, transcript, s.pipeline.EchoPrefixes) {
		s.logger.Info("Suppressing echo reply", zap.String("reply", preview(reply)))
		conversation.AddSuppressedTurn(reply)
		s.store(ctx, conversation, fresh)
		return &VoiceTurn{Transcript: transcript, NoReply: domain.NoReplyEchoSuppressed}, nil
	}

	conversation.AddTurn(entities.TurnRoleAssistant, reply, 0)
	s.store(ctx, conversation, fresh)

	replyAudio, err := s.synthesize(ctx, reply)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Voice exchange completed",
		zap.String("reply", preview(reply)),
		zap.Int("replyAudioBytes", len(replyAudio)))

	return &VoiceTurn{Transcript: transcript, Reply: reply, Audio: replyAudio}, nil
}

// Recent lists the most recently active conversations for inspection
func (s *ConversationService) Recent(ctx context.Context, limit int) ([]*entities.Conversation, error) {
	return s.conversations.ListRecent(ctx, limit)
}

func (s *ConversationService) transcribe(ctx context.Context, audio []byte) (string, error) {
	sttCtx, cancel := context.WithTimeout(ctx, s.pipeline.FinalizeTimeout)
	defer cancel()

	audioConfig := repositories.AudioConfig{
		SampleRate: s.pipeline.SampleRate,
		Encoding:   "LINEAR16",
		Language:   s.pipeline.Language,
	}
	return s.stt.TranscribeAudio(sttCtx, audio, audioConfig)
}

func (s *ConversationService) generate(ctx context.Context, conversation *entities.Conversation, text string) (string, error) {
	replyCtx, cancel := context.WithTimeout(ctx, s.pipeline.ReplyTimeout)
	defer cancel()

	history := chatHistory(conversation)
	if len(history) > 0 && history[len(history)-1].Role == repositories.UserRole {
		// The live turn goes through SendMessage, not the seed
		history = history[:len(history)-1]
	}

	chatSession, err := s.llm.GenerateChat(replyCtx, history)
	if err != nil {
		if errors.Is(err, repositories.ErrNotConfigured) {
			return "", err
		}
		return "", fmt.Errorf("failed to create chat session: %w", err)
	}

	response, err := chatSession.SendMessage(replyCtx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: text,
	})
	if err != nil {
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	return response.Content, nil
}

func (s *ConversationService) synthesize(ctx context.Context, reply string) ([]byte, error) {
	synthCtx, cancel := context.WithTimeout(ctx, s.pipeline.SynthTimeout)
	defer cancel()

	audio, err := s.tts.ConvertTextToSpeech(synthCtx, reply)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	var buf bytes.Buffer
	for {
		select {
		case chunk, open := <-audio:
			if !open {
				return buf.Bytes(), nil
			}
			buf.Write(chunk)
		case <-synthCtx.Done():
			return nil, fmt.Errorf("speech synthesis timed out: %w", synthCtx.Err())
		}
	}
}

// loadConversation finds the session's live conversation or starts a new one.
// Repository failures log and fall back to a fresh record; persistence never
// blocks the pipeline.
func (s *ConversationService) loadConversation(ctx context.Context, sessionID string) (*entities.Conversation, bool) {
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conversation, err := s.conversations.GetLastBySessionID(loadCtx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to load conversation", zap.Error(err))
	}
	if conversation != nil && !conversation.IsExpired() && !conversation.ShouldRotate() {
		return conversation, false
	}

	conversation = entities.NewConversation(sessionID)
	conversation.Language = s.pipeline.Language
	return conversation, true
}

func (s *ConversationService) store(ctx context.Context, conversation *entities.Conversation, fresh bool) {
	storeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if fresh {
		err = s.conversations.Create(storeCtx, conversation)
	} else {
		err = s.conversations.Update(storeCtx, conversation)
	}
	if err != nil {
		s.logger.Warn("Failed to persist conversation", zap.Error(err))
	}
}
