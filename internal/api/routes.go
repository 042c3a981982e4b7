package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
	"github.com/swaralabs/swara/internal/audio"
	"github.com/swaralabs/swara/internal/auth"
	"github.com/swaralabs/swara/internal/config"
	"github.com/swaralabs/swara/internal/websocket"
	"github.com/swaralabs/swara/usecase"
)

// maxVoiceBodyBytes bounds single-shot voice uploads
const maxVoiceBodyBytes = 10 << 20

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	service *usecase.ConversationService,
	authenticator auth.Authenticator,
	cfg *config.Config,
	logger *zap.Logger,
) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "swara",
		})
	})

	e.GET("/config", func(c echo.Context) error {
		return c.JSON(http.StatusOK, ConfigResponse{
			STTProvider:     cfg.Provider.STT,
			LLMProvider:     cfg.Provider.LLM,
			TTSProvider:     cfg.Provider.TTS,
			StorageProvider: cfg.Storage.Provider,
			Language:        cfg.Pipeline.Language,
			SampleRate:      cfg.Pipeline.SampleRate,
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, authenticator, logger)
	})
	v1.POST("/chat", func(c echo.Context) error {
		return chat(c, service, logger)
	})
	v1.POST("/voice", func(c echo.Context) error {
		return voice(c, service, logger)
	})
	v1.GET("/conversations", func(c echo.Context) error {
		return listConversations(c, service, logger)
	})

	// The persistent voice loop
	e.GET("/ws/audio-stream", hub.HandleStream)
}

// issueToken serves token discovery for stream clients
func issueToken(c echo.Context, authenticator auth.Authenticator, logger *zap.Logger) error {
	token, expiresAt, err := authenticator.Issue()
	if err != nil {
		logger.Error("Failed to issue token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_issue_failed",
			Message: "Failed to issue a stream token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Enabled:   authenticator.Enabled(),
	})
}

// chat runs the single-shot text exchange
func chat(c echo.Context, service *usecase.ConversationService, logger *zap.Logger) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	reply, err := service.Chat(c.Request().Context(), sessionID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrEmptyText):
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "missing_text",
				Message: "text is required",
			})
		case errors.Is(err, repositories.ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "not_configured",
				Message: "No language model is configured",
			})
		default:
			logger.Error("Chat request failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Chat exchange failed",
			})
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{SessionID: sessionID, Reply: reply})
}

// voice runs the whole pipeline on one uploaded clip. The body is raw PCM16
// audio, or a WAV file whose container is stripped before transcription.
func voice(c echo.Context, service *usecase.ConversationService, logger *zap.Logger) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxVoiceBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to read audio body",
		})
	}

	pcm := body
	if audio.IsWAV(body) {
		samples, _, err := audio.DecodeWAV(body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_audio",
				Message: "Malformed WAV payload",
			})
		}
		pcm = audio.SamplesToBytes(samples)
	}

	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	turn, err := service.Voice(c.Request().Context(), sessionID, pcm)
	if err != nil {
		logger.Error("Voice request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Voice exchange failed",
		})
	}

	resp := VoiceResponse{
		SessionID:  sessionID,
		Transcript: turn.Transcript,
		Reply:      turn.Reply,
		NoReply:    turn.NoReply,
	}
	if len(turn.Audio) > 0 {
		resp.Audio = base64.StdEncoding.EncodeToString(turn.Audio)
	}
	return c.JSON(http.StatusOK, resp)
}

// listConversations serves recent conversation history
func listConversations(c echo.Context, service *usecase.ConversationService, logger *zap.Logger) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	conversations, err := service.Recent(c.Request().Context(), limit)
	if err != nil {
		logger.Error("Failed to list conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list conversations",
		})
	}
	return c.JSON(http.StatusOK, conversations)
}
