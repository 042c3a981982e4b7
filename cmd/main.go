package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	llmadapter "github.com/swaralabs/swara/adapters/llm"
	"github.com/swaralabs/swara/adapters/memory"
	mongoadapter "github.com/swaralabs/swara/adapters/mongo"
	sttadapter "github.com/swaralabs/swara/adapters/stt"
	ttsadapter "github.com/swaralabs/swara/adapters/tts"
	"github.com/swaralabs/swara/domain/repositories"
	"github.com/swaralabs/swara/internal/api"
	"github.com/swaralabs/swara/internal/auth"
	"github.com/swaralabs/swara/internal/config"
	"github.com/swaralabs/swara/internal/metrics"
	"github.com/swaralabs/swara/internal/websocket"
	"github.com/swaralabs/swara/usecase"
)

func main() {
	// Load .env when present; deployed environments set variables directly
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Conversation storage
	conversations, mongoClient := newConversationStorage(cfg, logger)

	// Pipeline adapters
	speechToText := newSpeechToText(cfg, logger)
	languageModel := newLanguageModel(cfg, logger)
	textToSpeech := newTextToSpeech(cfg, logger)

	authenticator := auth.FromConfig(cfg.Auth)
	m := metrics.NewMetrics()

	// Initialize the stream hub and the single-shot service
	hub := websocket.NewHub(speechToText, languageModel, textToSpeech,
		conversations, authenticator, cfg.Pipeline, cfg.Server.DebugEvents, m, logger)
	conversationService := usecase.NewConversationService(speechToText,
		languageModel, textToSpeech, conversations, cfg.Pipeline, logger)

	cleanup := websocket.NewConversationCleanup(conversations, cfg.Storage.CleanupInterval, logger)
	cleanup.Start()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, conversationService, authenticator, cfg, logger)

	// Start server
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Server.Port),
		zap.String("stt", cfg.Provider.STT),
		zap.String("llm", cfg.Provider.LLM),
		zap.String("tts", cfg.Provider.TTS),
		zap.String("storage", cfg.Storage.Provider),
		zap.Bool("auth", authenticator.Enabled()))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	cleanup.Stop()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		if err := mongoClient.Close(ctx); err != nil {
			logger.Warn("Failed to close MongoDB client", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// newConversationStorage selects persistence behind STORAGE_PROVIDER. The
// mongo client is returned for shutdown, nil for the in-memory store.
func newConversationStorage(cfg *config.Config, logger *zap.Logger) (repositories.ConversationRepository, *mongoadapter.Client) {
	if cfg.Storage.Provider == config.StorageProviderMongo {
		client, err := mongoadapter.NewClient(logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		return mongoadapter.NewConversationRepository(client.Database), client
	}
	return memory.NewConversationRepository(), nil
}

// newSpeechToText selects the recognizer behind STT_PROVIDER
func newSpeechToText(cfg *config.Config, logger *zap.Logger) repositories.SpeechToText {
	switch cfg.Provider.STT {
	case config.STTProviderGoogle:
		return sttadapter.NewGoogleSpeechToText(logger)
	default:
		return sttadapter.NewScriptedSpeechToText(os.Getenv("STT_SCRIPT"), logger)
	}
}

// newLanguageModel selects the reply generator behind LLM_PROVIDER. A
// provider that fails to initialize degrades to the disabled generator,
// so the voice loop answers with no_reply instead of refusing to start.
func newLanguageModel(cfg *config.Config, logger *zap.Logger) repositories.LargeLanguageModel {
	switch cfg.Provider.LLM {
	case config.LLMProviderGemini:
		llm, err := llmadapter.NewGeminiLLM(llmadapter.NewGeminiConfigFromEnv(), logger)
		if err != nil {
			logger.Error("Failed to initialize Gemini, replies disabled", zap.Error(err))
			return llmadapter.NewDisabledLLM()
		}
		return llm
	case config.LLMProviderProxy:
		llm, err := llmadapter.NewProxyLLM(llmadapter.NewProxyConfigFromEnv(), logger)
		if err != nil {
			logger.Error("Failed to initialize reply proxy, replies disabled", zap.Error(err))
			return llmadapter.NewDisabledLLM()
		}
		return llm
	case config.LLMProviderDisabled:
		return llmadapter.NewDisabledLLM()
	default:
		return llmadapter.NewRuleBasedLLM()
	}
}

// newTextToSpeech selects the synthesizer behind TTS_PROVIDER
func newTextToSpeech(cfg *config.Config, logger *zap.Logger) repositories.TextToSpeech {
	switch cfg.Provider.TTS {
	case config.TTSProviderElevenLabs:
		tts, err := ttsadapter.NewElevenLabsTTS(ttsadapter.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			logger.Error("Failed to initialize ElevenLabs, using local synthesis", zap.Error(err))
			return ttsadapter.NewLocalTTS(cfg.Pipeline.SampleRate, logger)
		}
		return tts
	default:
		return ttsadapter.NewLocalTTS(cfg.Pipeline.SampleRate, logger)
	}
}
