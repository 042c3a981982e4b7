package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/swaralabs/swara/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultMaxTokens      = 256
	defaultTimeoutSeconds = 20
)

// GeminiConfig holds configuration for the Gemini adapter.
// Required: APIKey. Everything else has defaults suited to short spoken
// replies.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// NewGeminiConfigFromEnv creates a GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}

	if v := os.Getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("GEMINI_MAX_OUTPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxOutputTokens = n
		}
	}

	return config
}

// geminiGuardrails is the fixed persona and safety posture for the voice
// companion. Replies must stay short enough to speak aloud.
var geminiGuardrails = struct {
	SystemPrompt   string
	SafetySettings []*genai.SafetySetting
	Fallbacks      []string
}{
	SystemPrompt: "You are a warm, concise voice assistant. You hear the " +
		"user through speech recognition and your reply is spoken aloud, so " +
		"answer in one to three short conversational sentences, no lists, " +
		"no markup. If the transcript seems garbled, ask a brief clarifying " +
		"question.",
	SafetySettings: []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	},
	Fallbacks: []string{
		"Sorry, I lost my train of thought. Could you say that again?",
		"Hmm, I didn't quite catch that. What were you saying?",
		"Let me think about that one. Can you tell me a bit more?",
	},
}

// GeminiLLM implements the LargeLanguageModel interface using Google's
// Gemini API
type GeminiLLM struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLLM{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// GenerateChat creates a chat session seeded with history
func (g *GeminiLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return NewGeminiChatSession(g.client, g.config, g.logger, history)
}
