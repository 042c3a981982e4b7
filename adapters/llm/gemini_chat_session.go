package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/swaralabs/swara/domain/repositories"
)

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	timeoutSeconds  int
	safetySettings  []*genai.SafetySetting
	systemPrompt    string
	history         []*genai.Content
}

var _ repositories.ChatSession = (*GeminiChatSession)(nil)
var _ repositories.ChatSessionStreamer = (*GeminiChatSession)(nil)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Gemini API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}
	return nil
}

// NewGeminiChatSession creates a new chat session with config and history
func NewGeminiChatSession(client *genai.Client, config GeminiConfig, logger *zap.Logger, history []repositories.ChatMessage) (*GeminiChatSession, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	topP := config.TopP
	if topP == 0 {
		topP = defaultTopP
	}
	topK := config.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiChatSession{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		topK:            topK,
		maxOutputTokens: maxOutputTokens,
		timeoutSeconds:  timeoutSeconds,
		safetySettings:  geminiGuardrails.SafetySettings,
		systemPrompt:    geminiGuardrails.SystemPrompt,
		history:         convertRepositoryToGeminiFormat(history),
	}, nil
}

// SendMessage sends a message and gets a response, updating the history
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents := append(append([]*genai.Content{}, s.history...), userContent)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = s.client.Models.GenerateContent(ctx, s.model, contents, s.generateConfig())
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return repositories.ChatMessage{}, fmt.Errorf("chat generation cancelled: %w", ctx.Err())
		}

		s.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}

	if err != nil {
		s.logger.Error("Gemini generation failed after retries", zap.Error(err))
		return s.createFallbackResponse(userContent), nil
	}

	responseText := extractText(response)
	if responseText == "" {
		s.logger.Warn("Empty Gemini response")
		return s.createFallbackResponse(userContent), nil
	}

	s.history = append(s.history, userContent, genai.NewContentFromText(responseText, genai.RoleModel))

	s.logger.Info("Chat message processed",
		zap.String("user_message", preview(message.Content)),
		zap.String("response_preview", preview(responseText)),
		zap.Int("history_length", len(s.history)))

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: responseText,
	}, nil
}

// StreamMessage sends a message and streams the reply incrementally.
// The full reply is appended to history once the stream completes.
func (s *GeminiChatSession) StreamMessage(ctx context.Context, message repositories.ChatMessage) (<-chan repositories.ChatDelta, error) {
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents := append(append([]*genai.Content{}, s.history...), userContent)

	deltas := make(chan repositories.ChatDelta, 8)

	go func() {
		defer close(deltas)

		ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSeconds)*time.Second)
		defer cancel()

		fail := func(err error) {
			select {
			case deltas <- repositories.ChatDelta{Err: err}:
			case <-ctx.Done():
			}
		}

		var full string
		for response, err := range s.client.Models.GenerateContentStream(ctx, s.model, contents, s.generateConfig()) {
			if err != nil {
				s.logger.Error("Gemini stream failed", zap.Error(err), zap.String("partial", preview(full)))
				fail(fmt.Errorf("streaming generation failed: %w", err))
				return
			}
			if text := extractText(response); text != "" {
				full += text
				select {
				case deltas <- repositories.ChatDelta{Text: text}:
				case <-ctx.Done():
					fail(ctx.Err())
					return
				}
			}
		}

		if full == "" {
			fail(fmt.Errorf("empty streamed response"))
			return
		}

		s.history = append(s.history, userContent, genai.NewContentFromText(full, genai.RoleModel))
	}()

	return deltas, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return convertGeminiToRepositoryFormat(s.history), nil
}

func (s *GeminiChatSession) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(s.systemPrompt, genai.RoleUser),
		SafetySettings:    s.safetySettings,
		Temperature:       genai.Ptr(s.temperature),
		TopP:              genai.Ptr(s.topP),
		TopK:              genai.Ptr(s.topK),
		MaxOutputTokens:   int32(s.maxOutputTokens),
	}
}

// createFallbackResponse returns a canned recovery line instead of failing
// the whole turn
func (s *GeminiChatSession) createFallbackResponse(userContent *genai.Content) repositories.ChatMessage {
	fallbacks := geminiGuardrails.Fallbacks
	index := int(time.Now().UnixNano()) % len(fallbacks)

	s.history = append(s.history, userContent,
		genai.NewContentFromText(fallbacks[index], genai.RoleModel))

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: fallbacks[index],
	}
}

func extractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text
}

func preview(s string) string {
	const max = 50
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage
	for _, content := range contents {
		var role repositories.Role
		switch content.Role {
		case genai.RoleModel:
			role = repositories.AssistantRole
		default:
			role = repositories.UserRole
		}

		var text string
		for _, part := range content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			messages = append(messages, repositories.ChatMessage{
				Role:    role,
				Content: text,
			})
		}
	}
	return messages
}
