package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
)

const defaultProxyTimeout = 12 * time.Second

// ProxyConfig holds configuration for the HTTP reply proxy
type ProxyConfig struct {
	URL     string // Required: endpoint accepting POST {"text": ...}
	Timeout time.Duration
}

// NewProxyConfigFromEnv creates a ProxyConfig from environment variables
func NewProxyConfigFromEnv() ProxyConfig {
	config := ProxyConfig{
		URL:     os.Getenv("AI_CHAT_URL"),
		Timeout: defaultProxyTimeout,
	}
	if v := os.Getenv("AI_CHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.Timeout = d
		}
	}
	return config
}

// ProxyLLM forwards reply generation to an external HTTP service. The
// service receives {"text": ...} and answers with the reply under a
// "reply", "text", or "output" key.
type ProxyLLM struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*ProxyLLM)(nil)

// NewProxyLLM creates a new HTTP reply proxy
func NewProxyLLM(config ProxyConfig, logger *zap.Logger) (*ProxyLLM, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("proxy URL is required")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultProxyTimeout
	}

	return &ProxyLLM{
		url:    config.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// GenerateChat creates a chat session seeded with history. The proxy
// protocol is stateless, history is kept locally for callers that read it.
func (p *ProxyLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &ProxyChatSession{
		llm:     p,
		history: append([]repositories.ChatMessage{}, history...),
	}, nil
}

// ProxyChatSession implements ChatSession over the HTTP proxy
type ProxyChatSession struct {
	llm     *ProxyLLM
	history []repositories.ChatMessage
}

var _ repositories.ChatSession = (*ProxyChatSession)(nil)

type proxyRequest struct {
	Text string `json:"text"`
}

type proxyResponse struct {
	Reply  string `json:"reply"`
	Text   string `json:"text"`
	Output string `json:"output"`
}

// SendMessage posts the message text and returns the proxied reply
func (s *ProxyChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	requestBody, err := json.Marshal(proxyRequest{Text: message.Content})
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.llm.url, bytes.NewReader(requestBody))
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.llm.client.Do(httpReq)
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return repositories.ChatMessage{}, fmt.Errorf("proxy returned status %d: %s", resp.StatusCode, string(errorBody))
	}

	var parsed proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("failed to decode proxy response: %w", err)
	}

	replyText := parsed.Reply
	if replyText == "" {
		replyText = parsed.Text
	}
	if replyText == "" {
		replyText = parsed.Output
	}
	if replyText == "" {
		return repositories.ChatMessage{}, fmt.Errorf("proxy response carried no reply")
	}

	s.llm.logger.Debug("Proxied reply received",
		zap.String("user_message", preview(message.Content)),
		zap.String("reply_preview", preview(replyText)))

	reply := repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: replyText,
	}
	s.history = append(s.history, message, reply)

	return reply, nil
}

// History returns the locally tracked conversation history
func (s *ProxyChatSession) History() ([]repositories.ChatMessage, error) {
	return s.history, nil
}
