package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
)

func proxySession(t *testing.T, url string) repositories.ChatSession {
	t.Helper()
	p, err := NewProxyLLM(ProxyConfig{URL: url, Timeout: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProxyLLM() error = %v", err)
	}
	session, err := p.GenerateChat(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateChat() error = %v", err)
	}
	return session
}

func TestProxySendMessage_ReplyKeys(t *testing.T) {
	tests := []struct {
		name     string
		response map[string]string
		want     string
	}{
		{name: "reply key", response: map[string]string{"reply": "from reply"}, want: "from reply"},
		{name: "text key", response: map[string]string{"text": "from text"}, want: "from text"},
		{name: "output key", response: map[string]string{"output": "from output"}, want: "from output"},
		{name: "reply wins over text", response: map[string]string{"reply": "first", "text": "second"}, want: "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req proxyRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("Failed to decode proxied request: %v", err)
				}
				if req.Text != "hello there" {
					t.Errorf("Expected proxied text 'hello there', got %q", req.Text)
				}
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			reply, err := proxySession(t, server.URL).SendMessage(context.Background(), repositories.ChatMessage{
				Role:    repositories.UserRole,
				Content: "hello there",
			})
			if err != nil {
				t.Fatalf("SendMessage() error = %v", err)
			}
			if reply.Content != tt.want {
				t.Errorf("Expected reply %q, got %q", tt.want, reply.Content)
			}
			if reply.Role != repositories.AssistantRole {
				t.Errorf("Expected assistant role, got %s", reply.Role)
			}
		})
	}
}

func TestProxySendMessage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			},
		},
		{
			name: "no reply key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := proxySession(t, server.URL).SendMessage(context.Background(), repositories.ChatMessage{
				Role:    repositories.UserRole,
				Content: "hello",
			})
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestProxySendMessage_ContextCancelled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and cancels
		// r.Context() when the client aborts; otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	session := proxySession(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	if _, err := session.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: "hello",
	}); err == nil {
		t.Error("Expected error after cancellation, got nil")
	}
}

func TestNewProxyLLM_RequiresURL(t *testing.T) {
	if _, err := NewProxyLLM(ProxyConfig{}, zap.NewNop()); err == nil {
		t.Error("Expected error for missing URL, got nil")
	}
}
