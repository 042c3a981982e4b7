package websocket

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	llmadapter "github.com/swaralabs/swara/adapters/llm"
	"github.com/swaralabs/swara/adapters/memory"
	sttadapter "github.com/swaralabs/swara/adapters/stt"
	ttsadapter "github.com/swaralabs/swara/adapters/tts"
	"github.com/swaralabs/swara/domain"
	"github.com/swaralabs/swara/internal/auth"
	"github.com/swaralabs/swara/internal/config"
	"github.com/swaralabs/swara/internal/metrics"
)

func startTestHub(t *testing.T, authenticator auth.Authenticator) (*Hub, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	pipeline := config.PipelineConfig{
		FinalizeTimeout: 2 * time.Second,
		ReplyTimeout:    2 * time.Second,
		SynthTimeout:    5 * time.Second,
		EchoSuppression: true,
		EchoPrefixes:    []string{llmadapter.EchoReplyPrefix},
		Language:        "en-US",
		SampleRate:      16000,
	}

	hub := NewHub(
		sttadapter.NewScriptedSpeechToText("hello there", logger),
		llmadapter.NewRuleBasedLLM(),
		ttsadapter.NewLocalTTS(8000, logger),
		memory.NewConversationRepository(),
		authenticator,
		pipeline,
		false,
		metrics.NewMetricsWith(prometheus.NewRegistry()),
		logger,
	)

	e := echo.New()
	e.GET("/ws/audio-stream", hub.HandleStream)
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		hub.Shutdown()
		deadline := time.Now().Add(2 * time.Second)
		for hub.ClientCount() > 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		server.Close()
	})
	return hub, server
}

func streamURL(server *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/audio-stream"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func TestHub_RejectsInvalidToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "wrong token", token: "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, server := startTestHub(t, auth.NewStaticAuthenticator("secret", time.Hour))

			conn, _, err := websocket.DefaultDialer.Dial(streamURL(server, tt.token), nil)
			if err != nil {
				t.Fatalf("Expected upgrade to succeed, got %v", err)
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err = conn.ReadMessage()
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("Expected close code 1008, got %v", err)
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "unauthorized" {
				t.Errorf("Expected close reason 'unauthorized', got %q", closeErr.Text)
			}
			if got := testutil.ToFloat64(hub.metrics.AuthRejected); got != 1 {
				t.Errorf("Expected 1 rejected connection recorded, got %v", got)
			}
		})
	}
}

func TestHub_AcceptsValidToken(t *testing.T) {
	_, server := startTestHub(t, auth.NewStaticAuthenticator("secret", time.Hour))

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(server, "secret"), nil)
	if err != nil {
		t.Fatalf("Expected upgrade to succeed, got %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(domain.CreateStopMessage())
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Expected stop frame to send, got %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected an event frame, got %v", err)
	}
	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		t.Fatalf("Expected a decodable event, got %v", err)
	}
	noReply, ok := msg.(*domain.NoReplyMessage)
	if !ok {
		t.Fatalf("Expected a no_reply event, got %T", msg)
	}
	if noReply.Reason != domain.NoReplyNoSpeech {
		t.Errorf("Expected reason %q, got %q", domain.NoReplyNoSpeech, noReply.Reason)
	}
}

func TestHub_OpenAccessWithoutAuth(t *testing.T) {
	_, server := startTestHub(t, auth.DisabledAuthenticator{})

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(server, ""), nil)
	if err != nil {
		t.Fatalf("Expected upgrade to succeed without a token, got %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(domain.CreateStopMessage())
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Expected stop frame to send, got %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected an event frame, got %v", err)
	}
	if _, err := domain.DecodeMessage(raw); err != nil {
		t.Errorf("Expected a decodable event, got %v", err)
	}
}

func TestHub_VoiceLoop(t *testing.T) {
	_, server := startTestHub(t, auth.DisabledAuthenticator{})

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(server, ""), nil)
	if err != nil {
		t.Fatalf("Expected upgrade to succeed, got %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 3200)); err != nil {
		t.Fatalf("Expected audio frame to send, got %v", err)
	}
	payload, _ := json.Marshal(domain.CreateStopMessage())
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Expected stop frame to send, got %v", err)
	}

	var events []string
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Expected more events, got %v after %v", err, events)
		}
		if messageType == websocket.BinaryMessage {
			events = append(events, "binary")
			continue
		}

		msg, err := domain.DecodeMessage(raw)
		if err != nil {
			t.Fatalf("Expected a decodable event, got %v", err)
		}
		switch m := msg.(type) {
		case *domain.PartialMessage:
			events = append(events, "partial:"+m.Text)
		case *domain.TranscriptMessage:
			events = append(events, "transcript:"+m.Text)
		case *domain.ReplyMessage:
			events = append(events, "reply")
		case *domain.SpeakingEndMessage:
			events = append(events, "speaking_end")
		default:
			events = append(events, "unexpected")
		}
		if _, done := msg.(*domain.SpeakingEndMessage); done {
			break
		}
	}

	want := []string{
		"partial:hello there",
		"transcript:hello there",
		"reply",
		"binary",
		"speaking_end",
	}
	if len(events) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("Expected event %d to be %q, got %q", i, want[i], events[i])
		}
	}
}

func TestHub_ClientTracking(t *testing.T) {
	hub, server := startTestHub(t, auth.DisabledAuthenticator{})

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(server, ""), nil)
	if err != nil {
		t.Fatalf("Expected upgrade to succeed, got %v", err)
	}

	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d connected clients, got %d", want, hub.ClientCount())
}
