package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewElevenLabsTTS(ElevenLabsConfig{}, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.apiKey)
	}
	if tts.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.voiceID)
	}
	if tts.outputFormat != defaultOutputFormat {
		t.Errorf("Expected default output format '%s', got '%s'", defaultOutputFormat, tts.outputFormat)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{
			name:    "valid minimal config",
			config:  ElevenLabsConfig{APIKey: "key"},
			wantErr: false,
		},
		{
			name:    "missing API key",
			config:  ElevenLabsConfig{},
			wantErr: true,
		},
		{
			name:    "stability out of range",
			config:  ElevenLabsConfig{APIKey: "key", Stability: 1.5},
			wantErr: true,
		},
		{
			name:    "clarity out of range",
			config:  ElevenLabsConfig{APIKey: "key", Clarity: -0.2},
			wantErr: true,
		},
		{
			name:    "negative chunk size",
			config:  ElevenLabsConfig{APIKey: "key", ChunkSize: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateElevenLabsConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateElevenLabsConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestElevenLabsTTS_ConvertTextToSpeech_Streams(t *testing.T) {
	logger := zaptest.NewLogger(t)

	payload := make([]byte, 2500)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	var gotRequest ElevenLabsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/text-to-speech/") {
			t.Errorf("Unexpected request path: %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-api-key" {
			t.Errorf("Expected xi-api-key header, got '%s'", r.Header.Get("xi-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(payload)
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
		ChunkSize:  1000,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	audioChan, err := tts.ConvertTextToSpeech(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Failed to convert text to speech: %v", err)
	}

	var received []byte
	chunkCount := 0
	for chunk := range audioChan {
		if len(chunk) == 0 {
			t.Error("Received empty audio chunk")
		}
		received = append(received, chunk...)
		chunkCount++
	}

	if len(received) != len(payload) {
		t.Errorf("Expected %d bytes, got %d", len(payload), len(received))
	}
	if chunkCount < 2 {
		t.Errorf("Expected payload split across chunks, got %d chunk(s)", chunkCount)
	}
	if gotRequest.Text != "hello world" {
		t.Errorf("Expected request text 'hello world', got '%s'", gotRequest.Text)
	}
	if gotRequest.ModelID != defaultModelID {
		t.Errorf("Expected model ID '%s', got '%s'", defaultModelID, gotRequest.ModelID)
	}
}

func TestElevenLabsTTS_ConvertTextToSpeech_APIError(t *testing.T) {
	logger := zaptest.NewLogger(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "bad-key",
		APIBaseURL: server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	_, err = tts.ConvertTextToSpeech(context.Background(), "hello")
	if err == nil {
		t.Fatal("Expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected status code in error, got '%v'", err)
	}
}

func TestElevenLabsTTS_ConvertTextToSpeech_EmptyText(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err = tts.ConvertTextToSpeech(ctx, ""); err == nil {
		t.Error("Expected error for empty text")
	}
	if _, err = tts.ConvertTextToSpeech(ctx, "   "); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
}

func TestNewElevenLabsConfigFromEnv(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "env-key")
	t.Setenv("ELEVENLABS_VOICE_ID", "env-voice")
	t.Setenv("ELEVENLABS_OUTPUT_FORMAT", "pcm_16000")
	t.Setenv("ELEVENLABS_CHUNK_SIZE", "2048")
	t.Setenv("ELEVENLABS_STABILITY", "0.8")

	config := NewElevenLabsConfigFromEnv()
	if config.APIKey != "env-key" {
		t.Errorf("Expected API key 'env-key', got '%s'", config.APIKey)
	}
	if config.VoiceID != "env-voice" {
		t.Errorf("Expected voice ID 'env-voice', got '%s'", config.VoiceID)
	}
	if config.OutputFormat != "pcm_16000" {
		t.Errorf("Expected output format 'pcm_16000', got '%s'", config.OutputFormat)
	}
	if config.ChunkSize != 2048 {
		t.Errorf("Expected chunk size 2048, got %d", config.ChunkSize)
	}
	if config.Stability != 0.8 {
		t.Errorf("Expected stability 0.8, got %f", config.Stability)
	}
}
