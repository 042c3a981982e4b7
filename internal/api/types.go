package api

import "time"

// ChatRequest is the payload for the single-shot chat endpoint
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ChatResponse carries the generated reply. SessionID echoes the request's
// session, or the fresh one assigned when the request carried none.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// VoiceResponse is the outcome of a single-shot voice exchange. Audio is
// base64-encoded reply audio; NoReply carries the reason when the turn
// resolved without a spoken reply.
type VoiceResponse struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply,omitempty"`
	Audio      string `json:"audio,omitempty"`
	NoReply    string `json:"no_reply,omitempty"`
}

// TokenResponse is the token discovery payload
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Enabled   bool      `json:"enabled"`
}

// ConfigResponse reports which backends the server is running
type ConfigResponse struct {
	STTProvider     string `json:"stt_provider"`
	LLMProvider     string `json:"llm_provider"`
	TTSProvider     string `json:"tts_provider"`
	StorageProvider string `json:"storage_provider"`
	Language        string `json:"language"`
	SampleRate      int    `json:"sample_rate"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
