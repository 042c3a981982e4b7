package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider selection values
const (
	STTProviderGoogle   = "google"
	STTProviderScripted = "scripted"

	LLMProviderGemini    = "gemini"
	LLMProviderProxy     = "proxy"
	LLMProviderRuleBased = "rulebased"
	LLMProviderDisabled  = "disabled"

	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderLocal      = "local"

	StorageProviderMemory = "memory"
	StorageProviderMongo  = "mongo"
)

// Config is the cross-cutting service configuration, read from environment
// variables. Provider-specific settings (API keys, voices, model IDs) stay
// with their adapter packages.
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Pipeline PipelineConfig
	Provider ProviderConfig
	Storage  StorageConfig
}

// ServerConfig contains HTTP/WebSocket server configuration
type ServerConfig struct {
	Port        string
	DebugEvents bool // emit debug timing frames on the voice stream
}

// AuthConfig contains connection authentication configuration.
// An empty StaticToken and empty JWTSecret disables authentication.
type AuthConfig struct {
	StaticToken string        // shared secret compared against ?token=
	JWTSecret   string        // enables signed-token mode when set
	TokenTTL    time.Duration // lifetime of issued tokens
}

// PipelineConfig bounds and tunes the voice session state machine
type PipelineConfig struct {
	FinalizeTimeout time.Duration // awaiting the final transcript after stop
	ReplyTimeout    time.Duration // awaiting the language model
	SynthTimeout    time.Duration // awaiting complete speech synthesis
	EchoSuppression bool
	EchoPrefixes    []string
	Language        string
	SampleRate      int
}

// ProviderConfig selects the adapter behind each pipeline stage
type ProviderConfig struct {
	STT string
	LLM string
	TTS string
}

// StorageConfig selects and tunes conversation persistence
type StorageConfig struct {
	Provider        string
	CleanupInterval time.Duration
}

// Load reads configuration from the environment, applying defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			DebugEvents: getBool("DEBUG_EVENTS", false),
		},
		Auth: AuthConfig{
			StaticToken: os.Getenv("WS_AUTH_TOKEN"),
			JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
			TokenTTL:    getDuration("AUTH_TOKEN_TTL", time.Hour),
		},
		Pipeline: PipelineConfig{
			FinalizeTimeout: getDuration("FINALIZE_TIMEOUT", 10*time.Second),
			ReplyTimeout:    getDuration("REPLY_TIMEOUT", 20*time.Second),
			SynthTimeout:    getDuration("SYNTH_TIMEOUT", 30*time.Second),
			EchoSuppression: getBool("ECHO_SUPPRESSION", true),
			EchoPrefixes:    getList("ECHO_PREFIXES", []string{"you said:"}),
			Language:        getEnv("STT_LANGUAGE", "en-US"),
			SampleRate:      getInt("AUDIO_SAMPLE_RATE", 16000),
		},
		Provider: ProviderConfig{
			STT: getEnv("STT_PROVIDER", STTProviderScripted),
			LLM: getEnv("LLM_PROVIDER", LLMProviderRuleBased),
			TTS: getEnv("TTS_PROVIDER", TTSProviderLocal),
		},
		Storage: StorageConfig{
			Provider:        getEnv("STORAGE_PROVIDER", StorageProviderMemory),
			CleanupInterval: getDuration("CONVERSATION_CLEANUP_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks provider selections and bounds
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Server.Port)
	}

	switch c.Provider.STT {
	case STTProviderGoogle, STTProviderScripted:
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.Provider.STT)
	}

	switch c.Provider.LLM {
	case LLMProviderGemini, LLMProviderProxy, LLMProviderRuleBased, LLMProviderDisabled:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider.LLM)
	}

	switch c.Provider.TTS {
	case TTSProviderElevenLabs, TTSProviderLocal:
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.Provider.TTS)
	}

	switch c.Storage.Provider {
	case StorageProviderMemory, StorageProviderMongo:
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER %q", c.Storage.Provider)
	}

	for name, d := range map[string]time.Duration{
		"FINALIZE_TIMEOUT": c.Pipeline.FinalizeTimeout,
		"REPLY_TIMEOUT":    c.Pipeline.ReplyTimeout,
		"SYNTH_TIMEOUT":    c.Pipeline.SynthTimeout,
		"AUTH_TOKEN_TTL":   c.Auth.TokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Pipeline.SampleRate < 8000 || c.Pipeline.SampleRate > 48000 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be between 8000 and 48000, got %d", c.Pipeline.SampleRate)
	}

	return nil
}

// AuthEnabled reports whether connections must present a token
func (c *Config) AuthEnabled() bool {
	return c.Auth.StaticToken != "" || c.Auth.JWTSecret != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
