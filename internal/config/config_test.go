package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "WS_AUTH_TOKEN", "AUTH_JWT_SECRET", "STT_PROVIDER",
		"LLM_PROVIDER", "TTS_PROVIDER", "STORAGE_PROVIDER",
		"FINALIZE_TIMEOUT", "ECHO_SUPPRESSION", "ECHO_PREFIXES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Provider.STT != STTProviderScripted {
		t.Errorf("Expected default STT provider %s, got %s", STTProviderScripted, cfg.Provider.STT)
	}
	if cfg.Provider.LLM != LLMProviderRuleBased {
		t.Errorf("Expected default LLM provider %s, got %s", LLMProviderRuleBased, cfg.Provider.LLM)
	}
	if cfg.Provider.TTS != TTSProviderLocal {
		t.Errorf("Expected default TTS provider %s, got %s", TTSProviderLocal, cfg.Provider.TTS)
	}
	if !cfg.Pipeline.EchoSuppression {
		t.Error("Expected echo suppression enabled by default")
	}
	if len(cfg.Pipeline.EchoPrefixes) != 1 || cfg.Pipeline.EchoPrefixes[0] != "you said:" {
		t.Errorf("Expected default echo prefix list, got %v", cfg.Pipeline.EchoPrefixes)
	}
	if cfg.Pipeline.FinalizeTimeout != 10*time.Second {
		t.Errorf("Expected 10s finalize timeout, got %v", cfg.Pipeline.FinalizeTimeout)
	}
	if cfg.AuthEnabled() {
		t.Error("Expected auth disabled when no token material is configured")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WS_AUTH_TOKEN", "sekrit")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("FINALIZE_TIMEOUT", "5s")
	t.Setenv("ECHO_PREFIXES", "you said:, i heard:")
	t.Setenv("DEBUG_EVENTS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if !cfg.AuthEnabled() {
		t.Error("Expected auth enabled with WS_AUTH_TOKEN set")
	}
	if cfg.Provider.STT != STTProviderGoogle {
		t.Errorf("Expected STT provider google, got %s", cfg.Provider.STT)
	}
	if cfg.Pipeline.FinalizeTimeout != 5*time.Second {
		t.Errorf("Expected 5s finalize timeout, got %v", cfg.Pipeline.FinalizeTimeout)
	}
	if len(cfg.Pipeline.EchoPrefixes) != 2 || cfg.Pipeline.EchoPrefixes[1] != "i heard:" {
		t.Errorf("Expected two trimmed echo prefixes, got %v", cfg.Pipeline.EchoPrefixes)
	}
	if !cfg.Server.DebugEvents {
		t.Error("Expected debug events enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad port", key: "PORT", value: "not-a-port"},
		{name: "bad stt provider", key: "STT_PROVIDER", value: "whisperx"},
		{name: "bad llm provider", key: "LLM_PROVIDER", value: "gpt"},
		{name: "bad tts provider", key: "TTS_PROVIDER", value: "espeak"},
		{name: "bad storage provider", key: "STORAGE_PROVIDER", value: "postgres"},
		{name: "bad sample rate", key: "AUDIO_SAMPLE_RATE", value: "96000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FINALIZE_TIMEOUT", "soon")
	t.Setenv("DEBUG_EVENTS", "perhaps")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.FinalizeTimeout != 10*time.Second {
		t.Errorf("Expected fallback 10s timeout, got %v", cfg.Pipeline.FinalizeTimeout)
	}
	if cfg.Server.DebugEvents {
		t.Error("Expected fallback false for unparseable bool")
	}
}
