package stt

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
)

// DefaultScript is the transcript the scripted recognizer reveals when no
// script is configured.
const DefaultScript = "hello there how is your day going"

// revealStride is how much audio advances the reveal by one word, sized to
// 100ms of PCM16 mono at 16kHz.
const revealStride = 3200

// ScriptedSpeechToText is an offline recognizer for development and tests.
// It ignores audio content and reveals a scripted transcript word by word
// as audio volume accumulates, mimicking interim recognition.
type ScriptedSpeechToText struct {
	script string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*ScriptedSpeechToText)(nil)

// NewScriptedSpeechToText creates the scripted recognizer. An empty script
// selects DefaultScript.
func NewScriptedSpeechToText(script string, logger *zap.Logger) *ScriptedSpeechToText {
	if script == "" {
		script = DefaultScript
	}
	return &ScriptedSpeechToText{script: script, logger: logger}
}

// InitTranscribeStreaming creates a new scripted streaming session
func (s *ScriptedSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	s.logger.Debug("Initializing scripted transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	return &ScriptedStream{
		words:    strings.Fields(s.script),
		logger:   s.logger,
		partials: make(chan string, 16),
	}, nil
}

// TranscribeAudio returns the whole script for any non-empty clip
func (s *ScriptedSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", nil
	}
	return s.script, nil
}

// ScriptedStream is one scripted recognition session. Stream, End and Close
// may race when a session tears down mid-utterance, so state is locked.
type ScriptedStream struct {
	words    []string
	logger   *zap.Logger
	partials chan string

	mu         sync.Mutex
	audioBytes int
	revealed   int
	done       bool
}

var _ repositories.SpeechToTextStreaming = (*ScriptedStream)(nil)

// Stream accumulates audio and reveals one more word per stride consumed
func (m *ScriptedStream) Stream(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done || len(data) == 0 {
		return nil
	}
	m.audioBytes += len(data)

	target := m.audioBytes/revealStride + 1
	if target > len(m.words) {
		target = len(m.words)
	}
	if target <= m.revealed {
		return nil
	}
	m.revealed = target

	partial := strings.Join(m.words[:m.revealed], " ")
	select {
	case m.partials <- partial:
	default:
	}

	return nil
}

// Partials delivers the progressively revealed transcript
func (m *ScriptedStream) Partials() <-chan string {
	return m.partials
}

// End finalizes the session. No audio means an empty transcript.
func (m *ScriptedStream) End() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()

	if m.audioBytes == 0 {
		return "", nil
	}
	return strings.Join(m.words, " "), nil
}

// Close abandons the session without a final transcript
func (m *ScriptedStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()
	return nil
}

func (m *ScriptedStream) finishLocked() {
	if !m.done {
		m.done = true
		close(m.partials)
	}
}
