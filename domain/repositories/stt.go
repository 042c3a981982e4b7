package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete audio clip to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	// InitTranscribeStreaming initializes a streaming transcription session
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToTextStreaming is one live recognition session. Stream feeds audio
// as it arrives, Partials delivers interim transcripts while audio is still
// flowing, End flushes the recognizer and returns the final transcript.
//
// The Partials channel is closed when recognition stops producing interim
// results, whether by End, Close, or an upstream failure. Close abandons the
// session without waiting for a final transcript.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	Partials() <-chan string
	End() (string, error)
	Close() error
}
