package repositories

import "context"

// TextToSpeech abstracts speech synthesis services. The returned channel
// delivers encoded audio chunks in playback order and is closed when the
// reply is fully synthesized. Chunks are self-describing: the byte stream
// carries its own container format.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
}
