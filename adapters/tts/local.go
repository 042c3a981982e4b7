package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
	"github.com/swaralabs/swara/internal/audio"
)

const (
	localToneDuration = 90 * time.Millisecond
	localGapDuration  = 30 * time.Millisecond
	localMaxDuration  = 4 * time.Second
)

// localScale cycles through a pleasant pentatonic run so longer replies
// sound like a melody rather than a flat beep.
var localScale = []float64{392.00, 440.00, 493.88, 587.33, 659.25}

// LocalTTS is an offline synthesizer used when no speech provider is
// configured. It renders one short tone per word and wraps the result in a
// WAV container, so the reply audio stays self-describing and playable in a
// browser just like provider output.
type LocalTTS struct {
	sampleRate int
	logger     *zap.Logger
}

// Ensure LocalTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*LocalTTS)(nil)

// NewLocalTTS creates an offline synthesizer at the given sample rate.
// A non-positive rate falls back to the pipeline default.
func NewLocalTTS(sampleRate int, logger *zap.Logger) *LocalTTS {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &LocalTTS{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// ConvertTextToSpeech renders the text as a tone sequence. The whole WAV blob
// is delivered as a single element on the returned channel.
func (l *LocalTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, fmt.Errorf("text cannot be empty")
	}

	maxSamples := int(localMaxDuration.Seconds() * float64(l.sampleRate))
	samples := make([]int16, 0, maxSamples)
	for i := range words {
		if len(samples) >= maxSamples {
			break
		}
		if i > 0 {
			samples = append(samples, audio.Silence(localGapDuration, l.sampleRate)...)
		}
		freq := localScale[i%len(localScale)]
		samples = append(samples, audio.Tone(freq, localToneDuration, l.sampleRate)...)
	}
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	wav, err := audio.EncodeWAV(samples, l.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply audio: %w", err)
	}

	l.logger.Debug("Synthesized local reply audio",
		zap.Int("words", len(words)),
		zap.Int("bytes", len(wav)),
		zap.Duration("duration", audio.PCMDuration(len(samples)*2, l.sampleRate)))

	audioChan := make(chan []byte, 1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	audioChan <- wav
	close(audioChan)

	return audioChan, nil
}
