package stt

import (
	"context"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud Speech adapter. Credentials
// are resolved by the client library (GOOGLE_APPLICATION_CREDENTIALS).
func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

// InitTranscribeStreaming opens one live recognition session
func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        encoding,
		SampleRateHertz: int32(config.SampleRate),
		LanguageCode:    config.Language,
	}

	// Interim results feed the partial transcript stream. The utterance
	// boundary is the caller's stop signal, not endpointer detection, so
	// single utterance mode stays off.
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  true,
				SingleUtterance: false,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &GoogleSpeechToTextStream{
		client:   client,
		stream:   stream,
		ctx:      ctx,
		logger:   g.logger,
		partials: make(chan string, 16),
		final:    make(chan finalResult, 1),
	}
	go s.receiveResults()

	return s, nil
}

// TranscribeAudio converts a complete clip using the streaming session
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	stream, err := g.InitTranscribeStreaming(ctx, config)
	if err != nil {
		return "", fmt.Errorf("failed to initialize streaming: %w", err)
	}

	if err := stream.Stream(audioData); err != nil {
		stream.Close()
		return "", fmt.Errorf("failed to stream audio data: %w", err)
	}

	return stream.End()
}

type finalResult struct {
	text string
	err  error
}

// GoogleSpeechToTextStream is one live recognition session
type GoogleSpeechToTextStream struct {
	client   *speech.Client
	stream   speechpb.Speech_StreamingRecognizeClient
	ctx      context.Context
	logger   *zap.Logger
	partials chan string
	final    chan finalResult
	closing  sync.Once
}

var _ repositories.SpeechToTextStreaming = (*GoogleSpeechToTextStream)(nil)

// Stream forwards one audio frame to the recognizer
func (g *GoogleSpeechToTextStream) Stream(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}

	return nil
}

// Partials delivers interim transcripts while audio is flowing
func (g *GoogleSpeechToTextStream) Partials() <-chan string {
	return g.partials
}

// End flushes the recognizer and returns the final transcript. An utterance
// with no recognizable speech yields an empty transcript, not an error.
func (g *GoogleSpeechToTextStream) End() (string, error) {
	defer g.cleanup()

	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case result := <-g.final:
		return result.text, result.err
	}
}

// Close abandons the session without waiting for a final transcript
func (g *GoogleSpeechToTextStream) Close() error {
	err := g.stream.CloseSend()
	g.cleanup()
	return err
}

func (g *GoogleSpeechToTextStream) receiveResults() {
	defer close(g.partials)

	var finalTranscription string

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.final <- finalResult{text: finalTranscription}
			return
		}
		if err != nil {
			g.final <- finalResult{err: fmt.Errorf("failed to receive response: %w", err)}
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			transcript := result.Alternatives[0].Transcript
			if result.IsFinal {
				finalTranscription = transcript
				continue
			}
			// Drop interim results the consumer is too slow for, the
			// next one supersedes them anyway.
			select {
			case g.partials <- transcript:
			default:
				g.logger.Debug("Dropping interim transcript, consumer busy",
					zap.String("transcript", transcript))
			}
		}
	}
}

func (g *GoogleSpeechToTextStream) cleanup() {
	g.closing.Do(func() {
		g.client.Close()
	})
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "PCM", "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
