// Command voicecli streams a recorded clip through the voice loop: it
// paces the audio over the websocket like a live microphone, prints the
// transcript and reply events, and plays the reply audio into a file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/swara/client"
	"github.com/swaralabs/swara/domain"
	"github.com/swaralabs/swara/internal/audio"
)

func main() {
	var (
		fileFlag    = flag.String("file", "", "WAV or raw PCM16 clip to stream")
		urlFlag     = flag.String("url", "ws://localhost:8080/ws/audio-stream", "audio stream endpoint")
		tokenFlag   = flag.String("token", "", "static stream token")
		tokenURL    = flag.String("token-url", "", "token discovery endpoint, e.g. http://localhost:8080/api/v1/auth/token")
		chunkMS     = flag.Int("chunk-ms", 160, "audio chunk size in milliseconds")
		outFlag     = flag.String("out", "", "write reply audio to this file")
		waitFlag    = flag.Duration("wait", 60*time.Second, "overall deadline for the exchange")
		verboseFlag = flag.Bool("v", false, "log transport internals")
	)
	flag.Parse()

	if *fileFlag == "" {
		log.Fatal("missing -file: a WAV or raw PCM16 clip to stream")
	}

	pcm, err := loadPCM(*fileFlag)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *fileFlag, err)
	}
	log.Printf("loaded %s: %d bytes of PCM16 (%v)",
		*fileFlag, len(pcm), audio.PCMDuration(len(pcm), audio.DefaultSampleRate))

	logger := zap.NewNop()
	if *verboseFlag {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}

	var tokenSource client.TokenSource
	switch {
	case *tokenURL != "":
		tokenSource = client.NewEndpointTokenSource(*tokenURL)
	case *tokenFlag != "":
		tokenSource = client.NewStaticTokenSource(*tokenFlag)
	}

	session := client.NewSession(client.Config{
		URL:         *urlFlag,
		TokenSource: tokenSource,
		OnStatus: func(st client.Status) {
			log.Printf("connection %s", st)
		},
		Logger: logger,
	})
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *waitFlag)
	defer cancel()
	if err := session.Connect(ctx); err != nil {
		log.Fatalf("connect failed: %v", err)
	}

	out := newReplyWriter(*outFlag)
	defer out.Close()
	queue := client.NewPlaybackQueue(out, logger)
	defer queue.Close()

	timing := &sendTimes{}
	go streamAudio(session, pcm, *chunkMS, timing)

	if err := runEventLoop(ctx, session, queue, timing); err != nil {
		log.Fatal(err)
	}
}

// loadPCM reads a clip and adapts it to the pipeline format: WAV input is
// unpacked and resampled to 16kHz, anything else is taken as raw PCM16.
func loadPCM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !audio.IsWAV(data) {
		return data, nil
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if rate != audio.DefaultSampleRate {
		samples, err = audio.Resample(samples, rate, audio.DefaultSampleRate)
		if err != nil {
			return nil, err
		}
		log.Printf("resampled %dHz to %dHz", rate, audio.DefaultSampleRate)
	}
	return audio.SamplesToBytes(samples), nil
}

// sendTimes tracks when capture started and ended for the latency summary
type sendTimes struct {
	mu    sync.Mutex
	first time.Time
	last  time.Time
}

func (s *sendTimes) recordSend() {
	s.mu.Lock()
	now := time.Now()
	if s.first.IsZero() {
		s.first = now
	}
	s.last = now
	s.mu.Unlock()
}

func (s *sendTimes) snapshot() (first, last time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first, s.last
}

// streamAudio paces the clip over the socket like a live microphone and
// ends the utterance with a stop frame.
func streamAudio(session *client.Session, pcm []byte, chunkMS int, timing *sendTimes) {
	if chunkMS <= 0 {
		chunkMS = 160
	}
	chunkBytes := audio.DefaultSampleRate * 2 * chunkMS / 1000
	interval := time.Duration(chunkMS) * time.Millisecond

	for start := 0; start < len(pcm); start += chunkBytes {
		end := start + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := session.SendAudio(pcm[start:end]); err != nil {
			log.Printf("send failed: %v", err)
			return
		}
		timing.recordSend()
		time.Sleep(interval)
	}

	if err := session.SendStop(); err != nil {
		log.Printf("stop failed: %v", err)
		return
	}
	log.Printf("finished sending audio, waiting for the reply")
}

func runEventLoop(ctx context.Context, session *client.Session, queue *client.PlaybackQueue, timing *sendTimes) error {
	var (
		firstPartial time.Time
		finalAt      time.Time
		partials     int
		replyBytes   int
	)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for the reply")
		case <-session.Done():
			return fmt.Errorf("session closed before the reply finished")
		case ev := <-session.Events():
			switch {
			case ev.Err != nil:
				log.Printf("stream error: %v", ev.Err)
			case ev.Audio != nil:
				replyBytes += len(ev.Audio)
				queue.Enqueue(ev.Audio)
			default:
				switch msg := ev.Message.(type) {
				case *domain.PartialMessage:
					partials++
					if firstPartial.IsZero() {
						firstPartial = time.Now()
					}
					log.Printf("partial: %s", msg.Text)
				case *domain.TranscriptMessage:
					finalAt = time.Now()
					log.Printf("transcript: %s", msg.Text)
				case *domain.ReplyDeltaMessage:
					log.Printf("reply delta: %s", msg.Text)
				case *domain.ReplyMessage:
					log.Printf("reply: %s", msg.Text)
				case *domain.NoReplyMessage:
					log.Printf("no reply: %s", msg.Reason)
					printSummary(timing, firstPartial, finalAt, partials, replyBytes)
					return nil
				case *domain.ErrorMessage:
					return fmt.Errorf("server error %s: %s", msg.Code, msg.Message)
				case *domain.SpeakingEndMessage:
					drainPlayback(queue)
					log.Printf("speaking end: received %d bytes of reply audio", replyBytes)
					printSummary(timing, firstPartial, finalAt, partials, replyBytes)
					return nil
				case *domain.DebugMessage:
					log.Printf("debug: %s %s (%dms)", msg.Stage, msg.Detail, msg.ElapsedMs)
				}
			}
		}
	}
}

func drainPlayback(queue *client.PlaybackQueue) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if queue.Idle() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func printSummary(timing *sendTimes, firstPartial, finalAt time.Time, partials, replyBytes int) {
	first, last := timing.snapshot()
	if first.IsZero() {
		return
	}
	log.Printf("--- summary ---")
	log.Printf("partials received: %d", partials)
	if !firstPartial.IsZero() {
		log.Printf("first partial %v after the first send", firstPartial.Sub(first).Round(time.Millisecond))
	}
	if !finalAt.IsZero() && !last.IsZero() {
		log.Printf("final transcript %v after the last send", finalAt.Sub(last).Round(time.Millisecond))
	}
	if replyBytes > 0 {
		log.Printf("reply audio: %d bytes", replyBytes)
	}
}

// replyWriter plays reply chunks by appending them to a file in playback
// order. Without a path it only consumes the audio.
type replyWriter struct {
	f *os.File
}

func newReplyWriter(path string) *replyWriter {
	if path == "" {
		return &replyWriter{}
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("failed to create %s: %v", path, err)
	}
	return &replyWriter{f: f}
}

func (w *replyWriter) Play(chunk []byte) error {
	if w.f == nil {
		return nil
	}
	_, err := w.f.Write(chunk)
	return err
}

func (w *replyWriter) Stop() {}

func (w *replyWriter) Close() {
	if w.f != nil {
		w.f.Close()
	}
}
