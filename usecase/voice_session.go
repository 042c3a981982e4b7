package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain"
	"github.com/swaralabs/swara/domain/entities"
	"github.com/swaralabs/swara/domain/repositories"
	"github.com/swaralabs/swara/internal/config"
	"github.com/swaralabs/swara/internal/metrics"
)

// State identifies where a voice session is in its capture/reply cycle.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
	StateThinking
	StateSynthesizing
	StateStreamingReply
	StateClosed
)

// String returns a human-readable state name for logging
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateThinking:
		return "thinking"
	case StateSynthesizing:
		return "synthesizing"
	case StateStreamingReply:
		return "streaming_reply"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventSink receives everything a session emits toward its client: JSON text
// frames and binary reply audio. Implementations must be safe for concurrent
// use; the session guarantees ordering at its own level (partials before the
// final transcript, reply text before reply audio, speaking_end last).
type EventSink interface {
	SendText(msg interface{}) error
	SendAudio(chunk []byte) error
}

type inboundKind int

const (
	inboundAudio inboundKind = iota
	inboundStop
)

type inboundEvent struct {
	kind inboundKind
	data []byte
}

// VoiceSession drives one client's voice loop: microphone audio in, streamed
// transcription, one reply per utterance, synthesized audio out. All state
// transitions happen on the session's own goroutine, fed by an inbound
// channel; there is no shared mutable state across sessions.
type VoiceSession struct {
	id          string
	pipeline    config.PipelineConfig
	debugEvents bool

	stt           repositories.SpeechToText
	llm           repositories.LargeLanguageModel
	tts           repositories.TextToSpeech
	conversations repositories.ConversationRepository

	sink    EventSink
	metrics *metrics.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inbound chan inboundEvent
	done    chan struct{}

	state atomic.Int32

	// Turn-scoped fields, touched only from the run goroutine
	streamHandle   repositories.SpeechToTextStreaming
	partialsDone   chan struct{}
	chatSession    repositories.ChatSession
	conversation   *entities.Conversation
	captureStart   time.Time
	captureBytes   int
	stopHandled    bool
	audioSinceStop bool

	closeOnce sync.Once
	startOnce sync.Once
}

// NewVoiceSession creates a session bound to one client connection. Call
// Start to launch its goroutine and Close when the connection goes away.
func NewVoiceSession(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	conversations repositories.ConversationRepository,
	sink EventSink,
	pipeline config.PipelineConfig,
	debugEvents bool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *VoiceSession {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	return &VoiceSession{
		id:            id,
		pipeline:      pipeline,
		debugEvents:   debugEvents,
		stt:           stt,
		llm:           llm,
		tts:           tts,
		conversations: conversations,
		sink:          sink,
		metrics:       m,
		logger:        logger.With(zap.String("sessionID", id)),
		ctx:           ctx,
		cancel:        cancel,
		inbound:       make(chan inboundEvent, 256),
		done:          make(chan struct{}),
	}
}

// ID returns the session identifier
func (s *VoiceSession) ID() string {
	return s.id
}

// State returns the current machine state
func (s *VoiceSession) State() State {
	return State(s.state.Load())
}

// Done is closed when the session goroutine has fully stopped
func (s *VoiceSession) Done() <-chan struct{} {
	return s.done
}

// Start launches the session goroutine
func (s *VoiceSession) Start() {
	s.startOnce.Do(func() {
		s.metrics.SessionsOpened.Inc()
		s.metrics.SessionsActive.Inc()
		go s.run()
	})
}

// HandleAudio enqueues one binary microphone frame. Blocks only when the
// inbound buffer is full, which backpressures the reader.
func (s *VoiceSession) HandleAudio(data []byte) {
	select {
	case s.inbound <- inboundEvent{kind: inboundAudio, data: data}:
	case <-s.ctx.Done():
	}
}

// HandleStop enqueues the end-of-utterance signal
func (s *VoiceSession) HandleStop() {
	select {
	case s.inbound <- inboundEvent{kind: inboundStop}:
	case <-s.ctx.Done():
	}
}

// Close shuts the session down. In-flight adapter calls are cancelled and
// late results discarded; no events are emitted after Close returns and the
// session goroutine has stopped.
func (s *VoiceSession) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

func (s *VoiceSession) run() {
	defer s.finish()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.inbound:
			switch ev.kind {
			case inboundAudio:
				s.onAudio(ev.data)
			case inboundStop:
				s.onStop()
			}
		}
	}
}

func (s *VoiceSession) finish() {
	s.setState(StateClosed)
	if s.streamHandle != nil {
		if err := s.streamHandle.Close(); err != nil {
			s.logger.Debug("Failed to close transcription stream", zap.Error(err))
		}
		s.streamHandle = nil
	}
	s.metrics.SessionsClosed.Inc()
	s.metrics.SessionsActive.Dec()
	close(s.done)
	s.logger.Info("Voice session closed")
}

func (s *VoiceSession) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Debug("Session state changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", next))
	}
}

// onAudio handles one microphone frame. The first frame while Idle begins a
// new capture; frames while a turn is being processed are dropped.
func (s *VoiceSession) onAudio(data []byte) {
	s.metrics.AudioFramesIn.Inc()
	s.metrics.AudioBytesIn.Add(float64(len(data)))
	s.audioSinceStop = true

	switch s.State() {
	case StateIdle:
		if !s.beginCapture() {
			return
		}
		s.feedAudio(data)
	case StateCapturing:
		s.feedAudio(data)
	default:
		s.logger.Debug("Dropping audio frame outside capture",
			zap.Stringer("state", s.State()),
			zap.Int("size", len(data)))
	}
}

func (s *VoiceSession) beginCapture() bool {
	audioConfig := repositories.AudioConfig{
		SampleRate: s.pipeline.SampleRate,
		Encoding:   "LINEAR16",
		Language:   s.pipeline.Language,
	}

	handle, err := s.stt.InitTranscribeStreaming(s.ctx, audioConfig)
	if err != nil {
		s.logger.Error("Failed to initialize streaming transcription", zap.Error(err))
		s.emitError(domain.ErrorCodeTranscription, "failed to start transcription", metrics.StageSTT)
		return false
	}

	partialsDone := make(chan struct{})
	go func() {
		defer close(partialsDone)
		for text := range handle.Partials() {
			s.metrics.PartialsEmitted.Inc()
			s.emit(domain.CreatePartialMessage(text))
		}
	}()

	s.streamHandle = handle
	s.partialsDone = partialsDone
	s.captureStart = time.Now()
	s.captureBytes = 0
	s.setState(StateCapturing)
	s.logger.Info("Capture started")
	return true
}

func (s *VoiceSession) feedAudio(data []byte) {
	s.captureBytes += len(data)
	if err := s.streamHandle.Stream(data); err != nil {
		s.logger.Error("Failed to stream audio to recognizer", zap.Error(err))
		s.abandonCapture()
		s.emitError(domain.ErrorCodeTranscription, "transcription stream failed", metrics.StageSTT)
		s.setState(StateIdle)
	}
}

// onStop runs the reply turn. A stop with no audio behind it resolves to an
// explicit no_reply so a bare client never hangs, except when it trails a
// stop that was already handled: turns run synchronously on this goroutine,
// so a duplicate stop queued during processing surfaces here in Idle and is
// dropped rather than answered twice.
func (s *VoiceSession) onStop() {
	defer func() {
		s.stopHandled = true
		s.audioSinceStop = false
	}()

	switch s.State() {
	case StateCapturing:
		s.runTurn()
	case StateIdle:
		if s.stopHandled && !s.audioSinceStop {
			s.logger.Debug("Ignoring duplicate stop")
			return
		}
		s.emit(domain.CreateNoReplyMessage(domain.NoReplyNoSpeech))
		s.metrics.TurnsNoSpeech.Inc()
	default:
		s.logger.Debug("Ignoring stop", zap.Stringer("state", s.State()))
	}
}

// runTurn executes Finalizing → Thinking → Synthesizing → StreamingReply for
// one utterance, returning the session to Idle whatever the outcome.
func (s *VoiceSession) runTurn() {
	defer s.setState(StateIdle)

	captureDuration := time.Since(s.captureStart)

	transcript, ok := s.finalize()
	if !ok {
		return
	}
	if strings.TrimSpace(transcript) == "" {
		s.logger.Info("Utterance produced no speech",
			zap.Int("audioBytes", s.captureBytes))
		s.emit(domain.CreateNoReplyMessage(domain.NoReplyNoSpeech))
		s.metrics.TurnsNoSpeech.Inc()
		return
	}
	s.emit(domain.CreateTranscriptMessage(transcript))

	s.ensureConversation()
	s.conversation.AddTurn(entities.TurnRoleUser, transcript, captureDuration.Milliseconds())

	reply, ok := s.generateReply(transcript)
	if !ok {
		s.persistConversation()
		return
	}
	if strings.TrimSpace(reply) == "" {
		s.logger.Info("Language model produced an empty reply")
		s.emit(domain.CreateNoReplyMessage(domain.NoReplyNoSpeech))
		s.persistConversation()
		return
	}

	if s.pipeline.EchoSuppression && replyEchoesTranscript(reply, transcript, s.pipeline.EchoPrefixes) {
		s.logger.Info("Suppressing echo reply", zap.String("reply", preview(reply)))
		s.conversation.AddSuppressedTurn(reply)
		s.persistConversation()
		s.emit(domain.CreateNoReplyMessage(domain.NoReplyEchoSuppressed))
		s.metrics.TurnsSuppressed.Inc()
		return
	}

	s.conversation.AddTurn(entities.TurnRoleAssistant, reply, 0)
	s.persistConversation()

	// Reply text always precedes the first audio chunk of the same reply
	s.emit(domain.CreateReplyMessage(reply))

	if s.speak(reply) {
		s.metrics.TurnsCompleted.Inc()
	}
}

// finalize flushes the recognizer and waits for the final transcript, bounded
// by the finalize timeout. Reports ok=false when the turn cannot continue.
func (s *VoiceSession) finalize() (string, bool) {
	s.setState(StateFinalizing)
	start := time.Now()

	handle := s.streamHandle
	partialsDone := s.partialsDone
	s.streamHandle = nil
	s.partialsDone = nil

	type finalResult struct {
		text string
		err  error
	}
	result := make(chan finalResult, 1)
	go func() {
		text, err := handle.End()
		result <- finalResult{text: text, err: err}
	}()

	timer := time.NewTimer(s.pipeline.FinalizeTimeout)
	defer timer.Stop()

	select {
	case r := <-result:
		<-partialsDone // all partials are delivered before the final transcript
		elapsed := time.Since(start)
		s.observeStage(metrics.StageSTT, elapsed)
		if r.err != nil {
			s.logger.Error("Failed to finalize transcription", zap.Error(r.err))
			s.emitError(domain.ErrorCodeTranscription, "transcription failed", metrics.StageSTT)
			return "", false
		}
		s.logger.Info("Transcription finalized",
			zap.String("transcript", preview(r.text)),
			zap.Duration("elapsed", elapsed))
		return r.text, true

	case <-timer.C:
		s.logger.Error("Timed out awaiting final transcript",
			zap.Duration("timeout", s.pipeline.FinalizeTimeout))
		handle.Close()
		<-partialsDone
		s.emitError(domain.ErrorCodeStageTimeout, "timed out awaiting transcript", metrics.StageSTT)
		return "", false

	case <-s.ctx.Done():
		handle.Close()
		<-partialsDone
		return "", false
	}
}

// generateReply obtains the reply text for a transcript, streaming deltas to
// the client when the chat session supports it. Reports ok=false when no
// reply should be spoken.
func (s *VoiceSession) generateReply(transcript string) (string, bool) {
	s.setState(StateThinking)
	start := time.Now()

	replyCtx, cancel := context.WithTimeout(s.ctx, s.pipeline.ReplyTimeout)
	defer cancel()

	if !s.ensureChatSession(replyCtx) {
		return "", false
	}

	message := repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: transcript,
	}

	var reply string
	var err error
	if streamer, supported := s.chatSession.(repositories.ChatSessionStreamer); supported {
		reply, err = s.streamReply(replyCtx, streamer, message)
	} else {
		reply, err = s.requestReply(replyCtx, message)
	}

	elapsed := time.Since(start)
	s.observeStage(metrics.StageLLM, elapsed)

	if err != nil {
		if s.ctx.Err() != nil {
			return "", false // session closing, discard the turn
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("Timed out awaiting reply",
				zap.Duration("timeout", s.pipeline.ReplyTimeout))
			s.emitError(domain.ErrorCodeStageTimeout, "timed out awaiting reply", metrics.StageLLM)
			return "", false
		}
		s.logger.Error("Failed to generate reply", zap.Error(err))
		s.emitError(domain.ErrorCodeGeneration, "reply generation failed", metrics.StageLLM)
		return "", false
	}

	s.logger.Info("Reply generated",
		zap.String("reply", preview(reply)),
		zap.Duration("elapsed", elapsed))
	return reply, true
}

func (s *VoiceSession) ensureChatSession(ctx context.Context) bool {
	if s.chatSession != nil {
		return true
	}

	history := chatHistory(s.conversation)
	if len(history) > 0 && history[len(history)-1].Role == repositories.UserRole {
		// The live turn goes through SendMessage, not the seed
		history = history[:len(history)-1]
	}

	chatSession, err := s.llm.GenerateChat(ctx, history)
	if err != nil {
		if errors.Is(err, repositories.ErrNotConfigured) {
			s.logger.Warn("No language model configured")
			s.emit(domain.CreateNoReplyMessage(domain.NoReplyNotConfigured))
			return false
		}
		s.logger.Error("Failed to create chat session", zap.Error(err))
		s.emitError(domain.ErrorCodeGeneration, "failed to create chat session", metrics.StageLLM)
		return false
	}

	s.chatSession = chatSession
	return true
}

// requestReply waits for a whole reply in one round trip, bounded by ctx even
// if the adapter ignores cancellation.
func (s *VoiceSession) requestReply(ctx context.Context, message repositories.ChatMessage) (string, error) {
	type replyResult struct {
		text string
		err  error
	}
	result := make(chan replyResult, 1)
	go func() {
		response, err := s.chatSession.SendMessage(ctx, message)
		result <- replyResult{text: response.Content, err: err}
	}()

	select {
	case r := <-result:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// streamReply consumes reply deltas, forwarding each to the client as it
// arrives and concatenating them into the full reply.
func (s *VoiceSession) streamReply(ctx context.Context, streamer repositories.ChatSessionStreamer, message repositories.ChatMessage) (string, error) {
	deltas, err := streamer.StreamMessage(ctx, message)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for {
		select {
		case delta, open := <-deltas:
			if !open {
				return full.String(), nil
			}
			if delta.Err != nil {
				return "", delta.Err
			}
			full.WriteString(delta.Text)
			s.emit(domain.CreateReplyDeltaMessage(delta.Text))
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// speak synthesizes the reply and forwards audio chunks in generation order,
// closing the turn with speaking_end. Reports whether the whole reply audio
// was delivered.
func (s *VoiceSession) speak(reply string) bool {
	s.setState(StateSynthesizing)
	start := time.Now()

	synthCtx, cancel := context.WithTimeout(s.ctx, s.pipeline.SynthTimeout)
	defer cancel()

	type synthResult struct {
		audio <-chan []byte
		err   error
	}
	result := make(chan synthResult, 1)
	go func() {
		audio, err := s.tts.ConvertTextToSpeech(synthCtx, reply)
		result <- synthResult{audio: audio, err: err}
	}()

	var audio <-chan []byte
	select {
	case r := <-result:
		if r.err != nil {
			s.logger.Error("Failed to synthesize reply", zap.Error(r.err))
			s.emitError(domain.ErrorCodeSynthesis, "speech synthesis failed", metrics.StageTTS)
			return false
		}
		audio = r.audio
	case <-synthCtx.Done():
		if s.ctx.Err() != nil {
			return false
		}
		s.logger.Error("Timed out starting synthesis",
			zap.Duration("timeout", s.pipeline.SynthTimeout))
		s.emitError(domain.ErrorCodeStageTimeout, "timed out awaiting synthesis", metrics.StageTTS)
		return false
	}

	s.setState(StateStreamingReply)
	chunks := 0
	for {
		select {
		case chunk, open := <-audio:
			if !open {
				elapsed := time.Since(start)
				s.observeStage(metrics.StageTTS, elapsed)
				s.emit(domain.CreateSpeakingEndMessage())
				s.logger.Info("Reply audio delivered",
					zap.Int("chunks", chunks),
					zap.Duration("elapsed", elapsed))
				return true
			}
			if err := s.sink.SendAudio(chunk); err != nil {
				s.logger.Warn("Failed to send reply audio chunk", zap.Error(err))
				return false
			}
			chunks++
			s.metrics.AudioChunksOut.Inc()
			s.metrics.AudioBytesOut.Add(float64(len(chunk)))
		case <-synthCtx.Done():
			if s.ctx.Err() != nil {
				return false
			}
			s.logger.Error("Timed out streaming reply audio",
				zap.Duration("timeout", s.pipeline.SynthTimeout))
			s.emitError(domain.ErrorCodeStageTimeout, "timed out streaming reply audio", metrics.StageTTS)
			return false
		}
	}
}

// abandonCapture tears down a live recognizer without awaiting a final
func (s *VoiceSession) abandonCapture() {
	if s.streamHandle == nil {
		return
	}
	s.streamHandle.Close()
	<-s.partialsDone
	s.streamHandle = nil
	s.partialsDone = nil
}

// ensureConversation loads or rotates the conversation record for this turn
func (s *VoiceSession) ensureConversation() {
	if s.conversation != nil && !s.conversation.IsExpired() && !s.conversation.ShouldRotate() {
		return
	}

	s.conversation = entities.NewConversation(s.id)
	s.conversation.Language = s.pipeline.Language

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.conversations.Create(ctx, s.conversation); err != nil {
		// Persistence failures never interrupt the voice loop
		s.logger.Warn("Failed to persist new conversation", zap.Error(err))
	}
}

func (s *VoiceSession) persistConversation() {
	if s.conversation == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.conversations.Update(ctx, s.conversation); err != nil {
		s.logger.Warn("Failed to persist conversation turns", zap.Error(err))
	}
}

// chatHistory converts recorded turns into chat messages for seeding a model
func chatHistory(conversation *entities.Conversation) []repositories.ChatMessage {
	if conversation == nil {
		return nil
	}
	turns := conversation.History()
	messages := make([]repositories.ChatMessage, 0, len(turns))
	for _, turn := range turns {
		role := repositories.UserRole
		if turn.Role == entities.TurnRoleAssistant {
			role = repositories.AssistantRole
		}
		messages = append(messages, repositories.ChatMessage{
			Role:    role,
			Content: turn.Text,
		})
	}
	return messages
}

// replyEchoesTranscript reports whether the reply merely repeats the
// transcript, either verbatim after whitespace normalization or behind one of
// the configured echo prefixes
func replyEchoesTranscript(reply, transcript string, prefixes []string) bool {
	normReply := normalizeForEcho(reply)
	if normReply == normalizeForEcho(transcript) {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(normReply, normalizeForEcho(prefix)) {
			return true
		}
	}
	return false
}

func normalizeForEcho(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func (s *VoiceSession) emit(msg interface{}) {
	if err := s.sink.SendText(msg); err != nil {
		s.logger.Warn("Failed to send event", zap.Error(err))
	}
}

func (s *VoiceSession) emitError(code, message, stage string) {
	s.metrics.TurnsFailed.WithLabelValues(stage).Inc()
	s.emit(domain.CreateErrorMessage(code, message))
}

func (s *VoiceSession) observeStage(stage string, elapsed time.Duration) {
	s.metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if s.debugEvents {
		s.emit(domain.CreateDebugMessage(stage, "", elapsed))
	}
}

func preview(text string) string {
	if len(text) <= 80 {
		return text
	}
	return text[:80] + "..."
}
