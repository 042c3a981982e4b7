package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a text frame on the voice stream.
//
// Binary frames are never wrapped in this envelope: client to server binary
// frames carry PCM16 microphone audio, server to client binary frames carry
// encoded reply audio. Everything else is a JSON text frame tagged with one
// of the types below.
type MessageType string

// Message types sent by the server.
const (
	MessageTypePartial     MessageType = "partial"      // interim transcript, may be revised
	MessageTypeTranscript  MessageType = "transcript"   // final transcript for the utterance
	MessageTypeReplyDelta  MessageType = "reply_delta"  // incremental reply text
	MessageTypeReply       MessageType = "reply"        // complete reply text
	MessageTypeNoReply     MessageType = "no_reply"     // turn ended without a spoken reply
	MessageTypeSpeakingEnd MessageType = "speaking_end" // no more reply audio will follow
	MessageTypeError       MessageType = "error"        // stage failure, session stays open
	MessageTypeDebug       MessageType = "debug"        // stage timing, only when enabled
)

// Message types sent by the client.
const (
	MessageTypeStop MessageType = "stop" // utterance finished, run the turn
)

// Reasons carried by a no_reply message.
const (
	NoReplyNoSpeech       = "no_speech"       // empty or absent final transcript
	NoReplyEchoSuppressed = "echo_suppressed" // reply matched the echo heuristic
	NoReplyNotConfigured  = "not_configured"  // no language model is wired in
)

// Error codes carried by an error message.
const (
	ErrorCodeTranscription = "transcription_failed"
	ErrorCodeGeneration    = "generation_failed"
	ErrorCodeSynthesis     = "synthesis_failed"
	ErrorCodeStageTimeout  = "stage_timeout"
	ErrorCodeInternal      = "internal_error"
)

// BaseMessage is the common envelope for all text frames.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// PartialMessage carries an interim transcript. Later partials replace
// earlier ones in place, they are never concatenated.
type PartialMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// TranscriptMessage carries the final transcript for one utterance.
type TranscriptMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ReplyDeltaMessage carries an incremental piece of the reply text.
// Deltas concatenate in arrival order into the full reply.
type ReplyDeltaMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ReplyMessage carries the complete reply text. It is sent before the
// first audio chunk of the same reply.
type ReplyMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// NoReplyMessage signals that the turn produced no spoken reply.
type NoReplyMessage struct {
	BaseMessage
	Reason string `json:"reason"`
}

// SpeakingEndMessage marks the end of the reply audio stream for a turn.
type SpeakingEndMessage struct {
	BaseMessage
}

// ErrorMessage reports a recoverable stage failure. The session remains
// usable for the next utterance.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StopMessage ends the current utterance and triggers the reply turn.
type StopMessage struct {
	BaseMessage
}

// DebugMessage carries stage timing when debug reporting is enabled.
type DebugMessage struct {
	BaseMessage
	Stage     string `json:"stage"`
	Detail    string `json:"detail,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// DecodeMessage parses a text frame into its concrete message struct.
// Unknown types are rejected so protocol drift surfaces immediately
// instead of being silently dropped.
func DecodeMessage(raw []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("invalid message frame: %w", err)
	}

	switch base.Type {
	case MessageTypePartial:
		var msg PartialMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid partial message: %w", err)
		}
		return &msg, nil

	case MessageTypeTranscript:
		var msg TranscriptMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid transcript message: %w", err)
		}
		return &msg, nil

	case MessageTypeReplyDelta:
		var msg ReplyDeltaMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid reply_delta message: %w", err)
		}
		return &msg, nil

	case MessageTypeReply:
		var msg ReplyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid reply message: %w", err)
		}
		return &msg, nil

	case MessageTypeNoReply:
		var msg NoReplyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid no_reply message: %w", err)
		}
		if msg.Reason == "" {
			return nil, fmt.Errorf("no_reply message requires a reason")
		}
		return &msg, nil

	case MessageTypeSpeakingEnd:
		var msg SpeakingEndMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid speaking_end message: %w", err)
		}
		return &msg, nil

	case MessageTypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid error message: %w", err)
		}
		if msg.Code == "" {
			return nil, fmt.Errorf("error message requires a code")
		}
		return &msg, nil

	case MessageTypeStop:
		var msg StopMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid stop message: %w", err)
		}
		return &msg, nil

	case MessageTypeDebug:
		var msg DebugMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid debug message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %q", base.Type)
	}
}

// CreatePartialMessage builds an interim transcript frame.
func CreatePartialMessage(text string) *PartialMessage {
	return &PartialMessage{
		BaseMessage: BaseMessage{Type: MessageTypePartial},
		Text:        text,
	}
}

// CreateTranscriptMessage builds a final transcript frame.
func CreateTranscriptMessage(text string) *TranscriptMessage {
	return &TranscriptMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTranscript},
		Text:        text,
	}
}

// CreateReplyDeltaMessage builds an incremental reply frame.
func CreateReplyDeltaMessage(text string) *ReplyDeltaMessage {
	return &ReplyDeltaMessage{
		BaseMessage: BaseMessage{Type: MessageTypeReplyDelta},
		Text:        text,
	}
}

// CreateReplyMessage builds a complete reply frame.
func CreateReplyMessage(text string) *ReplyMessage {
	return &ReplyMessage{
		BaseMessage: BaseMessage{Type: MessageTypeReply},
		Text:        text,
	}
}

// CreateNoReplyMessage builds a no_reply frame with the given reason.
func CreateNoReplyMessage(reason string) *NoReplyMessage {
	return &NoReplyMessage{
		BaseMessage: BaseMessage{Type: MessageTypeNoReply},
		Reason:      reason,
	}
}

// CreateSpeakingEndMessage builds the end-of-audio marker frame.
func CreateSpeakingEndMessage() *SpeakingEndMessage {
	return &SpeakingEndMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSpeakingEnd},
	}
}

// CreateErrorMessage builds a recoverable error frame.
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError},
		Code:        code,
		Message:     message,
	}
}

// CreateStopMessage builds the client's end-of-utterance frame.
func CreateStopMessage() *StopMessage {
	return &StopMessage{
		BaseMessage: BaseMessage{Type: MessageTypeStop},
	}
}

// CreateDebugMessage builds a stage timing frame.
func CreateDebugMessage(stage, detail string, elapsed time.Duration) *DebugMessage {
	return &DebugMessage{
		BaseMessage: BaseMessage{Type: MessageTypeDebug},
		Stage:       stage,
		Detail:      detail,
		ElapsedMs:   elapsed.Milliseconds(),
	}
}
