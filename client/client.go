// Package client is the Go side of the audio stream: a transport session
// with token auth and reconnect backoff, plus a sequential playback queue
// for reply audio.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain"
)

// Status represents the state of the stream connection.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by sends when no connection is open. Frames
// are never queued across a closed connection.
var ErrNotConnected = errors.New("not connected")

// ErrSessionClosed is returned by Connect after Close.
var ErrSessionClosed = errors.New("session closed")

// AuthenticationError reports a close with the policy violation code: the
// server rejected the credential.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Reason)
}

// ConnectivityError reports a failed dial or an abnormal connection loss.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connection lost: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Event is one frame from the server, delivered in strict arrival order.
// Exactly one field is set: Message carries a decoded control frame, Audio
// a reply audio chunk, Err the classified reason when the connection drops.
type Event struct {
	Message interface{}
	Audio   []byte
	Err     error
}

// Config holds the transport session settings.
type Config struct {
	// URL is the stream endpoint, e.g. ws://localhost:8080/ws/audio-stream.
	URL string
	// TokenSource supplies the connection credential. Nil connects bare.
	TokenSource TokenSource
	// InitialReconnectDelay and MaxReconnectDelay bound the reconnect
	// backoff. Zero values select 1s and 30s.
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	// HandshakeTimeout bounds each dial. Zero selects 10s.
	HandshakeTimeout time.Duration
	// OnStatus, when set, observes connection status transitions.
	OnStatus func(Status)
	Logger   *zap.Logger
}

// Session is a persistent connection to the audio stream. It delivers
// server frames in arrival order on one channel and resumes dropped
// connections with exponential backoff, except during active capture,
// where resuming is pointless because the utterance audio is already lost.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	dialer  *websocket.Dialer
	backoff *backoff

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	status    Status
	capturing bool
	closed    bool
}

// NewSession creates a session. Connect opens the stream.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:     cfg,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshake},
		backoff: newBackoff(cfg.InitialReconnectDelay, cfg.MaxReconnectDelay),
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, 64),
		status:  StatusDisconnected,
	}
}

// Connect resolves a token and opens the stream. A successful open resets
// the reconnect backoff. Calling Connect while a connection or reconnect
// attempt is already in flight is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusConnecting
	s.mu.Unlock()
	s.notifyStatus(StatusConnecting)

	if err := s.dial(ctx); err != nil {
		s.setStatus(StatusDisconnected)
		return err
	}
	return nil
}

// Events returns the frame stream. It stays open across reconnects; after
// Close or a deferred reconnect no further events are delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed once the session stops delivering events.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SendAudio transmits one binary audio frame and marks the session as
// capturing until the matching SendStop.
func (s *Session) SendAudio(data []byte) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return &ConnectivityError{Err: err}
	}

	s.mu.Lock()
	s.capturing = true
	s.mu.Unlock()
	return nil
}

// SendStop ends the current utterance and triggers the reply turn.
func (s *Session) SendStop() error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := json.Marshal(domain.CreateStopMessage())
	if err != nil {
		return fmt.Errorf("failed to encode stop frame: %w", err)
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		return &ConnectivityError{Err: err}
	}

	s.mu.Lock()
	s.capturing = false
	s.mu.Unlock()
	return nil
}

// Close ends the session with a normal close frame. No reconnect follows
// and no further events are delivered.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()

	var err error
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		err = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	s.setStatus(StatusDisconnected)
	return err
}

// dial opens one connection attempt and installs it on success.
func (s *Session) dial(ctx context.Context) error {
	target, err := s.streamURL(ctx)
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return &ConnectivityError{Err: err}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.status = StatusConnected
	s.backoff.Reset()
	s.mu.Unlock()
	s.notifyStatus(StatusConnected)

	s.logger.Info("Connected to audio stream", zap.String("url", s.cfg.URL))
	go s.readLoop(conn)
	return nil
}

// streamURL attaches the resolved token as a query parameter.
func (s *Session) streamURL(ctx context.Context) (string, error) {
	if s.cfg.TokenSource == nil {
		return s.cfg.URL, nil
	}

	token, err := s.cfg.TokenSource.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve token: %w", err)
	}
	if token == "" {
		return s.cfg.URL, nil
	}

	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid stream url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop delivers frames until the connection drops, then classifies the
// loss and hands off to the reconnect policy.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosed(conn, err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.deliver(Event{Audio: data})
		case websocket.TextMessage:
			msg, err := domain.DecodeMessage(data)
			if err != nil {
				s.logger.Warn("Dropping undecodable frame", zap.Error(err))
				continue
			}
			s.deliver(Event{Message: msg})
		}
	}
}

// deliver pushes one event unless the session has stopped.
func (s *Session) deliver(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// handleClosed runs the reconnect policy for one lost connection.
func (s *Session) handleClosed(conn *websocket.Conn, err error) {
	conn.Close()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	closed := s.closed
	capturing := s.capturing
	s.capturing = false
	s.mu.Unlock()

	if closed {
		return
	}

	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure):
		s.logger.Info("Stream closed by server")
		s.setStatus(StatusDisconnected)

	case websocket.IsCloseError(err, websocket.ClosePolicyViolation):
		reason := "unauthorized"
		closeErr := &websocket.CloseError{}
		if errors.As(err, &closeErr) && closeErr.Text != "" {
			reason = closeErr.Text
		}
		s.logger.Warn("Stream rejected the credential", zap.String("reason", reason))
		s.deliver(Event{Err: &AuthenticationError{Reason: reason}})
		s.scheduleReconnect(capturing, true)

	default:
		s.logger.Warn("Stream connection lost", zap.Error(err))
		s.deliver(Event{Err: &ConnectivityError{Err: err}})
		s.scheduleReconnect(capturing, false)
	}
}

// scheduleReconnect resumes the connection with exponential backoff. After
// an unauthorized close the token is refreshed exactly once before the
// backoff sequence begins. A loss during active capture is not resumed
// automatically; the utterance audio is already gone, so reconnecting
// waits for the next explicit Connect.
func (s *Session) scheduleReconnect(capturing, refreshToken bool) {
	if capturing {
		s.logger.Info("Reconnect deferred until the next explicit connect")
		s.setStatus(StatusDisconnected)
		return
	}
	s.setStatus(StatusReconnecting)

	go func() {
		if refreshToken && s.cfg.TokenSource != nil {
			refreshCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
			if _, err := s.cfg.TokenSource.Refresh(refreshCtx); err != nil {
				s.logger.Warn("Token refresh failed", zap.Error(err))
			}
			cancel()
		}

		for {
			delay := s.nextDelay()
			s.logger.Info("Reconnecting to audio stream", zap.Duration("backoff", delay))

			timer := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if err := s.dial(s.ctx); err != nil {
				if errors.Is(err, ErrSessionClosed) {
					return
				}
				s.logger.Warn("Reconnect attempt failed", zap.Error(err))
				continue
			}
			return
		}
	}()
}

func (s *Session) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff.Next()
}

func (s *Session) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.conn == nil {
		return nil
	}
	return s.conn
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	s.mu.Unlock()
	if changed {
		s.notifyStatus(st)
	}
}

func (s *Session) notifyStatus(st Status) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(st)
	}
}
