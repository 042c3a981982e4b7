package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/swaralabs/swara/domain"
	"github.com/swaralabs/swara/domain/repositories"
	"github.com/swaralabs/swara/internal/auth"
	"github.com/swaralabs/swara/internal/config"
	"github.com/swaralabs/swara/internal/metrics"
	"github.com/swaralabs/swara/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin is not restricted; the token gate is the access control
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var errConnectionClosed = errors.New("connection closed")

// Hub tracks the live stream clients and carries the dependencies every
// voice session needs.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	stt           repositories.SpeechToText
	llm           repositories.LargeLanguageModel
	tts           repositories.TextToSpeech
	conversations repositories.ConversationRepository
	authenticator auth.Authenticator
	pipeline      config.PipelineConfig
	debugEvents   bool
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewHub creates the WebSocket hub
func NewHub(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	conversations repositories.ConversationRepository,
	authenticator auth.Authenticator,
	pipeline config.PipelineConfig,
	debugEvents bool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		stt:           stt,
		llm:           llm,
		tts:           tts,
		conversations: conversations,
		authenticator: authenticator,
		pipeline:      pipeline,
		debugEvents:   debugEvents,
		metrics:       m,
		logger:        logger,
	}
}

// HandleStream upgrades an audio-stream request and runs the client's voice
// session until the connection goes away. A missing or invalid token is
// answered with close code 1008 before any audio is processed.
func (h *Hub) HandleStream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	if h.authenticator.Enabled() {
		if err := h.authenticator.Verify(c.QueryParam("token")); err != nil {
			h.metrics.AuthRejected.Inc()
			h.logger.Warn("Rejected unauthorized stream connection", zap.Error(err))
			deadline := time.Now().Add(writeWait)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"), deadline)
			conn.Close()
			return nil
		}
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan WriteData, 256),
		quit: make(chan struct{}),
	}
	client.session = usecase.NewVoiceSession(
		h.stt, h.llm, h.tts, h.conversations,
		client, h.pipeline, h.debugEvents, h.metrics, h.logger,
	)
	client.logger = h.logger.With(zap.String("sessionID", client.session.ID()))

	h.add(client)
	client.session.Start()

	go client.writePump()
	go client.readPump()

	return nil
}

// Shutdown closes every connected client with a normal close frame. Each
// client's session tears down as its read pump drains.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close()
	}
	h.logger.Info("Hub shut down", zap.Int("clients", len(clients)))
}

// ClientCount reports how many stream clients are connected
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client.session.ID()] = client
	h.mu.Unlock()
	client.logger.Info("Client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.session.ID())
	h.mu.Unlock()
	client.logger.Info("Client disconnected")
}

// WriteData is one outbound websocket frame.
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client binds one websocket connection to its voice session. It is the
// session's EventSink: events are queued to the send channel and written by
// a single pump goroutine, preserving emission order on the wire.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *usecase.VoiceSession
	logger  *zap.Logger

	// Buffered channel of outbound frames.
	send chan WriteData

	// Closed when the write pump exits, so a stalled or dead connection
	// cannot block the session goroutine on a full send channel.
	quit chan struct{}

	closeOnce sync.Once
}

var _ usecase.EventSink = (*Client)(nil)

// SendText queues one JSON event frame
func (c *Client) SendText(msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// SendAudio queues one binary reply audio frame
func (c *Client) SendAudio(chunk []byte) error {
	return c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: chunk})
}

func (c *Client) enqueue(frame WriteData) error {
	select {
	case c.send <- frame:
		return nil
	case <-c.quit:
		return errConnectionClosed
	}
}

// Close tears the connection down with a normal close frame
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close()
	})
}

// readPump pumps frames from the websocket connection into the session.
// Teardown runs here: the session is closed and fully drained before the
// send channel closes, so no event is emitted into a closed channel.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.session.Close()
		<-c.session.Done()
		close(c.send)
		c.hub.remove(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.session.HandleAudio(message)
		case websocket.TextMessage:
			c.handleTextFrame(message)
		default:
			c.logger.Warn("Received unknown frame type", zap.Int("type", messageType))
		}
	}
}

func (c *Client) handleTextFrame(raw []byte) {
	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		c.logger.Warn("Dropping invalid text frame", zap.Error(err))
		return
	}

	switch msg.(type) {
	case *domain.StopMessage:
		c.session.HandleStop()
	default:
		c.logger.Warn("Dropping unexpected client frame")
	}
}

// writePump pumps queued frames to the websocket connection and keeps the
// connection alive with pings. A single writer goroutine per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.quit)
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(frame.Type, frame.Payload); err != nil {
				c.logger.Warn("Failed to write frame", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
