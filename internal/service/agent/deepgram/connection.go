// Package deepgram connects sessions to the Deepgram Voice Agent API over a
// WebSocket.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sous-voice-service/internal/observability/metrics"
	"sous-voice-service/internal/service/agent"
)

const (
	DefaultURL = "wss://agent.deepgram.com/v1/agent/converse"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	finishTimeout    = 2 * time.Second
)

// Config holds the agent endpoint and credentials.
type Config struct {
	URL    string
	APIKey string
}

// Connection is an agent.Connection backed by a gorilla WebSocket.
type Connection struct {
	cfg     Config
	conn    *websocket.Conn
	cb      agent.Callback
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu        sync.Mutex // serializes writes
	closeCh   chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

// New returns an unstarted connection.
func New(cfg Config) *Connection {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Connection{
		cfg:      cfg,
		metrics:  metrics.DefaultMetrics,
		logger:   log.With().Str("component", "agent").Str("provider", "deepgram").Logger(),
		closeCh:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// NewFactory returns a factory creating connections with cfg.
func NewFactory(cfg Config) agent.Factory {
	return func() agent.Connection {
		return New(cfg)
	}
}

// Start dials the agent, sends settings and starts the read loop.
func (c *Connection) Start(ctx context.Context, settings agent.Settings, cb agent.Callback) error {
	if c.cfg.APIKey == "" {
		return agent.ErrMissingAPIKey
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("deepgram: connect failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("deepgram: connect failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.cb = cb
	c.mu.Unlock()

	if err := c.SendFrame(newSettingsFrame(settings)); err != nil {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("deepgram: send settings: %w", err)
	}

	go c.readLoop()

	c.logger.Info().Str("url", c.cfg.URL).Msg("Agent connection started")
	return nil
}

func (c *Connection) SendAudio(audio []byte) error {
	return c.write(websocket.BinaryMessage, audio)
}

func (c *Connection) SendFrame(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("deepgram: marshal frame: %w", err)
	}
	return c.write(websocket.TextMessage, payload)
}

func (c *Connection) KeepAlive() error {
	return c.SendFrame(keepAliveFrame{Type: "KeepAlive"})
}

// Finish closes the connection once and waits briefly for the read loop.
func (c *Connection) Finish() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.mu.Lock()
		conn := c.conn
		if conn != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = conn.Close()
		}
		c.mu.Unlock()

		if conn == nil {
			return
		}
		select {
		case <-c.readDone:
		case <-time.After(finishTimeout):
			c.logger.Warn().Msg("Agent read loop did not exit in time")
		}
		c.logger.Info().Msg("Agent connection finished")
	})
	return err
}

func (c *Connection) write(messageType int, data []byte) error {
	select {
	case <-c.closeCh:
		return agent.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return agent.ErrNotStarted
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Connection) readLoop() {
	defer close(c.readDone)
	defer c.cb.OnClose()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.cb.OnError(fmt.Errorf("deepgram: read: %w", err))
				}
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			c.metrics.RecordAgentEvent("Audio")
			c.cb.OnAudio(message)
			continue
		}
		c.dispatch(message)
	}
}

func (c *Connection) dispatch(message []byte) {
	var ev serverEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		c.cb.OnError(fmt.Errorf("deepgram: decode event: %w", err))
		return
	}
	c.metrics.RecordAgentEvent(ev.Type)

	switch ev.Type {
	case "Welcome":
		c.cb.OnWelcome(ev.RequestID)
	case "ConversationText", "History":
		c.cb.OnConversationText(message)
	case "FunctionCallRequest":
		for _, call := range ev.toolCalls() {
			c.cb.OnToolCallRequest(call)
		}
	case "Error":
		c.cb.OnError(ev.agentError())
	case "Warning":
		c.logger.Warn().Str("code", ev.Code).Str("description", ev.Description).Msg("Agent warning")
	default:
		c.logger.Debug().Str("type", ev.Type).Msg("Agent event")
	}
}
