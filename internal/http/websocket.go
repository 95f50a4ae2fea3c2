package http

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const wsWriteWait = 10 * time.Second

// wsClient adapts a gorilla connection to relay.ClientConn. Binary frames
// carry audio; text frames from the client are ignored.
type wsClient struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, logger zerolog.Logger) *wsClient {
	return &wsClient{conn: conn, logger: logger}
}

// ReadAudio blocks until the next binary frame. It does not observe ctx;
// Close unblocks it.
func (c *wsClient) ReadAudio(_ context.Context) ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			c.logger.Debug().Int("bytes", len(data)).Msg("Ignoring non-binary client frame")
			continue
		}
		return data, nil
	}
}

func (c *wsClient) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *wsClient) WriteAudio(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// Close sends a close frame and releases the connection. Idempotent.
func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
