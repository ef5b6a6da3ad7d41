package wsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is the envelope for both directions of the bridge protocol.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Message types.
const (
	TypeStart   = "start"
	TypeAbort   = "abort"
	TypeInterim = "interim"
	TypeFinal   = "final"
	TypeError   = "error"
	TypeEnd     = "end"
)

// client is one websocket connection to the bridge.
type client struct {
	url    string
	token  string
	logger *slog.Logger

	wmu  sync.Mutex
	conn *websocket.Conn
}

func newClient(serverURL, token string, logger *slog.Logger) *client {
	return &client{url: serverURL, token: token, logger: logger}
}

func (c *client) connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("Connecting to transcript bridge", slog.String("url", u.String()))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.logger.Info("Transcript bridge connected", slog.String("url", c.url))
	return nil
}

func (c *client) read() (*Message, error) {
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return &msg, nil
}

func (c *client) write(msg *Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *client) close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	// best effort; the bridge may already be gone
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
