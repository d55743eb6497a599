package signaling

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WSClient subscribes through the relay's websocket surface. Outbound
// messages travel on the same socket.
type WSClient struct {
	ep     Endpoint
	http   *http.Client
	logger *zap.Logger

	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan []byte
	done     chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// NewWSClient creates an unconnected websocket transport. The http client's
// transport dialer, when it has one, is reused for the upgrade.
func NewWSClient(ep Endpoint, httpClient *http.Client, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		ep:       ep,
		http:     httpClient,
		logger:   logger.With(zap.String("transport", "ws")),
		incoming: make(chan *Message, 32),
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
	}
}

func (c *WSClient) url() (string, error) {
	u, err := url.Parse(c.ep.base())
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = c.ep.query()
	return u.String(), nil
}

// Connect dials the relay and starts the read and write pumps.
func (c *WSClient) Connect(ctx context.Context) error {
	target, err := c.url()
	if err != nil {
		return err
	}

	dialer := *websocket.DefaultDialer
	if c.http != nil {
		if tr, ok := c.http.Transport.(*http.Transport); ok && tr.DialContext != nil {
			dialer.NetDialContext = tr.DialContext
		}
	}

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return fmt.Errorf("failed to connect: %s", statusError(resp))
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrStreamEnded
			}
			c.setErr(err)
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued messages and sends periodic pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.setErr(err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setErr(err)
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg for the write pump.
func (c *WSClient) Send(ctx context.Context, msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Incoming returns the channel of messages from the other side.
func (c *WSClient) Incoming() <-chan *Message { return c.incoming }

// Err reports why the socket ended.
func (c *WSClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.err
}

func (c *WSClient) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close sends a close frame and tears the socket down.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return nil
}
