package signaling

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const maxFrameSize = 1024 * 1024

// ErrStreamEnded means the relay closed the event stream.
var ErrStreamEnded = errors.New("signaling stream ended by relay")

// SSEClient subscribes through the relay's event-stream surface and sends
// through plain POSTs, the way browser peers do.
type SSEClient struct {
	ep     Endpoint
	http   *http.Client
	logger *zap.Logger

	incoming chan *Message
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// NewSSEClient creates an unconnected SSE transport.
func NewSSEClient(ep Endpoint, httpClient *http.Client, logger *zap.Logger) *SSEClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEClient{
		ep:       ep,
		http:     httpClient,
		logger:   logger.With(zap.String("transport", "sse")),
		incoming: make(chan *Message, 32),
		done:     make(chan struct{}),
	}
}

// Connect opens the event stream. The stream lives until ctx ends or Close.
func (c *SSEClient) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.ep.base()+"/api/p2p?"+c.ep.query(), nil)
	if err != nil {
		cancel()
		return fmt.Errorf("build subscribe request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return fmt.Errorf("subscribe rejected: %s", statusError(resp))
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(resp.Body)
	return nil
}

func (c *SSEClient) readLoop(body io.ReadCloser) {
	defer close(c.incoming)
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatch(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	err := sc.Err()
	if err == nil {
		err = ErrStreamEnded
	}
	c.setErr(err)
}

func (c *SSEClient) dispatch(frame string) {
	msg, err := Decode([]byte(frame))
	if err != nil {
		c.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	select {
	case c.incoming <- msg:
	case <-c.done:
	}
}

// Send posts msg to the opposite slot of the room.
func (c *SSEClient) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(sendRequest{RoomID: c.ep.RoomID, Type: c.ep.Role, Data: msg})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ep.base()+"/api/p2p", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send %s rejected: %s", msg.Type, statusError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Incoming returns the channel of messages from the other side.
func (c *SSEClient) Incoming() <-chan *Message { return c.incoming }

// Err reports why the stream ended.
func (c *SSEClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.err
}

func (c *SSEClient) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close ends the subscription. The relay sees the request go away and
// detaches the slot.
func (c *SSEClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func statusError(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Sprintf("%d %s", resp.StatusCode, body.Error)
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
