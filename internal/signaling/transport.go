package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ErrClosed is reported once a transport has been closed locally.
var ErrClosed = errors.New("signaling transport closed")

// Transport is one participant's connection to the relay.
//
// Incoming is closed when the subscription ends; Err then tells why
// (nil after a local Close).
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *Message) error
	Incoming() <-chan *Message
	Err() error
	Close() error
}

// Endpoint identifies the relay and the slot a client subscribes to.
type Endpoint struct {
	BaseURL string
	RoomID  string
	Role    Role
}

func (e Endpoint) query() string {
	q := url.Values{}
	q.Set("roomId", e.RoomID)
	q.Set("type", string(e.Role))
	return q.Encode()
}

func (e Endpoint) base() string {
	return strings.TrimRight(e.BaseURL, "/")
}

// New builds the transport named by kind ("sse" or "ws").
func New(kind string, ep Endpoint, httpClient *http.Client, logger *zap.Logger) (Transport, error) {
	switch strings.ToLower(kind) {
	case "", "sse":
		return NewSSEClient(ep, httpClient, logger), nil
	case "ws":
		return NewWSClient(ep, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("unknown signaling transport %q", kind)
	}
}
