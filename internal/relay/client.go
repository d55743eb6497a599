package relay

import (
	"sync"

	"github.com/google/uuid"

	"github.com/abhayk2/localDrop/internal/signaling"
)

// Stream is an outbound connection to one participant.
//
// Push must not block: implementations buffer and return an error when the
// consumer has stalled or gone away.
type Stream interface {
	Push(data []byte) error
	Close()
}

// Client is a Stream backed by a bounded outbox. A transport-specific
// writer goroutine drains Outbox and exits when Done closes.
type Client struct {
	ID     string
	RoomID string
	Role   signaling.Role

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient creates a client whose outbox holds up to size frames.
func NewClient(roomID string, role signaling.Role, size int) *Client {
	if size <= 0 {
		size = 1
	}
	return &Client{
		ID:     uuid.NewString(),
		RoomID: roomID,
		Role:   role,
		send:   make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

// Push queues data for the writer. A full outbox closes the client.
func (c *Client) Push(data []byte) error {
	select {
	case <-c.done:
		return ErrStreamClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.Close()
		return ErrSlowConsumer
	}
}

// Close stops the client. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Outbox is the stream of frames to write.
func (c *Client) Outbox() <-chan []byte { return c.send }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }
