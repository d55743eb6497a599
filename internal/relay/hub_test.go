package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhayk2/localDrop/internal/signaling"
)

// recorder is a Stream that keeps every frame it is given.
type recorder struct {
	mu     sync.Mutex
	frames []string
	limit  int
	closed bool
}

func (r *recorder) Push(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStreamClosed
	}
	if r.limit > 0 && len(r.frames) >= r.limit {
		r.closed = true
		return ErrSlowConsumer
	}
	r.frames = append(r.frames, string(data))
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func (r *recorder) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

const (
	connected    = `{"type":"peer-connected"}`
	disconnected = `{"type":"peer-disconnected"}`
)

func newTestHub(opts Options) *Hub {
	if opts.MaxQueue == 0 {
		opts.MaxQueue = 16
	}
	return NewHub(opts)
}

func TestNormalizeRoomID(t *testing.T) {
	id, err := NormalizeRoomID("  ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", id)

	for _, bad := range []string{"", "   ", "AB-12", "ÄBC", "A B", string(make([]byte, 33))} {
		_, err := NormalizeRoomID(bad)
		assert.ErrorIs(t, err, ErrInvalidRoomID, "%q", bad)
	}

	for i := 0; i < 50; i++ {
		id := NewRoomID()
		assert.Len(t, id, 6)
		norm, err := NormalizeRoomID(id)
		require.NoError(t, err)
		assert.Equal(t, id, norm)
	}
}

func TestAttachValidation(t *testing.T) {
	h := newTestHub(Options{})
	_, err := h.Attach("", signaling.RoleSender, &recorder{})
	assert.ErrorIs(t, err, ErrInvalidRoomID)
	_, err = h.Attach("ROOM", signaling.Role("watcher"), &recorder{})
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = h.Send("ROOM", signaling.RoleSender, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Equal(t, 0, h.Len())
}

func TestSlotOverwrite(t *testing.T) {
	h := newTestHub(Options{})
	first, second := &recorder{}, &recorder{}

	_, err := h.Attach("ROOM", signaling.RoleReceiver, first)
	require.NoError(t, err)
	_, err = h.Attach("ROOM", signaling.RoleReceiver, second)
	require.NoError(t, err)
	assert.True(t, first.IsClosed(), "replaced stream is closed")

	d, err := h.Send("ROOM", signaling.RoleSender, []byte(`{"type":"offer"}`))
	require.NoError(t, err)
	assert.Equal(t, Delivered, d)
	assert.Empty(t, first.Frames())
	assert.Equal(t, []string{`{"type":"offer"}`}, second.Frames())

	// the replaced stream going away must not clear the new one
	assert.False(t, h.Detach("ROOM", signaling.RoleReceiver, first))
	assert.True(t, h.Exists("ROOM"))
	assert.True(t, h.Snapshot()[0].Receiver)
}

func TestQueueFlushFIFOExactlyOnce(t *testing.T) {
	h := newTestHub(Options{})

	var want []string
	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf(`{"type":"ice-candidate","n":%d}`, i)
		want = append(want, msg)
		d, err := h.Send("room", signaling.RoleSender, []byte(msg))
		require.NoError(t, err)
		assert.Equal(t, Queued, d)
	}
	require.True(t, h.Exists("ROOM"), "send creates the room")
	assert.Equal(t, 5, h.Snapshot()[0].QueuedToReceiver)

	rx := &recorder{}
	_, err := h.Attach("Room", signaling.RoleReceiver, rx)
	require.NoError(t, err)
	assert.Equal(t, want, rx.Frames())
	assert.Equal(t, 0, h.Snapshot()[0].QueuedToReceiver)

	// a second attach sees nothing from the old queue
	rx2 := &recorder{}
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx2)
	require.NoError(t, err)
	assert.Empty(t, rx2.Frames())
}

func TestFlushBeforeLiveAndPeerConnected(t *testing.T) {
	h := newTestHub(Options{})
	tx := &recorder{}

	_, err := h.Attach("ROOM", signaling.RoleSender, tx)
	require.NoError(t, err)
	assert.Empty(t, tx.Frames())

	_, err = h.Send("ROOM", signaling.RoleSender, []byte(`{"type":"offer"}`))
	require.NoError(t, err)

	rx := &recorder{}
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx)
	require.NoError(t, err)

	assert.Equal(t, []string{`{"type":"offer"}`, connected}, rx.Frames())
	assert.Equal(t, []string{connected}, tx.Frames())

	_, err = h.Send("ROOM", signaling.RoleReceiver, []byte(`{"type":"answer"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{connected, `{"type":"answer"}`}, tx.Frames())
}

func TestCaseInsensitiveRooms(t *testing.T) {
	h := newTestHub(Options{})
	tx, rx := &recorder{}, &recorder{}

	id, err := h.Attach("abc123", signaling.RoleSender, tx)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", id)
	_, err = h.Attach("ABC123", signaling.RoleReceiver, rx)
	require.NoError(t, err)

	_, err = h.Send("aBc123", signaling.RoleSender, []byte(`{"type":"offer"}`))
	require.NoError(t, err)
	assert.Contains(t, rx.Frames(), `{"type":"offer"}`)
	assert.Equal(t, 1, h.Len())
}

func TestRoomLifecycle(t *testing.T) {
	h := newTestHub(Options{})
	tx, rx := &recorder{}, &recorder{}

	_, err := h.Attach("ROOM", signaling.RoleSender, tx)
	require.NoError(t, err)
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx)
	require.NoError(t, err)

	require.True(t, h.Detach("ROOM", signaling.RoleReceiver, rx))
	assert.Equal(t, []string{connected, disconnected}, tx.Frames())
	assert.True(t, h.Exists("ROOM"), "one slot still live")

	require.True(t, h.Detach("ROOM", signaling.RoleSender, tx))
	assert.False(t, h.Exists("ROOM"))
	assert.False(t, h.Detach("ROOM", signaling.RoleSender, tx))
}

func TestReceiverAbortQueuedSendThenGC(t *testing.T) {
	h := newTestHub(Options{})
	tx, rx := &recorder{}, &recorder{}

	_, err := h.Attach("ROOM", signaling.RoleSender, tx)
	require.NoError(t, err)
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx)
	require.NoError(t, err)
	require.True(t, h.Detach("ROOM", signaling.RoleReceiver, rx))

	d, err := h.Send("ROOM", signaling.RoleSender, []byte(`{"type":"ice-candidate"}`))
	require.NoError(t, err)
	assert.Equal(t, Queued, d)
	assert.Equal(t, 1, h.Snapshot()[0].QueuedToReceiver)

	require.True(t, h.Detach("ROOM", signaling.RoleSender, tx))
	assert.False(t, h.Exists("ROOM"))

	// a fresh receiver starts with an empty queue
	rx2 := &recorder{}
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx2)
	require.NoError(t, err)
	assert.Empty(t, rx2.Frames())
}

func TestQueueOverflow(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		h := newTestHub(Options{MaxQueue: 2})
		_, err := h.Send("ROOM", signaling.RoleSender, []byte("1"))
		require.NoError(t, err)
		_, err = h.Send("ROOM", signaling.RoleSender, []byte("2"))
		require.NoError(t, err)
		_, err = h.Send("ROOM", signaling.RoleSender, []byte("3"))
		assert.ErrorIs(t, err, ErrQueueFull)

		rx := &recorder{}
		_, err = h.Attach("ROOM", signaling.RoleReceiver, rx)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, rx.Frames())
	})

	t.Run("drop-oldest", func(t *testing.T) {
		h := newTestHub(Options{MaxQueue: 2, Overflow: OverflowDropOldest})
		for _, m := range []string{"1", "2", "3"} {
			_, err := h.Send("ROOM", signaling.RoleSender, []byte(m))
			require.NoError(t, err)
		}
		rx := &recorder{}
		_, err := h.Attach("ROOM", signaling.RoleReceiver, rx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, rx.Frames())
		assert.Equal(t, uint64(1), h.Stats().Dropped)
	})
}

func TestStalledStreamIsDropped(t *testing.T) {
	h := newTestHub(Options{})
	tx := &recorder{}
	rx := &recorder{limit: 1}

	_, err := h.Attach("ROOM", signaling.RoleSender, tx)
	require.NoError(t, err)
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx)
	require.NoError(t, err)
	require.Equal(t, []string{connected}, rx.Frames())

	d, err := h.Send("ROOM", signaling.RoleSender, []byte("late"))
	require.NoError(t, err)
	assert.Equal(t, Queued, d, "stalled receiver is detached and the message kept")
	assert.True(t, rx.IsClosed())
	assert.Equal(t, []string{connected, disconnected}, tx.Frames())

	rx2 := &recorder{}
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx2)
	require.NoError(t, err)
	assert.Equal(t, []string{"late", connected}, rx2.Frames())
}

func TestStalledLastStreamDeletesRoom(t *testing.T) {
	h := newTestHub(Options{})
	tx := &recorder{limit: 1}
	rx := &recorder{}

	_, err := h.Attach("ROOM", signaling.RoleSender, tx)
	require.NoError(t, err)
	_, err = h.Attach("ROOM", signaling.RoleReceiver, rx)
	require.NoError(t, err)
	require.Equal(t, []string{connected}, tx.Frames())

	// the sender cannot take peer-disconnected, so both slots end up empty
	assert.True(t, h.Detach("ROOM", signaling.RoleReceiver, rx))
	assert.True(t, tx.IsClosed())
	assert.False(t, h.Exists("ROOM"))
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.Detach("ROOM", signaling.RoleSender, tx))
}

func TestStalledStreamWithQueueWaitsForJanitor(t *testing.T) {
	h := newTestHub(Options{OrphanTTL: time.Minute})
	start := time.Now()
	h.now = func() time.Time { return start }

	rx := &recorder{limit: 1}
	_, err := h.Attach("ROOM", signaling.RoleReceiver, rx)
	require.NoError(t, err)

	d, err := h.Send("ROOM", signaling.RoleSender, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, Delivered, d)
	d, err = h.Send("ROOM", signaling.RoleSender, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, Queued, d)

	assert.False(t, h.Detach("ROOM", signaling.RoleReceiver, rx))
	assert.True(t, h.Exists("ROOM"), "queued message is kept for a reconnect")
	assert.Equal(t, 1, h.Sweep(start.Add(2*time.Minute)))
	assert.False(t, h.Exists("ROOM"))
}

func TestSweepOrphans(t *testing.T) {
	h := newTestHub(Options{OrphanTTL: time.Minute})
	start := time.Now()
	h.now = func() time.Time { return start }

	_, err := h.Send("ORPHAN", signaling.RoleSender, []byte("x"))
	require.NoError(t, err)
	_, err = h.Attach("LIVE", signaling.RoleSender, &recorder{})
	require.NoError(t, err)

	assert.Equal(t, 0, h.Sweep(start.Add(30*time.Second)))
	assert.Equal(t, 1, h.Sweep(start.Add(2*time.Minute)))
	assert.False(t, h.Exists("ORPHAN"))
	assert.True(t, h.Exists("LIVE"))
	assert.Equal(t, uint64(1), h.Stats().Swept)
}

func TestConcurrentRooms(t *testing.T) {
	h := newTestHub(Options{MaxQueue: 1024})
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := fmt.Sprintf("R%d", i)
			tx, rx := &recorder{}, &recorder{}
			_, _ = h.Attach(room, signaling.RoleSender, tx)
			for j := 0; j < 50; j++ {
				_, _ = h.Send(room, signaling.RoleSender, []byte("m"))
			}
			_, _ = h.Attach(room, signaling.RoleReceiver, rx)
			h.Detach(room, signaling.RoleReceiver, rx)
			h.Detach(room, signaling.RoleSender, tx)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, h.Len())
}

func TestClientOutbox(t *testing.T) {
	c := NewClient("ROOM", signaling.RoleSender, 2)
	require.NoError(t, c.Push([]byte("a")))
	require.NoError(t, c.Push([]byte("b")))
	assert.ErrorIs(t, c.Push([]byte("c")), ErrSlowConsumer)

	select {
	case <-c.Done():
	default:
		t.Fatal("full outbox should close the client")
	}
	assert.ErrorIs(t, c.Push([]byte("d")), ErrStreamClosed)
	assert.Equal(t, "a", string(<-c.Outbox()))
}
