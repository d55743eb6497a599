package relay

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/abhayk2/localDrop/internal/signaling"
)

const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDLength   = 6
	maxRoomIDLen   = 32
)

// NewRoomID returns a random six character room code.
func NewRoomID() string {
	max := big.NewInt(int64(len(roomIDAlphabet)))
	var b strings.Builder
	for i := 0; i < roomIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("relay: crypto/rand failed: " + err.Error())
		}
		b.WriteByte(roomIDAlphabet[n.Int64()])
	}
	return b.String()
}

// NormalizeRoomID trims and upper-cases id so that codes match regardless
// of how they were typed.
func NormalizeRoomID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" || len(id) > maxRoomIDLen {
		return "", ErrInvalidRoomID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", ErrInvalidRoomID
		}
	}
	return id, nil
}

// slot is one side of a room: the live stream, if any, and the messages
// waiting for a stream to attach.
type slot struct {
	stream Stream
	queue  [][]byte
}

// Room pairs a sender slot with a receiver slot.
type Room struct {
	ID string

	mu         sync.Mutex
	sender     slot
	receiver   slot
	createdAt  time.Time
	emptySince time.Time
	deleted    bool
}

func newRoom(id string, now time.Time) *Room {
	return &Room{ID: id, createdAt: now, emptySince: now}
}

func (r *Room) slot(role signaling.Role) *slot {
	if role == signaling.RoleSender {
		return &r.sender
	}
	return &r.receiver
}

func (r *Room) empty() bool {
	return r.sender.stream == nil && r.receiver.stream == nil
}

// RoomInfo is a point-in-time view of a room.
type RoomInfo struct {
	ID               string    `json:"id" msgpack:"id"`
	Sender           bool      `json:"sender" msgpack:"sender"`
	Receiver         bool      `json:"receiver" msgpack:"receiver"`
	QueuedToSender   int       `json:"queuedToSender" msgpack:"queued_to_sender"`
	QueuedToReceiver int       `json:"queuedToReceiver" msgpack:"queued_to_receiver"`
	CreatedAt        time.Time `json:"createdAt" msgpack:"created_at"`
}

func (r *Room) info() RoomInfo {
	return RoomInfo{
		ID:               r.ID,
		Sender:           r.sender.stream != nil,
		Receiver:         r.receiver.stream != nil,
		QueuedToSender:   len(r.sender.queue),
		QueuedToReceiver: len(r.receiver.queue),
		CreatedAt:        r.createdAt,
	}
}
