package relay

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/signaling"
)

// Overflow decides what happens when a slot's pending queue is full.
type Overflow int

const (
	// OverflowReject refuses the new message with ErrQueueFull.
	OverflowReject Overflow = iota
	// OverflowDropOldest discards the oldest queued message.
	OverflowDropOldest
)

// ParseOverflow maps "reject" and "drop-oldest" onto an Overflow.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return OverflowReject, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Delivery reports what Send did with a message.
type Delivery int

const (
	Delivered Delivery = iota
	Queued
)

// Options tune a Hub.
type Options struct {
	// MaxQueue bounds each slot's pending queue.
	MaxQueue int
	Overflow Overflow
	// OrphanTTL is how long a room may sit with both slots empty before
	// the janitor removes it. Zero disables sweeping.
	OrphanTTL time.Duration
	Logger    *zap.Logger
}

// Stats are cumulative counters since the hub started.
type Stats struct {
	Rooms     int    `json:"rooms" msgpack:"rooms"`
	Delivered uint64 `json:"delivered" msgpack:"delivered"`
	Queued    uint64 `json:"queued" msgpack:"queued"`
	Dropped   uint64 `json:"dropped" msgpack:"dropped"`
	Swept     uint64 `json:"swept" msgpack:"swept"`
}

var (
	peerConnectedFrame    = []byte(`{"type":"` + signaling.TypePeerConnected + `"}`)
	peerDisconnectedFrame = []byte(`{"type":"` + signaling.TypePeerDisconnected + `"}`)
)

// Hub is the room registry. It pairs streams by room and slot and forwards
// opaque signaling payloads between them.
//
// Each room has its own mutex covering attach, flush, send and detach. The
// hub mutex only guards the map. A room is locked after the map lookup, and
// deletion takes the map lock while holding the room lock; rooms marked
// deleted are skipped and looked up again.
type Hub struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	rooms map[string]*Room

	delivered atomic.Uint64
	queued    atomic.Uint64
	dropped   atomic.Uint64
	swept     atomic.Uint64
}

// NewHub creates a new Hub instance.
func NewHub(opts Options) *Hub {
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		rooms:  make(map[string]*Room),
	}
}

func validate(roomID string, role signaling.Role) (string, error) {
	id, err := NormalizeRoomID(roomID)
	if err != nil {
		return "", err
	}
	if role != signaling.RoleSender && role != signaling.RoleReceiver {
		return "", ErrInvalidRole
	}
	return id, nil
}

// lockRoom returns the room locked, creating it when create is set.
// It returns nil when the room does not exist and create is false.
func (h *Hub) lockRoom(id string, create bool) *Room {
	for {
		h.mu.Lock()
		r, ok := h.rooms[id]
		if !ok {
			if !create {
				h.mu.Unlock()
				return nil
			}
			r = newRoom(id, h.now())
			h.rooms[id] = r
			h.logger.Debug("room created", zap.String("room", id))
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.deleted {
			return r
		}
		r.mu.Unlock()
	}
}

// deleteLocked removes r from the map. r.mu must be held.
func (h *Hub) deleteLocked(r *Room) {
	r.deleted = true
	h.mu.Lock()
	if h.rooms[r.ID] == r {
		delete(h.rooms, r.ID)
	}
	h.mu.Unlock()
}

// Attach places s in the room's role slot, replacing (and closing) any
// stream already there. Queued messages for the slot are flushed into s in
// order before anything else reaches it. Both sides are told about the
// pairing when the opposite slot is live. It returns the normalized room id.
func (h *Hub) Attach(roomID string, role signaling.Role, s Stream) (string, error) {
	id, err := validate(roomID, role)
	if err != nil {
		return "", err
	}
	log := h.logger.With(zap.String("room", id), zap.Stringer("role", role))

	r := h.lockRoom(id, true)
	defer r.mu.Unlock()

	sl := r.slot(role)
	if old := sl.stream; old != nil && old != s {
		old.Close()
		log.Info("stream replaced")
	}
	sl.stream = s
	r.emptySince = time.Time{}

	flushed := 0
	for len(sl.queue) > 0 {
		if err := s.Push(sl.queue[0]); err != nil {
			log.Warn("flush failed, dropping stream", zap.Error(err))
			h.dropStalledLocked(r, role)
			h.settleLocked(r)
			return id, err
		}
		sl.queue[0] = nil
		sl.queue = sl.queue[1:]
		flushed++
	}
	sl.queue = nil
	log.Info("stream attached", zap.Int("flushed", flushed))

	opposite := role.Opposite()
	if r.slot(opposite).stream != nil {
		h.pushLocked(r, opposite, peerConnectedFrame)
		if r.slot(opposite).stream != nil {
			h.pushLocked(r, role, peerConnectedFrame)
		}
	}
	return id, nil
}

// Detach clears the role slot if it still holds s. The opposite slot, if
// live, is told the peer went away. A room with both slots empty is
// deleted along with its queues. It reports whether s was detached.
func (h *Hub) Detach(roomID string, role signaling.Role, s Stream) bool {
	id, err := validate(roomID, role)
	if err != nil {
		return false
	}

	r := h.lockRoom(id, false)
	if r == nil {
		return false
	}
	defer r.mu.Unlock()

	sl := r.slot(role)
	if sl.stream == nil || sl.stream != s {
		return false
	}
	sl.stream = nil

	log := h.logger.With(zap.String("room", id), zap.Stringer("role", role))
	log.Info("stream detached")

	if r.slot(role.Opposite()).stream != nil {
		h.pushLocked(r, role.Opposite(), peerDisconnectedFrame)
	}
	if r.empty() {
		h.deleteLocked(r)
		log.Info("room deleted")
	}
	return true
}

// Send forwards payload to the slot opposite from, or queues it there when
// no stream is attached. The room is created when it does not exist.
func (h *Hub) Send(roomID string, from signaling.Role, payload []byte) (Delivery, error) {
	id, err := validate(roomID, from)
	if err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, ErrEmptyPayload
	}

	r := h.lockRoom(id, true)
	defer r.mu.Unlock()

	target := from.Opposite()
	sl := r.slot(target)
	if sl.stream != nil {
		if err := sl.stream.Push(payload); err == nil {
			h.delivered.Add(1)
			return Delivered, nil
		}
		h.logger.Warn("stalled stream dropped on send",
			zap.String("room", id), zap.Stringer("role", target))
		h.dropStalledLocked(r, target)
	}
	defer h.settleLocked(r)

	if len(sl.queue) >= h.opts.MaxQueue {
		if h.opts.Overflow == OverflowReject {
			return Queued, ErrQueueFull
		}
		sl.queue[0] = nil
		sl.queue = sl.queue[1:]
		h.dropped.Add(1)
	}
	sl.queue = append(sl.queue, payload)
	h.queued.Add(1)
	h.logger.Debug("message queued",
		zap.String("room", id), zap.Stringer("for", target), zap.Int("depth", len(sl.queue)))
	return Queued, nil
}

// pushLocked pushes a frame to role's stream, dropping the stream if it
// has stalled. r.mu must be held.
func (h *Hub) pushLocked(r *Room, role signaling.Role, frame []byte) {
	s := r.slot(role).stream
	if s == nil {
		return
	}
	if err := s.Push(frame); err != nil {
		h.dropStalledLocked(r, role)
		h.settleLocked(r)
	}
}

// dropStalledLocked closes and clears role's stream and tells the other
// side. r.mu must be held.
func (h *Hub) dropStalledLocked(r *Room, role signaling.Role) {
	sl := r.slot(role)
	if sl.stream == nil {
		return
	}
	sl.stream.Close()
	sl.stream = nil
	h.pushLocked(r, role.Opposite(), peerDisconnectedFrame)
}

// settleLocked deletes a room left with no streams and nothing queued.
// A room that still holds queued messages is kept for a reconnecting
// participant and left to the janitor. r.mu must be held.
func (h *Hub) settleLocked(r *Room) {
	if r.deleted || !r.empty() {
		return
	}
	if len(r.sender.queue)+len(r.receiver.queue) == 0 {
		h.deleteLocked(r)
		h.logger.Info("room deleted", zap.String("room", r.ID))
		return
	}
	if r.emptySince.IsZero() {
		r.emptySince = h.now()
	}
}

// Exists reports whether the room is present in the registry.
func (h *Hub) Exists(roomID string) bool {
	id, err := NormalizeRoomID(roomID)
	if err != nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[id]
	return ok
}

// Len returns the number of rooms.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) roomList() []*Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Snapshot returns every room, ordered by id.
func (h *Hub) Snapshot() []RoomInfo {
	rooms := h.roomList()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.deleted {
			infos = append(infos, r.info())
		}
		r.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stats returns the hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Rooms:     h.Len(),
		Delivered: h.delivered.Load(),
		Queued:    h.queued.Load(),
		Dropped:   h.dropped.Load(),
		Swept:     h.swept.Load(),
	}
}

// Sweep deletes rooms whose slots have been empty for at least the orphan
// TTL as of now. It returns the number of rooms removed.
func (h *Hub) Sweep(now time.Time) int {
	ttl := h.opts.OrphanTTL
	if ttl <= 0 {
		return 0
	}

	removed := 0
	for _, r := range h.roomList() {
		r.mu.Lock()
		if !r.deleted && r.empty() && !r.emptySince.IsZero() && now.Sub(r.emptySince) >= ttl {
			h.deleteLocked(r)
			removed++
			h.logger.Info("orphan room swept", zap.String("room", r.ID),
				zap.Int("queued", len(r.sender.queue)+len(r.receiver.queue)))
		}
		r.mu.Unlock()
	}
	h.swept.Add(uint64(removed))
	return removed
}

// Run sweeps orphan rooms until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.OrphanTTL <= 0 {
		<-ctx.Done()
		return
	}

	interval := h.opts.OrphanTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Sweep(now)
		}
	}
}
