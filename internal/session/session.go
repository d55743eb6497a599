// Package session tracks the lifecycle of one transfer from either side of
// a room.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
	"github.com/abhayk2/localDrop/internal/utils"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateTransferring
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTransferring:
		return "transferring"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotReady          = errors.New("session not ready to send")
)

// Snapshot is a consistent copy of a session for display.
type Snapshot struct {
	ID           string
	Role         signaling.Role
	State        State
	File         *transfer.Metadata
	Transferred  int64
	Progress     float64
	PeerAttached bool
	ChannelOpen  bool
	Err          error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Elapsed is the time between Start and the terminal state, or now.
func (s Snapshot) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Session is an explicit state machine: one method per event, invalid
// transitions return ErrInvalidTransition and leave the state unchanged.
// Once done or error nothing moves it again.
type Session struct {
	mu          sync.Mutex
	id          string
	role        signaling.Role
	state       State
	meta        *transfer.Metadata
	transferred int64
	progress    float64
	peer        bool
	channelOpen bool
	err         error
	started     time.Time
	finished    time.Time

	terminal chan struct{}
	onChange func(Snapshot)
	logger   *zap.Logger
	now      func() time.Time
}

func New(role signaling.Role, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		role:     role,
		terminal: make(chan struct{}),
		logger:   logger.With(zap.String("session", id), zap.Stringer("role", role)),
		now:      time.Now,
	}
}

// OnChange registers f to be called after every transition. f runs outside
// the session lock.
func (s *Session) OnChange(f func(Snapshot)) {
	s.mu.Lock()
	s.onChange = f
	s.mu.Unlock()
}

func (s *Session) ID() string { return s.id }

// Terminal returns a channel closed when the session reaches done or error.
func (s *Session) Terminal() <-chan struct{} { return s.terminal }

// Err is the failure that moved the session to error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		Role:         s.role,
		State:        s.state,
		Transferred:  s.transferred,
		Progress:     s.progress,
		PeerAttached: s.peer,
		ChannelOpen:  s.channelOpen,
		Err:          s.err,
		StartedAt:    s.started,
		FinishedAt:   s.finished,
	}
	if s.meta != nil {
		m := *s.meta
		snap.File = &m
	}
	return snap
}

// Start begins connecting: idle → connecting.
func (s *Session) Start() error {
	return s.transition("start", func() error {
		if s.state != StateIdle {
			return s.invalid("start")
		}
		s.started = s.now()
		s.state = StateConnecting
		return nil
	})
}

// ChannelOpen records the data channel opening: connecting → connected.
func (s *Session) ChannelOpen() error {
	return s.transition("channel open", func() error {
		switch s.state {
		case StateConnected:
			return nil
		case StateConnecting:
			s.channelOpen = true
			s.state = StateConnected
			return nil
		default:
			return s.invalid("channel open")
		}
	})
}

// BeginSend starts an outgoing transfer of meta: connected → transferring.
// The peer must be attached and the channel open.
func (s *Session) BeginSend(meta transfer.Metadata) error {
	return s.transition("begin send", func() error {
		if s.state != StateConnected {
			return s.invalid("begin send")
		}
		if err := meta.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		if !s.peer {
			return fmt.Errorf("%w: no peer attached", ErrNotReady)
		}
		if !s.channelOpen {
			return fmt.Errorf("%w: channel not open", ErrNotReady)
		}
		s.meta = &meta
		s.state = StateTransferring
		return nil
	})
}

// MetadataReceived starts an incoming transfer: connected → transferring,
// or straight to done for an empty file.
func (s *Session) MetadataReceived(meta transfer.Metadata) error {
	return s.transition("metadata", func() error {
		if s.state != StateConnected {
			return s.invalid("metadata")
		}
		s.meta = &meta
		s.transferred = 0
		s.progress = 0
		if meta.Size == 0 {
			s.finishLocked(StateDone, nil)
			return nil
		}
		s.state = StateTransferring
		return nil
	})
}

// Progress records the running byte total. Progress never goes backwards.
func (s *Session) Progress(done int64) error {
	return s.transition("progress", func() error {
		if s.state != StateTransferring {
			return s.invalid("progress")
		}
		if done <= s.transferred {
			return nil
		}
		s.transferred = done
		var total int64
		if s.meta != nil {
			total = s.meta.Size
		}
		if p := utils.Percent(done, total); p > s.progress {
			s.progress = p
		}
		return nil
	})
}

// Complete finishes the transfer: transferring → done.
func (s *Session) Complete() error {
	return s.transition("complete", func() error {
		if s.state != StateTransferring {
			return s.invalid("complete")
		}
		if s.meta != nil {
			s.transferred = s.meta.Size
		}
		s.finishLocked(StateDone, nil)
		return nil
	})
}

func (s *Session) PeerAttached() error {
	return s.transition("peer attached", func() error {
		if s.state.Terminal() {
			return s.invalid("peer attached")
		}
		s.peer = true
		return nil
	})
}

// PeerDetached clears the peer flag. Losing the peer before done fails the
// session.
func (s *Session) PeerDetached() error {
	return s.transition("peer detached", func() error {
		if s.state.Terminal() {
			return s.invalid("peer detached")
		}
		s.peer = false
		s.finishLocked(StateError, transfer.ErrPeerDisconnected)
		return nil
	})
}

// Fail moves any live session to error.
func (s *Session) Fail(err error) error {
	return s.transition("fail", func() error {
		if s.state.Terminal() {
			return s.invalid("fail")
		}
		if err == nil {
			err = errors.New("unknown failure")
		}
		s.finishLocked(StateError, err)
		return nil
	})
}

func (s *Session) invalid(event string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, s.state)
}

func (s *Session) finishLocked(state State, err error) {
	s.state = state
	s.err = err
	s.finished = s.now()
	if state == StateDone {
		s.progress = 100
	}
	close(s.terminal)
}

// transition runs apply under the lock and notifies the change hook when
// the state or progress moved.
func (s *Session) transition(event string, apply func() error) error {
	s.mu.Lock()
	before := s.state
	beforeProgress := s.progress
	err := apply()
	snap := s.snapshotLocked()
	hook := s.onChange
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("transition rejected", zap.String("event", event), zap.Error(err))
		return err
	}
	if snap.State != before {
		s.logger.Debug("session state", zap.Stringer("from", before), zap.Stringer("to", snap.State))
	}
	if hook != nil && (snap.State != before || snap.Progress != beforeProgress || event == "peer attached") {
		hook(snap)
	}
	return nil
}
