package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
)

var testFile = transfer.Metadata{Name: "a.bin", Size: 100, Type: "application/octet-stream"}

func connected(t *testing.T, role signaling.Role) *Session {
	t.Helper()
	s := New(role, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.PeerAttached())
	require.NoError(t, s.ChannelOpen())
	require.Equal(t, StateConnected, s.Snapshot().State)
	return s
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) *Session
		event   func(s *Session) error
		want    State
		wantErr error
	}{
		{
			name:  "start from idle",
			setup: func(t *testing.T) *Session { return New(signaling.RoleSender, nil) },
			event: (*Session).Start,
			want:  StateConnecting,
		},
		{
			name: "start twice",
			setup: func(t *testing.T) *Session {
				s := New(signaling.RoleSender, nil)
				require.NoError(t, s.Start())
				return s
			},
			event:   (*Session).Start,
			want:    StateConnecting,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "channel open before start",
			setup:   func(t *testing.T) *Session { return New(signaling.RoleReceiver, nil) },
			event:   (*Session).ChannelOpen,
			want:    StateIdle,
			wantErr: ErrInvalidTransition,
		},
		{
			name:  "channel open is idempotent when connected",
			setup: func(t *testing.T) *Session { return connected(t, signaling.RoleReceiver) },
			event: (*Session).ChannelOpen,
			want:  StateConnected,
		},
		{
			name:  "begin send",
			setup: func(t *testing.T) *Session { return connected(t, signaling.RoleSender) },
			event: func(s *Session) error { return s.BeginSend(testFile) },
			want:  StateTransferring,
		},
		{
			name: "begin send without peer",
			setup: func(t *testing.T) *Session {
				s := New(signaling.RoleSender, nil)
				require.NoError(t, s.Start())
				require.NoError(t, s.ChannelOpen())
				return s
			},
			event:   func(s *Session) error { return s.BeginSend(testFile) },
			want:    StateConnected,
			wantErr: ErrNotReady,
		},
		{
			name:    "begin send without file",
			setup:   func(t *testing.T) *Session { return connected(t, signaling.RoleSender) },
			event:   func(s *Session) error { return s.BeginSend(transfer.Metadata{}) },
			want:    StateConnected,
			wantErr: ErrNotReady,
		},
		{
			name: "begin send while connecting",
			setup: func(t *testing.T) *Session {
				s := New(signaling.RoleSender, nil)
				require.NoError(t, s.Start())
				require.NoError(t, s.PeerAttached())
				return s
			},
			event:   func(s *Session) error { return s.BeginSend(testFile) },
			want:    StateConnecting,
			wantErr: ErrInvalidTransition,
		},
		{
			name:  "metadata received",
			setup: func(t *testing.T) *Session { return connected(t, signaling.RoleReceiver) },
			event: func(s *Session) error { return s.MetadataReceived(testFile) },
			want:  StateTransferring,
		},
		{
			name:  "empty file completes on metadata",
			setup: func(t *testing.T) *Session { return connected(t, signaling.RoleReceiver) },
			event: func(s *Session) error { return s.MetadataReceived(transfer.Metadata{Name: "e", Size: 0}) },
			want:  StateDone,
		},
		{
			name:    "complete while connected",
			setup:   func(t *testing.T) *Session { return connected(t, signaling.RoleReceiver) },
			event:   (*Session).Complete,
			want:    StateConnected,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "complete",
			setup: func(t *testing.T) *Session {
				s := connected(t, signaling.RoleReceiver)
				require.NoError(t, s.MetadataReceived(testFile))
				return s
			},
			event: (*Session).Complete,
			want:  StateDone,
		},
		{
			name:  "peer detached before done",
			setup: func(t *testing.T) *Session { return connected(t, signaling.RoleSender) },
			event: (*Session).PeerDetached,
			want:  StateError,
		},
		{
			name: "fail from connecting",
			setup: func(t *testing.T) *Session {
				s := New(signaling.RoleSender, nil)
				require.NoError(t, s.Start())
				return s
			},
			event: func(s *Session) error { return s.Fail(errors.New("ice failed")) },
			want:  StateError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setup(t)
			err := tt.event(s)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, s.Snapshot().State)
			assert.Equal(t, tt.want.Terminal(), isClosed(s.Terminal()))
		})
	}
}

func TestNothingLeavesTerminalStates(t *testing.T) {
	done := connected(t, signaling.RoleReceiver)
	require.NoError(t, done.MetadataReceived(testFile))
	require.NoError(t, done.Complete())

	failed := connected(t, signaling.RoleReceiver)
	require.NoError(t, failed.Fail(transfer.ErrCancelled))

	events := map[string]func(s *Session) error{
		"start":         (*Session).Start,
		"channel open":  (*Session).ChannelOpen,
		"begin send":    func(s *Session) error { return s.BeginSend(testFile) },
		"metadata":      func(s *Session) error { return s.MetadataReceived(testFile) },
		"progress":      func(s *Session) error { return s.Progress(10) },
		"complete":      (*Session).Complete,
		"peer attached": (*Session).PeerAttached,
		"peer detached": (*Session).PeerDetached,
		"fail":          func(s *Session) error { return s.Fail(errors.New("late")) },
	}

	for _, s := range []*Session{done, failed} {
		before := s.Snapshot()
		for name, ev := range events {
			assert.ErrorIs(t, ev(s), ErrInvalidTransition, "%s from %s", name, before.State)
		}
		after := s.Snapshot()
		assert.Equal(t, before.State, after.State)
		assert.Equal(t, before.Err, after.Err)
	}
	assert.ErrorIs(t, failed.Err(), transfer.ErrCancelled)
	assert.NoError(t, done.Err())
}

func TestPeerDetachedFailsWithPeerDisconnected(t *testing.T) {
	s := connected(t, signaling.RoleReceiver)
	require.NoError(t, s.MetadataReceived(testFile))
	require.NoError(t, s.Progress(40))
	require.NoError(t, s.PeerDetached())

	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.False(t, snap.PeerAttached)
	assert.ErrorIs(t, snap.Err, transfer.ErrPeerDisconnected)
}

func TestProgressNeverDecreases(t *testing.T) {
	s := connected(t, signaling.RoleReceiver)
	require.NoError(t, s.MetadataReceived(testFile))

	var seen []float64
	s.OnChange(func(snap Snapshot) { seen = append(seen, snap.Progress) })

	for _, n := range []int64{10, 50, 30, 50, 80, 200} {
		require.NoError(t, s.Progress(n))
	}
	assert.Equal(t, 100.0, s.Snapshot().Progress)
	assert.EqualValues(t, 200, s.Snapshot().Transferred)

	require.NoError(t, s.Complete())
	assert.Equal(t, []float64{10, 50, 80, 100, 100}, seen)
	assert.EqualValues(t, testFile.Size, s.Snapshot().Transferred)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := connected(t, signaling.RoleSender)
	require.NoError(t, s.BeginSend(testFile))

	snap := s.Snapshot()
	snap.File.Name = "changed"
	assert.Equal(t, "a.bin", s.Snapshot().File.Name)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, signaling.RoleSender, snap.Role)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestConcurrentEvents(t *testing.T) {
	s := connected(t, signaling.RoleReceiver)
	require.NoError(t, s.MetadataReceived(transfer.Metadata{Name: "f", Size: 1000}))

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_ = s.Progress(n * 100)
		}(int64(i))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Fail(errors.New("boom"))
	}()
	wg.Wait()

	<-s.Terminal()
	assert.Equal(t, StateError, s.Snapshot().State)
}
