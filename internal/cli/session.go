package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/dns"
	"github.com/abhayk2/localDrop/internal/session"
	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
	"github.com/abhayk2/localDrop/internal/ui"
	"github.com/abhayk2/localDrop/internal/utils"
)

// newTransport dials the relay through the fallback resolver.
func newTransport(cfg *config.Config, roomID string, role signaling.Role, logger *zap.Logger) (signaling.Transport, error) {
	t, err := signaling.New(cfg.SignalTransport, signaling.Endpoint{
		BaseURL: cfg.RelayURL,
		RoomID:  roomID,
		Role:    role,
	}, dns.NewResolver().HTTPClient(), logger)
	if err != nil {
		return nil, transfer.NewError("create transport", err)
	}
	return t, nil
}

// withTimeout applies the optional session timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// explain turns a cancellation caused by --timeout into a timeout error.
func explain(ctx context.Context, d time.Duration, err error) error {
	if errors.Is(err, transfer.ErrCancelled) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("gave up after %s: %w", d, err)
	}
	return err
}

// progressBridge feeds session snapshots to the live view and remembers
// when bytes started moving so the summary speed ignores the wait for the
// peer.
type progressBridge struct {
	view *ui.TransferUI
	role signaling.Role

	mu        sync.Mutex
	firstByte time.Time
	lastByte  time.Time
}

func newProgressBridge(view *ui.TransferUI, role signaling.Role) *progressBridge {
	return &progressBridge{view: view, role: role}
}

func (b *progressBridge) observe(snap session.Snapshot) {
	b.mu.Lock()
	if snap.State == session.StateTransferring && b.firstByte.IsZero() {
		b.firstByte = time.Now()
	}
	if snap.State == session.StateDone {
		b.lastByte = time.Now()
	}
	b.mu.Unlock()

	b.view.Update(statusFor(b.role, snap))
}

// finish hands the view its final line and waits for it to draw.
func (b *progressBridge) finish(snap session.Snapshot, done string, err error) {
	st := statusFor(b.role, snap)
	if err != nil {
		st.Failed = true
		st.ErrMsg = err.Error()
	} else {
		st.Done = true
		st.Phase = done
	}
	b.view.Finish(st)
}

// duration is the time spent moving bytes, falling back to the whole
// session when the transfer never entered the transferring state (an
// empty file).
func (b *progressBridge) duration(snap session.Snapshot) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.firstByte.IsZero() || b.lastByte.IsZero() {
		return snap.Elapsed()
	}
	return b.lastByte.Sub(b.firstByte)
}

func statusFor(role signaling.Role, snap session.Snapshot) ui.Status {
	st := ui.Status{Total: -1, Transferred: snap.Transferred}
	if snap.File != nil {
		st.Name = snap.File.Name
		st.Total = snap.File.Size
	}

	other := "receiver"
	if role == signaling.RoleReceiver {
		other = "sender"
	}
	switch snap.State {
	case session.StateIdle:
		st.Phase = "Starting..."
	case session.StateConnecting:
		if snap.PeerAttached {
			st.Phase = "Connecting to " + other + "..."
		} else {
			st.Phase = "Waiting for " + other + " to join..."
		}
	case session.StateConnected:
		st.Phase = "Connected to " + other
	case session.StateTransferring:
		st.Phase = "Transferring..."
	case session.StateDone:
		st.Phase = "Finishing..."
	case session.StateError:
		st.Phase = "Failed"
	}
	return st
}

func summaryFor(snap session.Snapshot, d time.Duration, savedTo string) ui.TransferSummary {
	s := ui.TransferSummary{
		Status:   ui.IconSuccess + " Complete",
		Duration: utils.FormatTimeDuration(d),
		SavedTo:  savedTo,
	}
	if snap.File != nil {
		s.File = snap.File.Name
		s.Size = snap.File.Size
	}
	if secs := d.Seconds(); secs > 0 {
		s.Speed = utils.FormatSpeed(float64(s.Size) / secs)
	} else {
		s.Speed = "-"
	}
	return s
}
