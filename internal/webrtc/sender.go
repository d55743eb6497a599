package webrtc

import (
	"context"
	"errors"
	"os"
	"time"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/files"
	"github.com/abhayk2/localDrop/internal/peer"
	"github.com/abhayk2/localDrop/internal/session"
	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
)

// hangupGrace bounds how long the sender stays up after flushing, waiting
// for the receiver to leave first.
const hangupGrace = 5 * time.Second

// SenderSession offers one file to whoever joins the receiver slot.
type SenderSession struct {
	cfg       *config.Config
	transport signaling.Transport
	file      files.FileInfo
	session   *session.Session
	logger    *zap.Logger
}

func NewSenderSession(cfg *config.Config, t signaling.Transport, file files.FileInfo, logger *zap.Logger) *SenderSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SenderSession{
		cfg:       cfg,
		transport: t,
		file:      file,
		session:   session.New(signaling.RoleSender, logger),
		logger:    logger.With(zap.String("file", file.Name)),
	}
}

// Session exposes the state machine for progress display.
func (s *SenderSession) Session() *session.Session { return s.session }

// Run connects to the relay, waits for the receiver, transfers the file and
// returns once it has been flushed. Cancelling ctx aborts the transfer and
// tells the receiver.
func (s *SenderSession) Run(ctx context.Context) error {
	if err := s.session.Start(); err != nil {
		return err
	}
	err := s.run(ctx)
	if err != nil {
		_ = s.session.Fail(err)
	}
	return err
}

func (s *SenderSession) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f, err := os.Open(s.file.Path)
	if err != nil {
		return transfer.NewFileError("open", s.file.Name, err)
	}
	defer f.Close()

	if err := s.transport.Connect(ctx); err != nil {
		return transfer.WrapError("connect", transfer.ErrSignalingError, err.Error())
	}
	handler := signaling.NewHandler(s.transport, s.logger)
	go handler.Start()

	ctrl, err := peer.New(ctx, s.cfg, signaling.RoleSender, s.transport, s.logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	dc, err := ctrl.CreateChannel()
	if err != nil {
		return err
	}

	failures := newFirstError()
	ctrl.OnFailure(failures.report)

	remoteCancel := make(chan struct{}, 1)
	ev := watchChannel(dc, func(msg pion.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		ctl, _, err := transfer.ParseControl(msg.Data)
		if err != nil {
			s.logger.Warn("ignoring malformed control message", zap.Error(err))
			return
		}
		if ctl.Type == transfer.TypeCancelTransfer {
			select {
			case remoteCancel <- struct{}{}:
			default:
			}
		}
	})

	engine := transfer.NewSender(dc, transfer.OptionsFrom(s.cfg, s.logger))
	sendCtx, stopSend := context.WithCancel(ctx)
	defer stopSend()
	sendDone := make(chan error, 1)
	sending := false

	// abort stops an in-flight send and waits for it so the cancel frame
	// goes out before the connection is closed.
	abort := func(err error) error {
		stopSend()
		if sending {
			<-sendDone
		}
		return err
	}

	opened := ev.opened
	for {
		select {
		case <-ctx.Done():
			return abort(transfer.NewFileError("send", s.file.Name, transfer.ErrCancelled))

		case err := <-handler.Lost:
			if ctx.Err() != nil {
				return abort(transfer.NewFileError("send", s.file.Name, transfer.ErrCancelled))
			}
			return abort(transfer.WrapError("signaling", transfer.ErrSignalingError, err.Error()))

		case <-handler.PeerConnected:
			_ = s.session.PeerAttached()
			if ctrl.NegotiationState() != peer.NegotiationNew {
				s.logger.Debug("peer reconnected after negotiation")
				continue
			}
			if err := ctrl.Offer(ctx); err != nil {
				return err
			}

		case <-handler.PeerDisconnected:
			_ = s.session.PeerDetached()
			return abort(transfer.NewFileError("send", s.file.Name, transfer.ErrPeerDisconnected))

		case msg := <-handler.Signal:
			if err := ctrl.HandleSignal(ctx, msg); err != nil {
				if errors.Is(err, peer.ErrInvalidNegotiation) {
					s.logger.Warn("ignoring signal", zap.Error(err))
					continue
				}
				return abort(err)
			}

		case <-opened:
			opened = nil
			if err := s.session.ChannelOpen(); err != nil {
				return err
			}
			if err := s.session.BeginSend(s.file.Metadata()); err != nil {
				return err
			}
			sending = true
			go func() {
				sendDone <- engine.Send(sendCtx, s.file.Metadata(), f, func(done, _ int64) {
					_ = s.session.Progress(done)
				})
			}()

		case err := <-sendDone:
			sending = false
			if err != nil {
				return err
			}
			// transfer-complete is queued; from here a hang-up is success.
			if err := s.session.Complete(); err != nil {
				return err
			}
			s.waitForHangup(ctx, engine, handler, ev, failures)
			return nil

		case err := <-failures.ch:
			return abort(err)

		case <-remoteCancel:
			return abort(&transfer.TransferError{Op: "send", File: s.file.Name, Err: transfer.ErrCancelled, Details: "receiver cancelled"})

		case <-ev.closed:
			return abort(transfer.NewFileError("send", s.file.Name, transfer.ErrChannelClosed))
		}
	}
}

// waitForHangup keeps the connection up while the send buffer drains and
// the receiver reads the tail of the stream. Whichever side closes first,
// the transfer already counts as done.
func (s *SenderSession) waitForHangup(ctx context.Context, engine *transfer.Sender, h *signaling.Handler, ev *channelEvents, failures *firstError) {
	drainCtx, stop := context.WithCancel(ctx)
	defer stop()
	drained := make(chan error, 1)
	go func(out chan<- error) { out <- engine.Drain(drainCtx) }(drained)

	var grace <-chan time.Time
	for {
		select {
		case err := <-drained:
			drained = nil
			if err != nil {
				s.logger.Debug("send buffer not drained", zap.Error(err))
			}
			timer := time.NewTimer(hangupGrace)
			defer timer.Stop()
			grace = timer.C
		case <-grace:
			s.logger.Debug("receiver did not hang up")
			return
		case <-h.PeerDisconnected:
			return
		case <-ev.closed:
			return
		case err := <-failures.ch:
			s.logger.Debug("connection ended after completion", zap.Error(err))
			return
		case <-ctx.Done():
			return
		}
	}
}
