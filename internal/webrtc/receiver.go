package webrtc

import (
	"context"
	"errors"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/peer"
	"github.com/abhayk2/localDrop/internal/session"
	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
)

// Result describes a received file.
type Result struct {
	Path    string
	File    transfer.Metadata
	Elapsed time.Duration
}

// ReceiverSession joins a room as the receiver and saves the one file the
// sender offers.
type ReceiverSession struct {
	cfg       *config.Config
	transport signaling.Transport
	outDir    string
	session   *session.Session
	logger    *zap.Logger
}

func NewReceiverSession(cfg *config.Config, t signaling.Transport, outDir string, logger *zap.Logger) *ReceiverSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiverSession{
		cfg:       cfg,
		transport: t,
		outDir:    outDir,
		session:   session.New(signaling.RoleReceiver, logger),
		logger:    logger,
	}
}

func (r *ReceiverSession) Session() *session.Session { return r.session }

// Run waits for the sender, receives the file and writes it to the output
// directory.
func (r *ReceiverSession) Run(ctx context.Context) (*Result, error) {
	if err := r.session.Start(); err != nil {
		return nil, err
	}
	res, err := r.run(ctx)
	if err != nil {
		_ = r.session.Fail(err)
	}
	return res, err
}

func (r *ReceiverSession) run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.transport.Connect(ctx); err != nil {
		return nil, transfer.WrapError("connect", transfer.ErrSignalingError, err.Error())
	}
	handler := signaling.NewHandler(r.transport, r.logger)
	go handler.Start()

	ctrl, err := peer.New(ctx, r.cfg, signaling.RoleReceiver, r.transport, r.logger)
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()

	channels := make(chan *pion.DataChannel, 1)
	ctrl.OnDataChannel(func(dc *pion.DataChannel) {
		select {
		case channels <- dc:
		default:
			r.logger.Warn("ignoring second data channel")
		}
	})

	failures := newFirstError()
	ctrl.OnFailure(failures.report)

	completed := make(chan struct{})
	var completeOnce sync.Once
	recv := transfer.NewReceiver(transfer.OptionsFrom(r.cfg, r.logger), transfer.Hooks{
		OnMetadata: func(meta transfer.Metadata) {
			_ = r.session.ChannelOpen()
			if err := r.session.MetadataReceived(meta); err != nil {
				r.logger.Warn("ignoring repeated metadata", zap.Error(err))
			}
		},
		OnProgress: func(done, _ int64) {
			_ = r.session.Progress(done)
		},
		OnComplete: func(transfer.Metadata) {
			// an empty file is already done on metadata
			_ = r.session.Complete()
			completeOnce.Do(func() { close(completed) })
		},
	})

	var (
		dc     *pion.DataChannel
		opened <-chan struct{}
		closed <-chan struct{}
	)
	terminal := r.session.Terminal()

	// abort tells the sender to stop; the frame is best effort.
	abort := func(err error) (*Result, error) {
		if dc != nil {
			transfer.SendCancel(dc)
		}
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return abort(transfer.NewError("receive", transfer.ErrCancelled))

		case err := <-handler.Lost:
			if ctx.Err() != nil {
				return abort(transfer.NewError("receive", transfer.ErrCancelled))
			}
			return abort(transfer.WrapError("signaling", transfer.ErrSignalingError, err.Error()))

		case <-handler.PeerConnected:
			_ = r.session.PeerAttached()

		case <-handler.PeerDisconnected:
			if r.session.Snapshot().State == session.StateDone {
				continue
			}
			_ = r.session.PeerDetached()
			return abort(transfer.NewError("receive", transfer.ErrPeerDisconnected))

		case msg := <-handler.Signal:
			if err := ctrl.HandleSignal(ctx, msg); err != nil {
				if errors.Is(err, peer.ErrInvalidNegotiation) {
					r.logger.Warn("ignoring signal", zap.Error(err))
					continue
				}
				return abort(err)
			}

		case dc = <-channels:
			ev := watchChannel(dc, func(msg pion.DataChannelMessage) {
				if err := recv.HandleMessage(msg.IsString, msg.Data); err != nil {
					failures.report(err)
				}
			})
			opened, closed = ev.opened, ev.closed

		case <-opened:
			opened = nil
			_ = r.session.ChannelOpen()

		case <-completed:
			path, err := recv.SaveTo(r.outDir)
			if err != nil {
				return nil, err
			}
			meta, _ := recv.Metadata()
			r.logger.Debug("file saved", zap.String("path", path))
			return &Result{Path: path, File: meta, Elapsed: r.session.Snapshot().Elapsed()}, nil

		case <-terminal:
			terminal = nil
			if err := r.session.Err(); err != nil {
				return abort(err)
			}

		case err := <-failures.ch:
			return abort(err)

		case <-closed:
			closed = nil
			// an empty file needs nothing beyond its metadata
			if recv.SettleEmpty() {
				continue
			}
			return nil, transfer.NewError("receive", transfer.ErrChannelClosed)
		}
	}
}
