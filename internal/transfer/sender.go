package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
)

const drainPollInterval = 50 * time.Millisecond

// Options tunes the sender and receiver. Zero values take the config
// defaults.
type Options struct {
	ChunkSize      int
	HighWaterMark  uint64
	LowWaterMark   uint64
	MaxReceiveSize int64
	DrainTimeout   time.Duration
	Logger         *zap.Logger
}

// OptionsFrom copies the transfer settings out of cfg.
func OptionsFrom(cfg *config.Config, logger *zap.Logger) Options {
	return Options{
		ChunkSize:      cfg.ChunkSize,
		HighWaterMark:  uint64(cfg.HighWaterMark),
		LowWaterMark:   uint64(cfg.LowWaterMark),
		MaxReceiveSize: cfg.MaxReceiveSize,
		DrainTimeout:   cfg.DrainTimeout,
		Logger:         logger,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = config.DefaultChunkSize
	}
	if o.HighWaterMark == 0 {
		o.HighWaterMark = config.DefaultHighWaterMark
	}
	if o.LowWaterMark == 0 || o.LowWaterMark >= o.HighWaterMark {
		o.LowWaterMark = o.HighWaterMark / 4
	}
	if o.MaxReceiveSize <= 0 {
		o.MaxReceiveSize = config.DefaultMaxReceiveSize
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = config.DefaultDrainTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Sender streams one file at a time over a Channel. It keeps exactly one
// read in flight and pauses while the channel's send buffer is above the
// high water mark.
type Sender struct {
	ch     Channel
	opts   Options
	lowCh  chan struct{}
	buf    []byte
	logger *zap.Logger
}

func NewSender(ch Channel, opts Options) *Sender {
	opts = opts.withDefaults()
	s := &Sender{
		ch:     ch,
		opts:   opts,
		lowCh:  make(chan struct{}, 1),
		buf:    make([]byte, opts.ChunkSize),
		logger: opts.Logger,
	}
	ch.SetBufferedAmountLowThreshold(opts.LowWaterMark)
	ch.OnBufferedAmountLow(func() {
		select {
		case s.lowCh <- struct{}{}:
		default:
		}
	})
	return s
}

// Send writes the metadata frame, the file bytes in ChunkSize fragments and
// the completion frame. r must yield exactly meta.Size bytes. When ctx ends
// first a cancel frame is sent and the error wraps ErrCancelled.
func (s *Sender) Send(ctx context.Context, meta Metadata, r io.Reader, onProgress ProgressFunc) error {
	if err := meta.Validate(); err != nil {
		return NewFileError("send", meta.Name, err)
	}
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}

	frame, err := encodeControl(TypeFileMetadata, meta)
	if err != nil {
		return err
	}
	if err := s.ch.SendText(frame); err != nil {
		return &TransferError{Op: "send metadata", File: meta.Name, Err: ErrChannelClosed, Details: err.Error()}
	}

	var sent int64
	for sent < meta.Size {
		if err := s.waitForWindow(ctx); err != nil {
			s.Cancel()
			return NewFileError("send", meta.Name, ErrCancelled)
		}

		want := min(int64(len(s.buf)), meta.Size-sent)
		n, err := io.ReadFull(r, s.buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.Cancel()
				return &TransferError{Op: "send", File: meta.Name, Err: ErrSizeMismatch, Details: "file is shorter than declared"}
			}
			s.Cancel()
			return NewFileError("read", meta.Name, err)
		}

		if err := s.ch.Send(s.buf[:n]); err != nil {
			return &TransferError{Op: "send", File: meta.Name, Err: ErrChannelClosed, Details: err.Error()}
		}
		sent += int64(n)
		onProgress(sent, meta.Size)
	}

	var probe [1]byte
	if n, _ := io.ReadFull(r, probe[:]); n > 0 {
		s.Cancel()
		return &TransferError{Op: "send", File: meta.Name, Err: ErrSizeMismatch, Details: "file is longer than declared"}
	}

	frame, err = encodeControl(TypeTransferComplete, nil)
	if err != nil {
		return err
	}
	if err := s.ch.SendText(frame); err != nil {
		return &TransferError{Op: "send complete", File: meta.Name, Err: ErrChannelClosed, Details: err.Error()}
	}
	if meta.Size == 0 {
		onProgress(0, 0)
	}

	s.logger.Debug("transfer sent", zap.String("file", meta.Name), zap.Int64("bytes", sent))
	return nil
}

// waitForWindow returns once there is room to queue another fragment: either
// the buffer never passed the high water mark, or it has since fallen to the
// low water mark.
func (s *Sender) waitForWindow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ch.BufferedAmount() <= s.opts.HighWaterMark {
		return nil
	}

	// a signal left over from an earlier pause says nothing about now
	select {
	case <-s.lowCh:
	default:
	}

	for {
		if s.ch.BufferedAmount() <= s.opts.LowWaterMark {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.lowCh:
		}
	}
}

// Drain blocks until the channel has flushed everything queued, or ctx ends.
func (s *Sender) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for s.ch.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Cancel tells the peer to discard what it has received. Errors are ignored
// since the channel is usually on its way down.
func (s *Sender) Cancel() {
	SendCancel(s.ch)
}

// SendCancel sends a cancel frame on ch, best effort.
func SendCancel(ch Channel) {
	if ch == nil {
		return
	}
	frame, err := encodeControl(TypeCancelTransfer, nil)
	if err != nil {
		return
	}
	_ = ch.SendText(frame)
}
