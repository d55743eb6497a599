package transfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/utils"
)

// Hooks are called from HandleMessage as the transfer advances.
type Hooks struct {
	OnMetadata func(Metadata)
	OnProgress ProgressFunc
	OnComplete func(Metadata)
}

// Receiver accumulates one incoming file. Fragments are kept as received
// and only joined once the sender reports completion.
type Receiver struct {
	mu       sync.Mutex
	hooks    Hooks
	maxSize  int64
	logger   *zap.Logger
	meta     *Metadata
	chunks   [][]byte
	received int64
	done     bool
}

func NewReceiver(opts Options, hooks Hooks) *Receiver {
	opts = opts.withDefaults()
	return &Receiver{
		hooks:   hooks,
		maxSize: opts.MaxReceiveSize,
		logger:  opts.Logger,
	}
}

// HandleMessage consumes one data channel message. The receiver keeps a
// reference to data, so the caller must not reuse it.
//
// Malformed control frames and bytes that arrive before any metadata are
// logged and dropped. Errors are returned only for conditions that end the
// transfer: oversize data, a short file, or a cancel from the peer.
func (r *Receiver) HandleMessage(isString bool, data []byte) error {
	if !isString {
		return r.handleFragment(data)
	}

	msg, meta, err := ParseControl(data)
	if err != nil {
		r.logger.Warn("ignoring malformed control message", zap.Error(err))
		return nil
	}

	switch msg.Type {
	case TypeFileMetadata:
		return r.handleMetadata(*meta)
	case TypeTransferComplete:
		return r.handleComplete()
	case TypeCancelTransfer:
		r.reset()
		return NewError("receive", ErrCancelled)
	default:
		r.logger.Warn("ignoring unknown control message", zap.String("type", msg.Type))
		return nil
	}
}

func (r *Receiver) handleMetadata(meta Metadata) error {
	r.mu.Lock()
	if meta.Size > r.maxSize {
		r.meta, r.chunks, r.received, r.done = nil, nil, 0, false
		r.mu.Unlock()
		return &TransferError{
			Op: "receive", File: meta.Name, Err: ErrOverflow,
			Details: fmt.Sprintf("declared %s exceeds limit of %s", utils.FormatSize(meta.Size), utils.FormatSize(r.maxSize)),
		}
	}
	r.meta = &meta
	r.chunks = nil
	r.received = 0
	r.done = false
	r.mu.Unlock()

	if r.hooks.OnMetadata != nil {
		r.hooks.OnMetadata(meta)
	}
	if r.hooks.OnProgress != nil {
		r.hooks.OnProgress(0, meta.Size)
	}
	return nil
}

func (r *Receiver) handleFragment(data []byte) error {
	r.mu.Lock()
	if r.meta == nil || r.done {
		r.mu.Unlock()
		r.logger.Warn("ignoring data outside a transfer", zap.Int("bytes", len(data)))
		return nil
	}
	meta := *r.meta
	if r.received+int64(len(data)) > meta.Size {
		r.chunks, r.received = nil, 0
		r.meta = nil
		r.mu.Unlock()
		return &TransferError{Op: "receive", File: meta.Name, Err: ErrOverflow, Details: "more bytes than declared"}
	}
	if len(data) > 0 {
		r.chunks = append(r.chunks, data)
		r.received += int64(len(data))
	}
	received := r.received
	r.mu.Unlock()

	if r.hooks.OnProgress != nil {
		r.hooks.OnProgress(received, meta.Size)
	}
	return nil
}

func (r *Receiver) handleComplete() error {
	r.mu.Lock()
	if r.meta == nil {
		r.mu.Unlock()
		r.logger.Warn("ignoring completion without metadata")
		return nil
	}
	meta := *r.meta
	if r.received != meta.Size {
		received := r.received
		r.chunks, r.received, r.meta = nil, 0, nil
		r.mu.Unlock()
		return &TransferError{
			Op: "receive", File: meta.Name, Err: ErrSizeMismatch,
			Details: fmt.Sprintf("got %d of %d bytes", received, meta.Size),
		}
	}
	r.done = true
	r.mu.Unlock()

	if meta.Size == 0 && r.hooks.OnProgress != nil {
		r.hooks.OnProgress(0, 0)
	}
	if r.hooks.OnComplete != nil {
		r.hooks.OnComplete(meta)
	}
	return nil
}

// SettleEmpty finishes a declared zero-byte file whose transfer-complete
// never arrived, firing OnComplete. It reports whether the file is done.
func (r *Receiver) SettleEmpty() bool {
	r.mu.Lock()
	done := r.done
	empty := r.meta != nil && r.meta.Size == 0
	r.mu.Unlock()
	if done {
		return true
	}
	if !empty {
		return false
	}
	return r.handleComplete() == nil
}

func (r *Receiver) reset() {
	r.mu.Lock()
	r.meta, r.chunks, r.received, r.done = nil, nil, 0, false
	r.mu.Unlock()
}

// Metadata returns the announced file, if any.
func (r *Receiver) Metadata() (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		return Metadata{}, false
	}
	return *r.meta, true
}

// Received returns the bytes accumulated so far.
func (r *Receiver) Received() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

// Done reports whether a complete file is ready.
func (r *Receiver) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Assemble joins the fragments of a completed transfer.
func (r *Receiver) Assemble() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return nil, ErrNotDone
	}
	out := make([]byte, 0, r.received)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out, nil
}

// WriteTo writes a completed transfer to w without joining it in memory.
func (r *Receiver) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return 0, ErrNotDone
	}
	var total int64
	for _, c := range r.chunks {
		n, err := w.Write(c)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SaveTo writes a completed transfer into dir under a sanitised name that
// does not overwrite an existing file, and returns the path written.
func (r *Receiver) SaveTo(dir string) (string, error) {
	meta, ok := r.Metadata()
	if !ok || !r.Done() {
		return "", ErrNotDone
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewFileError("create directory", dir, err)
	}

	path := utils.GetUniqueFilename(filepath.Join(dir, utils.SanitizeFilename(meta.Name)))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", NewFileError("create file", meta.Name, err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", NewFileError("write", meta.Name, err)
	}
	if err := f.Close(); err != nil {
		return "", NewFileError("write", meta.Name, err)
	}
	return path, nil
}
