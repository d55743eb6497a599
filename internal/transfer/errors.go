package transfer

import (
	"errors"
	"fmt"

	"github.com/abhayk2/localDrop/internal/ui"
)

var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrSignalingError   = errors.New("signaling server error")
	ErrConnectionFailed = errors.New("connection failed")
	ErrChannelClosed    = errors.New("channel closed")
	ErrCancelled        = errors.New("transfer cancelled")
	ErrInvalidMetadata  = errors.New("invalid file metadata")
	ErrOverflow         = errors.New("received more data than allowed")
	ErrSizeMismatch     = errors.New("byte count does not match declared size")
	ErrNotDone          = errors.New("transfer not complete")
	ErrDrainTimeout     = errors.New("send buffer did not drain in time")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		if e.Details != "" {
			return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.File, e.Err, e.Details)
		}
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}

// PrintErr prints err as a single line.
func PrintErr(err error) {
	ui.PrintError(err.Error())
}
