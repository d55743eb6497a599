package transfer

// Channel is the part of *webrtc.DataChannel the engine uses.
type Channel interface {
	Send(data []byte) error
	SendText(s string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
}

// ProgressFunc reports bytes moved so far out of total.
type ProgressFunc func(done, total int64)
