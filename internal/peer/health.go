package peer

import (
	"github.com/pion/webrtc/v4"
)

// HealthState is the coarse connection health reported to sessions.
type HealthState int

const (
	HealthNew HealthState = iota
	HealthConnecting
	HealthConnected
	HealthFailed
	HealthDisconnected
	HealthClosed
)

func (h HealthState) String() string {
	switch h {
	case HealthNew:
		return "new"
	case HealthConnecting:
		return "connecting"
	case HealthConnected:
		return "connected"
	case HealthFailed:
		return "failed"
	case HealthDisconnected:
		return "disconnected"
	case HealthClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Failure reports states that end a transfer.
func (h HealthState) Failure() bool {
	return h == HealthFailed || h == HealthDisconnected
}

func healthFrom(s webrtc.PeerConnectionState) HealthState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return HealthConnecting
	case webrtc.PeerConnectionStateConnected:
		return HealthConnected
	case webrtc.PeerConnectionStateFailed:
		return HealthFailed
	case webrtc.PeerConnectionStateDisconnected:
		return HealthDisconnected
	case webrtc.PeerConnectionStateClosed:
		return HealthClosed
	default:
		return HealthNew
	}
}
