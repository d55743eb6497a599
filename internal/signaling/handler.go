package signaling

import (
	"go.uber.org/zap"
)

// Handler routes incoming signaling messages to typed channels.
type Handler struct {
	transport Transport
	logger    *zap.Logger

	PeerConnected    chan struct{}
	PeerDisconnected chan struct{}
	Signal           chan *Message
	// Lost receives the transport error once the subscription ends.
	// It stays silent after a local Close.
	Lost chan error
}

// NewHandler creates a new message handler.
func NewHandler(t Transport, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		transport:        t,
		logger:           logger,
		PeerConnected:    make(chan struct{}, 4),
		PeerDisconnected: make(chan struct{}, 4),
		Signal:           make(chan *Message, 64),
		Lost:             make(chan error, 1),
	}
}

// Start routes messages until the transport's incoming channel closes.
func (h *Handler) Start() {
	for msg := range h.transport.Incoming() {
		switch msg.Type {
		case TypePeerConnected:
			h.PeerConnected <- struct{}{}

		case TypePeerDisconnected:
			h.PeerDisconnected <- struct{}{}

		case TypeOffer, TypeAnswer:
			if msg.SDP == nil {
				h.logger.Warn("ignoring description without sdp", zap.String("type", msg.Type))
				continue
			}
			h.Signal <- msg

		case TypeICECandidate:
			if msg.Candidate == nil {
				h.logger.Warn("ignoring empty candidate")
				continue
			}
			h.Signal <- msg

		default:
			h.logger.Debug("ignoring unknown message", zap.String("type", msg.Type))
		}
	}

	if err := h.transport.Err(); err != nil {
		h.Lost <- err
	}
}
